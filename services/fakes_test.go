package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/payments"
)

type fakePayoutStore struct {
	mu      sync.Mutex
	payouts map[uuid.UUID]*models.Payout
	now     func() time.Time

	campaigns map[uuid.UUID]*models.Campaign
	chainers  map[uuid.UUID]*models.Chainer
	created   []*models.Payout
}

func newFakePayoutStore() *fakePayoutStore {
	return &fakePayoutStore{
		payouts:   make(map[uuid.UUID]*models.Payout),
		campaigns: make(map[uuid.UUID]*models.Campaign),
		chainers:  make(map[uuid.UUID]*models.Chainer),
		now:       time.Now,
	}
}

func (s *fakePayoutStore) put(p *models.Payout) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *p
	s.payouts[p.ID] = &cp
}

func (s *fakePayoutStore) get(id uuid.UUID) models.Payout {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.payouts[id]
}

func (s *fakePayoutStore) GetPayout(_ context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.Kind != kind {
		return nil, apperrors.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (s *fakePayoutStore) TransitionStatus(_ context.Context, kind models.PayoutKind, id uuid.UUID, from, to string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.Kind != kind || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = s.now()
	if to == models.PayoutStatusApproved {
		now := s.now()
		p.ApprovedAt = &now
	}
	return true, nil
}

func (s *fakePayoutStore) SaveOutcome(_ context.Context, kind models.PayoutKind, id uuid.UUID, from string, o models.PayoutOutcome) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.Kind != kind || p.Status != from {
		return false, nil
	}
	p.Status = o.Status
	if o.Provider != "" {
		provider := o.Provider
		p.Provider = &provider
	}
	p.TransactionID = o.TransactionID
	p.RecipientCode = o.RecipientCode
	p.ProviderReference = o.ProviderReference
	p.FailureReason = o.FailureReason
	p.FailureCode = o.FailureCode
	p.RetryCount = o.RetryCount
	p.ProcessedAt = o.ProcessedAt
	p.UpdatedAt = s.now()
	if o.Refund {
		s.refund(p)
	}
	return true, nil
}

func (s *fakePayoutStore) refund(p *models.Payout) {
	if p.Kind == models.PayoutKindCommission && p.ChainerID != nil {
		if c, ok := s.chainers[*p.ChainerID]; ok {
			c.CommissionPaid = c.CommissionPaid.Sub(p.RequestedAmount)
		}
		return
	}
	if c, ok := s.campaigns[p.CampaignID]; ok {
		c.WithdrawnAmount = c.WithdrawnAmount.Sub(p.RequestedAmount)
	}
}

func (s *fakePayoutStore) CreatePayout(_ context.Context, p *models.Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch p.Kind {
	case models.PayoutKindCampaign:
		campaign, ok := s.campaigns[p.CampaignID]
		if !ok {
			return apperrors.ErrCampaignNotFound
		}
		if campaign.Available().LessThan(p.RequestedAmount) {
			return apperrors.ErrInsufficientFunds
		}
		campaign.WithdrawnAmount = campaign.WithdrawnAmount.Add(p.RequestedAmount)
	case models.PayoutKindCommission:
		chainer, ok := s.chainers[*p.ChainerID]
		if !ok {
			return apperrors.ErrChainerNotFound
		}
		if chainer.Available().LessThan(p.RequestedAmount) {
			return apperrors.ErrInsufficientFunds
		}
		chainer.CommissionPaid = chainer.CommissionPaid.Add(p.RequestedAmount)
	}
	p.ID = uuid.New()
	p.CreatedAt = s.now()
	p.UpdatedAt = p.CreatedAt
	cp := *p
	s.payouts[p.ID] = &cp
	s.created = append(s.created, &cp)
	return nil
}

func (s *fakePayoutStore) RejectPayout(_ context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.Kind != kind || p.Status != models.PayoutStatusPending {
		return false, nil
	}
	p.Status = models.PayoutStatusRejected
	p.Notes = &notes
	s.refund(p)
	return true, nil
}

func (s *fakePayoutStore) GetCampaign(_ context.Context, id uuid.UUID) (*models.Campaign, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.campaigns[id]
	if !ok {
		return nil, apperrors.ErrCampaignNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakePayoutStore) GetChainer(_ context.Context, id uuid.UUID) (*models.Chainer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.chainers[id]
	if !ok {
		return nil, apperrors.ErrChainerNotFound
	}
	cp := *c
	return &cp, nil
}

func (s *fakePayoutStore) ListPayouts(_ context.Context, kind models.PayoutKind, status string) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.Kind == kind && (status == "" || p.Status == status) {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (s *fakePayoutStore) ListPayoutsForOwner(_ context.Context, ownerID uuid.UUID) ([]models.Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Payout
	for _, p := range s.payouts {
		if p.OwnerID == ownerID {
			out = append(out, *p)
		}
	}
	return out, nil
}

type fakeAdapter struct {
	mu       sync.Mutex
	provider payments.Provider
	calls    []payments.Instruction
	err      error
	result   *payments.Result
	// partial is returned together with err.
	partial *payments.Result
	// during runs inside the provider call.
	during func()
}

func (a *fakeAdapter) Provider() payments.Provider { return a.provider }

func (a *fakeAdapter) CreatePayout(_ context.Context, in payments.Instruction) (*payments.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, in)
	if a.during != nil {
		a.during()
	}
	if a.err != nil {
		return a.partial, a.err
	}
	if a.result != nil {
		return a.result, nil
	}
	return &payments.Result{TransactionID: "TRF_" + in.Reference, RecipientCode: "RCP_1", Status: "success"}, nil
}

func (a *fakeAdapter) callCount() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.calls)
}

type enqueued struct {
	event    string
	payoutID uuid.UUID
}

type fakeNotifier struct {
	mu     sync.Mutex
	events []enqueued
	err    error
}

func (n *fakeNotifier) Enqueue(_ context.Context, event string, payout *models.Payout) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, enqueued{event: event, payoutID: payout.ID})
	return n.err
}

func (n *fakeNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

type fakePublisher struct {
	mu     sync.Mutex
	events []models.PayoutEvent
}

func (f *fakePublisher) PublishPayoutEvent(event models.PayoutEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *fakePublisher) statuses() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.events))
	for _, e := range f.events {
		out = append(out, e.Status)
	}
	return out
}

type fakeUsers struct {
	users map[uuid.UUID]*models.User
}

func (f *fakeUsers) GetUser(_ context.Context, id uuid.UUID) (*models.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, apperrors.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

type fixedRates struct {
	rates map[string]decimal.Decimal
	err   error
}

func (f fixedRates) Convert(_ context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	if f.err != nil {
		return decimal.Zero, f.err
	}
	if from == to {
		return amount, nil
	}
	rate, ok := f.rates[from+to]
	if !ok {
		return decimal.Zero, errors.New("no rate")
	}
	return amount.Mul(rate).Round(2), nil
}

func strPtr(s string) *string { return &s }
