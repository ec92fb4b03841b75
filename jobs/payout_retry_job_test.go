package jobs

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/cache"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/payments"
	"github.com/chainfundit/backend/services"
)

// memoryPayouts is an in-memory payout table that stamps updated_at from a
// controllable clock, like the database does.
type memoryPayouts struct {
	mu   sync.Mutex
	rows map[uuid.UUID]*models.Payout
	now  func() time.Time
}

func (m *memoryPayouts) GetPayout(_ context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Kind != kind {
		return nil, apperrors.ErrPayoutNotFound
	}
	cp := *p
	return &cp, nil
}

func (m *memoryPayouts) TransitionStatus(_ context.Context, kind models.PayoutKind, id uuid.UUID, from, to string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Kind != kind || p.Status != from {
		return false, nil
	}
	p.Status = to
	p.UpdatedAt = m.now()
	return true, nil
}

func (m *memoryPayouts) SaveOutcome(_ context.Context, kind models.PayoutKind, id uuid.UUID, from string, o models.PayoutOutcome) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok || p.Kind != kind || p.Status != from {
		return false, nil
	}
	p.Status = o.Status
	p.TransactionID = o.TransactionID
	p.FailureReason = o.FailureReason
	p.FailureCode = o.FailureCode
	p.RetryCount = o.RetryCount
	p.UpdatedAt = m.now()
	return true, nil
}

func (m *memoryPayouts) ListRetryable(_ context.Context, kind models.PayoutKind, cutoff time.Time, maxRetries, limit int) ([]models.Payout, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Payout
	for _, p := range m.rows {
		if p.Kind == kind &&
			p.Status == models.PayoutStatusFailed &&
			p.FailureCode != nil && *p.FailureCode == models.FailureProviderError &&
			p.RetryCount < maxRetries &&
			!p.UpdatedAt.After(cutoff) {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type scriptedAdapter struct {
	mu     sync.Mutex
	fail   map[string]bool
	calls  []string
	onCall func()
}

func (a *scriptedAdapter) Provider() payments.Provider { return payments.ProviderPaystack }

func (a *scriptedAdapter) CreatePayout(_ context.Context, in payments.Instruction) (*payments.Result, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.calls = append(a.calls, in.Reference)
	if a.onCall != nil {
		a.onCall()
	}
	if a.fail[in.Destination.AccountNumber] {
		return nil, apperrors.NewProviderError("paystack", "initiate transfer", errors.New("gateway timeout"))
	}
	return &payments.Result{TransactionID: "TRF_" + in.Reference}, nil
}

type nopNotifier struct{}

func (nopNotifier) Enqueue(context.Context, string, *models.Payout) error { return nil }

type SweeperSuite struct {
	suite.Suite
	clock   time.Time
	store   *memoryPayouts
	adapter *scriptedAdapter
	sweeper *PayoutRetrySweeper
}

func (s *SweeperSuite) SetupTest() {
	s.clock = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	now := func() time.Time { return s.clock }
	s.store = &memoryPayouts{rows: make(map[uuid.UUID]*models.Payout), now: now}
	s.adapter = &scriptedAdapter{fail: make(map[string]bool)}

	processor := services.NewPayoutProcessor(
		s.store,
		payments.NewRouter(payments.DefaultRoutes()),
		[]payments.Adapter{s.adapter},
		nopNotifier{},
		nil,
		3,
		zap.NewNop(),
	)
	s.sweeper = NewPayoutRetrySweeper(s.store, processor, cache.NewLocalLocker(), nil,
		SweeperConfig{MaxRetries: 3, RetryDelay: time.Hour, BatchSize: 100}, zap.NewNop())
	s.sweeper.now = now
}

func (s *SweeperSuite) failedPayout(kind models.PayoutKind, account string, retries int, age time.Duration) *models.Payout {
	p := &models.Payout{
		ID:            uuid.New(),
		Kind:          kind,
		NetAmount:     decimal.NewFromInt(100),
		Currency:      "NGN",
		Status:        models.PayoutStatusFailed,
		FailureCode:   strPtr(models.FailureProviderError),
		RetryCount:    retries,
		AccountNumber: account,
		BankCode:      "058",
		UpdatedAt:     s.clock.Add(-age),
	}
	s.store.rows[p.ID] = p
	return p
}

func (s *SweeperSuite) TestRetriesEligiblePayoutsPerKind() {
	ok := s.failedPayout(models.PayoutKindCampaign, "111", 0, 2*time.Hour)
	flaky := s.failedPayout(models.PayoutKindCommission, "222", 1, 3*time.Hour)
	s.adapter.fail["222"] = true

	result, err := s.sweeper.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(SweepStats{Attempted: 1, Succeeded: 1}, *result.Kinds[models.PayoutKindCampaign])
	s.Equal(SweepStats{Attempted: 1, Failed: 1}, *result.Kinds[models.PayoutKindCommission])
	s.Equal(models.PayoutStatusCompleted, s.store.rows[ok.ID].Status)
	s.Equal(models.PayoutStatusFailed, s.store.rows[flaky.ID].Status)
	s.Equal(2, s.store.rows[flaky.ID].RetryCount)
	s.ElementsMatch([]string{ok.ID.String() + "-1", flaky.ID.String() + "-2"}, s.adapter.calls)
}

func (s *SweeperSuite) TestNeverRedrivesExhaustedPayouts() {
	exhausted := s.failedPayout(models.PayoutKindCampaign, "111", 3, 5*time.Hour)

	result, err := s.sweeper.Run(context.Background())

	s.Require().NoError(err)
	s.Zero(result.Total().Attempted)
	s.Empty(s.adapter.calls)
	s.Equal(3, s.store.rows[exhausted.ID].RetryCount)
}

func (s *SweeperSuite) TestWaitsForRetryDelay() {
	s.failedPayout(models.PayoutKindCampaign, "111", 0, 10*time.Minute)

	result, err := s.sweeper.Run(context.Background())

	s.Require().NoError(err)
	s.Zero(result.Total().Attempted)
	s.Empty(s.adapter.calls)
}

func (s *SweeperSuite) TestImmediateSecondRunIsNoop() {
	s.failedPayout(models.PayoutKindCampaign, "111", 0, 2*time.Hour)
	s.failedPayout(models.PayoutKindCampaign, "222", 0, 2*time.Hour)
	s.adapter.fail["222"] = true

	first, err := s.sweeper.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(2, first.Total().Attempted)

	second, err := s.sweeper.Run(context.Background())
	s.Require().NoError(err)
	s.Equal(SweepStats{}, second.Total())
	s.Len(s.adapter.calls, 2)
}

func (s *SweeperSuite) TestRetriesUntilMaxThenStops() {
	p := s.failedPayout(models.PayoutKindCampaign, "222", 0, 2*time.Hour)
	s.adapter.fail["222"] = true

	for i := 0; i < 5; i++ {
		_, err := s.sweeper.Run(context.Background())
		s.Require().NoError(err)
		s.clock = s.clock.Add(2 * time.Hour)
	}

	s.Equal(3, s.store.rows[p.ID].RetryCount)
	s.Len(s.adapter.calls, 3)
}

func (s *SweeperSuite) TestBatchSizeBoundsWork() {
	s.sweeper.cfg.BatchSize = 2
	for i := 0; i < 5; i++ {
		s.failedPayout(models.PayoutKindCampaign, "111", 0, time.Duration(i+2)*time.Hour)
	}

	result, err := s.sweeper.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(2, result.Kinds[models.PayoutKindCampaign].Attempted)
}

func (s *SweeperSuite) TestStopsBeforeLockExpires() {
	first := s.failedPayout(models.PayoutKindCampaign, "111", 0, 4*time.Hour)
	second := s.failedPayout(models.PayoutKindCampaign, "111", 0, 3*time.Hour)
	late := s.failedPayout(models.PayoutKindCampaign, "111", 0, 2*time.Hour)
	commission := s.failedPayout(models.PayoutKindCommission, "111", 0, 2*time.Hour)
	s.adapter.onCall = func() { s.clock = s.clock.Add(5 * time.Minute) }

	result, err := s.sweeper.Run(context.Background())

	s.Require().NoError(err)
	s.Equal(SweepStats{Attempted: 2, Succeeded: 2, Deferred: 1}, *result.Kinds[models.PayoutKindCampaign])
	s.Equal(SweepStats{}, *result.Kinds[models.PayoutKindCommission])
	s.Equal(models.PayoutStatusCompleted, s.store.rows[first.ID].Status)
	s.Equal(models.PayoutStatusCompleted, s.store.rows[second.ID].Status)
	s.Equal(models.PayoutStatusFailed, s.store.rows[late.ID].Status)
	s.Equal(models.PayoutStatusFailed, s.store.rows[commission.ID].Status)
	s.Len(s.adapter.calls, 2)
}

func TestSweeperSuite(t *testing.T) {
	suite.Run(t, new(SweeperSuite))
}

type heldLocker struct{}

func (heldLocker) TryLock(context.Context, string, time.Duration) (cache.ReleaseFunc, bool, error) {
	return nil, false, nil
}

func TestSweepInProgressElsewhere(t *testing.T) {
	sweeper := NewPayoutRetrySweeper(&memoryPayouts{rows: map[uuid.UUID]*models.Payout{}, now: time.Now},
		nil, heldLocker{}, nil, SweeperConfig{MaxRetries: 3, RetryDelay: time.Hour, BatchSize: 10}, zap.NewNop())

	result, err := sweeper.Run(context.Background())

	require.ErrorIs(t, err, apperrors.ErrSweepInProgress)
	assert.Equal(t, SweepStats{}, result.Total())
}

func strPtr(s string) *string { return &s }
