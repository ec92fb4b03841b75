package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/payments"
)

type PayoutRequestStore interface {
	PayoutStore
	// CreatePayout inserts a pending payout and debits the campaign or chainer
	// balance in the same transaction.
	CreatePayout(ctx context.Context, payout *models.Payout) error
	// RejectPayout moves a pending payout to rejected and refunds the debited balance.
	RejectPayout(ctx context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (bool, error)
	ListPayouts(ctx context.Context, kind models.PayoutKind, status string) ([]models.Payout, error)
	ListPayoutsForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.Payout, error)
	GetCampaign(ctx context.Context, id uuid.UUID) (*models.Campaign, error)
	GetChainer(ctx context.Context, id uuid.UUID) (*models.Chainer, error)
}

type UserReader interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type RateConverter interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error)
}

// PayoutRequest is what a campaign owner or chainer submits.
// ChainerID is required for commission payouts and ignored otherwise.
type PayoutRequest struct {
	OwnerID    uuid.UUID
	Kind       models.PayoutKind
	CampaignID uuid.UUID
	ChainerID  *uuid.UUID
	Amount     decimal.Decimal
}

type PayoutRequestService struct {
	store     PayoutRequestStore
	users     UserReader
	rates     RateConverter
	router    *payments.Router
	notifier  PayoutNotifier
	publisher EventPublisher
	feeRate   decimal.Decimal
	now       func() time.Time
	logger    *zap.Logger
}

func NewPayoutRequestService(
	store PayoutRequestStore,
	users UserReader,
	rates RateConverter,
	router *payments.Router,
	notifier PayoutNotifier,
	publisher EventPublisher,
	feeRate decimal.Decimal,
	logger *zap.Logger,
) *PayoutRequestService {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &PayoutRequestService{
		store:     store,
		users:     users,
		rates:     rates,
		router:    router,
		notifier:  notifier,
		publisher: publisher,
		feeRate:   feeRate,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *PayoutRequestService) RequestPayout(ctx context.Context, req PayoutRequest) (*models.Payout, error) {
	if !req.Amount.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "must be greater than zero")
	}

	user, err := s.users.GetUser(ctx, req.OwnerID)
	if err != nil {
		return nil, fmt.Errorf("load payout owner: %w", err)
	}
	if user.BankLocked {
		return nil, apperrors.NewValidationError("bank_details", "banking profile is locked")
	}
	if !user.BankVerified {
		return nil, apperrors.NewValidationError("bank_details", "banking profile is not verified yet")
	}
	if user.BankCurrency == nil || *user.BankCurrency == "" {
		return nil, apperrors.NewValidationError("bank_currency", "is required")
	}

	currency := strings.ToUpper(*user.BankCurrency)
	provider, ok := s.router.Route(currency)
	if !ok {
		return nil, fmt.Errorf("%w: %s", apperrors.ErrUnsupportedCurrency, currency)
	}
	if err := checkBankProfile(provider, user); err != nil {
		return nil, err
	}

	payout := &models.Payout{
		Kind:       req.Kind,
		OwnerID:    req.OwnerID,
		CampaignID: req.CampaignID,
		Currency:   currency,
		Status:     models.PayoutStatusPending,
	}

	var sourceCurrency string
	switch req.Kind {
	case models.PayoutKindCampaign:
		campaign, err := s.store.GetCampaign(ctx, req.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("load campaign: %w", err)
		}
		if campaign.OwnerID != req.OwnerID {
			return nil, apperrors.ErrCampaignNotFound
		}
		if campaign.Available().LessThan(req.Amount) {
			return nil, apperrors.ErrInsufficientFunds
		}
		sourceCurrency = campaign.Currency
	case models.PayoutKindCommission:
		if req.ChainerID == nil {
			return nil, apperrors.NewValidationError("chainer_id", "is required for commission payouts")
		}
		chainer, err := s.store.GetChainer(ctx, *req.ChainerID)
		if err != nil {
			return nil, fmt.Errorf("load chainer: %w", err)
		}
		if chainer.UserID != req.OwnerID {
			return nil, apperrors.ErrChainerNotFound
		}
		if chainer.Available().LessThan(req.Amount) {
			return nil, apperrors.ErrInsufficientFunds
		}
		campaign, err := s.store.GetCampaign(ctx, chainer.CampaignID)
		if err != nil {
			return nil, fmt.Errorf("load campaign: %w", err)
		}
		payout.CampaignID = chainer.CampaignID
		payout.ChainerID = req.ChainerID
		sourceCurrency = campaign.Currency
	default:
		return nil, apperrors.NewValidationError("kind", fmt.Sprintf("unknown payout kind %q", req.Kind))
	}

	gross, err := s.rates.Convert(ctx, req.Amount, sourceCurrency, currency)
	if err != nil {
		return nil, fmt.Errorf("convert %s to %s: %w", sourceCurrency, currency, err)
	}
	gross = gross.Round(2)
	fees := gross.Mul(s.feeRate).Round(2)
	net := gross.Sub(fees)
	if !net.IsPositive() {
		return nil, apperrors.NewValidationError("amount", "is too small to cover payout fees")
	}

	payout.RequestedAmount = req.Amount.Round(2)
	payout.RequestedCurrency = strings.ToUpper(sourceCurrency)
	payout.GrossAmount = gross
	payout.Fees = fees
	payout.NetAmount = net
	snapshotBank(payout, user)

	if err := s.store.CreatePayout(ctx, payout); err != nil {
		return nil, fmt.Errorf("create payout: %w", err)
	}

	s.logger.Info("payout requested",
		zap.String("payout_id", payout.ID.String()),
		zap.String("kind", string(payout.Kind)),
		zap.String("currency", payout.Currency),
		zap.String("net_amount", payout.NetAmount.StringFixed(2)))
	s.publish(payout)

	return payout, nil
}

// Approve moves a pending payout to approved. Processing is a separate step.
func (s *PayoutRequestService) Approve(ctx context.Context, kind models.PayoutKind, id, adminID uuid.UUID) (*models.Payout, error) {
	swapped, err := s.store.TransitionStatus(ctx, kind, id, models.PayoutStatusPending, models.PayoutStatusApproved)
	if err != nil {
		return nil, fmt.Errorf("approve payout %s: %w", id, err)
	}
	payout, err := s.loadAfterTransition(ctx, kind, id, swapped, models.PayoutStatusPending)
	if err != nil {
		return payout, err
	}

	s.logger.Info("payout approved",
		zap.String("payout_id", id.String()),
		zap.String("kind", string(kind)),
		zap.String("admin_id", adminID.String()))
	s.publish(payout)
	if err := s.notifier.Enqueue(ctx, models.NotificationPayoutApproved, payout); err != nil {
		s.logger.Warn("failed to enqueue payout approval email", zap.String("payout_id", id.String()), zap.Error(err))
	}
	return payout, nil
}

func (s *PayoutRequestService) Reject(ctx context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (*models.Payout, error) {
	swapped, err := s.store.RejectPayout(ctx, kind, id, notes)
	if err != nil {
		return nil, fmt.Errorf("reject payout %s: %w", id, err)
	}
	payout, err := s.loadAfterTransition(ctx, kind, id, swapped, models.PayoutStatusPending)
	if err != nil {
		return payout, err
	}

	s.logger.Info("payout rejected", zap.String("payout_id", id.String()), zap.String("kind", string(kind)))
	s.publish(payout)
	if err := s.notifier.Enqueue(ctx, models.NotificationPayoutRejected, payout); err != nil {
		s.logger.Warn("failed to enqueue payout rejection email", zap.String("payout_id", id.String()), zap.Error(err))
	}
	return payout, nil
}

func (s *PayoutRequestService) List(ctx context.Context, kind models.PayoutKind, status string) ([]models.Payout, error) {
	payouts, err := s.store.ListPayouts(ctx, kind, status)
	if err != nil {
		return nil, fmt.Errorf("list %s payouts: %w", kind, err)
	}
	for i := range payouts {
		payouts[i].Kind = kind
	}
	return payouts, nil
}

func (s *PayoutRequestService) ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.OwnerView, error) {
	payouts, err := s.store.ListPayoutsForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list payouts for %s: %w", ownerID, err)
	}
	views := make([]models.OwnerView, 0, len(payouts))
	for _, p := range payouts {
		views = append(views, p.OwnerView())
	}
	return views, nil
}

func (s *PayoutRequestService) loadAfterTransition(ctx context.Context, kind models.PayoutKind, id uuid.UUID, swapped bool, expected string) (*models.Payout, error) {
	payout, err := s.store.GetPayout(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("load payout %s: %w", id, err)
	}
	payout.Kind = kind
	if !swapped {
		return payout, fmt.Errorf("%w: payout %s is %s, expected %s", apperrors.ErrInvalidState, id, payout.Status, expected)
	}
	return payout, nil
}

func (s *PayoutRequestService) publish(payout *models.Payout) {
	s.publisher.PublishPayoutEvent(models.PayoutEvent{
		Kind:     payout.Kind,
		PayoutID: payout.ID,
		Status:   payout.Status,
		At:       s.now(),
	})
}

func checkBankProfile(provider payments.Provider, user *models.User) error {
	switch provider {
	case payments.ProviderStripe:
		if user.StripeAccountID == nil || *user.StripeAccountID == "" {
			return apperrors.NewValidationError("stripe_account_id", "connect a Stripe account to receive this currency")
		}
	case payments.ProviderPaystack:
		if user.BankAccountNumber == nil || *user.BankAccountNumber == "" {
			return apperrors.NewValidationError("bank_account_number", "is required")
		}
		if user.BankCode == nil || *user.BankCode == "" {
			return apperrors.NewValidationError("bank_code", "is required")
		}
	}
	return nil
}

func snapshotBank(payout *models.Payout, user *models.User) {
	if user.BankAccountName != nil {
		payout.AccountName = *user.BankAccountName
	} else {
		payout.AccountName = user.FullName
	}
	if user.BankAccountNumber != nil {
		payout.AccountNumber = *user.BankAccountNumber
	}
	if user.BankCode != nil {
		payout.BankCode = *user.BankCode
	}
	if user.BankName != nil {
		payout.BankName = *user.BankName
	}
	if user.StripeAccountID != nil {
		payout.StripeAccountID = stringPtr(*user.StripeAccountID)
	}
}
