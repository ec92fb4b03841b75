package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/payments"
)

type PayoutStore interface {
	GetPayout(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error)
	// TransitionStatus moves a payout from one status to another only if it is
	// still in the from status. It reports whether the row was changed.
	TransitionStatus(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from, to string) (bool, error)
	SaveOutcome(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from string, outcome models.PayoutOutcome) (bool, error)
}

type PayoutNotifier interface {
	Enqueue(ctx context.Context, event string, payout *models.Payout) error
}

type EventPublisher interface {
	PublishPayoutEvent(event models.PayoutEvent)
}

type noopPublisher struct{}

func (noopPublisher) PublishPayoutEvent(models.PayoutEvent) {}

type PayoutProcessor struct {
	store      PayoutStore
	router     *payments.Router
	adapters   map[payments.Provider]payments.Adapter
	notifier   PayoutNotifier
	publisher  EventPublisher
	maxRetries int
	reason     string
	now        func() time.Time
	logger     *zap.Logger
}

func NewPayoutProcessor(
	store PayoutStore,
	router *payments.Router,
	adapters []payments.Adapter,
	notifier PayoutNotifier,
	publisher EventPublisher,
	maxRetries int,
	logger *zap.Logger,
) *PayoutProcessor {
	byProvider := make(map[payments.Provider]payments.Adapter, len(adapters))
	for _, adapter := range adapters {
		byProvider[adapter.Provider()] = adapter
	}
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &PayoutProcessor{
		store:      store,
		router:     router,
		adapters:   byProvider,
		notifier:   notifier,
		publisher:  publisher,
		maxRetries: maxRetries,
		reason:     "ChainFundIt payout",
		now:        time.Now,
		logger:     logger,
	}
}

// Process drives an approved payout to completed or failed. Provider failures are
// recorded on the payout and are not returned.
func (p *PayoutProcessor) Process(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	return p.drive(ctx, kind, id, models.PayoutStatusApproved)
}

// Retry re-drives a payout that failed with a retryable provider error.
func (p *PayoutProcessor) Retry(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error) {
	return p.drive(ctx, kind, id, models.PayoutStatusFailed)
}

func (p *PayoutProcessor) drive(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from string) (*models.Payout, error) {
	payout, err := p.store.GetPayout(ctx, kind, id)
	if err != nil {
		return nil, fmt.Errorf("load payout %s: %w", id, err)
	}
	payout.Kind = kind

	if payout.Status != from {
		return payout, fmt.Errorf("%w: payout %s is %s, expected %s", apperrors.ErrInvalidState, id, payout.Status, from)
	}

	attempt := 0
	retryCount := payout.RetryCount
	if from == models.PayoutStatusFailed {
		if payout.FailureCode == nil || *payout.FailureCode != models.FailureProviderError {
			return payout, fmt.Errorf("%w: payout %s failed with a non-retryable error", apperrors.ErrInvalidState, id)
		}
		if payout.RetryCount >= p.maxRetries {
			return payout, fmt.Errorf("%w: payout %s reached %d retries", apperrors.ErrInvalidState, id, p.maxRetries)
		}
		attempt = payout.RetryCount + 1
		retryCount = attempt
	}

	provider, ok := p.router.Route(payout.Currency)
	if !ok {
		err := fmt.Errorf("%w: %s", apperrors.ErrUnsupportedCurrency, payout.Currency)
		p.fail(ctx, payout, from, "", models.FailureUnsupportedCurrency, err, payout.RetryCount, nil)
		return payout, err
	}
	adapter, ok := p.adapters[provider]
	if !ok {
		err := fmt.Errorf("%w: %s provider is not configured", apperrors.ErrUnsupportedCurrency, provider)
		p.fail(ctx, payout, from, provider, models.FailureUnsupportedCurrency, err, payout.RetryCount, nil)
		return payout, err
	}

	destination := destinationOf(payout)
	if err := validateDestination(provider, destination); err != nil {
		p.fail(ctx, payout, from, provider, models.FailureValidation, err, payout.RetryCount, nil)
		return payout, err
	}

	swapped, err := p.store.TransitionStatus(ctx, kind, id, from, models.PayoutStatusProcessing)
	if err != nil {
		return payout, fmt.Errorf("mark payout %s processing: %w", id, err)
	}
	if !swapped {
		return payout, fmt.Errorf("%w: payout %s is already being processed", apperrors.ErrInvalidState, id)
	}
	payout.Status = models.PayoutStatusProcessing
	p.publish(payout)

	reference := payout.Reference(attempt)
	logger := p.logger.With(
		zap.String("payout_id", id.String()),
		zap.String("kind", string(kind)),
		zap.String("provider", string(provider)),
		zap.String("reference", reference))

	result, err := adapter.CreatePayout(ctx, payments.Instruction{
		Amount:      payout.NetAmount,
		Currency:    payout.Currency,
		Destination: destination,
		Reference:   reference,
		Reason:      p.reason,
	})
	if err != nil {
		code := models.FailureProviderError
		if errors.Is(err, apperrors.ErrValidation) {
			code = models.FailureValidation
		}
		if result != nil && result.RecipientCode != "" {
			payout.RecipientCode = stringPtr(result.RecipientCode)
		}
		logger.Warn("payout attempt failed", zap.Int("attempt", attempt), zap.Error(err))
		p.fail(ctx, payout, models.PayoutStatusProcessing, provider, code, err, retryCount, &reference)
		return payout, nil
	}

	processedAt := p.now()
	outcome := models.PayoutOutcome{
		Status:            models.PayoutStatusCompleted,
		Provider:          string(provider),
		TransactionID:     stringPtr(result.TransactionID),
		ProviderReference: &reference,
		RetryCount:        payout.RetryCount,
		ProcessedAt:       &processedAt,
	}
	if result.RecipientCode != "" {
		outcome.RecipientCode = stringPtr(result.RecipientCode)
	} else {
		outcome.RecipientCode = payout.RecipientCode
	}
	saved, err := p.store.SaveOutcome(ctx, kind, id, models.PayoutStatusProcessing, outcome)
	if err != nil {
		// The money has moved; the row has to be reconciled from the provider reference.
		logger.Error("payout completed at provider but saving the outcome failed",
			zap.String("transaction_id", result.TransactionID), zap.Error(err))
		return payout, fmt.Errorf("save completed payout %s: %w", id, err)
	}
	if !saved {
		logger.Warn("payout left processing while the provider call was in flight",
			zap.String("transaction_id", result.TransactionID))
		stored, err := p.store.GetPayout(ctx, kind, id)
		if err != nil {
			return payout, fmt.Errorf("reload payout %s: %w", id, err)
		}
		stored.Kind = kind
		return stored, nil
	}
	applyOutcome(payout, outcome)
	p.publish(payout)
	logger.Info("payout completed", zap.String("transaction_id", result.TransactionID))

	if err := p.notifier.Enqueue(ctx, models.NotificationPayoutCompleted, payout); err != nil {
		logger.Warn("failed to enqueue payout completion email", zap.Error(err))
	}

	return payout, nil
}

func (p *PayoutProcessor) fail(
	ctx context.Context,
	payout *models.Payout,
	from string,
	provider payments.Provider,
	code string,
	cause error,
	retryCount int,
	reference *string,
) {
	outcome := models.PayoutOutcome{
		Status:            models.PayoutStatusFailed,
		Provider:          string(provider),
		FailureReason:     stringPtr(cause.Error()),
		FailureCode:       stringPtr(code),
		RetryCount:        retryCount,
		ProviderReference: reference,
		RecipientCode:     payout.RecipientCode,
		Refund:            code != models.FailureProviderError || retryCount >= p.maxRetries,
	}
	saved, err := p.store.SaveOutcome(ctx, payout.Kind, payout.ID, from, outcome)
	if err != nil {
		p.logger.Error("failed to record payout failure",
			zap.String("payout_id", payout.ID.String()), zap.String("failure_code", code), zap.Error(err))
		return
	}
	if !saved {
		p.logger.Warn("payout changed status before its failure was recorded",
			zap.String("payout_id", payout.ID.String()), zap.String("expected_status", from))
		return
	}
	if outcome.Refund {
		p.logger.Info("payout failed for good, amount returned to balance",
			zap.String("payout_id", payout.ID.String()),
			zap.String("failure_code", code),
			zap.String("amount", payout.RequestedAmount.String()))
	}
	applyOutcome(payout, outcome)
	p.publish(payout)
}

func (p *PayoutProcessor) publish(payout *models.Payout) {
	p.publisher.PublishPayoutEvent(models.PayoutEvent{
		Kind:          payout.Kind,
		PayoutID:      payout.ID,
		Status:        payout.Status,
		FailureReason: payout.FailureReason,
		At:            p.now(),
	})
}

func applyOutcome(payout *models.Payout, outcome models.PayoutOutcome) {
	payout.Status = outcome.Status
	if outcome.Provider != "" {
		payout.Provider = stringPtr(outcome.Provider)
	}
	payout.TransactionID = outcome.TransactionID
	payout.RecipientCode = outcome.RecipientCode
	payout.ProviderReference = outcome.ProviderReference
	payout.FailureReason = outcome.FailureReason
	payout.FailureCode = outcome.FailureCode
	payout.RetryCount = outcome.RetryCount
	payout.ProcessedAt = outcome.ProcessedAt
}

func destinationOf(payout *models.Payout) payments.Destination {
	destination := payments.Destination{
		AccountName:   payout.AccountName,
		AccountNumber: payout.AccountNumber,
		BankCode:      payout.BankCode,
	}
	if payout.RecipientCode != nil {
		destination.RecipientCode = *payout.RecipientCode
	}
	if payout.StripeAccountID != nil {
		destination.StripeAccountID = *payout.StripeAccountID
	}
	return destination
}

func validateDestination(provider payments.Provider, destination payments.Destination) error {
	switch provider {
	case payments.ProviderStripe:
		if destination.StripeAccountID == "" {
			return apperrors.NewValidationError("stripe_account_id", "no connected Stripe account on the payout")
		}
	case payments.ProviderPaystack:
		if destination.RecipientCode != "" {
			return nil
		}
		if destination.AccountNumber == "" || destination.BankCode == "" {
			return apperrors.NewValidationError("bank_details", "account number and bank code are required")
		}
	}
	return nil
}

func stringPtr(s string) *string {
	return &s
}
