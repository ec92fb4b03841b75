package services

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/payments"
)

type WebhookPayoutStore interface {
	FindPayoutByReference(ctx context.Context, reference string) (*models.Payout, error)
	SaveOutcome(ctx context.Context, kind models.PayoutKind, id uuid.UUID, from string, outcome models.PayoutOutcome) (bool, error)
}

// TransferVerifier reads a transfer back from Paystack by reference.
type TransferVerifier interface {
	VerifyTransfer(ctx context.Context, reference string) (*payments.PaystackTransfer, error)
}

type DonationRecorder interface {
	RecordDonation(ctx context.Context, in DonationInput) (*models.Donation, error)
}

type paystackEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type paystackCharge struct {
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Customer  struct {
		Email string `json:"email"`
	} `json:"customer"`
	Metadata json.RawMessage `json:"metadata"`
}

type chargeMetadata struct {
	CampaignID   string `json:"campaign_id"`
	ReferralCode string `json:"referral_code"`
}

type paystackTransferEvent struct {
	Reference    string `json:"reference"`
	TransferCode string `json:"transfer_code"`
	Reason       string `json:"reason"`
}

// PaystackWebhook applies Paystack events: donations from successful charges
// and late transfer failures on payouts.
type PaystackWebhook struct {
	secret     []byte
	store      WebhookPayoutStore
	transfers  TransferVerifier
	donations  DonationRecorder
	publisher  EventPublisher
	maxRetries int // same limit as the processor; a failure past it is final
	logger     *zap.Logger
}

func NewPaystackWebhook(
	secret string,
	store WebhookPayoutStore,
	transfers TransferVerifier,
	donations DonationRecorder,
	publisher EventPublisher,
	maxRetries int,
	logger *zap.Logger,
) *PaystackWebhook {
	if publisher == nil {
		publisher = noopPublisher{}
	}
	return &PaystackWebhook{
		secret:     []byte(secret),
		store:      store,
		transfers:  transfers,
		donations:  donations,
		publisher:  publisher,
		maxRetries: maxRetries,
		logger:     logger,
	}
}

// VerifySignature checks x-paystack-signature, the hex HMAC-SHA512 of the raw body.
func (w *PaystackWebhook) VerifySignature(body []byte, signature string) bool {
	if len(w.secret) == 0 || signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, w.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

func (w *PaystackWebhook) Handle(ctx context.Context, body []byte) error {
	var event paystackEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return apperrors.NewValidationError("body", "malformed webhook payload")
	}

	switch event.Event {
	case "charge.success":
		return w.handleCharge(ctx, event.Data)
	case "transfer.failed", "transfer.reversed":
		return w.handleTransferFailure(ctx, event.Event, event.Data)
	case "transfer.success":
		var transfer paystackTransferEvent
		_ = json.Unmarshal(event.Data, &transfer)
		w.logger.Info("paystack transfer confirmed", zap.String("reference", transfer.Reference))
		return nil
	default:
		w.logger.Debug("ignoring paystack event", zap.String("event", event.Event))
		return nil
	}
}

func (w *PaystackWebhook) handleCharge(ctx context.Context, raw json.RawMessage) error {
	var charge paystackCharge
	if err := json.Unmarshal(raw, &charge); err != nil {
		return apperrors.NewValidationError("data", "malformed charge")
	}

	var meta chargeMetadata
	// Paystack sends "" when a charge carries no metadata.
	_ = json.Unmarshal(charge.Metadata, &meta)
	campaignID, err := uuid.Parse(meta.CampaignID)
	if err != nil {
		w.logger.Info("charge without campaign metadata", zap.String("reference", charge.Reference))
		return nil
	}

	_, err = w.donations.RecordDonation(ctx, DonationInput{
		CampaignID:        campaignID,
		ReferralCode:      meta.ReferralCode,
		DonorEmail:        charge.Customer.Email,
		Amount:            payments.MajorUnits(charge.Amount, charge.Currency),
		Currency:          charge.Currency,
		Provider:          string(payments.ProviderPaystack),
		ProviderReference: charge.Reference,
	})
	if errors.Is(err, apperrors.ErrDuplicateDonation) {
		return nil
	}
	return err
}

func (w *PaystackWebhook) handleTransferFailure(ctx context.Context, event string, raw json.RawMessage) error {
	var transfer paystackTransferEvent
	if err := json.Unmarshal(raw, &transfer); err != nil {
		return apperrors.NewValidationError("data", "malformed transfer")
	}

	payout, err := w.store.FindPayoutByReference(ctx, transfer.Reference)
	if errors.Is(err, apperrors.ErrPayoutNotFound) {
		w.logger.Warn("transfer event for unknown reference", zap.String("event", event), zap.String("reference", transfer.Reference))
		return nil
	}
	if err != nil {
		return err
	}
	if payout.Status != models.PayoutStatusCompleted && payout.Status != models.PayoutStatusProcessing {
		return nil
	}
	if w.transfers != nil {
		verified, err := w.transfers.VerifyTransfer(ctx, transfer.Reference)
		if err != nil {
			return err
		}
		if verified.Status != "failed" && verified.Status != "reversed" {
			w.logger.Warn("ignoring transfer event not confirmed by paystack",
				zap.String("event", event),
				zap.String("reference", transfer.Reference),
				zap.String("verified_status", verified.Status))
			return nil
		}
	}

	reason := fmt.Sprintf("paystack %s", event)
	if transfer.Reason != "" {
		reason = fmt.Sprintf("%s: %s", reason, transfer.Reason)
	}
	code := models.FailureProviderError
	outcome := models.PayoutOutcome{
		Status:            models.PayoutStatusFailed,
		Provider:          string(payments.ProviderPaystack),
		TransactionID:     payout.TransactionID,
		RecipientCode:     payout.RecipientCode,
		ProviderReference: payout.ProviderReference,
		FailureReason:     &reason,
		FailureCode:       &code,
		RetryCount:        payout.RetryCount,
		Refund:            payout.RetryCount >= w.maxRetries,
	}
	saved, err := w.store.SaveOutcome(ctx, payout.Kind, payout.ID, payout.Status, outcome)
	if err != nil {
		return err
	}
	if !saved {
		return nil
	}

	w.logger.Warn("payout failed after provider accepted it",
		zap.String("payout_id", payout.ID.String()),
		zap.String("kind", string(payout.Kind)),
		zap.String("event", event))
	w.publisher.PublishPayoutEvent(models.PayoutEvent{
		Kind:          payout.Kind,
		PayoutID:      payout.ID,
		Status:        models.PayoutStatusFailed,
		FailureReason: &reason,
		At:            time.Now(),
	})
	return nil
}
