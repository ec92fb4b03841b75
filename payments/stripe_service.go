package payments

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
)

// StripeAdapter pays out through Stripe Connect transfers to the owner's connected account.
type StripeAdapter struct {
	api    *client.API
	logger *zap.Logger
}

func NewStripeAdapter(secretKey, baseURL string, timeout time.Duration, logger *zap.Logger) *StripeAdapter {
	cfg := &stripe.BackendConfig{
		HTTPClient:        &http.Client{Timeout: timeout},
		LeveledLogger:     &stripe.LeveledLogger{Level: stripe.LevelError},
		MaxNetworkRetries: stripe.Int64(0),
	}
	if baseURL != "" {
		cfg.URL = stripe.String(strings.TrimRight(baseURL, "/"))
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, cfg)

	api := &client.API{}
	api.Init(secretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeAdapter{api: api, logger: logger}
}

func (a *StripeAdapter) Provider() Provider { return ProviderStripe }

func (a *StripeAdapter) CreatePayout(ctx context.Context, in Instruction) (*Result, error) {
	if in.Destination.StripeAccountID == "" {
		return nil, apperrors.NewValidationError("stripe_account_id", "a connected Stripe account is required for stripe payouts")
	}

	params := &stripe.TransferParams{
		Amount:      stripe.Int64(MinorUnits(in.Amount, in.Currency)),
		Currency:    stripe.String(strings.ToLower(in.Currency)),
		Destination: stripe.String(in.Destination.StripeAccountID),
		Description: stripe.String(in.Reason),
	}
	params.Context = ctx
	params.SetIdempotencyKey(in.Reference)
	params.AddMetadata("reference", in.Reference)

	transfer, err := a.api.Transfers.New(params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.Msg != "" {
			err = errors.New(stripeErr.Msg)
		}
		return nil, apperrors.NewProviderError(string(ProviderStripe), "create transfer", err)
	}

	a.logger.Info("stripe transfer created",
		zap.String("reference", in.Reference),
		zap.String("transfer_id", transfer.ID))

	return &Result{TransactionID: transfer.ID, Status: "paid"}, nil
}
