package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/apperrors"
)

const DefaultPaystackBaseURL = "https://api.paystack.co"

type PaystackAdapter struct {
	client *resty.Client
	logger *zap.Logger
}

func NewPaystackAdapter(baseURL, secretKey string, timeout time.Duration, logger *zap.Logger) *PaystackAdapter {
	if baseURL == "" {
		baseURL = DefaultPaystackBaseURL
	}
	client := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetAuthToken(secretKey).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json")
	return &PaystackAdapter{client: client, logger: logger}
}

type paystackEnvelope struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

type paystackRecipient struct {
	RecipientCode string `json:"recipient_code"`
}

type PaystackTransfer struct {
	ID           int64  `json:"id"`
	TransferCode string `json:"transfer_code"`
	Reference    string `json:"reference"`
	Status       string `json:"status"`
	Reason       string `json:"reason"`
}

func (a *PaystackAdapter) Provider() Provider { return ProviderPaystack }

func (a *PaystackAdapter) CreatePayout(ctx context.Context, in Instruction) (*Result, error) {
	recipientCode := in.Destination.RecipientCode
	if recipientCode == "" {
		if in.Destination.AccountNumber == "" || in.Destination.BankCode == "" {
			return nil, apperrors.NewValidationError("bank_details", "account number and bank code are required for paystack payouts")
		}
		code, err := a.createRecipient(ctx, in.Destination, in.Currency)
		if err != nil {
			return nil, err
		}
		recipientCode = code
	}
	// The recipient outlives a failed transfer and is handed back for the next attempt.
	partial := &Result{RecipientCode: recipientCode}

	transfer, err := a.initiateTransfer(ctx, in, recipientCode)
	if err != nil {
		return partial, err
	}

	switch transfer.Status {
	case "failed", "reversed", "rejected":
		return partial, apperrors.NewProviderError(string(ProviderPaystack), "initiate transfer", fmt.Errorf("transfer %s ended with status %s", transfer.TransferCode, transfer.Status))
	case "otp":
		return partial, apperrors.NewProviderError(string(ProviderPaystack), "initiate transfer", fmt.Errorf("transfer %s is waiting for OTP finalization", transfer.TransferCode))
	}

	a.logger.Info("paystack transfer initiated",
		zap.String("reference", in.Reference),
		zap.String("transfer_code", transfer.TransferCode),
		zap.String("status", transfer.Status))

	return &Result{
		TransactionID: transfer.TransferCode,
		RecipientCode: recipientCode,
		Status:        transfer.Status,
	}, nil
}

// VerifyTransfer fetches the current state of a transfer by our reference.
func (a *PaystackAdapter) VerifyTransfer(ctx context.Context, reference string) (*PaystackTransfer, error) {
	var transfer PaystackTransfer
	if err := a.do(ctx, resty.MethodGet, "/transfer/verify/"+url.PathEscape(reference), nil, &transfer); err != nil {
		return nil, apperrors.NewProviderError(string(ProviderPaystack), "verify transfer", err)
	}
	return &transfer, nil
}

func (a *PaystackAdapter) createRecipient(ctx context.Context, dest Destination, currency string) (string, error) {
	payload := map[string]string{
		"type":           recipientType(currency),
		"name":           dest.AccountName,
		"account_number": dest.AccountNumber,
		"bank_code":      dest.BankCode,
		"currency":       strings.ToUpper(currency),
	}

	var recipient paystackRecipient
	if err := a.do(ctx, resty.MethodPost, "/transferrecipient", payload, &recipient); err != nil {
		return "", apperrors.NewProviderError(string(ProviderPaystack), "create recipient", err)
	}
	if recipient.RecipientCode == "" {
		return "", apperrors.NewProviderError(string(ProviderPaystack), "create recipient", fmt.Errorf("empty recipient code"))
	}
	return recipient.RecipientCode, nil
}

func (a *PaystackAdapter) initiateTransfer(ctx context.Context, in Instruction, recipientCode string) (*PaystackTransfer, error) {
	payload := map[string]interface{}{
		"source":    "balance",
		"amount":    MinorUnits(in.Amount, in.Currency),
		"currency":  strings.ToUpper(in.Currency),
		"recipient": recipientCode,
		"reference": in.Reference,
		"reason":    in.Reason,
	}

	var transfer PaystackTransfer
	if err := a.do(ctx, resty.MethodPost, "/transfer", payload, &transfer); err != nil {
		return nil, apperrors.NewProviderError(string(ProviderPaystack), "initiate transfer", err)
	}
	return &transfer, nil
}

func (a *PaystackAdapter) do(ctx context.Context, method, path string, payload interface{}, out interface{}) error {
	var envelope paystackEnvelope
	req := a.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetResult(&envelope).
		SetError(&envelope)
	if payload != nil {
		req.SetBody(payload)
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		if resp != nil && resp.StatusCode() != 0 {
			return fmt.Errorf("unexpected response (status %d): %s", resp.StatusCode(), truncate(resp.Body()))
		}
		return fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() || !envelope.Status {
		return fmt.Errorf("status %d: %s", resp.StatusCode(), envelope.Message)
	}
	if out != nil && len(envelope.Data) > 0 {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("failed to decode response data: %w", err)
		}
	}
	return nil
}

func recipientType(currency string) string {
	switch strings.ToUpper(currency) {
	case "GHS":
		return "ghipss"
	case "ZAR":
		return "basa"
	case "KES":
		return "kepss"
	default:
		return "nuban"
	}
}

func truncate(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
