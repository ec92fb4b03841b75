package apperrors

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidState        = errors.New("payout is not in the expected status")
	ErrUnsupportedCurrency = errors.New("no payout provider supports this currency")
	ErrValidation          = errors.New("validation failed")
	ErrPayoutNotFound      = errors.New("payout not found")
	ErrUserNotFound        = errors.New("user not found")
	ErrCampaignNotFound    = errors.New("campaign not found")
	ErrChainerNotFound     = errors.New("chainer not found")
	ErrInsufficientFunds   = errors.New("insufficient funds")
	ErrInvalidTOTP         = errors.New("invalid two-factor code")
	ErrSweepInProgress     = errors.New("payout sweep already running")
	ErrDuplicateDonation   = errors.New("donation already recorded")
)

// ValidationError reports bad input the user has to correct before retrying.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

func (v *ValidationError) Error() string {
	if v.Field == "" {
		return v.Message
	}
	return fmt.Sprintf("%s: %s", v.Field, v.Message)
}

func (v *ValidationError) Is(target error) bool {
	return target == ErrValidation
}

// ProviderError wraps a failure returned by an external payout provider.
// These failures are retryable.
type ProviderError struct {
	Provider string
	Op       string
	err      error
}

func NewProviderError(provider, op string, err error) error {
	return &ProviderError{Provider: provider, Op: op, err: err}
}

func (p *ProviderError) Error() string {
	return fmt.Sprintf("%s %s: %s", p.Provider, p.Op, p.err)
}

func (p *ProviderError) Unwrap() error {
	return p.err
}

func IsRetryable(err error) bool {
	var providerErr *ProviderError
	return errors.As(err, &providerErr)
}
