package payments

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
)

// Destination is the bank snapshot a payout is sent to.
type Destination struct {
	AccountName     string
	AccountNumber   string
	BankCode        string
	RecipientCode   string
	StripeAccountID string
}

type Instruction struct {
	Amount      decimal.Decimal
	Currency    string
	Destination Destination
	Reference   string
	Reason      string
}

type Result struct {
	TransactionID string
	RecipientCode string
	Status        string
}

// Adapter executes a payout on one provider. Errors are *apperrors.ProviderError
// or *apperrors.ValidationError. A failed call may still return a Result
// carrying a recipient created along the way.
type Adapter interface {
	Provider() Provider
	CreatePayout(ctx context.Context, in Instruction) (*Result, error)
}

var zeroDecimalCurrencies = map[string]bool{
	"JPY": true,
	"KRW": true,
	"UGX": true,
	"RWF": true,
	"XAF": true,
	"XOF": true,
}

// MinorUnits converts a major-unit amount into the integer amount providers expect.
func MinorUnits(amount decimal.Decimal, currency string) int64 {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return amount.Round(0).IntPart()
	}
	return amount.Shift(2).Round(0).IntPart()
}

// MajorUnits is the inverse of MinorUnits.
func MajorUnits(amount int64, currency string) decimal.Decimal {
	if zeroDecimalCurrencies[strings.ToUpper(currency)] {
		return decimal.NewFromInt(amount)
	}
	return decimal.New(amount, -2)
}
