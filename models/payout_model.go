package models

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type PayoutKind string

const (
	PayoutKindCampaign   PayoutKind = "campaign"
	PayoutKindCommission PayoutKind = "commission"
)

var PayoutKinds = []PayoutKind{PayoutKindCampaign, PayoutKindCommission}

func ParsePayoutKind(s string) (PayoutKind, error) {
	switch PayoutKind(s) {
	case PayoutKindCampaign, PayoutKindCommission:
		return PayoutKind(s), nil
	}
	return "", fmt.Errorf("unknown payout kind %q", s)
}

func (k PayoutKind) Table() string {
	if k == PayoutKindCommission {
		return "commission_payouts"
	}
	return "campaign_payouts"
}

const (
	PayoutStatusPending    = "pending"
	PayoutStatusApproved   = "approved"
	PayoutStatusRejected   = "rejected"
	PayoutStatusProcessing = "processing"
	PayoutStatusCompleted  = "completed"
	PayoutStatusFailed     = "failed"
)

const (
	FailureProviderError       = "provider_error"
	FailureUnsupportedCurrency = "unsupported_currency"
	FailureValidation          = "validation"
)

// Payout is a withdrawal of campaign funds or chainer commission to a bank account.
// NetAmount is fixed at creation as GrossAmount - Fees.
type Payout struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Kind              PayoutKind      `gorm:"-" json:"kind"`
	OwnerID           uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	CampaignID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"campaign_id"`
	ChainerID         *uuid.UUID      `gorm:"type:uuid;index" json:"chainer_id,omitempty"`
	RequestedAmount   decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"requested_amount"`
	RequestedCurrency string          `gorm:"size:3;not null" json:"requested_currency"`
	GrossAmount       decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"gross_amount"`
	Fees              decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"fees"`
	NetAmount         decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"net_amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	Status            string          `gorm:"size:20;not null;default:'pending';index" json:"status"`
	Provider          *string         `gorm:"size:20" json:"provider"`

	AccountName     string  `gorm:"size:255" json:"account_name"`
	AccountNumber   string  `gorm:"size:34" json:"account_number"`
	BankCode        string  `gorm:"size:20" json:"bank_code"`
	BankName        string  `gorm:"size:255" json:"bank_name"`
	StripeAccountID *string `gorm:"size:255" json:"-"`
	RecipientCode   *string `gorm:"size:100" json:"-"`

	TransactionID     *string `gorm:"size:255" json:"transaction_id"`
	ProviderReference *string `gorm:"size:100;index" json:"-"`
	FailureReason     *string `gorm:"type:text" json:"failure_reason,omitempty"`
	FailureCode       *string `gorm:"size:30" json:"failure_code,omitempty"`
	RetryCount        int     `gorm:"not null;default:0" json:"retry_count"`
	Notes             *string `gorm:"type:text" json:"notes,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	ApprovedAt  *time.Time `json:"approved_at,omitempty"`
	ProcessedAt *time.Time `json:"processed_at,omitempty"`
}

// Reference is the idempotency key sent to the provider for one attempt.
// Attempt 0 is the first processing run, attempt n is the n-th retry.
func (p Payout) Reference(attempt int) string {
	return fmt.Sprintf("%s-%d", p.ID, attempt)
}

type CampaignPayout struct {
	Payout `gorm:"embedded"`
}

func (CampaignPayout) TableName() string { return PayoutKindCampaign.Table() }

type CommissionPayout struct {
	Payout `gorm:"embedded"`
}

func (CommissionPayout) TableName() string { return PayoutKindCommission.Table() }

// PayoutOutcome is the set of columns written when a payout attempt ends.
type PayoutOutcome struct {
	Status            string
	Provider          string
	TransactionID     *string
	RecipientCode     *string
	ProviderReference *string
	FailureReason     *string
	FailureCode       *string
	RetryCount        int
	ProcessedAt       *time.Time
	// Refund returns the requested amount to the source balance. Set on
	// failures that will never be retried.
	Refund            bool
}

// PayoutEvent is broadcast to the admin dashboard on every status change.
type PayoutEvent struct {
	Kind          PayoutKind `json:"kind"`
	PayoutID      uuid.UUID  `json:"payout_id"`
	Status        string     `json:"status"`
	FailureReason *string    `json:"failure_reason,omitempty"`
	At            time.Time  `json:"at"`
}

// OwnerView hides provider error text from campaign owners and chainers.
type OwnerView struct {
	ID              uuid.UUID       `json:"id"`
	Kind            PayoutKind      `json:"kind"`
	CampaignID      uuid.UUID       `json:"campaign_id"`
	RequestedAmount decimal.Decimal `json:"requested_amount"`
	GrossAmount     decimal.Decimal `json:"gross_amount"`
	Fees            decimal.Decimal `json:"fees"`
	NetAmount       decimal.Decimal `json:"net_amount"`
	Currency        string          `json:"currency"`
	Status          string          `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	ProcessedAt     *time.Time      `json:"processed_at,omitempty"`
}

func (p Payout) OwnerView() OwnerView {
	return OwnerView{
		ID:              p.ID,
		Kind:            p.Kind,
		CampaignID:      p.CampaignID,
		RequestedAmount: p.RequestedAmount,
		GrossAmount:     p.GrossAmount,
		Fees:            p.Fees,
		NetAmount:       p.NetAmount,
		Currency:        p.Currency,
		Status:          p.Status,
		CreatedAt:       p.CreatedAt,
		ProcessedAt:     p.ProcessedAt,
	}
}
