package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Chainer is a user sharing a campaign link for commission.
type Chainer struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	UserID           uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_chainer_user_campaign" json:"user_id"`
	CampaignID       uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_chainer_user_campaign" json:"campaign_id"`
	ReferralCode     string          `gorm:"size:10;not null;unique" json:"referral_code"`
	CommissionEarned decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"commission_earned"`
	CommissionPaid   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"commission_paid"`

	User     User     `gorm:"foreignkey:UserID" json:"-"`
	Campaign Campaign `gorm:"foreignkey:CampaignID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Chainer) Available() decimal.Decimal {
	return c.CommissionEarned.Sub(c.CommissionPaid)
}
