package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Donation struct {
	ID                uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	CampaignID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"campaign_id"`
	ChainerID         *uuid.UUID      `gorm:"type:uuid;index" json:"chainer_id"`
	DonorEmail        string          `gorm:"size:255" json:"donor_email"`
	Amount            decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Currency          string          `gorm:"size:3;not null" json:"currency"`
	CommissionAmount  decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"commission_amount"`
	Provider          string          `gorm:"size:20;not null" json:"provider"`
	ProviderReference string          `gorm:"size:255;not null;unique" json:"provider_reference"`
	Status            string          `gorm:"size:20;not null;default:'succeeded'" json:"status"`

	CreatedAt time.Time `json:"created_at"`
}
