package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Campaign struct {
	ID              uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OwnerID         uuid.UUID       `gorm:"type:uuid;not null;index" json:"owner_id"`
	Title           string          `gorm:"size:255;not null" json:"title"`
	Slug            string          `gorm:"size:255;not null;unique" json:"slug"`
	Currency        string          `gorm:"size:3;not null" json:"currency"`
	GoalAmount      decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"goal_amount"`
	RaisedAmount    decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"raised_amount"`
	WithdrawnAmount decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"withdrawn_amount"`
	CommissionRate  decimal.Decimal `gorm:"type:numeric(5,4);not null;default:0" json:"commission_rate"`
	Status          string          `gorm:"size:20;not null;default:'active'" json:"status"`

	Owner User `gorm:"foreignkey:OwnerID" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (c Campaign) Available() decimal.Decimal {
	return c.RaisedAmount.Sub(c.WithdrawnAmount)
}
