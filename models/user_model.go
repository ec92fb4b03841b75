package models

import (
	"time"

	"github.com/google/uuid"
)

const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

type User struct {
	ID       uuid.UUID `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	FullName string    `gorm:"size:255;not null" json:"full_name"`
	Email    string    `gorm:"size:255;not null;unique" json:"email"`
	Password string    `gorm:"not null" json:"-"`
	Role     string    `gorm:"size:20;not null;default:'user'" json:"role"`
	Country  *string   `gorm:"size:2" json:"country"`
	IsActive bool      `gorm:"default:true" json:"is_active"`

	BankAccountName   *string `gorm:"size:255" json:"bank_account_name"`
	BankAccountNumber *string `gorm:"size:34" json:"bank_account_number"`
	BankCode          *string `gorm:"size:20" json:"bank_code"`
	BankName          *string `gorm:"size:255" json:"bank_name"`
	BankCurrency      *string `gorm:"size:3" json:"bank_currency"`
	StripeAccountID   *string `gorm:"size:255" json:"stripe_account_id"`
	BankVerified      bool    `gorm:"default:false" json:"bank_verified"`
	BankLocked        bool    `gorm:"default:false" json:"bank_locked"`

	TwoFactorSecret  *string `gorm:"size:64" json:"-"`
	TwoFactorEnabled bool    `gorm:"default:false" json:"two_factor_enabled"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
