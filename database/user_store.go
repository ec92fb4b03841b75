package database

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
)

// BankProfile is the user-editable part of the banking details.
type BankProfile struct {
	AccountName     string
	AccountNumber   string
	BankCode        string
	BankName        string
	Currency        string
	StripeAccountID string
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	if err := s.db.WithContext(ctx).Where("email = ?", strings.ToLower(email)).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(user.Email)
	if err := s.db.WithContext(ctx).Create(user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperrors.NewValidationError("email", "is already registered")
		}
		return err
	}
	return nil
}

// UpdateBankProfile replaces the banking details and clears verification.
// Locked profiles cannot be changed.
func (s *Store) UpdateBankProfile(ctx context.Context, userID uuid.UUID, p BankProfile) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND bank_locked = ?", userID, false).
		Updates(map[string]interface{}{
			"bank_account_name":   nullable(p.AccountName),
			"bank_account_number": nullable(p.AccountNumber),
			"bank_code":           nullable(p.BankCode),
			"bank_name":           nullable(p.BankName),
			"bank_currency":       nullable(strings.ToUpper(p.Currency)),
			"stripe_account_id":   nullable(p.StripeAccountID),
			"bank_verified":       false,
			"updated_at":          time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		if _, err := s.GetUser(ctx, userID); err != nil {
			return err
		}
		return apperrors.NewValidationError("bank_details", "banking profile is locked")
	}
	return nil
}

func (s *Store) SetBankVerification(ctx context.Context, userID uuid.UUID, verified, locked bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"bank_verified": verified, "bank_locked": locked, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func (s *Store) SaveTwoFactor(ctx context.Context, userID uuid.UUID, secret string, enabled bool) error {
	res := s.db.WithContext(ctx).Model(&models.User{}).Where("id = ?", userID).
		Updates(map[string]interface{}{"two_factor_secret": secret, "two_factor_enabled": enabled, "updated_at": time.Now()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperrors.ErrUserNotFound
	}
	return nil
}

func nullable(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
