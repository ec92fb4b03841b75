package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/pquerna/otp"
	"github.com/pquerna/otp/totp"

	"github.com/chainfundit/backend/apperrors"
)

const totpIssuer = "ChainFundIt"

type TwoFactorStore interface {
	UserReader
	SaveTwoFactor(ctx context.Context, userID uuid.UUID, secret string, enabled bool) error
}

type TwoFactorService struct {
	store TwoFactorStore
}

func NewTwoFactorService(store TwoFactorStore) *TwoFactorService {
	return &TwoFactorService{store: store}
}

// Enroll stores a new secret with 2FA still disabled and returns it with the
// otpauth URL for the authenticator app.
func (s *TwoFactorService) Enroll(ctx context.Context, userID uuid.UUID) (secret, url string, err error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return "", "", err
	}
	if user.TwoFactorEnabled {
		return "", "", apperrors.NewValidationError("two_factor", "is already enabled")
	}

	key, err := totp.Generate(totp.GenerateOpts{
		Issuer:      totpIssuer,
		AccountName: user.Email,
		Period:      30,
		SecretSize:  32,
		Algorithm:   otp.AlgorithmSHA1,
	})
	if err != nil {
		return "", "", fmt.Errorf("generate totp secret: %w", err)
	}
	if err := s.store.SaveTwoFactor(ctx, userID, key.Secret(), false); err != nil {
		return "", "", err
	}
	return key.Secret(), key.URL(), nil
}

func (s *TwoFactorService) Confirm(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if user.TwoFactorSecret == nil {
		return apperrors.NewValidationError("two_factor", "enroll before confirming")
	}
	if !totp.Validate(code, *user.TwoFactorSecret) {
		return apperrors.ErrInvalidTOTP
	}
	return s.store.SaveTwoFactor(ctx, userID, *user.TwoFactorSecret, true)
}

// Verify checks a code for users with 2FA enabled. Users without 2FA pass.
func (s *TwoFactorService) Verify(ctx context.Context, userID uuid.UUID, code string) error {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return err
	}
	if !user.TwoFactorEnabled || user.TwoFactorSecret == nil {
		return nil
	}
	if code == "" || !totp.Validate(code, *user.TwoFactorSecret) {
		return apperrors.ErrInvalidTOTP
	}
	return nil
}
