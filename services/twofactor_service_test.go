package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/pquerna/otp/totp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/models"
)

type fakeTwoFactorStore struct {
	fakeUsers
}

func (f *fakeTwoFactorStore) SaveTwoFactor(_ context.Context, userID uuid.UUID, secret string, enabled bool) error {
	u, ok := f.users[userID]
	if !ok {
		return apperrors.ErrUserNotFound
	}
	u.TwoFactorSecret = &secret
	u.TwoFactorEnabled = enabled
	return nil
}

func TestTwoFactorEnrollConfirmVerify(t *testing.T) {
	admin := &models.User{ID: uuid.New(), Email: "admin@chainfundit.com", Role: models.RoleAdmin}
	store := &fakeTwoFactorStore{fakeUsers{users: map[uuid.UUID]*models.User{admin.ID: admin}}}
	svc := NewTwoFactorService(store)
	ctx := context.Background()

	require.NoError(t, svc.Verify(ctx, admin.ID, ""), "users without 2FA pass")

	secret, url, err := svc.Enroll(ctx, admin.ID)
	require.NoError(t, err)
	assert.Contains(t, url, "otpauth://totp/ChainFundIt")
	assert.False(t, admin.TwoFactorEnabled)

	assert.ErrorIs(t, svc.Confirm(ctx, admin.ID, "000000"), apperrors.ErrInvalidTOTP)

	code, err := totp.GenerateCode(secret, time.Now())
	require.NoError(t, err)
	require.NoError(t, svc.Confirm(ctx, admin.ID, code))
	assert.True(t, admin.TwoFactorEnabled)

	assert.NoError(t, svc.Verify(ctx, admin.ID, code))
	assert.ErrorIs(t, svc.Verify(ctx, admin.ID, ""), apperrors.ErrInvalidTOTP)

	_, _, err = svc.Enroll(ctx, admin.ID)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}
