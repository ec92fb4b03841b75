package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/database"
	"github.com/chainfundit/backend/middleware"
)

type TwoFactor interface {
	Enroll(ctx context.Context, userID uuid.UUID) (secret, url string, err error)
	Confirm(ctx context.Context, userID uuid.UUID, code string) error
	Verify(ctx context.Context, userID uuid.UUID, code string) error
}

type BankProfiles interface {
	UpdateBankProfile(ctx context.Context, userID uuid.UUID, p database.BankProfile) error
	SetBankVerification(ctx context.Context, userID uuid.UUID, verified, locked bool) error
}

type BankDetailsRequest struct {
	AccountName     string `json:"account_name" validate:"required"`
	AccountNumber   string `json:"account_number" validate:"required_without=StripeAccountID"`
	BankCode        string `json:"bank_code" validate:"required_without=StripeAccountID"`
	BankName        string `json:"bank_name"`
	Currency        string `json:"currency" validate:"required,len=3"`
	StripeAccountID string `json:"stripe_account_id"`
}

type TOTPRequest struct {
	Code string `json:"code" validate:"required,len=6,numeric"`
}

type AccountHandler struct {
	twoFactor TwoFactor
	banks     BankProfiles
	logger    *zap.Logger
}

func NewAccountHandler(twoFactor TwoFactor, banks BankProfiles, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{twoFactor: twoFactor, banks: banks, logger: logger}
}

func (h *AccountHandler) EnrollTwoFactor(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	secret, url, err := h.twoFactor.Enroll(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"secret": secret, "otpauth_url": url})
}

func (h *AccountHandler) ConfirmTwoFactor(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	var req TOTPRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.twoFactor.Confirm(c.UserContext(), userID, req.Code); err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"two_factor_enabled": true})
}

// UpdateBankDetails replaces the caller's banking profile. An admin has to
// verify it again before the next payout.
func (h *AccountHandler) UpdateBankDetails(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	var req BankDetailsRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	err = h.banks.UpdateBankProfile(c.UserContext(), userID, database.BankProfile{
		AccountName:     req.AccountName,
		AccountNumber:   req.AccountNumber,
		BankCode:        req.BankCode,
		BankName:        req.BankName,
		Currency:        req.Currency,
		StripeAccountID: req.StripeAccountID,
	})
	if err != nil {
		return respondError(c, err)
	}
	h.logger.Info("bank profile updated", zap.String("user_id", userID.String()))
	return c.JSON(fiber.Map{"bank_verified": false})
}
