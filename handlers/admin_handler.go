package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/jobs"
	"github.com/chainfundit/backend/middleware"
	"github.com/chainfundit/backend/models"
)

type PayoutModerator interface {
	Approve(ctx context.Context, kind models.PayoutKind, id, adminID uuid.UUID) (*models.Payout, error)
	Reject(ctx context.Context, kind models.PayoutKind, id uuid.UUID, notes string) (*models.Payout, error)
	List(ctx context.Context, kind models.PayoutKind, status string) ([]models.Payout, error)
}

type PayoutDriver interface {
	Process(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error)
	Retry(ctx context.Context, kind models.PayoutKind, id uuid.UUID) (*models.Payout, error)
}

type Sweeper interface {
	Run(ctx context.Context) (jobs.SweepResult, error)
}

type ApproveRequest struct {
	TOTPCode string `json:"totp_code" validate:"omitempty,len=6,numeric"`
}

type RejectRequest struct {
	Notes string `json:"notes" validate:"required,max=1000"`
}

type BankVerificationRequest struct {
	Verified bool `json:"verified"`
	Locked   bool `json:"locked"`
}

type AdminHandler struct {
	payouts   PayoutModerator
	processor PayoutDriver
	sweeper   Sweeper
	twoFactor TwoFactor
	banks     BankProfiles
	logger    *zap.Logger
}

func NewAdminHandler(payouts PayoutModerator, processor PayoutDriver, sweeper Sweeper, twoFactor TwoFactor, banks BankProfiles, logger *zap.Logger) *AdminHandler {
	return &AdminHandler{
		payouts:   payouts,
		processor: processor,
		sweeper:   sweeper,
		twoFactor: twoFactor,
		banks:     banks,
		logger:    logger,
	}
}

func payoutTarget(c *fiber.Ctx) (models.PayoutKind, uuid.UUID, error) {
	kind, err := models.ParsePayoutKind(c.Params("kind"))
	if err != nil {
		return "", uuid.Nil, fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return "", uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "Invalid payout ID")
	}
	return kind, id, nil
}

func (h *AdminHandler) ListPayouts(c *fiber.Ctx) error {
	kind, err := models.ParsePayoutKind(c.Params("kind"))
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}
	list, err := h.payouts.List(c.UserContext(), kind, c.Query("status"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

// ApprovePayout approves a pending payout and sends it to the provider in the
// same request.
func (h *AdminHandler) ApprovePayout(c *fiber.Ctx) error {
	adminID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	kind, id, err := payoutTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	var req ApproveRequest
	if len(c.Body()) > 0 {
		if err := parseBody(c, &req); err != nil {
			return respondError(c, err)
		}
	}

	ctx := c.UserContext()
	if err := h.twoFactor.Verify(ctx, adminID, req.TOTPCode); err != nil {
		return respondError(c, err)
	}
	approved, err := h.payouts.Approve(ctx, kind, id, adminID)
	if err != nil {
		return respondError(c, err)
	}

	processed, err := h.processor.Process(ctx, kind, id)
	if err != nil {
		h.logger.Warn("approved payout could not be processed",
			zap.String("payout_id", id.String()),
			zap.String("kind", string(kind)),
			zap.Error(err))
		return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
			"payout":        approved,
			"process_error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{"payout": processed})
}

func (h *AdminHandler) RejectPayout(c *fiber.Ctx) error {
	kind, id, err := payoutTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	var req RejectRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	payout, err := h.payouts.Reject(c.UserContext(), kind, id, req.Notes)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payout": payout})
}

func (h *AdminHandler) RetryPayout(c *fiber.Ctx) error {
	kind, id, err := payoutTarget(c)
	if err != nil {
		return respondError(c, err)
	}
	payout, err := h.processor.Retry(c.UserContext(), kind, id)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"payout": payout})
}

func (h *AdminHandler) SweepPayouts(c *fiber.Ctx) error {
	result, err := h.sweeper.Run(c.UserContext())
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(fiber.Map{"kinds": result.Kinds, "total": result.Total()})
}

func (h *AdminHandler) SetBankVerification(c *fiber.Ctx) error {
	userID, err := uuid.Parse(c.Params("userId"))
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusBadRequest, "Invalid user ID"))
	}
	var req BankVerificationRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	if err := h.banks.SetBankVerification(c.UserContext(), userID, req.Verified, req.Locked); err != nil {
		return respondError(c, err)
	}
	h.logger.Info("bank verification changed",
		zap.String("user_id", userID.String()),
		zap.Bool("verified", req.Verified),
		zap.Bool("locked", req.Locked))
	return c.JSON(fiber.Map{"bank_verified": req.Verified, "bank_locked": req.Locked})
}
