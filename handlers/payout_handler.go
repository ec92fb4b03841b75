package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/chainfundit/backend/middleware"
	"github.com/chainfundit/backend/models"
	"github.com/chainfundit/backend/services"
)

type PayoutRequester interface {
	RequestPayout(ctx context.Context, req services.PayoutRequest) (*models.Payout, error)
	ListForOwner(ctx context.Context, ownerID uuid.UUID) ([]models.OwnerView, error)
}

type ChainerJoiner interface {
	JoinCampaign(ctx context.Context, userID, campaignID uuid.UUID) (*models.Chainer, error)
}

type CreatePayoutRequest struct {
	Kind       string          `json:"kind" validate:"required,oneof=campaign commission"`
	CampaignID uuid.UUID       `json:"campaign_id" validate:"required"`
	ChainerID  *uuid.UUID      `json:"chainer_id" validate:"required_if=Kind commission"`
	Amount     decimal.Decimal `json:"amount"`
}

type PayoutHandler struct {
	requests PayoutRequester
	chainers ChainerJoiner
	logger   *zap.Logger
}

func NewPayoutHandler(requests PayoutRequester, chainers ChainerJoiner, logger *zap.Logger) *PayoutHandler {
	return &PayoutHandler{requests: requests, chainers: chainers, logger: logger}
}

func (h *PayoutHandler) RequestPayout(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	var req CreatePayoutRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}
	kind, err := models.ParsePayoutKind(req.Kind)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusBadRequest, err.Error()))
	}

	payout, err := h.requests.RequestPayout(c.UserContext(), services.PayoutRequest{
		OwnerID:    userID,
		Kind:       kind,
		CampaignID: req.CampaignID,
		ChainerID:  req.ChainerID,
		Amount:     req.Amount,
	})
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(payout.OwnerView())
}

func (h *PayoutHandler) MyPayouts(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	list, err := h.requests.ListForOwner(c.UserContext(), userID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(list)
}

func (h *PayoutHandler) JoinCampaign(c *fiber.Ctx) error {
	userID, _, err := middleware.CurrentUser(c)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid token"))
	}
	campaignID, err := uuid.Parse(c.Params("campaignId"))
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusBadRequest, "Invalid campaign ID"))
	}
	chainer, err := h.chainers.JoinCampaign(c.UserContext(), userID, campaignID)
	if err != nil {
		return respondError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(chainer)
}
