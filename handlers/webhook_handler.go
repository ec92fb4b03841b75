package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type PaystackEvents interface {
	VerifySignature(body []byte, signature string) bool
	Handle(ctx context.Context, body []byte) error
}

type WebhookHandler struct {
	paystack PaystackEvents
	logger   *zap.Logger
}

func NewWebhookHandler(paystack PaystackEvents, logger *zap.Logger) *WebhookHandler {
	return &WebhookHandler{paystack: paystack, logger: logger}
}

// Paystack retries any non-2xx response, so only processing errors return 5xx.
func (h *WebhookHandler) Paystack(c *fiber.Ctx) error {
	body := c.Body()
	if !h.paystack.VerifySignature(body, c.Get("x-paystack-signature")) {
		h.logger.Warn("rejected paystack webhook with bad signature", zap.String("ip", c.IP()))
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid signature"))
	}
	if err := h.paystack.Handle(c.UserContext(), body); err != nil {
		h.logger.Error("paystack webhook failed", zap.Error(err))
		return respondError(c, err)
	}
	return c.SendStatus(fiber.StatusOK)
}
