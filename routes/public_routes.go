package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chainfundit/backend/handlers"
)

func PublicRoutes(app *fiber.App, currency *handlers.CurrencyHandler, webhooks *handlers.WebhookHandler) {
	api := app.Group("/api/v1")

	api.Get("/currency/rates", currency.Rates)
	api.Get("/currency/default", currency.DefaultCurrency)

	api.Post("/webhooks/paystack", webhooks.Paystack)
}
