package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chainfundit/backend/handlers"
	"github.com/chainfundit/backend/middleware"
)

func PayoutRoutes(app *fiber.App, payouts *handlers.PayoutHandler, jwtSecret string) {
	api := app.Group("/api/v1")
	protected := middleware.Protected(jwtSecret)

	api.Post("/payouts", protected, payouts.RequestPayout)
	api.Get("/payouts/me", protected, payouts.MyPayouts)
	api.Post("/campaigns/:campaignId/chainers", protected, payouts.JoinCampaign)
}
