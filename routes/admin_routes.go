package routes

import (
	"context"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"github.com/chainfundit/backend/handlers"
	"github.com/chainfundit/backend/middleware"
	feed "github.com/chainfundit/backend/websocket"
)

func AdminRoutes(ctx context.Context, app *fiber.App, admin *handlers.AdminHandler, hub *feed.Hub, jwtSecret string) {
	api := app.Group("/api/v1")

	// Registered before the JWT group; the hub authenticates with the first message.
	api.Use("/admin/ws", func(c *fiber.Ctx) error {
		if !websocket.IsWebSocketUpgrade(c) {
			return fiber.ErrUpgradeRequired
		}
		return c.Next()
	})
	api.Get("/admin/ws", websocket.New(func(conn *websocket.Conn) {
		_ = hub.Serve(ctx, conn)
	}))

	group := api.Group("/admin", middleware.Protected(jwtSecret), middleware.AdminRequired())

	payouts := group.Group("/payouts")
	payouts.Post("/sweep", admin.SweepPayouts)
	payouts.Get("/:kind", admin.ListPayouts)
	payouts.Post("/:kind/:id/approve", admin.ApprovePayout)
	payouts.Post("/:kind/:id/reject", admin.RejectPayout)
	payouts.Post("/:kind/:id/retry", admin.RetryPayout)

	group.Put("/users/:userId/bank-verification", admin.SetBankVerification)
}
