package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/chainfundit/backend/handlers"
	"github.com/chainfundit/backend/middleware"
)

func AuthRoutes(app *fiber.App, auth *handlers.AuthHandler, account *handlers.AccountHandler, jwtSecret string) {
	api := app.Group("/api/v1")

	authGroup := api.Group("/auth")
	authGroup.Post("/register", auth.Register)
	authGroup.Post("/login", auth.Login)

	accountGroup := api.Group("/account", middleware.Protected(jwtSecret))
	accountGroup.Post("/2fa/enroll", account.EnrollTwoFactor)
	accountGroup.Post("/2fa/confirm", account.ConfirmTwoFactor)
	accountGroup.Put("/bank", account.UpdateBankDetails)
}
