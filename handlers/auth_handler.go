package handlers

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/chainfundit/backend/apperrors"
	"github.com/chainfundit/backend/middleware"
	"github.com/chainfundit/backend/models"
)

type UserAccounts interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	CreateUser(ctx context.Context, user *models.User) error
}

type RegisterRequest struct {
	FullName string `json:"full_name" validate:"required,min=3"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
	Country  string `json:"country" validate:"omitempty,len=2"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type UserResponse struct {
	ID        string    `json:"id"`
	FullName  string    `json:"full_name"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

type AuthHandler struct {
	users     UserAccounts
	jwtSecret string
	logger    *zap.Logger
}

func NewAuthHandler(users UserAccounts, jwtSecret string, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{users: users, jwtSecret: jwtSecret, logger: logger}
}

func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusInternalServerError, "Failed to hash password"))
	}

	user := &models.User{
		FullName: req.FullName,
		Email:    req.Email,
		Password: string(hashedPassword),
		Role:     models.RoleUser,
		IsActive: true,
	}
	if req.Country != "" {
		country := strings.ToUpper(req.Country)
		user.Country = &country
	}
	if err := h.users.CreateUser(c.UserContext(), user); err != nil {
		if errors.Is(err, apperrors.ErrValidation) {
			return respondError(c, fiber.NewError(fiber.StatusConflict, "Email already exists"))
		}
		h.logger.Error("failed to create user", zap.Error(err))
		return respondError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(UserResponse{
		ID:        user.ID.String(),
		FullName:  user.FullName,
		Email:     user.Email,
		Role:      user.Role,
		CreatedAt: user.CreatedAt,
	})
}

func (h *AuthHandler) Login(c *fiber.Ctx) error {
	var req LoginRequest
	if err := parseBody(c, &req); err != nil {
		return respondError(c, err)
	}

	user, err := h.users.GetUserByEmail(c.UserContext(), req.Email)
	if err != nil {
		if errors.Is(err, apperrors.ErrUserNotFound) {
			return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password"))
		}
		return respondError(c, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return respondError(c, fiber.NewError(fiber.StatusUnauthorized, "Invalid email or password"))
	}
	if !user.IsActive {
		return respondError(c, fiber.NewError(fiber.StatusForbidden, "Account is deactivated"))
	}

	token, err := middleware.IssueToken(h.jwtSecret, user.ID, user.Role)
	if err != nil {
		return respondError(c, fiber.NewError(fiber.StatusInternalServerError, "Failed to create token"))
	}

	return c.JSON(fiber.Map{
		"token": token,
		"user": UserResponse{
			ID:        user.ID.String(),
			FullName:  user.FullName,
			Email:     user.Email,
			Role:      user.Role,
			CreatedAt: user.CreatedAt,
		},
	})
}
