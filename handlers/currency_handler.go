package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"
)

type RateSource interface {
	Rates(ctx context.Context) map[string]decimal.Decimal
}

type CurrencyLocator interface {
	Country(ip string) string
	DefaultCurrency(ip string) string
}

type CurrencyHandler struct {
	rates RateSource
	geo   CurrencyLocator
}

func NewCurrencyHandler(rates RateSource, geo CurrencyLocator) *CurrencyHandler {
	return &CurrencyHandler{rates: rates, geo: geo}
}

func (h *CurrencyHandler) Rates(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{"base": "USD", "rates": h.rates.Rates(c.UserContext())})
}

func (h *CurrencyHandler) DefaultCurrency(c *fiber.Ctx) error {
	ip := c.IP()
	return c.JSON(fiber.Map{
		"country":  h.geo.Country(ip),
		"currency": h.geo.DefaultCurrency(ip),
	})
}
