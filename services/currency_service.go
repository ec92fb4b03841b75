package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultExchangeRateURL = "https://v6.exchangerate-api.com/v6"
	ratesTTL               = 6 * time.Hour
	ratesTimeout           = 5 * time.Second
	refreshBackoff         = time.Minute // between failed refreshes
)

var errNoRatesKey = errors.New("exchange rate API key not configured")

type ExchangeRateResponse struct {
	Result          string             `json:"result"`
	ConversionRates map[string]float64 `json:"conversion_rates"`
}

// fallbackRates are USD based and only used when the API is unreachable.
var fallbackRates = map[string]float64{
	"USD": 1,
	"EUR": 0.92,
	"GBP": 0.79,
	"CAD": 1.36,
	"AUD": 1.52,
	"NGN": 1550,
	"GHS": 15.5,
	"ZAR": 18.4,
	"KES": 129,
}

type RateService struct {
	apiKey string
	client *resty.Client
	logger *zap.Logger
	now    func() time.Time

	mu          sync.RWMutex
	rates       map[string]decimal.Decimal
	fetchedAt   time.Time
	attemptedAt time.Time
}

func NewRateService(baseURL, apiKey string, logger *zap.Logger) *RateService {
	if baseURL == "" {
		baseURL = DefaultExchangeRateURL
	}
	if apiKey == "" {
		logger.Warn("EXCHANGE_RATE_API_KEY not set, conversions use static rates")
	}
	return &RateService{
		apiKey: apiKey,
		client: resty.New().
			SetBaseURL(strings.TrimRight(baseURL, "/")).
			SetTimeout(ratesTimeout),
		logger: logger,
		now:    time.Now,
	}
}

// Rates returns USD based rates and never fails. When a refresh fails the last
// fetched rates are served; the static table is used only if nothing was ever
// fetched.
func (s *RateService) Rates(ctx context.Context) map[string]decimal.Decimal {
	now := s.now()
	s.mu.RLock()
	rates, fetchedAt, attemptedAt := s.rates, s.fetchedAt, s.attemptedAt
	s.mu.RUnlock()

	if rates != nil && now.Sub(fetchedAt) < ratesTTL {
		return rates
	}
	if now.Sub(attemptedAt) < refreshBackoff {
		return orFallback(rates)
	}

	err := s.Refresh(ctx)
	if err == nil {
		s.mu.RLock()
		defer s.mu.RUnlock()
		return s.rates
	}
	if errors.Is(err, errNoRatesKey) {
		return toDecimals(fallbackRates)
	}
	if rates != nil {
		s.logger.Warn("serving stale exchange rates", zap.Time("fetched_at", fetchedAt), zap.Error(err))
	} else {
		s.logger.Warn("using fallback exchange rates", zap.Error(err))
	}
	return orFallback(rates)
}

// Refresh fetches fresh rates and replaces the cache.
func (s *RateService) Refresh(ctx context.Context) error {
	if s.apiKey == "" {
		return errNoRatesKey
	}
	s.mu.Lock()
	s.attemptedAt = s.now()
	s.mu.Unlock()

	var data ExchangeRateResponse
	resp, err := s.client.R().
		SetContext(ctx).
		ForceContentType("application/json").
		SetPathParam("key", s.apiKey).
		SetResult(&data).
		SetError(&data).
		Get("/{key}/latest/USD")
	if err != nil {
		return fmt.Errorf("fetch exchange rates: %w", err)
	}
	if resp.IsError() || data.Result != "success" || len(data.ConversionRates) == 0 {
		return fmt.Errorf("currency API returned an error (status %d)", resp.StatusCode())
	}

	rates := toDecimals(data.ConversionRates)
	s.mu.Lock()
	s.rates = rates
	s.fetchedAt = s.now()
	s.mu.Unlock()

	s.logger.Info("exchange rate cache updated", zap.Int("currencies", len(rates)))
	return nil
}

// Convert converts between two currencies through USD and rounds to cents.
func (s *RateService) Convert(ctx context.Context, amount decimal.Decimal, from, to string) (decimal.Decimal, error) {
	from, to = strings.ToUpper(from), strings.ToUpper(to)
	if from == to {
		return amount.Round(2), nil
	}
	rates := s.Rates(ctx)
	fromRate, ok := rates[from]
	if !ok || fromRate.IsZero() {
		return decimal.Zero, fmt.Errorf("no exchange rate for %s", from)
	}
	toRate, ok := rates[to]
	if !ok {
		return decimal.Zero, fmt.Errorf("no exchange rate for %s", to)
	}
	return amount.Mul(toRate).Div(fromRate).Round(2), nil
}

func orFallback(rates map[string]decimal.Decimal) map[string]decimal.Decimal {
	if rates != nil {
		return rates
	}
	return toDecimals(fallbackRates)
}

func toDecimals(in map[string]float64) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal, len(in))
	for currency, rate := range in {
		out[strings.ToUpper(currency)] = decimal.NewFromFloat(rate)
	}
	return out
}
