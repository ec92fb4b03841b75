package services

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRateServiceCachesRates(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		assert.Equal(t, "/test-key/latest/USD", r.URL.Path)
		_, _ = w.Write([]byte(`{"result":"success","conversion_rates":{"USD":1,"NGN":1600,"KES":130}}`))
	}))
	defer srv.Close()

	svc := NewRateService(srv.URL, "test-key", zap.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	got, err := svc.Convert(context.Background(), decimal.NewFromInt(10), "usd", "NGN")
	require.NoError(t, err)
	assert.Equal(t, "16000.00", got.StringFixed(2))

	got, err = svc.Convert(context.Background(), decimal.NewFromInt(3200), "NGN", "KES")
	require.NoError(t, err)
	assert.Equal(t, "260.00", got.StringFixed(2))
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))

	now = now.Add(7 * time.Hour)
	svc.Rates(context.Background())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))
}

func TestRateServiceFallsBackOnFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"result":"error","error-type":"invalid-key"}`))
	}))
	defer srv.Close()

	svc := NewRateService(srv.URL, "bad-key", zap.NewNop())

	rates := svc.Rates(context.Background())
	assert.True(t, rates["NGN"].Equal(decimal.NewFromInt(1550)))

	_, err := svc.Convert(context.Background(), decimal.NewFromInt(1), "USD", "XYZ")
	assert.Error(t, err)
}

func TestRateServiceServesStaleRatesWhenRefreshFails(t *testing.T) {
	var hits int32
	var failing atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		atomic.AddInt32(&hits, 1)
		if failing.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte(`{"result":"error","error-type":"quota-reached"}`))
			return
		}
		_, _ = w.Write([]byte(`{"result":"success","conversion_rates":{"USD":1,"NGN":1600}}`))
	}))
	defer srv.Close()

	svc := NewRateService(srv.URL, "test-key", zap.NewNop())
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return now }

	require.NoError(t, svc.Refresh(context.Background()))
	failing.Store(true)
	now = now.Add(7 * time.Hour)

	rates := svc.Rates(context.Background())
	assert.True(t, rates["NGN"].Equal(decimal.NewFromInt(1600)), rates["NGN"].String())
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	now = now.Add(10 * time.Second)
	rates = svc.Rates(context.Background())
	assert.True(t, rates["NGN"].Equal(decimal.NewFromInt(1600)))
	assert.Equal(t, int32(2), atomic.LoadInt32(&hits))

	now = now.Add(2 * time.Minute)
	svc.Rates(context.Background())
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestRateServiceWithoutKeyUsesStaticRates(t *testing.T) {
	svc := NewRateService("http://127.0.0.1:0", "", zap.NewNop())

	assert.ErrorIs(t, svc.Refresh(context.Background()), errNoRatesKey)
	got, err := svc.Convert(context.Background(), decimal.NewFromInt(2), "USD", "NGN")
	require.NoError(t, err)
	assert.Equal(t, "3100.00", got.StringFixed(2))
}

func TestRateServiceSameCurrencyNeedsNoRates(t *testing.T) {
	svc := NewRateService("http://127.0.0.1:0", "", zap.NewNop())

	got, err := svc.Convert(context.Background(), decimal.RequireFromString("12.345"), "GHS", "ghs")

	require.NoError(t, err)
	assert.Equal(t, "12.35", got.StringFixed(2))
}
