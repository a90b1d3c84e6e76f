package pricing

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"cryptoswap/internal/config"
	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testConfig(baseURL string) config.PricingConfig {
	cfg := config.Defaults().Pricing
	cfg.BaseURL = baseURL
	cfg.TimeoutSeconds = 2
	return cfg
}

func TestOracleStartsWithDefaults(t *testing.T) {
	o := NewOracle(testConfig("http://127.0.0.1:1"), zap.NewNop())

	assert.True(t, o.GetUnitPrice(model.AssetUSDT).Equal(decimal.NewFromInt(83)))
	assert.True(t, o.GetUnitPrice(model.AssetBTC).Equal(decimal.NewFromInt(3500000)))
	assert.True(t, o.GetUnitPrice(model.Asset("DOGE")).Equal(decimal.NewFromInt(1)), "unknown assets get the floor price")
	assert.True(t, o.UpdatedAt().IsZero())
}

func TestOracleRefresh(t *testing.T) {
	var fail atomic.Bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/simple/price", r.URL.Path)
		assert.Equal(t, "inr", r.URL.Query().Get("vs_currencies"))
		if fail.Load() {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"tether":{"inr":84.12},"bitcoin":{"inr":5600000},"ethereum":{"inr":0}}`))
	}))
	defer srv.Close()

	o := NewOracle(testConfig(srv.URL), zap.NewNop())

	require.NoError(t, o.Refresh(context.Background()))
	assert.True(t, o.GetUnitPrice(model.AssetUSDT).Equal(decimal.RequireFromString("84.12")))
	assert.True(t, o.GetUnitPrice(model.AssetBTC).Equal(decimal.NewFromInt(5600000)))
	assert.True(t, o.GetUnitPrice(model.AssetETH).Equal(decimal.NewFromInt(250000)), "non-positive feed values are ignored")
	assert.False(t, o.UpdatedAt().IsZero())

	fail.Store(true)
	assert.Error(t, o.Refresh(context.Background()))
	assert.True(t, o.GetUnitPrice(model.AssetUSDT).Equal(decimal.RequireFromString("84.12")), "last known value survives a failed refresh")
}

func TestOracleRefreshUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	o := NewOracle(testConfig(srv.URL), zap.NewNop())
	assert.Error(t, o.Refresh(context.Background()))

	prices := o.Prices()
	assert.Len(t, prices, 3)
	assert.True(t, prices[model.AssetETH].Equal(decimal.NewFromInt(250000)))
}
