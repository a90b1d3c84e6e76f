// Package pricing supplies the current unit price of each supported asset in
// the payout currency.
package pricing

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"cryptoswap/internal/config"
	"cryptoswap/internal/metrics"
	"cryptoswap/internal/model"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// floor is returned for an asset with neither a fetched nor a default price
var floor = decimal.NewFromInt(1)

// Oracle caches prices fetched from CoinGecko. A failed refresh keeps the
// last known values, so GetUnitPrice never fails.
type Oracle struct {
	client   *resty.Client
	logger   *zap.Logger
	currency string
	coinIDs  map[model.Asset]string

	mu        sync.RWMutex
	prices    map[model.Asset]decimal.Decimal
	updatedAt time.Time
}

func NewOracle(cfg config.PricingConfig, logger *zap.Logger) *Oracle {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")

	o := &Oracle{
		client:   client,
		logger:   logger.Named("pricing"),
		currency: strings.ToLower(cfg.Currency),
		coinIDs:  make(map[model.Asset]string),
		prices:   make(map[model.Asset]decimal.Decimal),
	}
	for asset, id := range cfg.CoinIDs {
		o.coinIDs[model.Asset(strings.ToUpper(asset))] = id
	}
	for asset, price := range cfg.Defaults {
		if price.IsPositive() {
			o.prices[model.Asset(strings.ToUpper(asset))] = price
		}
	}
	return o
}

// GetUnitPrice returns the latest known price of one unit of asset
func (o *Oracle) GetUnitPrice(asset model.Asset) decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()

	if p, ok := o.prices[asset]; ok {
		return p
	}
	return floor
}

// Prices returns a copy of the price table
func (o *Oracle) Prices() map[model.Asset]decimal.Decimal {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := make(map[model.Asset]decimal.Decimal, len(o.prices))
	for k, v := range o.prices {
		out[k] = v
	}
	return out
}

func (o *Oracle) UpdatedAt() time.Time {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.updatedAt
}

// Refresh fetches current prices. The error is logged and returned for the
// scheduler; cached prices are left untouched on failure.
func (o *Oracle) Refresh(ctx context.Context) error {
	fetched, err := o.fetch(ctx)
	if err != nil {
		metrics.PriceRefreshFailures.Inc()
		o.logger.Error("failed to update crypto prices", zap.Error(err))
		return err
	}

	o.mu.Lock()
	for asset, price := range fetched {
		o.prices[asset] = price
	}
	o.updatedAt = time.Now()
	o.mu.Unlock()

	o.logger.Info("updated crypto prices", zap.Any("prices", fetched))
	return nil
}

func (o *Oracle) fetch(ctx context.Context) (map[model.Asset]decimal.Decimal, error) {
	if len(o.coinIDs) == 0 {
		return nil, fmt.Errorf("no coin ids configured")
	}

	ids := make([]string, 0, len(o.coinIDs))
	for _, id := range o.coinIDs {
		ids = append(ids, id)
	}

	var body map[string]map[string]decimal.Decimal
	resp, err := o.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"ids":           strings.Join(ids, ","),
			"vs_currencies": o.currency,
		}).
		SetResult(&body).
		Get("/simple/price")
	if err != nil {
		return nil, fmt.Errorf("price request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("price request: status %d", resp.StatusCode())
	}

	out := make(map[model.Asset]decimal.Decimal)
	for asset, id := range o.coinIDs {
		price, ok := body[id][o.currency]
		if !ok || !price.IsPositive() {
			o.logger.Warn("price missing from feed", zap.String("asset", string(asset)), zap.String("coin_id", id))
			continue
		}
		out[asset] = price
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("price feed returned no usable prices")
	}
	return out, nil
}
