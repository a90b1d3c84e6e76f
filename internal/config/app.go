package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// AppConfig is the JSON application config: fees, prices, wallets and the
// Telegram credentials.
type AppConfig struct {
	AdminAPIKey    string                       `json:"admin_api_key"`
	ServiceAPIKey  string                       `json:"service_api_key"` // front ends calling the user and order routes
	SupportContact string                       `json:"support_contact"`
	Telegram       TelegramConfig               `json:"telegram"`
	CORS           CORSConfig                   `json:"cors"`
	RateLimit      RateLimitConfig              `json:"rate_limit"`
	Fees           FeeConfig                    `json:"fees"`
	Pricing        PricingConfig                `json:"pricing"`
	Wallets        map[string]map[string]string `json:"wallets"` // asset -> network -> address
	Sweeper        SweeperConfig                `json:"sweeper"`
}

type TelegramConfig struct {
	Enabled      bool   `json:"enabled"`
	BotToken     string `json:"bot_token"`
	AdminChatID  int64  `json:"admin_chat_id"`
	AdminChannel string `json:"admin_channel"` // @channelname
	Workers      int    `json:"workers"`
	QueueSize    int    `json:"queue_size"`
}

// CORSConfig lists the browser origins allowed to call the API. Empty or
// "*" allows any origin.
type CORSConfig struct {
	AllowedOrigins []string `json:"allowed_origins"`
}

// RateLimitConfig allows Requests per client IP in each window. Zero
// requests disables limiting.
type RateLimitConfig struct {
	Requests      int `json:"requests"`
	WindowSeconds int `json:"window_seconds"`
}

func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

type FeeConfig struct {
	FeePercent      decimal.Decimal `json:"fee_percent"`
	ReferralPercent decimal.Decimal `json:"referral_percent"`
	DraftTTLMinutes int             `json:"draft_ttl_minutes"`
}

// FeeRate is FeePercent as a fraction
func (f FeeConfig) FeeRate() decimal.Decimal {
	return f.FeePercent.Div(decimal.NewFromInt(100))
}

func (f FeeConfig) ReferralRate() decimal.Decimal {
	return f.ReferralPercent.Div(decimal.NewFromInt(100))
}

func (f FeeConfig) DraftTTL() time.Duration {
	return time.Duration(f.DraftTTLMinutes) * time.Minute
}

type PricingConfig struct {
	BaseURL         string                     `json:"base_url"`
	Currency        string                     `json:"currency"`
	RefreshSchedule string                     `json:"refresh_schedule"`
	TimeoutSeconds  int                        `json:"timeout_seconds"`
	CoinIDs         map[string]string          `json:"coin_ids"` // asset -> coingecko id
	Defaults        map[string]decimal.Decimal `json:"defaults"`
}

func (p PricingConfig) Timeout() time.Duration {
	return time.Duration(p.TimeoutSeconds) * time.Second
}

type SweeperConfig struct {
	Schedule string `json:"schedule"`
}

// Defaults mirrors the values the service ran with before they were made
// configurable.
func Defaults() *AppConfig {
	return &AppConfig{
		SupportContact: "@support",
		Telegram: TelegramConfig{
			Workers:   2,
			QueueSize: 100,
		},
		RateLimit: RateLimitConfig{
			Requests:      20,
			WindowSeconds: 1,
		},
		Fees: FeeConfig{
			FeePercent:      decimal.NewFromInt(3),
			ReferralPercent: decimal.NewFromInt(20),
			DraftTTLMinutes: 15,
		},
		Pricing: PricingConfig{
			BaseURL:         "https://api.coingecko.com/api/v3",
			Currency:        "inr",
			RefreshSchedule: "@every 5m",
			TimeoutSeconds:  10,
			CoinIDs: map[string]string{
				"USDT": "tether",
				"BTC":  "bitcoin",
				"ETH":  "ethereum",
			},
			Defaults: map[string]decimal.Decimal{
				"USDT": decimal.NewFromInt(83),
				"BTC":  decimal.NewFromInt(3500000),
				"ETH":  decimal.NewFromInt(250000),
			},
		},
		Wallets: map[string]map[string]string{},
		Sweeper: SweeperConfig{
			Schedule: "@every 1m",
		},
	}
}

// LoadApp reads the JSON config at path over the defaults. An empty path
// yields the defaults.
func LoadApp(path string) (*AppConfig, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	configFile, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := json.Unmarshal(configFile, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *AppConfig) validate() error {
	if !c.Fees.FeePercent.IsPositive() || c.Fees.FeePercent.GreaterThanOrEqual(decimal.NewFromInt(100)) {
		return fmt.Errorf("fees.fee_percent must be in (0, 100), got %s", c.Fees.FeePercent)
	}
	if c.Fees.ReferralPercent.IsNegative() || c.Fees.ReferralPercent.GreaterThan(decimal.NewFromInt(100)) {
		return fmt.Errorf("fees.referral_percent must be in [0, 100], got %s", c.Fees.ReferralPercent)
	}
	if c.Fees.DraftTTLMinutes <= 0 {
		return fmt.Errorf("fees.draft_ttl_minutes must be positive")
	}
	if c.Pricing.TimeoutSeconds <= 0 {
		return fmt.Errorf("pricing.timeout_seconds must be positive")
	}
	if c.RateLimit.Requests < 0 {
		return fmt.Errorf("rate_limit.requests must not be negative")
	}
	if c.RateLimit.Requests > 0 && c.RateLimit.WindowSeconds <= 0 {
		return fmt.Errorf("rate_limit.window_seconds must be positive")
	}
	for _, origin := range c.CORS.AllowedOrigins {
		if origin != "*" && !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("cors.allowed_origins: %q needs an http:// or https:// scheme", origin)
		}
	}
	for asset, price := range c.Pricing.Defaults {
		if !price.IsPositive() {
			return fmt.Errorf("pricing.defaults.%s must be positive", asset)
		}
	}
	if c.Telegram.Enabled && c.Telegram.BotToken == "" {
		return fmt.Errorf("telegram.bot_token is required when telegram is enabled")
	}
	return nil
}
