package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"cryptoswap/internal/config"
	"cryptoswap/internal/database"
	"cryptoswap/internal/fee"
	"cryptoswap/internal/notify"
	"cryptoswap/internal/order"
	"cryptoswap/internal/pricing"
	"cryptoswap/internal/referral"
	"cryptoswap/internal/sweeper"
	"cryptoswap/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	adminKey   = "test-admin-key"
	serviceKey = "test-service-key"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

type server struct {
	router *gin.Engine
	ledger *referral.Ledger
	clock  time.Time
}

func newServer(t *testing.T) *server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db, err := database.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	cfg := config.Defaults()
	cfg.Pricing.Defaults["USDT"] = decimal.NewFromInt(80)
	wallets, err := wallet.NewDirectory(map[string]map[string]string{
		"USDT": {"TRC20": "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"},
		"ETH":  {"ETH": "0x4d20892695634a00fcb00100c065da914c99ce7d"},
	})
	require.NoError(t, err)

	s := &server{clock: time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)}
	now := func() time.Time { return s.clock }

	oracle := pricing.NewOracle(cfg.Pricing, zap.NewNop())
	s.ledger = referral.NewLedger(db, notify.Nop{}, zap.NewNop(), now)
	orders := order.NewManager(db, fee.NewCalculator(cfg.Fees.FeeRate()), oracle, wallets, s.ledger, notify.Nop{}, zap.NewNop(),
		order.Options{DraftTTL: cfg.Fees.DraftTTL(), ReferralRate: cfg.Fees.ReferralRate(), Now: now})
	sched, err := sweeper.New(orders, oracle, "@every 1m", "", zap.NewNop(), now)
	require.NoError(t, err)

	h := NewHandler(orders, s.ledger, oracle, wallets, sched, Options{AdminAPIKey: adminKey, ServiceAPIKey: serviceKey, Currency: "inr"}, zap.NewNop())
	s.router = gin.New()
	h.Register(s.router.Group("/api/v1"))
	return s
}

func (s *server) do(t *testing.T, method, path string, body interface{}, apiKey string) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, "/api/v1"+path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if apiKey != "" {
		req.Header.Set("X-API-Key", apiKey)
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env), rec.Body.String())
	return rec.Code, env
}

func (s *server) createOrder(t *testing.T, userID int64, amount string) int64 {
	t.Helper()
	code, env := s.do(t, http.MethodPost, "/orders", gin.H{
		"user_id":         userID,
		"asset":           "usdt",
		"amount":          amount,
		"payment_method":  "UPI",
		"payment_details": "x@upi",
		"network":         "TRC20",
	}, serviceKey)
	require.Equal(t, http.StatusCreated, code, env.Error)

	var b struct {
		OrderID int64 `json:"order_id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &b))
	return b.OrderID
}

func TestOrderFlowOverHTTP(t *testing.T) {
	s := newServer(t)

	code, env := s.do(t, http.MethodPost, "/users", gin.H{"id": 1, "username": "ref"}, serviceKey)
	require.Equal(t, http.StatusOK, code, env.Error)
	var referrer struct {
		ReferralCode string `json:"referral_code"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &referrer))

	code, env = s.do(t, http.MethodPost, "/users", gin.H{"id": 2, "username": "buyer", "referral_code": referrer.ReferralCode}, serviceKey)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Contains(t, string(env.Data), `"referred_by":1`)

	code, env = s.do(t, http.MethodPost, "/orders", gin.H{
		"user_id": 2, "asset": "USDT", "amount": 100, "payment_method": "upi",
		"payment_details": "buyer@upi", "network": "trc20",
	}, serviceKey)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var b struct {
		OrderID   int64           `json:"order_id"`
		NetCrypto decimal.Decimal `json:"net_crypto_amount"`
		NetAmount decimal.Decimal `json:"net_amount"`
		Fee       decimal.Decimal `json:"fee"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &b))
	assert.True(t, b.NetCrypto.Equal(decimal.NewFromInt(97)))
	assert.True(t, b.NetAmount.Equal(decimal.NewFromInt(7760)))
	assert.True(t, b.Fee.Equal(decimal.NewFromInt(240)))

	path := "/orders/" + strconv.FormatInt(b.OrderID, 10)
	code, _ = s.do(t, http.MethodPost, path+"/confirm", gin.H{"tx_ref": "0xfeed"}, serviceKey)
	assert.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, path+"/confirm", gin.H{"tx_ref": "0xfeed"}, serviceKey)
	assert.Equal(t, http.StatusConflict, code)
	assert.False(t, env.Success)

	code, env = s.do(t, http.MethodGet, "/admin/orders/pending", nil, adminKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"tx_ref":"0xfeed"`)

	code, env = s.do(t, http.MethodPost, "/admin/orders"+path[len("/orders"):]+"/decision", gin.H{"status": "Completed"}, adminKey)
	require.Equal(t, http.StatusOK, code, env.Error)
	assert.Contains(t, string(env.Data), `"previous_status":"pending"`)

	code, env = s.do(t, http.MethodGet, "/users/1/referrals", nil, serviceKey)
	require.Equal(t, http.StatusOK, code)
	var summary struct {
		Balance       decimal.Decimal `json:"referral_balance"`
		ReferredUsers int             `json:"referred_users"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	assert.True(t, summary.Balance.Equal(decimal.NewFromInt(48)))
	assert.Equal(t, 1, summary.ReferredUsers)

	code, env = s.do(t, http.MethodGet, "/admin/stats", nil, adminKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"completed_orders":1`)

	code, env = s.do(t, http.MethodGet, "/admin/orders/search?q=buy", nil, adminKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"username":"buyer"`)
}

func TestWithdrawalOverHTTP(t *testing.T) {
	s := newServer(t)
	ctx := context.Background()

	code, _ := s.do(t, http.MethodPost, "/users", gin.H{"id": 5}, serviceKey)
	require.Equal(t, http.StatusOK, code)

	code, env := s.do(t, http.MethodPost, "/users/5/withdrawals", nil, serviceKey)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "nothing to withdraw", env.Error)

	orderID := s.createOrder(t, 5, "10")
	_, err := s.ledger.CreditReferral(ctx, 5, orderID, decimal.NewFromInt(25))
	require.NoError(t, err)

	code, env = s.do(t, http.MethodPost, "/users/5/withdrawals", nil, serviceKey)
	require.Equal(t, http.StatusCreated, code, env.Error)
	var w struct {
		ID int64 `json:"id"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &w))

	code, env = s.do(t, http.MethodGet, "/admin/withdrawals/pending", nil, adminKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"amount":"25"`)

	wpath := "/admin/withdrawals/" + strconv.FormatInt(w.ID, 10)
	code, _ = s.do(t, http.MethodPost, wpath+"/decision", gin.H{"status": "rejected"}, adminKey)
	require.Equal(t, http.StatusOK, code)

	code, env = s.do(t, http.MethodPost, wpath+"/decision", gin.H{"status": "completed"}, adminKey)
	assert.Equal(t, http.StatusConflict, code, env.Error)

	code, env = s.do(t, http.MethodGet, "/users/5", nil, serviceKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"referral_balance":"25"`)
}

func TestAdminRoutesRequireKey(t *testing.T) {
	s := newServer(t)

	code, env := s.do(t, http.MethodGet, "/admin/stats", nil, "")
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "invalid API key", env.Error)

	code, _ = s.do(t, http.MethodGet, "/admin/stats", nil, serviceKey)
	assert.Equal(t, http.StatusUnauthorized, code, "the service key is not an admin key")

	code, _ = s.do(t, http.MethodGet, "/admin/wallets", nil, adminKey)
	assert.Equal(t, http.StatusOK, code)
}

func TestUserAndOrderRoutesRequireKey(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodPost, "/users", gin.H{"id": 5}, serviceKey)
	require.Equal(t, http.StatusOK, code)
	orderID := s.createOrder(t, 5, "10")
	path := "/orders/" + strconv.FormatInt(orderID, 10)

	for _, key := range []string{"", "wrong-key"} {
		code, env := s.do(t, http.MethodPost, "/users/5/withdrawals", nil, key)
		assert.Equal(t, http.StatusUnauthorized, code)
		assert.Equal(t, "invalid API key", env.Error)

		code, _ = s.do(t, http.MethodPost, "/users", gin.H{"id": 6}, key)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = s.do(t, http.MethodGet, "/users/5/orders", nil, key)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = s.do(t, http.MethodPost, path+"/confirm", gin.H{"tx_ref": "0xfeed"}, key)
		assert.Equal(t, http.StatusUnauthorized, code)
		code, _ = s.do(t, http.MethodPost, path+"/cancel", gin.H{"user_id": 5}, key)
		assert.Equal(t, http.StatusUnauthorized, code)
	}

	code, env := s.do(t, http.MethodGet, path, nil, serviceKey)
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"status":"draft"`, "rejected calls left the order untouched")

	code, env = s.do(t, http.MethodGet, "/users/5/orders", nil, adminKey)
	require.Equal(t, http.StatusOK, code, "the admin key also opens user routes")
	assert.NotContains(t, string(env.Data), `"status":"draft"`)

	code, _ = s.do(t, http.MethodGet, "/prices", nil, "")
	assert.Equal(t, http.StatusOK, code, "prices stay public")
}

func TestErrorMapping(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodPost, "/users", gin.H{"id": 9}, serviceKey)
	require.Equal(t, http.StatusOK, code)

	base := gin.H{"user_id": 9, "asset": "USDT", "amount": "5", "payment_method": "UPI", "payment_details": "a", "network": "TRC20"}
	with := func(k string, v interface{}) gin.H {
		out := gin.H{}
		for key, val := range base {
			out[key] = val
		}
		out[k] = v
		return out
	}

	tests := []struct {
		name string
		body gin.H
		want int
	}{
		{"zero amount", with("amount", "0"), http.StatusBadRequest},
		{"unknown asset", with("asset", "XRP"), http.StatusBadRequest},
		{"wrong network", with("network", "BTC"), http.StatusBadRequest},
		{"no wallet", with("network", "TON"), http.StatusUnprocessableEntity},
		{"unknown user", with("user_id", 404), http.StatusNotFound},
		{"missing field", with("payment_details", ""), http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, env := s.do(t, http.MethodPost, "/orders", tt.body, serviceKey)
			assert.Equal(t, tt.want, code, env.Error)
			assert.False(t, env.Success)
		})
	}

	code, _ = s.do(t, http.MethodGet, "/orders/abc", nil, serviceKey)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = s.do(t, http.MethodGet, "/orders/77", nil, serviceKey)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = s.do(t, http.MethodPost, "/admin/orders/77/decision", gin.H{"status": "shipped"}, adminKey)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestCancelAndSweepOverHTTP(t *testing.T) {
	s := newServer(t)
	code, _ := s.do(t, http.MethodPost, "/users", gin.H{"id": 3}, serviceKey)
	require.Equal(t, http.StatusOK, code)

	cancelled := s.createOrder(t, 3, "1")
	path := "/orders/" + strconv.FormatInt(cancelled, 10) + "/cancel"
	code, _ = s.do(t, http.MethodPost, path, gin.H{"user_id": 4}, serviceKey)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = s.do(t, http.MethodPost, path, gin.H{"user_id": 3}, serviceKey)
	assert.Equal(t, http.StatusOK, code)

	s.createOrder(t, 3, "2")
	s.clock = s.clock.Add(16 * time.Minute)

	code, env := s.do(t, http.MethodPost, "/admin/sweep", nil, adminKey)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"removed":1}`, string(env.Data))

	code, env = s.do(t, http.MethodGet, "/prices", nil, "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(env.Data), `"USDT":"80"`)
}
