package handler

import (
	"context"
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"
	"time"

	"cryptoswap/internal/fee"
	"cryptoswap/internal/model"
	"cryptoswap/internal/order"
	"cryptoswap/internal/referral"
	"cryptoswap/internal/wallet"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// PriceBoard exposes the oracle's cached prices
type PriceBoard interface {
	Prices() map[model.Asset]decimal.Decimal
	UpdatedAt() time.Time
}

// Sweeper runs an expiry sweep on demand
type Sweeper interface {
	RunOnce(ctx context.Context) (int64, error)
}

// Handler manages HTTP request handling on top of the order manager and the
// referral ledger
type Handler struct {
	orders        *order.Manager
	ledger        *referral.Ledger
	prices        PriceBoard
	wallets       *wallet.Directory
	sweeper       Sweeper
	adminAPIKey   string
	serviceAPIKey string
	currency      string
	logger        *zap.Logger
}

// Options carries the API keys and payout currency. The admin key unlocks
// every route; the service key is for trusted front ends (the web app or a
// bot) that act on behalf of users and only unlocks the user and order
// routes. An empty key unlocks nothing.
type Options struct {
	AdminAPIKey   string
	ServiceAPIKey string
	Currency      string
}

func NewHandler(orders *order.Manager, ledger *referral.Ledger, prices PriceBoard, wallets *wallet.Directory,
	sweeper Sweeper, opts Options, logger *zap.Logger) *Handler {
	return &Handler{
		orders:        orders,
		ledger:        ledger,
		prices:        prices,
		wallets:       wallets,
		sweeper:       sweeper,
		adminAPIKey:   opts.AdminAPIKey,
		serviceAPIKey: opts.ServiceAPIKey,
		currency:      opts.Currency,
		logger:        logger,
	}
}

// Register mounts every route on rg
func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.GET("/prices", h.GetPrices)

	users := rg.Group("/users", h.ServiceAuth())
	{
		users.POST("", h.CreateUser)
		users.GET("/:id", h.GetUser)
		users.POST("/:id/referrer", h.AttachReferrer)
		users.GET("/:id/referrals", h.GetReferralSummary)
		users.GET("/:id/referrals/transactions", h.GetReferralTransactions)
		users.GET("/:id/orders", h.GetUserOrders)
		users.POST("/:id/withdrawals", h.RequestWithdrawal)
		users.GET("/:id/withdrawals", h.GetUserWithdrawals)
	}

	orders := rg.Group("/orders", h.ServiceAuth())
	{
		orders.POST("", h.CreateOrder)
		orders.GET("/:id", h.GetOrder)
		orders.POST("/:id/confirm", h.ConfirmOrder)
		orders.POST("/:id/cancel", h.CancelOrder)
	}

	admin := rg.Group("/admin", h.AdminAuth())
	{
		admin.GET("/orders/pending", h.ListPendingOrders)
		admin.GET("/orders/search", h.SearchOrders)
		admin.POST("/orders/:id/decision", h.DecideOrder)
		admin.GET("/withdrawals/pending", h.ListPendingWithdrawals)
		admin.GET("/withdrawals/:id", h.GetWithdrawal)
		admin.POST("/withdrawals/:id/decision", h.ResolveWithdrawal)
		admin.GET("/stats", h.GetStats)
		admin.POST("/sweep", h.Sweep)
		admin.GET("/wallets", h.GetWallets)
	}
}

// AdminAuth middleware checks if the request has a valid admin API key
func (h *Handler) AdminAuth() gin.HandlerFunc {
	return apiKeyAuth(h.adminAPIKey)
}

// ServiceAuth accepts the service key or the admin key
func (h *Handler) ServiceAuth() gin.HandlerFunc {
	return apiKeyAuth(h.serviceAPIKey, h.adminAPIKey)
}

func apiKeyAuth(keys ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader("X-API-Key")
		if apiKey != "" {
			for _, key := range keys {
				if key != "" && subtle.ConstantTimeCompare([]byte(apiKey), []byte(key)) == 1 {
					c.Next()
					return
				}
			}
		}
		c.AbortWithStatusJSON(http.StatusUnauthorized, model.Response{
			Success: false,
			Error:   "invalid API key",
		})
	}
}

// GetPrices returns the cached unit prices in the payout currency
func (h *Handler) GetPrices(c *gin.Context) {
	c.JSON(http.StatusOK, model.Response{
		Success: true,
		Data: gin.H{
			"currency":   h.currency,
			"prices":     h.prices.Prices(),
			"updated_at": h.prices.UpdatedAt(),
		},
	})
}

func ok(c *gin.Context, status int, data interface{}) {
	c.JSON(status, model.Response{
		Success: true,
		Data:    data,
	})
}

func fail(c *gin.Context, status int, msg string) {
	c.JSON(status, model.Response{
		Success: false,
		Error:   msg,
	})
}

// respondError maps domain errors to HTTP statuses. Anything unknown is a 500
// and is logged rather than echoed.
func (h *Handler) respondError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("request failed",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Error(err))
		fail(c, status, "internal error")
		return
	}
	fail(c, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, fee.ErrInvalidAmount),
		errors.Is(err, fee.ErrInvalidPrice),
		errors.Is(err, model.ErrUnsupportedAsset),
		errors.Is(err, model.ErrUnsupportedNetwork),
		errors.Is(err, model.ErrUnsupportedPaymentMethod),
		errors.Is(err, order.ErrInvalidOutcome),
		errors.Is(err, order.ErrEmptyTxRef),
		errors.Is(err, referral.ErrInvalidOutcome),
		errors.Is(err, referral.ErrSelfReferral):
		return http.StatusBadRequest
	case errors.Is(err, order.ErrOrderNotFound),
		errors.Is(err, referral.ErrUserNotFound),
		errors.Is(err, referral.ErrReferrerNotFound),
		errors.Is(err, referral.ErrWithdrawalNotFound):
		return http.StatusNotFound
	case errors.Is(err, referral.ErrAlreadyReferred),
		errors.Is(err, referral.ErrAlreadyResolved):
		return http.StatusConflict
	case errors.Is(err, referral.ErrNothingToWithdraw),
		errors.Is(err, wallet.ErrAddressNotConfigured):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func idParam(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id <= 0 {
		fail(c, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}
