package handler

import (
	"net/http"

	"cryptoswap/internal/model"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// CreateOrder prices a swap and stores it as a draft
func (h *Handler) CreateOrder(c *gin.Context) {
	var req struct {
		UserID         int64           `json:"user_id" binding:"required"`
		Asset          string          `json:"asset" binding:"required"`
		Amount         decimal.Decimal `json:"amount"`
		PaymentMethod  string          `json:"payment_method" binding:"required"`
		PaymentDetails string          `json:"payment_details" binding:"required"`
		Network        string          `json:"network" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	breakdown, err := h.orders.CreateDraft(c.Request.Context(), model.DraftRequest{
		UserID:         req.UserID,
		Asset:          model.Asset(req.Asset),
		Amount:         req.Amount,
		PaymentMethod:  model.PaymentMethod(req.PaymentMethod),
		PaymentDetails: req.PaymentDetails,
		Network:        model.Network(req.Network),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, breakdown)
}

func (h *Handler) GetOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	o, err := h.orders.Get(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, o)
}

// ConfirmOrder submits the transaction proof for a draft. A draft that has
// expired, been cancelled or already been confirmed answers 409.
func (h *Handler) ConfirmOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		TxRef string `json:"tx_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	confirmed, err := h.orders.ConfirmDraft(c.Request.Context(), id, req.TxRef)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !confirmed {
		fail(c, http.StatusConflict, "order could not be confirmed: it expired, was cancelled or was already submitted")
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "status": model.OrderPending})
}

func (h *Handler) CancelOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		UserID int64 `json:"user_id" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	cancelled, err := h.orders.CancelDraft(c.Request.Context(), id, req.UserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	if !cancelled {
		fail(c, http.StatusConflict, "order is not a draft owned by this user")
		return
	}
	ok(c, http.StatusOK, gin.H{"id": id, "cancelled": true})
}
