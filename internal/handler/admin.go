package handler

import (
	"net/http"
	"strings"

	"cryptoswap/internal/model"

	"github.com/gin-gonic/gin"
)

type decisionRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *Handler) ListPendingOrders(c *gin.Context) {
	orders, err := h.orders.ListPending(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

// SearchOrders matches q against order ids, user ids and names
func (h *Handler) SearchOrders(c *gin.Context) {
	q := c.Query("q")
	if strings.TrimSpace(q) == "" {
		fail(c, http.StatusBadRequest, "missing q parameter")
		return
	}
	orders, err := h.orders.Search(c.Request.Context(), q)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

func (h *Handler) DecideOrder(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "status is required")
		return
	}

	o, prev, err := h.orders.Decide(c.Request.Context(), id, model.OrderStatus(strings.ToLower(req.Status)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"order": o, "previous_status": prev})
}

func (h *Handler) ListPendingWithdrawals(c *gin.Context) {
	ws, err := h.ledger.ListPendingWithdrawals(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ws)
}

func (h *Handler) GetWithdrawal(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	w, err := h.ledger.GetWithdrawal(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) ResolveWithdrawal(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "status is required")
		return
	}

	w, err := h.ledger.ResolveWithdrawal(c.Request.Context(), id, model.WithdrawalStatus(strings.ToLower(req.Status)))
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, w)
}

func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.orders.Stats(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, stats)
}

// Sweep removes expired drafts now instead of waiting for the schedule
func (h *Handler) Sweep(c *gin.Context) {
	n, err := h.sweeper.RunOnce(c.Request.Context())
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"removed": n})
}

func (h *Handler) GetWallets(c *gin.Context) {
	ok(c, http.StatusOK, h.wallets.Entries())
}
