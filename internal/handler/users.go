package handler

import (
	"errors"
	"net/http"
	"strconv"

	"cryptoswap/internal/referral"

	"github.com/gin-gonic/gin"
)

// CreateUser registers a user on first contact, or refreshes their names.
// An optional referral code is attached the first time only.
func (h *Handler) CreateUser(c *gin.Context) {
	var req struct {
		ID           int64  `json:"id" binding:"required"`
		Username     string `json:"username"`
		FirstName    string `json:"first_name"`
		ReferralCode string `json:"referral_code"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid request body")
		return
	}

	user, err := h.ledger.EnsureUser(c.Request.Context(), req.ID, req.Username, req.FirstName)
	if err != nil {
		h.respondError(c, err)
		return
	}

	if req.ReferralCode != "" && user.ReferredBy == nil {
		_, err := h.ledger.AttachReferrer(c.Request.Context(), user.ID, req.ReferralCode)
		if err != nil && !errors.Is(err, referral.ErrSelfReferral) && !errors.Is(err, referral.ErrAlreadyReferred) {
			h.respondError(c, err)
			return
		}
		if user, err = h.ledger.GetUser(c.Request.Context(), user.ID); err != nil {
			h.respondError(c, err)
			return
		}
	}

	ok(c, http.StatusOK, user)
}

func (h *Handler) GetUser(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	user, err := h.ledger.GetUser(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, user)
}

func (h *Handler) AttachReferrer(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	var req struct {
		Code string `json:"code" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "referral code is required")
		return
	}

	referrer, err := h.ledger.AttachReferrer(c.Request.Context(), id, req.Code)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, gin.H{"user_id": id, "referrer_id": referrer.ID})
}

func (h *Handler) GetReferralSummary(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	summary, err := h.ledger.Summary(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, summary)
}

func (h *Handler) GetReferralTransactions(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	txs, err := h.ledger.Earnings(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, txs)
}

func (h *Handler) GetUserOrders(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "10"))
	orders, err := h.orders.ListByUser(c.Request.Context(), id, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, orders)
}

func (h *Handler) RequestWithdrawal(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	w, err := h.ledger.RequestWithdrawal(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusCreated, w)
}

func (h *Handler) GetUserWithdrawals(c *gin.Context) {
	id, valid := idParam(c, "id")
	if !valid {
		return
	}
	ws, err := h.ledger.ListUserWithdrawals(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err)
		return
	}
	ok(c, http.StatusOK, ws)
}
