package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	WithdrawalPending   WithdrawalStatus = "pending"
	WithdrawalCompleted WithdrawalStatus = "completed"
	WithdrawalRejected  WithdrawalStatus = "rejected"
)

// Withdrawal is a request to pay out the referral balance. Amount is the
// balance snapshot taken when the request was made.
type Withdrawal struct {
	ID        int64            `json:"id"`
	UserID    int64            `json:"user_id"`
	Amount    decimal.Decimal  `json:"amount"`
	Status    WithdrawalStatus `json:"status"`
	CreatedAt time.Time        `json:"created_at"`

	Username  string          `json:"username,omitempty"`
	FirstName string          `json:"first_name,omitempty"`
	Balance   decimal.Decimal `json:"current_balance"`
}

// ReferralTransaction is an immutable earning record
type ReferralTransaction struct {
	ID         int64           `json:"id"`
	ReferrerID int64           `json:"referrer_id"`
	OrderID    int64           `json:"order_id"`
	Amount     decimal.Decimal `json:"amount"`
	CreatedAt  time.Time       `json:"created_at"`
}
