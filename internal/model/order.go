package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the persisted state of an order. Cancelled and expired
// drafts are deleted rather than stored with a status.
type OrderStatus string

const (
	OrderDraft     OrderStatus = "draft"
	OrderPending   OrderStatus = "pending"
	OrderCompleted OrderStatus = "completed"
	OrderRejected  OrderStatus = "rejected"
)

// Terminal reports whether no further transition is expected
func (s OrderStatus) Terminal() bool {
	return s == OrderCompleted || s == OrderRejected
}

type Order struct {
	ID             int64           `json:"id"`
	UserID         int64           `json:"user_id"`
	Asset          Asset           `json:"asset"`
	CryptoAmount   decimal.Decimal `json:"crypto_amount"`
	NetCrypto      decimal.Decimal `json:"net_crypto_amount"`
	LocalAmount    decimal.Decimal `json:"local_amount"`
	PaymentMethod  PaymentMethod   `json:"payment_method"`
	PaymentDetails string          `json:"payment_details"`
	Network        Network         `json:"network"`
	Fee            decimal.Decimal `json:"fee"`
	NetAmount      decimal.Decimal `json:"net_amount"`
	Status         OrderStatus     `json:"status"`
	TxRef          string          `json:"tx_ref,omitempty"`
	WalletAddress  string          `json:"wallet_address"`
	ExpiresAt      time.Time       `json:"expires_at"`
	CreatedAt      time.Time       `json:"created_at"`

	// Username and FirstName are joined from the owner for admin views
	Username  string `json:"username,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}

// DraftRequest carries everything collected by the conversation before a
// draft can be created
type DraftRequest struct {
	UserID         int64
	Asset          Asset
	Amount         decimal.Decimal
	PaymentMethod  PaymentMethod
	PaymentDetails string
	Network        Network
}

// Breakdown is returned on draft creation for display to the user
type Breakdown struct {
	OrderID       int64           `json:"order_id"`
	Asset         Asset           `json:"asset"`
	Network       Network         `json:"network"`
	CryptoAmount  decimal.Decimal `json:"crypto_amount"`
	CryptoFee     decimal.Decimal `json:"crypto_fee"`
	NetCrypto     decimal.Decimal `json:"net_crypto_amount"`
	UnitPrice     decimal.Decimal `json:"unit_price"`
	LocalAmount   decimal.Decimal `json:"local_amount"`
	Fee           decimal.Decimal `json:"fee"`
	NetAmount     decimal.Decimal `json:"net_amount"`
	WalletAddress string          `json:"wallet_address"`
	ExpiresAt     time.Time       `json:"expires_at"`
}
