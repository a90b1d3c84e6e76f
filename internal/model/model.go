package model

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrUnsupportedAsset         = errors.New("unsupported asset")
	ErrUnsupportedNetwork       = errors.New("unsupported network for asset")
	ErrUnsupportedPaymentMethod = errors.New("unsupported payment method")
)

// Asset is a cryptocurrency accepted for swapping
type Asset string

const (
	AssetUSDT Asset = "USDT"
	AssetBTC  Asset = "BTC"
	AssetETH  Asset = "ETH"
)

// Assets lists the supported assets in display order
var Assets = []Asset{AssetUSDT, AssetBTC, AssetETH}

// Network is the chain the user sends the asset on
type Network string

const (
	NetworkTRC20 Network = "TRC20"
	NetworkTRON  Network = "TRON"
	NetworkBSC   Network = "BSC"
	NetworkTON   Network = "TON"
	NetworkBTC   Network = "BTC"
	NetworkETH   Network = "ETH"
)

var assetNetworks = map[Asset][]Network{
	AssetUSDT: {NetworkTRC20, NetworkTRON, NetworkBSC, NetworkTON},
	AssetBTC:  {NetworkBTC},
	AssetETH:  {NetworkETH},
}

// NetworksFor returns the networks an asset may be sent on
func NetworksFor(asset Asset) []Network {
	return assetNetworks[asset]
}

// PaymentMethod is how the local-currency payout reaches the user
type PaymentMethod string

const (
	PaymentUPI          PaymentMethod = "UPI"
	PaymentBankTransfer PaymentMethod = "Bank Transfer"
	PaymentPaytm        PaymentMethod = "Paytm"
	PaymentGooglePay    PaymentMethod = "Google Pay"
)

var PaymentMethods = []PaymentMethod{PaymentUPI, PaymentBankTransfer, PaymentPaytm, PaymentGooglePay}

func ParseAsset(s string) (Asset, error) {
	a := Asset(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := assetNetworks[a]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedAsset, s)
	}
	return a, nil
}

// ParseNetwork validates the network against the asset it is used with
func ParseNetwork(asset Asset, s string) (Network, error) {
	n := Network(strings.ToUpper(strings.TrimSpace(s)))
	for _, allowed := range assetNetworks[asset] {
		if allowed == n {
			return n, nil
		}
	}
	return "", fmt.Errorf("%w: %s on %q", ErrUnsupportedNetwork, asset, s)
}

func ParsePaymentMethod(s string) (PaymentMethod, error) {
	for _, m := range PaymentMethods {
		if strings.EqualFold(string(m), strings.TrimSpace(s)) {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrUnsupportedPaymentMethod, s)
}

// User is a chat participant. ReferredBy is set at most once.
type User struct {
	ID           int64           `json:"id"`
	Username     string          `json:"username,omitempty"`
	FirstName    string          `json:"first_name,omitempty"`
	ReferralCode string          `json:"referral_code"`
	ReferredBy   *int64          `json:"referred_by,omitempty"`
	Balance      decimal.Decimal `json:"referral_balance"`
	TotalEarned  decimal.Decimal `json:"total_earned"`
	CreatedAt    time.Time       `json:"created_at"`
}

// DisplayName prefers the handle, then the first name, then the numeric id
func (u *User) DisplayName() string {
	switch {
	case u.Username != "":
		return "@" + u.Username
	case u.FirstName != "":
		return u.FirstName
	default:
		return fmt.Sprintf("%d", u.ID)
	}
}

// ReferralSummary is what a user sees about their own referral program
type ReferralSummary struct {
	ReferralCode  string          `json:"referral_code"`
	ReferredUsers int             `json:"referred_users"`
	Balance       decimal.Decimal `json:"referral_balance"`
	TotalEarned   decimal.Decimal `json:"total_earned"`
}

// Stats are the aggregate numbers shown on the admin panel
type Stats struct {
	TotalOrders        int             `json:"total_orders"`
	CompletedOrders    int             `json:"completed_orders"`
	TotalVolume        decimal.Decimal `json:"total_volume"`
	TotalFees          decimal.Decimal `json:"total_fees"`
	TotalUsers         int             `json:"total_users"`
	PendingWithdrawals int             `json:"pending_withdrawals"`
}

type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}
