// Package fee computes the platform fee and the local-currency payout for a
// swap. Amounts are exact decimals; rounding happens only for display.
package fee

import (
	"errors"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidAmount = errors.New("amount must be positive")
	ErrInvalidPrice  = errors.New("unit price must be positive")
)

const (
	// CurrencyPlaces is how many decimals a local-currency value is shown with
	CurrencyPlaces = 2
	// CryptoPlaces is how many decimals a crypto quantity is shown with
	CryptoPlaces = 6
)

// Quote is the outcome of pricing a swap request
type Quote struct {
	CryptoFee   decimal.Decimal
	NetCrypto   decimal.Decimal
	LocalAmount decimal.Decimal
	// FeeValue is CryptoFee expressed in local currency
	FeeValue  decimal.Decimal
	NetAmount decimal.Decimal
}

type Calculator struct {
	rate decimal.Decimal
}

// NewCalculator takes the fee as a fraction, e.g. 0.03 for 3%
func NewCalculator(rate decimal.Decimal) *Calculator {
	return &Calculator{rate: rate}
}

func (c *Calculator) Rate() decimal.Decimal {
	return c.rate
}

// Calculate prices amount units of an asset at price per unit
func (c *Calculator) Calculate(amount, price decimal.Decimal) (Quote, error) {
	if !amount.IsPositive() {
		return Quote{}, ErrInvalidAmount
	}
	if !price.IsPositive() {
		return Quote{}, ErrInvalidPrice
	}

	cryptoFee := amount.Mul(c.rate)
	netCrypto := amount.Sub(cryptoFee)
	local := netCrypto.Mul(price)

	return Quote{
		CryptoFee:   cryptoFee,
		NetCrypto:   netCrypto,
		LocalAmount: local,
		FeeValue:    cryptoFee.Mul(price),
		// no fixed fee on top of the crypto fee
		NetAmount: local,
	}, nil
}

// Money formats a local-currency amount for display
func Money(d decimal.Decimal) string {
	return d.StringFixed(CurrencyPlaces)
}

// Crypto formats a crypto quantity for display
func Crypto(d decimal.Decimal) string {
	return d.StringFixed(CryptoPlaces)
}
