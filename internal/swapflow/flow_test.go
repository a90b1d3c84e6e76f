package swapflow

import (
	"testing"

	"cryptoswap/internal/model"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHappyPath(t *testing.T) {
	f := New(42)
	assert.Equal(t, SelectingAsset, f.State())

	require.NoError(t, f.SelectAsset("usdt"))
	assert.Equal(t, AwaitingAmount, f.State())
	assert.Equal(t, []model.Network{model.NetworkTRC20, model.NetworkTRON, model.NetworkBSC, model.NetworkTON}, f.Networks())

	require.NoError(t, f.EnterAmount(" 100.5 "))
	require.NoError(t, f.SelectPaymentMethod("google pay"))
	require.NoError(t, f.EnterPaymentDetails("me@okaxis"))

	_, err := f.Request()
	assert.ErrorIs(t, err, ErrIncomplete)

	require.NoError(t, f.SelectNetwork("trc20"))
	assert.Equal(t, AwaitingTxProof, f.State())

	req, err := f.Request()
	require.NoError(t, err)
	assert.Equal(t, int64(42), req.UserID)
	assert.Equal(t, model.AssetUSDT, req.Asset)
	assert.True(t, req.Amount.Equal(decimal.RequireFromString("100.5")))
	assert.Equal(t, model.PaymentGooglePay, req.PaymentMethod)
	assert.Equal(t, "me@okaxis", req.PaymentDetails)
	assert.Equal(t, model.NetworkTRC20, req.Network)

	_, _, err = f.SubmitProof("https://tronscan.org/#/transaction/x")
	assert.ErrorIs(t, err, ErrNoOrder)

	require.NoError(t, f.AttachOrder(9))
	id, proof, err := f.SubmitProof(" https://tronscan.org/#/transaction/x ")
	require.NoError(t, err)
	assert.Equal(t, int64(9), id)
	assert.Equal(t, "https://tronscan.org/#/transaction/x", proof)
}

func TestOutOfOrderInput(t *testing.T) {
	f := New(1)

	assert.ErrorIs(t, f.EnterAmount("10"), ErrUnexpectedInput)
	assert.ErrorIs(t, f.SelectNetwork("BTC"), ErrUnexpectedInput)
	assert.ErrorIs(t, f.AttachOrder(1), ErrUnexpectedInput)
	_, _, err := f.SubmitProof("tx")
	assert.ErrorIs(t, err, ErrUnexpectedInput)
	assert.Equal(t, SelectingAsset, f.State())

	require.NoError(t, f.SelectAsset("BTC"))
	assert.ErrorIs(t, f.SelectAsset("ETH"), ErrUnexpectedInput)
	assert.Equal(t, model.AssetBTC, f.Asset())
}

func TestInvalidInputKeepsState(t *testing.T) {
	f := New(1)
	assert.ErrorIs(t, f.SelectAsset("DOGE"), model.ErrUnsupportedAsset)
	assert.Equal(t, SelectingAsset, f.State())

	require.NoError(t, f.SelectAsset("ETH"))
	for _, in := range []string{"", "abc", "0", "-3"} {
		assert.ErrorIs(t, f.EnterAmount(in), ErrInvalidAmount, in)
	}
	assert.Equal(t, AwaitingAmount, f.State())

	require.NoError(t, f.EnterAmount("0.25"))
	assert.ErrorIs(t, f.SelectPaymentMethod("cash"), model.ErrUnsupportedPaymentMethod)
	require.NoError(t, f.SelectPaymentMethod("UPI"))
	assert.ErrorIs(t, f.EnterPaymentDetails("   "), ErrEmptyDetails)
	require.NoError(t, f.EnterPaymentDetails("x@upi"))

	assert.ErrorIs(t, f.SelectNetwork("TRC20"), model.ErrUnsupportedNetwork)
	assert.Equal(t, AwaitingNetwork, f.State())
	require.NoError(t, f.SelectNetwork("eth"))
}

func TestSessions(t *testing.T) {
	s := NewSessions()
	_, ok := s.Get(5)
	assert.False(t, ok)

	f := s.Start(5)
	require.NoError(t, f.SelectAsset("BTC"))

	got, ok := s.Get(5)
	require.True(t, ok)
	assert.Equal(t, AwaitingAmount, got.State())

	restarted := s.Start(5)
	assert.Equal(t, SelectingAsset, restarted.State())

	s.End(5)
	_, ok = s.Get(5)
	assert.False(t, ok)
}
