package wallet

import (
	"testing"

	"cryptoswap/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	ethAddr  = "0x4d20892695634a00fcb00100c065da914c99ce7d"
	bscAddr  = "0x334A76871A0FaA559B1b2183679C4A00cd728557"
	btcAddr  = "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNa"
	tronAddr = "TR7NHqjeKQxGTCi8q8ZY4pL8otSzgjLj6t"
	tonAddr  = "EQCD39VS5jcptHL8vMjEXrzGaRcCVYto7HUn4bpAOg8xqB2N"
)

func TestDirectoryResolve(t *testing.T) {
	d, err := NewDirectory(map[string]map[string]string{
		"USDT": {"TRC20": tronAddr, "BSC": bscAddr, "TON": tonAddr},
		"btc":  {"btc": btcAddr},
		"ETH":  {"ETH": " " + ethAddr + " "},
	})
	require.NoError(t, err)

	addr, err := d.Resolve(model.AssetUSDT, model.NetworkBSC)
	require.NoError(t, err)
	assert.Equal(t, bscAddr, addr)

	addr, err = d.Resolve(model.AssetETH, model.NetworkETH)
	require.NoError(t, err)
	assert.Equal(t, ethAddr, addr)

	_, err = d.Resolve(model.AssetUSDT, model.NetworkTRON)
	assert.ErrorIs(t, err, ErrAddressNotConfigured)

	entries := d.Entries()
	assert.Len(t, entries[model.AssetUSDT], 3)
	assert.Equal(t, btcAddr, entries[model.AssetBTC][model.NetworkBTC])
}

func TestDirectoryRejectsInvalidEntries(t *testing.T) {
	cases := map[string]map[string]map[string]string{
		"unknown asset":       {"DOGE": {"DOGE": ethAddr}},
		"network not allowed": {"BTC": {"ETH": ethAddr}},
		"bad evm address":     {"ETH": {"ETH": "0x1234"}},
		"bad tron address":    {"USDT": {"TRC20": "TXJgC8AMDWifSho1jRZAurWSprLEYsFMtQ"}},
		"bad btc address":     {"BTC": {"BTC": "1A1zP1eP5QGefi2DMPTfTL5SLmv7DivfNb"}},
		"bad ton address":     {"USDT": {"TON": "EQ-not-a-ton-address"}},
		"empty address":       {"ETH": {"ETH": ""}},
	}
	for name, entries := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewDirectory(entries)
			assert.Error(t, err)
		})
	}
}

func TestValidateAddress(t *testing.T) {
	assert.NoError(t, ValidateAddress(model.NetworkETH, ethAddr))
	assert.NoError(t, ValidateAddress(model.NetworkBSC, bscAddr))
	assert.NoError(t, ValidateAddress(model.NetworkTRON, tronAddr))
	assert.NoError(t, ValidateAddress(model.NetworkBTC, btcAddr))
	assert.NoError(t, ValidateAddress(model.NetworkTON, tonAddr))

	assert.Error(t, ValidateAddress(model.NetworkBTC, ethAddr))
	assert.Error(t, ValidateAddress(model.NetworkTRC20, ethAddr))
	assert.Error(t, ValidateAddress(model.Network("SOL"), ethAddr))
}
