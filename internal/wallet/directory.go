// Package wallet maps an (asset, network) pair to the address users send
// funds to.
package wallet

import (
	"errors"
	"fmt"
	"strings"

	"cryptoswap/internal/model"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/common"
	tronaddress "github.com/fbsobreira/gotron-sdk/pkg/address"
	tonaddress "github.com/xssnick/tonutils-go/address"
)

var ErrAddressNotConfigured = errors.New("address not configured")

type key struct {
	asset   model.Asset
	network model.Network
}

// Directory is immutable after construction
type Directory struct {
	addresses map[key]string
}

// NewDirectory validates every entry against its chain's address format.
// The input is keyed asset -> network -> address as in the JSON config.
func NewDirectory(entries map[string]map[string]string) (*Directory, error) {
	d := &Directory{addresses: make(map[key]string)}

	var errs []error
	for rawAsset, networks := range entries {
		asset, err := model.ParseAsset(rawAsset)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for rawNetwork, addr := range networks {
			network, err := model.ParseNetwork(asset, rawNetwork)
			if err != nil {
				errs = append(errs, err)
				continue
			}
			addr = strings.TrimSpace(addr)
			if err := ValidateAddress(network, addr); err != nil {
				errs = append(errs, fmt.Errorf("%s/%s: %w", asset, network, err))
				continue
			}
			d.addresses[key{asset, network}] = addr
		}
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return d, nil
}

// Resolve returns the receiving address for asset on network
func (d *Directory) Resolve(asset model.Asset, network model.Network) (string, error) {
	addr, ok := d.addresses[key{asset, network}]
	if !ok {
		return "", fmt.Errorf("%w: %s on %s", ErrAddressNotConfigured, asset, network)
	}
	return addr, nil
}

// Entries lists configured addresses for the admin wallet view
func (d *Directory) Entries() map[model.Asset]map[model.Network]string {
	out := make(map[model.Asset]map[model.Network]string)
	for k, addr := range d.addresses {
		if out[k.asset] == nil {
			out[k.asset] = make(map[model.Network]string)
		}
		out[k.asset][k.network] = addr
	}
	return out
}

// ValidateAddress checks addr is well formed for network
func ValidateAddress(network model.Network, addr string) error {
	if addr == "" {
		return errors.New("empty address")
	}

	switch network {
	case model.NetworkETH, model.NetworkBSC:
		if !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid EVM address %q", addr)
		}
	case model.NetworkTRC20, model.NetworkTRON:
		if _, err := tronaddress.Base58ToAddress(addr); err != nil {
			return fmt.Errorf("invalid TRON address %q: %w", addr, err)
		}
	case model.NetworkBTC:
		if _, err := btcutil.DecodeAddress(addr, &chaincfg.MainNetParams); err != nil {
			return fmt.Errorf("invalid BTC address %q: %w", addr, err)
		}
	case model.NetworkTON:
		if _, err := tonaddress.ParseAddr(addr); err != nil {
			return fmt.Errorf("invalid TON address %q: %w", addr, err)
		}
	default:
		return fmt.Errorf("no validator for network %s", network)
	}
	return nil
}
