package config

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// Amount parses a decimal base-unit amount. An empty string is nil.
func Amount(s string) (*uint256.Int, error) {
	if s == "" {
		return nil, nil
	}
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return nil, fmt.Errorf("config: amount %q: %w", s, err)
	}
	return v, nil
}

// Address parses a hex account. An empty string is the zero address.
func Address(s string) (common.Address, error) {
	if s == "" {
		return common.Address{}, nil
	}
	if !common.IsHexAddress(s) {
		return common.Address{}, fmt.Errorf("config: %q is not an address", s)
	}
	return common.HexToAddress(s), nil
}

// Balances parses a genesis table. Keys that spell the same address in
// different case are summed.
func Balances(m map[string]string) (map[common.Address]*uint256.Int, error) {
	out := make(map[common.Address]*uint256.Int, len(m))
	for _, k := range sortedKeys(m) {
		addr, err := Address(k)
		if err != nil {
			return nil, err
		}
		v, err := Amount(m[k])
		if err != nil {
			return nil, err
		}
		if v == nil {
			continue
		}
		if prev, ok := out[addr]; ok {
			sum, overflow := new(uint256.Int).AddOverflow(prev, v)
			if overflow {
				return nil, fmt.Errorf("config: genesis balance of %s overflows", addr.Hex())
			}
			v = sum
		}
		out[addr] = v
	}
	return out, nil
}
