// Package units converts between decimal strings and on-chain integer amounts.
package units

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

const (
	EtherDecimals = 18
	GweiDecimals  = 9
)

// ParseUnits converts a decimal string like "1.5" into an integer scaled by
// 10^decimals. More fractional digits than decimals is an error.
func ParseUnits(value string, decimals int32) (*big.Int, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, fmt.Errorf("empty amount")
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("amount %q has more than %d decimals", value, decimals)
	}
	return scaled.BigInt(), nil
}

// ParseEther is ParseUnits with 18 decimals.
func ParseEther(value string) (*big.Int, error) {
	return ParseUnits(value, EtherDecimals)
}

// MustParseEther panics on malformed input. Only for constants.
func MustParseEther(value string) *big.Int {
	n, err := ParseEther(value)
	if err != nil {
		panic(err)
	}
	return n
}

// ParseGwei is ParseUnits with 9 decimals.
func ParseGwei(value string) (*big.Int, error) {
	return ParseUnits(value, GweiDecimals)
}

// MustParseGwei panics on malformed input. Only for constants.
func MustParseGwei(value string) *big.Int {
	n, err := ParseGwei(value)
	if err != nil {
		panic(err)
	}
	return n
}

// ToDecimal scales an integer amount down by 10^decimals.
func ToDecimal(amount *big.Int, decimals int32) decimal.Decimal {
	if amount == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(amount, -decimals)
}

// FormatEther renders wei as an ether decimal string. Whole values keep one
// fractional digit ("1.0"), matching the usual wallet display.
func FormatEther(wei *big.Int) string {
	s := ToDecimal(wei, EtherDecimals).String()
	if !strings.Contains(s, ".") {
		s += ".0"
	}
	return s
}
