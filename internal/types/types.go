// Package types defines the shared domain types for the potions session.
package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// ── Network ───────────────────────────────────────────────────────────────

// Network identifies the chain the wallet is connected to.
type Network struct {
	ChainID int64  `json:"chainId"`
	Name    string `json:"name"`
}

// String returns a human-readable summary.
func (n Network) String() string {
	return fmt.Sprintf("%s (%d)", n.Name, n.ChainID)
}

// ── Holdings ──────────────────────────────────────────────────────────────

// Holding is a potion position owned by the session address, as reported by
// the holdings lookup.
type Holding struct {
	ID           string `json:"id"`
	TokenAddress string `json:"tokenAddress"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	AssetClass   string `json:"assetClass"`
	Expiry       int64  `json:"expiry"` // unix seconds
	StrikePrice  string `json:"strikePrice"`
	Quantity     string `json:"quantity"`
}

// String returns a human-readable summary.
func (h Holding) String() string {
	return fmt.Sprintf("Holding(%s | %s x%s @ %s)", h.Symbol, h.Name, h.Quantity, h.StrikePrice)
}

// ── Rates / allowances ───────────────────────────────────────────────────

// ExchangeRates maps an asset symbol to its USD rate.
type ExchangeRates map[string]decimal.Decimal

// Allowances maps a spender to the amount it may pull, in token units.
type Allowances map[common.Address]decimal.Decimal

// Clone returns a copy that shares no map storage with r.
func (r ExchangeRates) Clone() ExchangeRates {
	if r == nil {
		return ExchangeRates{}
	}
	out := make(ExchangeRates, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Clone returns a copy that shares no map storage with a.
func (a Allowances) Clone() Allowances {
	if a == nil {
		return Allowances{}
	}
	out := make(Allowances, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

// ── Session ───────────────────────────────────────────────────────────────

// Status is the session state machine state.
type Status int

const (
	StatusUninitialized Status = iota
	StatusLoading
	StatusConnected
	StatusDisconnected
)

func (s Status) String() string {
	switch s {
	case StatusUninitialized:
		return "UNINITIALIZED"
	case StatusLoading:
		return "LOADING"
	case StatusConnected:
		return "CONNECTED"
	case StatusDisconnected:
		return "DISCONNECTED"
	default:
		return "UNKNOWN"
	}
}

// MarshalText renders the status by name in JSON output.
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// SessionState is a snapshot of the wallet session.
// Address is nil unless a wallet connection succeeded in this session.
type SessionState struct {
	Status        Status          `json:"status"`
	Loading       bool            `json:"loading"`
	Address       *common.Address `json:"address"`
	Name          string          `json:"name"`
	Balance       string          `json:"balance"` // ether, decimal string
	Network       Network         `json:"network"`
	ExchangeRates ExchangeRates   `json:"exchangeRates"`
	Holdings      []Holding       `json:"holdings"`
	Allowances    Allowances      `json:"allowances"`
}

// DefaultSessionState is the state at process start.
func DefaultSessionState() SessionState {
	return SessionState{
		Status:        StatusUninitialized,
		Balance:       "0",
		ExchangeRates: ExchangeRates{},
		Holdings:      []Holding{},
		Allowances:    Allowances{},
	}
}

// Clone deep-copies the state so callers can hold it without locking.
func (s SessionState) Clone() SessionState {
	out := s
	if s.Address != nil {
		addr := *s.Address
		out.Address = &addr
	}
	out.ExchangeRates = s.ExchangeRates.Clone()
	out.Allowances = s.Allowances.Clone()
	out.Holdings = append([]Holding{}, s.Holdings...)
	return out
}

// Connected reports whether a wallet address is resolved.
func (s SessionState) Connected() bool {
	return s.Address != nil
}

// ── Mint request ──────────────────────────────────────────────────────────

// MintRequest carries the caller-supplied mint parameters, all as strings
// the way they arrive from a form.
type MintRequest struct {
	Asset    string `json:"asset"`
	Expiry   string `json:"expiry"` // YYYY-MM-DD
	Strike   string `json:"strike"`
	Price    string `json:"price"`
	Quantity string `json:"quantity"`
	Premium  string `json:"premium"`
}
