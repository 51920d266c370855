package session

import (
	"errors"
	"fmt"

	"github.com/gipsh/potions-go/internal/wallet"
)

var (
	// ErrNotAuthorized is returned (wrapped in a LoginError) when the wallet
	// grants no accounts.
	ErrNotAuthorized = wallet.ErrNotAuthorized
	// ErrNoProvider is returned when no wallet provider is configured.
	ErrNoProvider = errors.New("no wallet provider")
	// ErrNotConnected is returned by transaction operations before a
	// successful login.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrNoContracts is returned when transaction operations are not wired.
	ErrNoContracts = errors.New("contracts not configured")
)

// Stage names the login step that failed.
type Stage string

const (
	StageAuthorize  Stage = "authorize"
	StageName       Stage = "name"
	StageBalance    Stage = "balance"
	StageNetwork    Stage = "network"
	StageHoldings   Stage = "holdings"
	StageAllowances Stage = "allowances"
)

// LoginError reports a failed login. The session state is unchanged when
// one is returned.
type LoginError struct {
	Stage Stage
	Err   error
}

func (e *LoginError) Error() string {
	return fmt.Sprintf("login failed at %s: %v", e.Stage, e.Err)
}

func (e *LoginError) Unwrap() error { return e.Err }
