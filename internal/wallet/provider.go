// Package wallet is the boundary to the user's wallet: account resolution,
// balances, network info, ENS names, signing, and change notifications.
package wallet

import (
	"context"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/potions-go/internal/types"
)

var (
	// ErrNotAuthorized is returned when the wallet has not granted access to
	// any account.
	ErrNotAuthorized = errors.New("wallet not authorized")
	// ErrUserRejected is returned when the user declines a request.
	ErrUserRejected = errors.New("user rejected request")
)

// Backend is the chain connection contracts are bound to.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Signer is an authorization-capable handle bound to one account.
type Signer interface {
	Address() common.Address
	// TransactOpts returns fresh options for one transaction.
	TransactOpts(ctx context.Context) (*bind.TransactOpts, error)
}

// Provider is the wallet as seen by the session.
type Provider interface {
	// Accounts resolves authorized accounts without prompting the user.
	Accounts(ctx context.Context) ([]common.Address, error)
	// RequestAccounts asks the user to authorize access.
	RequestAccounts(ctx context.Context) ([]common.Address, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
	// LookupAddress returns the ENS primary name, or "" if there is none.
	LookupAddress(ctx context.Context, account common.Address) (string, error)
	Network(ctx context.Context) (types.Network, error)
	Signer(ctx context.Context) (Signer, error)
	Backend() Backend
}

// FirstAccount returns the first account or ErrNotAuthorized.
func FirstAccount(accounts []common.Address) (common.Address, error) {
	if len(accounts) == 0 || accounts[0] == (common.Address{}) {
		return common.Address{}, ErrNotAuthorized
	}
	return accounts[0], nil
}
