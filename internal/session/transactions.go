package session

import (
	"context"
	"fmt"
	"log"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
)

// ApproveSpending grants the factory the fixed collateral allowance through
// the connected wallet and waits for one confirmation. Allowances are
// reloaded afterwards on a best-effort basis.
func (s *Session) ApproveSpending(ctx context.Context) (common.Hash, error) {
	hash, err := s.submit(ctx, "approve", func(opts *bind.TransactOpts) (common.Hash, error) {
		return s.potions.Approve(ctx, opts)
	})
	if err != nil {
		return hash, err
	}
	s.refreshAllowances(ctx)
	return hash, nil
}

// MintSyntheticPosition mints a potion with the given parameters through the
// connected wallet and waits for one confirmation.
func (s *Session) MintSyntheticPosition(ctx context.Context, req types.MintRequest) (common.Hash, error) {
	return s.submit(ctx, "mint", func(opts *bind.TransactOpts) (common.Hash, error) {
		return s.potions.Mint(ctx, opts, req)
	})
}

// submit never retries: a write either goes through once or the error is
// returned as is.
func (s *Session) submit(ctx context.Context, op string, send func(opts *bind.TransactOpts) (common.Hash, error)) (common.Hash, error) {
	opts, err := s.transactOpts(ctx)
	if err != nil {
		s.metrics.incTransaction(op, err)
		return common.Hash{}, err
	}
	hash, err := send(opts)
	s.metrics.incTransaction(op, err)
	if err != nil {
		log.Printf("[session] %s failed: %v", op, err)
		return hash, err
	}
	log.Printf("[session] %s confirmed: %s", op, hash.Hex())
	return hash, nil
}

func (s *Session) transactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	if s.potions == nil {
		return nil, ErrNoContracts
	}
	if s.provider == nil {
		return nil, ErrNoProvider
	}
	if !s.State().Connected() {
		return nil, ErrNotConnected
	}
	signer, err := s.provider.Signer(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	opts, err := signer.TransactOpts(ctx)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return opts, nil
}

func (s *Session) refreshAllowances(ctx context.Context) {
	st := s.State()
	if s.allowances == nil || st.Address == nil {
		return
	}
	owner := *st.Address
	allowances, err := retry.Value(ctx, s.retry, func(ctx context.Context) (types.Allowances, error) {
		return s.allowances.FetchAllowances(ctx, owner)
	})
	if err != nil {
		log.Printf("[session] reload allowances: %v", err)
		s.metrics.incReadFailure("allowances")
		return
	}
	s.update(func(st *types.SessionState) {
		if st.Address != nil && *st.Address == owner {
			st.Allowances = allowances
		}
	})
}
