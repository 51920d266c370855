package session

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
	"github.com/gipsh/potions-go/internal/wallet"
)

var (
	alice = common.HexToAddress("0x00000000000000000000000000000000000a11ce")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")

	errBoom = errors.New("boom")

	fastRetry = retry.Policy{MaxAttempts: 2, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond, Multiplier: 1}
)

// fakeProvider is a scriptable wallet.
type fakeProvider struct {
	mu         sync.Mutex
	authorized bool
	account    common.Address
	name       string
	balance    *big.Int
	chainID    int64

	requestErr    error
	balanceErr    error
	balanceFailsN int
	networkErr    error
	requestGate   chan struct{}
	signerErr     error

	// balanceGate holds BalanceAt for balanceGateFor until closed.
	balanceGate    chan struct{}
	balanceGateFor common.Address

	accountsCalls atomic.Int32
	requestCalls  atomic.Int32
	balanceCalls  atomic.Int32
}

func newFakeProvider(authorized bool) *fakeProvider {
	return &fakeProvider{
		authorized: authorized,
		account:    alice,
		name:       "alice.eth",
		balance:    big.NewInt(1_500_000_000_000_000_000),
		chainID:    1,
	}
}

func (p *fakeProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.accountsCalls.Add(1)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{p.account}, nil
}

func (p *fakeProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	p.requestCalls.Add(1)
	if p.requestGate != nil {
		select {
		case <-p.requestGate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.requestErr != nil {
		return nil, p.requestErr
	}
	p.authorized = true
	return []common.Address{p.account}, nil
}

func (p *fakeProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	n := p.balanceCalls.Add(1)
	p.mu.Lock()
	gate := p.balanceGate
	gated := gate != nil && account == p.balanceGateFor
	p.mu.Unlock()
	if gated {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.balanceErr != nil {
		return nil, p.balanceErr
	}
	if int(n) <= p.balanceFailsN {
		return nil, errBoom
	}
	return p.balance, nil
}

func (p *fakeProvider) LookupAddress(ctx context.Context, account common.Address) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.name, nil
}

func (p *fakeProvider) Network(ctx context.Context) (types.Network, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.networkErr != nil {
		return types.Network{}, p.networkErr
	}
	return wallet.NetworkByChainID(p.chainID), nil
}

func (p *fakeProvider) Signer(ctx context.Context) (wallet.Signer, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signerErr != nil {
		return nil, p.signerErr
	}
	return fakeSigner{addr: p.account}, nil
}

func (p *fakeProvider) Backend() wallet.Backend { return nil }

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

type fakeSigner struct{ addr common.Address }

func (s fakeSigner) Address() common.Address { return s.addr }

func (s fakeSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{From: s.addr, Context: ctx}, nil
}

type fakeRates struct {
	mu    sync.Mutex
	rates types.ExchangeRates
	err   error
	calls atomic.Int32
}

func (f *fakeRates) FetchExchangeRates(ctx context.Context) (types.ExchangeRates, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return f.rates.Clone(), nil
}

func (f *fakeRates) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

type fakeHoldings struct {
	holdings []types.Holding
	err      error
}

func (f *fakeHoldings) FetchHoldings(ctx context.Context, owner common.Address) ([]types.Holding, error) {
	if f.err != nil {
		return nil, f.err
	}
	return append([]types.Holding{}, f.holdings...), nil
}

type fakeAllowances struct {
	amount decimal.Decimal
	calls  atomic.Int32
}

func (f *fakeAllowances) FetchAllowances(ctx context.Context, owner common.Address) (types.Allowances, error) {
	f.calls.Add(1)
	return types.Allowances{bob: f.amount}, nil
}

type fakeTransactor struct {
	mu      sync.Mutex
	approve int
	mints   []types.MintRequest
	err     error
}

func (f *fakeTransactor) Approve(ctx context.Context, opts *bind.TransactOpts) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.approve++
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0xa1"), nil
}

func (f *fakeTransactor) Mint(ctx context.Context, opts *bind.TransactOpts, req types.MintRequest) (common.Hash, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mints = append(f.mints, req)
	if f.err != nil {
		return common.Hash{}, f.err
	}
	return common.HexToHash("0xb2"), nil
}

type fixture struct {
	provider   *fakeProvider
	rates      *fakeRates
	holdings   *fakeHoldings
	allowances *fakeAllowances
	potions    *fakeTransactor
	events     *wallet.Events
}

func newFixture(authorized bool) *fixture {
	return &fixture{
		provider: newFakeProvider(authorized),
		rates: &fakeRates{rates: types.ExchangeRates{
			"BTC": decimal.NewFromInt(30000),
			"ETH": decimal.NewFromInt(2000),
		}},
		holdings: &fakeHoldings{holdings: []types.Holding{
			{ID: "p1", Symbol: "BTCPOT", AssetClass: "BTC", Expiry: 1685577600, StrikePrice: "100", Quantity: "10"},
		}},
		allowances: &fakeAllowances{amount: decimal.NewFromInt(1_000_000_000)},
		potions:    &fakeTransactor{},
		events:     wallet.NewEvents(),
	}
}

func (f *fixture) options() Options {
	return Options{
		Provider:   f.provider,
		Events:     f.events,
		Rates:      f.rates,
		Holdings:   f.holdings,
		Allowances: f.allowances,
		Potions:    f.potions,
		Retry:      fastRetry,
	}
}
