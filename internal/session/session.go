// Package session holds the wallet session state and drives its lifecycle:
// silent init, explicit login, and reactions to wallet notifications.
package session

import (
	"context"
	"errors"
	"log"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/event"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
	"github.com/gipsh/potions-go/internal/units"
	"github.com/gipsh/potions-go/internal/wallet"
)

// ── Collaborators ─────────────────────────────────────────────────────────

type RateSource interface {
	FetchExchangeRates(ctx context.Context) (types.ExchangeRates, error)
}

type HoldingsSource interface {
	FetchHoldings(ctx context.Context, owner common.Address) ([]types.Holding, error)
}

type AllowanceSource interface {
	FetchAllowances(ctx context.Context, owner common.Address) (types.Allowances, error)
}

// Transactor submits the two write operations.
type Transactor interface {
	Approve(ctx context.Context, opts *bind.TransactOpts) (common.Hash, error)
	Mint(ctx context.Context, opts *bind.TransactOpts, req types.MintRequest) (common.Hash, error)
}

// Options wires a Session. Any collaborator may be nil: a nil Provider means
// no wallet, a nil Events means no notifications, and nil sources leave their
// fields at the default.
type Options struct {
	Provider   wallet.Provider
	Events     *wallet.Events
	Rates      RateSource
	Holdings   HoldingsSource
	Allowances AllowanceSource
	Potions    Transactor
	Retry      retry.Policy
	Metrics    *Metrics
	Debug      bool

	// LoginTimeout bounds each shared login and the Init run for each
	// account-change notification.
	LoginTimeout time.Duration
}

const defaultLoginTimeout = 30 * time.Second

// Session is one wallet session. All methods are safe for concurrent use.
type Session struct {
	provider     wallet.Provider
	rates        RateSource
	holdings     HoldingsSource
	allowances   AllowanceSource
	potions      Transactor
	retry        retry.Policy
	metrics      *Metrics
	debug        bool
	loginTimeout time.Duration

	mu       sync.Mutex
	state    types.SessionState
	inflight int

	// loginSeq numbers login attempts in start order; committedSeq is the
	// newest one whose result is in state. Older results are dropped.
	loginSeq     uint64
	committedSeq uint64

	logins singleflight.Group
	feed   event.Feed

	subs       []event.Subscription
	accountsCh chan wallet.AccountsChanged
	chainCh    chan wallet.ChainChanged
	baseCtx    context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	wg         sync.WaitGroup
	closeOnce  sync.Once
}

// New creates a session in the Uninitialized state and subscribes to wallet
// notifications when opts.Events is set.
func New(opts Options) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		provider:     opts.Provider,
		rates:        opts.Rates,
		holdings:     opts.Holdings,
		allowances:   opts.Allowances,
		potions:      opts.Potions,
		retry:        opts.Retry,
		metrics:      opts.Metrics,
		debug:        opts.Debug,
		loginTimeout: opts.LoginTimeout,
		state:        types.DefaultSessionState(),
		baseCtx:      ctx,
		cancel:       cancel,
		done:         make(chan struct{}),
	}
	if s.metrics == nil {
		s.metrics = NewMetrics()
	}
	if s.loginTimeout <= 0 {
		s.loginTimeout = defaultLoginTimeout
	}

	if opts.Events != nil {
		s.accountsCh = make(chan wallet.AccountsChanged, 16)
		s.chainCh = make(chan wallet.ChainChanged, 16)
		s.subs = append(s.subs,
			opts.Events.SubscribeAccountsChanged(s.accountsCh),
			opts.Events.SubscribeChainChanged(s.chainCh),
		)
		s.wg.Add(1)
		go s.run()
	}
	return s
}

// Close releases the notification subscriptions and stops the event loop.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		for _, sub := range s.subs {
			sub.Unsubscribe()
		}
		close(s.done)
		s.cancel()
		s.wg.Wait()
	})
}

// State returns a deep copy of the current state.
func (s *Session) State() types.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone()
}

// SubscribeState delivers a snapshot after every state change. Slow
// receivers stall the session, so ch should be buffered and drained.
func (s *Session) SubscribeState(ch chan<- types.SessionState) event.Subscription {
	return s.feed.Subscribe(ch)
}

func (s *Session) Metrics() *Metrics { return s.metrics }

// ── Lifecycle ─────────────────────────────────────────────────────────────

// Init refreshes exchange rates, then silently resolves the wallet account
// and logs in if one is authorized. Without a wallet, or without an
// authorized account, the session ends Disconnected. Only a failed login is
// returned; other failures are logged.
func (s *Session) Init(ctx context.Context) error {
	s.begin()
	defer s.settle(types.StatusDisconnected)

	s.refreshRates(ctx)

	if s.provider == nil {
		log.Println("[session] no wallet provider")
		s.disconnect()
		return nil
	}

	accounts, err := retry.Value(ctx, s.retry, s.provider.Accounts)
	if err != nil {
		log.Printf("[session] resolve accounts: %v", err)
		s.disconnect()
		return nil
	}
	if _, err := wallet.FirstAccount(accounts); err != nil {
		log.Println("[session] wallet not authorized")
		s.disconnect()
		return nil
	}

	// Not joined with a Login in flight: that one may hold an older account.
	return s.login(ctx)
}

// Login asks the wallet for authorization, then loads name, balance,
// network, holdings and allowances for the account and commits them in one
// update. On failure the state is left as it was and a *LoginError is
// returned.
//
// Concurrent calls share one login, which runs under the session's own
// LoginTimeout. Each caller waits only as long as its ctx allows; a caller
// that gives up does not cancel the login for the others.
func (s *Session) Login(ctx context.Context) error {
	if s.provider == nil {
		return &LoginError{Stage: StageAuthorize, Err: ErrNoProvider}
	}
	ch := s.logins.DoChan("login", func() (interface{}, error) {
		lctx, cancel := context.WithTimeout(s.baseCtx, s.loginTimeout)
		defer cancel()
		return nil, s.login(lctx)
	})
	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return &LoginError{Stage: StageAuthorize, Err: ctx.Err()}
	}
}

func (s *Session) login(ctx context.Context) error {
	fallback := s.begin()
	defer func() { s.settle(fallback) }()
	seq := s.nextLoginSeq()

	// The authorization prompt is never retried.
	accounts, err := s.provider.RequestAccounts(ctx)
	if err != nil {
		return s.loginFailed(StageAuthorize, err)
	}
	addr, err := wallet.FirstAccount(accounts)
	if err != nil {
		return s.loginFailed(StageAuthorize, err)
	}

	var (
		name       string
		balance    *big.Int
		network    types.Network
		holdings   = []types.Holding{}
		allowances = types.Allowances{}
	)

	g, gctx := errgroup.WithContext(ctx)
	fetchInto(gctx, g, s.retry, StageName, &name, func(ctx context.Context) (string, error) {
		return s.provider.LookupAddress(ctx, addr)
	})
	fetchInto(gctx, g, s.retry, StageBalance, &balance, func(ctx context.Context) (*big.Int, error) {
		return s.provider.BalanceAt(ctx, addr)
	})
	fetchInto(gctx, g, s.retry, StageNetwork, &network, s.provider.Network)
	if s.holdings != nil {
		fetchInto(gctx, g, s.retry, StageHoldings, &holdings, func(ctx context.Context) ([]types.Holding, error) {
			return s.holdings.FetchHoldings(ctx, addr)
		})
	}
	if s.allowances != nil {
		fetchInto(gctx, g, s.retry, StageAllowances, &allowances, func(ctx context.Context) (types.Allowances, error) {
			return s.allowances.FetchAllowances(ctx, addr)
		})
	}

	if err := g.Wait(); err != nil {
		var le *LoginError
		if errors.As(err, &le) {
			return s.loginFailed(le.Stage, le.Err)
		}
		return s.loginFailed(StageAuthorize, err)
	}

	if holdings == nil {
		holdings = []types.Holding{}
	}
	if allowances == nil {
		allowances = types.Allowances{}
	}
	if s.debug {
		log.Printf("[session] Your potions: %v", holdings)
		log.Printf("[session] Your allowances: %v", allowances)
	}

	committed := s.commit(seq, func(st *types.SessionState) {
		a := addr
		st.Address = &a
		st.Name = name
		st.Balance = units.FormatEther(balance)
		st.Network = network
		st.Holdings = holdings
		st.Allowances = allowances
		st.Status = types.StatusConnected
	})
	if !committed {
		// Superseded by a newer login or a disconnect.
		fallback = types.StatusDisconnected
		log.Printf("[session] login for %s superseded by a newer one, result dropped", addr.Hex())
		return nil
	}
	log.Printf("[session] connected %s on %s (balance %s)", addr.Hex(), network, units.FormatEther(balance))
	return nil
}

// fetchInto runs fn on g under the retry policy and stores the result in dst.
func fetchInto[T any](ctx context.Context, g *errgroup.Group, p retry.Policy, stage Stage, dst *T, fn func(ctx context.Context) (T, error)) {
	g.Go(func() error {
		v, err := retry.Value(ctx, p, fn)
		if err != nil {
			return &LoginError{Stage: stage, Err: err}
		}
		*dst = v
		return nil
	})
}

func (s *Session) loginFailed(stage Stage, err error) error {
	le := &LoginError{Stage: stage, Err: err}
	log.Printf("[session] %v", le)
	s.metrics.incReadFailure("login_" + string(stage))
	return le
}

// ── Notifications ─────────────────────────────────────────────────────────

func (s *Session) run() {
	defer s.wg.Done()
	for {
		select {
		case ev := <-s.accountsCh:
			log.Printf("[session] accounts changed (%d), re-initializing", len(ev.Accounts))
			ctx, cancel := context.WithTimeout(s.baseCtx, s.loginTimeout)
			if err := s.Init(ctx); err != nil {
				log.Printf("[session] init after account change: %v", err)
			}
			cancel()
		case ev := <-s.chainCh:
			n := wallet.NetworkByChainID(ev.ChainID)
			log.Printf("[session] network changed: %s", n)
			s.update(func(st *types.SessionState) { st.Network = n })
		case <-s.done:
			return
		}
	}
}

// ── State helpers ─────────────────────────────────────────────────────────

// begin marks one more operation in flight and returns the status to fall
// back to if the operation ends without an address.
func (s *Session) begin() types.Status {
	s.mu.Lock()
	prev := s.state.Status
	s.inflight++
	s.state.Loading = true
	s.state.Status = types.StatusLoading
	snap := s.state.Clone()
	s.mu.Unlock()

	s.metrics.setLoading(true)
	if prev != types.StatusLoading {
		s.metrics.incTransition(types.StatusLoading.String())
	}
	s.publish(snap)

	if prev == types.StatusLoading {
		return types.StatusDisconnected
	}
	return prev
}

// settle ends one in-flight operation. When none remain, loading clears and
// the status follows the address.
func (s *Session) settle(fallback types.Status) {
	s.mu.Lock()
	s.inflight--
	if s.inflight > 0 {
		s.mu.Unlock()
		return
	}
	s.state.Loading = false
	if s.state.Address != nil {
		s.state.Status = types.StatusConnected
	} else {
		s.state.Status = fallback
	}
	status := s.state.Status
	snap := s.state.Clone()
	s.mu.Unlock()

	s.metrics.setLoading(false)
	s.metrics.incTransition(status.String())
	s.publish(snap)
}

func (s *Session) nextLoginSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loginSeq++
	return s.loginSeq
}

// commit applies fn unless a login that started after seq already
// committed, and reports whether it applied.
func (s *Session) commit(seq uint64, fn func(st *types.SessionState)) bool {
	s.mu.Lock()
	if seq < s.committedSeq {
		s.mu.Unlock()
		return false
	}
	s.committedSeq = seq
	fn(&s.state)
	snap := s.state.Clone()
	s.mu.Unlock()
	s.publish(snap)
	return true
}

func (s *Session) update(fn func(st *types.SessionState)) {
	s.mu.Lock()
	fn(&s.state)
	snap := s.state.Clone()
	s.mu.Unlock()
	s.publish(snap)
}

func (s *Session) publish(snap types.SessionState) {
	s.feed.Send(snap)
}

// disconnect clears the address-scoped fields. It counts as the newest
// login so that no older login in flight can reconnect afterwards.
func (s *Session) disconnect() {
	s.commit(s.nextLoginSeq(), func(st *types.SessionState) {
		st.Address = nil
		st.Name = ""
		st.Balance = "0"
		st.Holdings = []types.Holding{}
		st.Allowances = types.Allowances{}
	})
}

func (s *Session) refreshRates(ctx context.Context) {
	if s.rates == nil {
		return
	}
	rates, err := retry.Value(ctx, s.retry, s.rates.FetchExchangeRates)
	if err != nil {
		log.Printf("[session] exchange rates: %v", err)
		s.metrics.incReadFailure("rates")
		return
	}
	s.update(func(st *types.SessionState) { st.ExchangeRates = rates })
}
