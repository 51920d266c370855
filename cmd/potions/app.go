package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gipsh/potions-go/internal/assets"
	"github.com/gipsh/potions-go/internal/config"
	"github.com/gipsh/potions-go/internal/holdings"
	"github.com/gipsh/potions-go/internal/onchain"
	"github.com/gipsh/potions-go/internal/pricer"
	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/session"
	"github.com/gipsh/potions-go/internal/wallet"
)

// app owns every long-lived component for one CLI run.
type app struct {
	cfg     *config.Config
	session *session.Session
	events  *wallet.Events
	bridge  *wallet.Bridge
	metrics *http.Server
	closers []func()
}

func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{cfg: cfg, events: wallet.NewEvents()}
	catalog := assets.Default()

	opts := session.Options{
		Events: a.events,
		Rates:  pricer.NewPricer(cfg.QuoteHost, catalog),
		Retry: retry.Policy{
			MaxAttempts:    cfg.Retry.MaxAttempts,
			InitialBackoff: cfg.Retry.InitialBackoff,
			MaxBackoff:     cfg.Retry.MaxBackoff,
			Multiplier:     cfg.Retry.BackoffMultiplier,
		},
		Debug:        cfg.Debug(),
		LoginTimeout: cfg.LoginTimeout,
	}

	// ── Wallet + contracts ────────────────────────────────────────────────
	provider, err := a.dialProvider(ctx)
	if err != nil {
		a.close()
		return nil, err
	}
	if provider != nil {
		addrs := onchain.AddressesFromConfig(cfg.Contracts)
		backend := provider.Backend()
		opts.Provider = provider
		opts.Potions = onchain.NewPotions(backend, addrs, catalog, cfg.ExpiryOverride)
		opts.Allowances = onchain.NewAllowanceReader(backend, addrs.Collateral, addrs.Factory, addrs.PoolLP)
	}

	// ── Holdings ──────────────────────────────────────────────────────────
	var index *holdings.PostgresIndex
	switch {
	case cfg.HoldingsDSN != "":
		// The database may still be starting; connect under the read policy.
		err := retry.Do(ctx, opts.Retry, func(ctx context.Context) error {
			var err error
			index, err = holdings.NewPostgresIndex(ctx, cfg.HoldingsDSN)
			return err
		})
		if err != nil {
			a.close()
			return nil, fmt.Errorf("holdings index: %w", err)
		}
		a.closers = append(a.closers, index.Close)
		opts.Holdings = index
	case cfg.HoldingsSubgraphURL != "":
		opts.Holdings = holdings.NewSubgraph(cfg.HoldingsSubgraphURL)
	default:
		log.Println("[main] no holdings source configured")
	}

	a.session = session.New(opts)

	if cfg.WalletWSURL != "" {
		a.bridge = wallet.NewBridge(cfg.WalletWSURL, a.events)
		a.bridge.Start()
	}

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", a.session.Metrics().Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if index != nil {
				if err := index.Ping(r.Context()); err != nil {
					http.Error(w, "holdings index: "+err.Error(), http.StatusServiceUnavailable)
					return
				}
			}
			_, _ = w.Write([]byte("ok"))
		})
		a.metrics = &http.Server{Addr: cfg.MetricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := a.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Printf("[main] metrics server: %v", err)
			}
		}()
		log.Printf("[main] metrics on %s/metrics", cfg.MetricsAddr)
	}
	return a, nil
}

// dialProvider prefers an external wallet, then a local key. No wallet
// configured is not an error.
func (a *app) dialProvider(ctx context.Context) (wallet.Provider, error) {
	switch {
	case a.cfg.WalletRPCURL != "":
		p, err := wallet.DialRPCProvider(ctx, a.cfg.WalletRPCURL)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		log.Printf("[main] wallet: external (%s)", a.cfg.WalletRPCURL)
		return p, nil
	case a.cfg.PrivateKey != "":
		p, err := wallet.DialKeyProvider(ctx, a.cfg.RPCURL, a.cfg.PrivateKey, a.cfg.ChainID, a.cfg.WalletAutoAuthorize)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, p.Close)
		log.Printf("[main] wallet: local key (%s)", a.cfg.RPCURL)
		return p, nil
	default:
		log.Println("[main] wallet: none configured")
		return nil, nil
	}
}

// connect runs Init and, when prompt is set and the silent path did not
// connect, an explicit Login. Each step gets its own LoginTimeout.
func (a *app) connect(ctx context.Context, prompt bool) error {
	ictx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
	err := a.session.Init(ictx)
	cancel()
	if err != nil {
		return err
	}
	if a.session.State().Connected() || !prompt {
		return nil
	}

	lctx, cancel := context.WithTimeout(ctx, a.cfg.LoginTimeout)
	defer cancel()
	if err := a.session.Login(lctx); err != nil {
		return fmt.Errorf("connect wallet: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.bridge != nil {
		a.bridge.Stop()
	}
	if a.session != nil {
		a.session.Close()
	}
	if a.metrics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		_ = a.metrics.Shutdown(ctx)
		cancel()
	}
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
