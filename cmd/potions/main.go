// potions: wallet session client for the potions factory.
//
// Commands:
//
//	potions watch     keep the session open and log every state change
//	potions state     init once and print the session state as JSON
//	potions approve   approve the factory to spend collateral
//	potions mint      mint a potion (see potions mint --help)
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/gipsh/potions-go/internal/config"
	"github.com/gipsh/potions-go/internal/types"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	cmd, args := os.Args[1], os.Args[2:]

	cfg := config.Load()
	log.Printf("potions starting | cmd=%s rpc=%s", cmd, cfg.RPCURL)

	// Graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		log.Println("shutting down")
		cancel()
	}()

	a, err := newApp(ctx, cfg)
	if err != nil {
		log.Fatalf("[main] setup: %v", err)
	}

	switch cmd {
	case "watch":
		err = runWatch(ctx, a, args)
	case "state":
		err = runState(ctx, a, args)
	case "approve":
		err = runApprove(ctx, a, args)
	case "mint":
		err = runMint(ctx, a, args)
	default:
		usage()
		a.close()
		os.Exit(2)
	}

	a.close()
	cancel()
	if err != nil {
		log.Fatalf("[main] %s: %v", cmd, err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: potions <watch|state|approve|mint> [flags]")
}

// ── Commands ──────────────────────────────────────────────────────────────

func runWatch(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("watch", pflag.ExitOnError)
	login := fs.Bool("login", false, "prompt the wallet if the silent init does not connect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	states := make(chan types.SessionState, 32)
	sub := a.session.SubscribeState(states)
	defer sub.Unsubscribe()

	go func() {
		for {
			select {
			case st := <-states:
				logState(st)
			case <-sub.Err():
				return
			}
		}
	}()

	if err := a.connect(ctx, *login); err != nil {
		log.Printf("[main] %v", err)
	}
	<-ctx.Done()
	return nil
}

func runState(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("state", pflag.ExitOnError)
	login := fs.Bool("login", false, "prompt the wallet if the silent init does not connect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	connectErr := a.connect(ctx, *login)
	out, err := json.MarshalIndent(a.session.State(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	fmt.Println(string(out))
	return connectErr
}

func runApprove(ctx context.Context, a *app, args []string) error {
	fs := pflag.NewFlagSet("approve", pflag.ExitOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.connect(ctx, true); err != nil {
		return err
	}
	hash, err := a.session.ApproveSpending(ctx)
	if err != nil {
		return err
	}
	fmt.Println(hash.Hex())
	return nil
}

func runMint(ctx context.Context, a *app, args []string) error {
	var req types.MintRequest
	fs := pflag.NewFlagSet("mint", pflag.ExitOnError)
	fs.StringVar(&req.Asset, "asset", "", "asset key from the catalog (e.g. bitcoin)")
	fs.StringVar(&req.Expiry, "expiry", "", "expiry date, YYYY-MM-DD")
	fs.StringVar(&req.Strike, "strike", "", "strike price")
	fs.StringVar(&req.Price, "price", "", "current asset price")
	fs.StringVar(&req.Quantity, "quantity", "", "quantity to mint")
	fs.StringVar(&req.Premium, "premium", "", "premium per potion")
	if err := fs.Parse(args); err != nil {
		return err
	}
	for name, v := range map[string]string{
		"asset": req.Asset, "expiry": req.Expiry, "strike": req.Strike,
		"price": req.Price, "quantity": req.Quantity, "premium": req.Premium,
	} {
		if v == "" {
			return fmt.Errorf("--%s is required", name)
		}
	}

	if err := a.connect(ctx, true); err != nil {
		return err
	}
	hash, err := a.session.MintSyntheticPosition(ctx, req)
	if err != nil {
		return err
	}
	fmt.Println(hash.Hex())
	return nil
}

func logState(st types.SessionState) {
	addr := "-"
	if st.Address != nil {
		addr = st.Address.Hex()
	}
	log.Printf("[state] %s loading=%v address=%s name=%q balance=%s network=%s rates=%d potions=%d allowances=%d",
		st.Status, st.Loading, addr, st.Name, st.Balance, st.Network,
		len(st.ExchangeRates), len(st.Holdings), len(st.Allowances))
}
