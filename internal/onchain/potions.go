package onchain

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"

	"github.com/gipsh/potions-go/internal/assets"
	"github.com/gipsh/potions-go/internal/config"
	"github.com/gipsh/potions-go/internal/types"
	"github.com/gipsh/potions-go/internal/units"
)

// ErrReverted is returned when a submitted transaction is mined with a
// failed status.
var ErrReverted = errors.New("transaction reverted")

const (
	MintGasLimit      = 7_000_000
	PriceFeedID       = "UMATEST"
	expiryDateLayout  = "2006-01-02"
	livenessSeconds   = 1
	approvalEtherUnit = "1000000000"
)

var (
	// ApprovalAmount is the fixed allowance granted to the factory:
	// 1e9 tokens in 18-decimal units.
	ApprovalAmount = units.MustParseEther(approvalEtherUnit)
	// MintGasPrice is the fixed 20 gwei mint gas price.
	MintGasPrice = units.MustParseGwei("20")

	collateralRequirement = units.MustParseEther("1.0")
	disputePct            = units.MustParseEther("0.1")
)

// Addresses are the fixed deployment addresses the operations use.
type Addresses struct {
	Factory      common.Address
	Collateral   common.Address
	Finder       common.Address
	TokenFactory common.Address
	Timer        common.Address
	PoolLP       common.Address
}

// AddressesFromConfig converts configured hex strings. Malformed or empty
// values become the zero address.
func AddressesFromConfig(c config.Contracts) Addresses {
	return Addresses{
		Factory:      common.HexToAddress(c.Factory),
		Collateral:   common.HexToAddress(c.DAI),
		Finder:       common.HexToAddress(c.Finder),
		TokenFactory: common.HexToAddress(c.TokenFactory),
		Timer:        common.HexToAddress(c.Timer),
		PoolLP:       common.HexToAddress(c.PoolLP),
	}
}

// contract is the subset of *bind.BoundContract used here.
type contract interface {
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*ethtypes.Transaction, error)
}

// Backend is what Potions needs from the chain connection.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Potions submits approvals and mints for one deployment.
type Potions struct {
	addrs          Addresses
	catalog        assets.Catalog
	expiryOverride string

	collateral contract
	factory    contract
	waitMined  func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error)
}

// NewPotions binds the collateral token and factory on backend.
// expiryOverride is a unix timestamp that replaces the derived expiry; ""
// or "off" disables it.
func NewPotions(backend Backend, addrs Addresses, catalog assets.Catalog, expiryOverride string) *Potions {
	return &Potions{
		addrs:          addrs,
		catalog:        catalog,
		expiryOverride: expiryOverride,
		collateral:     bind.NewBoundContract(addrs.Collateral, erc20ABI, backend, backend, backend),
		factory:        bind.NewBoundContract(addrs.Factory, factoryABI, backend, backend, backend),
		waitMined: func(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Receipt, error) {
			return bind.WaitMined(ctx, backend, tx)
		},
	}
}

// Approve grants the factory ApprovalAmount of the collateral token and
// waits for one confirmation.
func (p *Potions) Approve(ctx context.Context, opts *bind.TransactOpts) (common.Hash, error) {
	tx, err := p.collateral.Transact(opts, "approve", p.addrs.Factory, ApprovalAmount)
	if err != nil {
		return common.Hash{}, fmt.Errorf("approve: %w", err)
	}
	log.Printf("[onchain] approve submitted: %s", tx.Hash().Hex())
	return tx.Hash(), p.confirm(ctx, "approve", tx)
}

// Mint builds the potion parameters from req and calls writeMintPotion with
// the fixed gas settings.
func (p *Potions) Mint(ctx context.Context, opts *bind.TransactOpts, req types.MintRequest) (common.Hash, error) {
	call, err := p.BuildMint(req)
	if err != nil {
		return common.Hash{}, err
	}

	opts.GasLimit = MintGasLimit
	opts.GasPrice = new(big.Int).Set(MintGasPrice)

	tx, err := p.factory.Transact(opts, "writeMintPotion", call.Params, call.Pool, call.Quantity, call.Premium)
	if err != nil {
		return common.Hash{}, fmt.Errorf("writeMintPotion: %w", err)
	}
	log.Printf("[onchain] mint submitted: %s (%s)", tx.Hash().Hex(), call.Params.SyntheticName)
	return tx.Hash(), p.confirm(ctx, "mint", tx)
}

func (p *Potions) confirm(ctx context.Context, label string, tx *ethtypes.Transaction) error {
	receipt, err := p.waitMined(ctx, tx)
	if err != nil {
		return fmt.Errorf("%s: wait for %s: %w", label, tx.Hash().Hex(), err)
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("%s %s: %w", label, tx.Hash().Hex(), ErrReverted)
	}
	log.Printf("[onchain] %s confirmed: %s block=%v", label, tx.Hash().Hex(), receipt.BlockNumber)
	return nil
}

// ── Mint parameters ───────────────────────────────────────────────────────

// MintCall is the full argument list of writeMintPotion.
type MintCall struct {
	Params   MintParams
	Pool     common.Address
	Quantity FixedPoint
	Premium  FixedPoint
}

// BuildMint validates req and assembles the factory call.
func (p *Potions) BuildMint(req types.MintRequest) (MintCall, error) {
	ticker, err := p.catalog.Ticker(req.Asset)
	if err != nil {
		return MintCall{}, err
	}
	expiry, err := p.expirationTimestamp(req.Expiry)
	if err != nil {
		return MintCall{}, err
	}

	amounts := make(map[string]*big.Int, 4)
	for _, f := range []struct{ name, value string }{
		{"strike", req.Strike},
		{"price", req.Price},
		{"quantity", req.Quantity},
		{"premium", req.Premium},
	} {
		v, err := units.ParseEther(f.value)
		if err != nil {
			return MintCall{}, fmt.Errorf("%s: %w", f.name, err)
		}
		amounts[f.name] = v
	}

	return MintCall{
		Params: MintParams{
			ExpirationTimestamp:      expiry,
			WithdrawalLiveness:       big.NewInt(livenessSeconds),
			CollateralAddress:        p.addrs.Collateral,
			FinderAddress:            p.addrs.Finder,
			TokenFactoryAddress:      p.addrs.TokenFactory,
			PriceFeedIdentifier:      Identifier(PriceFeedID),
			SyntheticName:            fmt.Sprintf("%s Potion %s", ticker, req.Expiry),
			SyntheticSymbol:          ticker + "POT",
			LiquidationLiveness:      big.NewInt(livenessSeconds),
			CollateralRequirement:    FixedPoint{RawValue: new(big.Int).Set(collateralRequirement)},
			DisputeBondPct:           FixedPoint{RawValue: new(big.Int).Set(disputePct)},
			SponsorDisputeRewardPct:  FixedPoint{RawValue: new(big.Int).Set(disputePct)},
			DisputerDisputeRewardPct: FixedPoint{RawValue: new(big.Int).Set(disputePct)},
			StrikePrice:              FixedPoint{RawValue: amounts["strike"]},
			AssetPrice:               FixedPoint{RawValue: amounts["price"]},
			AssetClass:               ticker,
			TimerAddress:             p.addrs.Timer,
		},
		Pool:     p.addrs.PoolLP,
		Quantity: FixedPoint{RawValue: amounts["quantity"]},
		Premium:  FixedPoint{RawValue: amounts["premium"]},
	}, nil
}

// expirationTimestamp derives midnight UTC of a YYYY-MM-DD date, then applies
// the configured override.
func (p *Potions) expirationTimestamp(expiry string) (*big.Int, error) {
	day, err := time.Parse(expiryDateLayout, strings.TrimSpace(expiry))
	if err != nil {
		return nil, fmt.Errorf("invalid expiry %q: want YYYY-MM-DD", expiry)
	}
	derived := big.NewInt(day.UTC().Unix())

	override := strings.TrimSpace(p.expiryOverride)
	if override == "" || strings.EqualFold(override, config.ExpiryOverrideOff) {
		return derived, nil
	}
	ts, err := strconv.ParseInt(override, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expiry override %q: %w", override, err)
	}
	return big.NewInt(ts), nil
}
