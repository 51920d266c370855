// Package onchain builds and submits the collateral approval and the potion
// mint through go-ethereum bound contracts, and reads token allowances.
package onchain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// ── ABIs ─────────────────────────────────────────────────────────────────

const erc20ABIJSON = `[{
	"name":"approve",
	"type":"function",
	"stateMutability":"nonpayable",
	"inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],
	"outputs":[{"name":"","type":"bool"}]
},{
	"name":"allowance",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],
	"outputs":[{"name":"","type":"uint256"}]
}]`

const fixedPoint = `{"name":"%s","type":"tuple","components":[{"name":"rawValue","type":"uint256"}]}`

var factoryABIJSON = `[{
	"name":"writeMintPotion",
	"type":"function",
	"stateMutability":"nonpayable",
	"inputs":[
		{"name":"params","type":"tuple","components":[
			{"name":"expirationTimestamp","type":"uint256"},
			{"name":"withdrawalLiveness","type":"uint256"},
			{"name":"collateralAddress","type":"address"},
			{"name":"finderAddress","type":"address"},
			{"name":"tokenFactoryAddress","type":"address"},
			{"name":"priceFeedIdentifier","type":"bytes32"},
			{"name":"syntheticName","type":"string"},
			{"name":"syntheticSymbol","type":"string"},
			{"name":"liquidationLiveness","type":"uint256"},
			` + fmt.Sprintf(fixedPoint, "collateralRequirement") + `,
			` + fmt.Sprintf(fixedPoint, "disputeBondPct") + `,
			` + fmt.Sprintf(fixedPoint, "sponsorDisputeRewardPct") + `,
			` + fmt.Sprintf(fixedPoint, "disputerDisputeRewardPct") + `,
			` + fmt.Sprintf(fixedPoint, "strikePrice") + `,
			` + fmt.Sprintf(fixedPoint, "assetPrice") + `,
			{"name":"assetClass","type":"string"},
			{"name":"timerAddress","type":"address"}
		]},
		{"name":"poolAddress","type":"address"},
		` + fmt.Sprintf(fixedPoint, "quantity") + `,
		` + fmt.Sprintf(fixedPoint, "premium") + `
	],
	"outputs":[]
}]`

var (
	erc20ABI   = mustParseABI(erc20ABIJSON)
	factoryABI = mustParseABI(factoryABIJSON)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// ── Tuple types ──────────────────────────────────────────────────────────

// FixedPoint is the factory's {rawValue} wrapper for 18-decimal numbers.
type FixedPoint struct {
	RawValue *big.Int
}

// MintParams is the factory's potion-construction tuple. Field names follow
// the ABI component names.
type MintParams struct {
	ExpirationTimestamp      *big.Int
	WithdrawalLiveness       *big.Int
	CollateralAddress        common.Address
	FinderAddress            common.Address
	TokenFactoryAddress      common.Address
	PriceFeedIdentifier      [32]byte
	SyntheticName            string
	SyntheticSymbol          string
	LiquidationLiveness      *big.Int
	CollateralRequirement    FixedPoint
	DisputeBondPct           FixedPoint
	SponsorDisputeRewardPct  FixedPoint
	DisputerDisputeRewardPct FixedPoint
	StrikePrice              FixedPoint
	AssetPrice               FixedPoint
	AssetClass               string
	TimerAddress             common.Address
}

// Identifier right-pads s into a bytes32 price feed identifier.
func Identifier(s string) [32]byte {
	var id [32]byte
	copy(id[:], s)
	return id
}
