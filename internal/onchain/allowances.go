package onchain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
	"github.com/gipsh/potions-go/internal/units"
)

type caller interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
}

// AllowanceReader reads the collateral token allowance an owner has granted
// to each configured spender.
type AllowanceReader struct {
	token    caller
	spenders []common.Address
}

// NewAllowanceReader binds the token at tokenAddr for reads.
func NewAllowanceReader(backend bind.ContractCaller, tokenAddr common.Address, spenders ...common.Address) *AllowanceReader {
	return &AllowanceReader{
		token:    bind.NewBoundContract(tokenAddr, erc20ABI, backend, nil, nil),
		spenders: spenders,
	}
}

// FetchAllowances returns spender → allowance in token units.
func (r *AllowanceReader) FetchAllowances(ctx context.Context, owner common.Address) (types.Allowances, error) {
	out := make(types.Allowances, len(r.spenders))
	for _, spender := range r.spenders {
		if _, seen := out[spender]; seen {
			continue
		}
		var res []interface{}
		if err := r.token.Call(&bind.CallOpts{Context: ctx}, &res, "allowance", owner, spender); err != nil {
			return nil, fmt.Errorf("allowance(%s): %w", spender.Hex(), err)
		}
		if len(res) == 0 {
			return nil, retry.Permanent(fmt.Errorf("allowance(%s): empty result", spender.Hex()))
		}
		amount, ok := res[0].(*big.Int)
		if !ok {
			return nil, retry.Permanent(fmt.Errorf("allowance(%s): unexpected result %T", spender.Hex(), res[0]))
		}
		out[spender] = units.ToDecimal(amount, units.EtherDecimals)
	}
	return out, nil
}
