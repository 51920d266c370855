package onchain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
)

type fakeToken struct {
	allowances map[common.Address]*big.Int
	calls      int
	err        error
	raw        []interface{}
}

func (f *fakeToken) Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	if f.raw != nil {
		*results = f.raw
		return nil
	}
	spender := params[1].(common.Address)
	amount, ok := f.allowances[spender]
	if !ok {
		amount = new(big.Int)
	}
	*results = []interface{}{amount}
	return nil
}

func TestFetchAllowances(t *testing.T) {
	token := &fakeToken{allowances: map[common.Address]*big.Int{
		testAddrs.Factory: ApprovalAmount,
	}}
	r := &AllowanceReader{token: token, spenders: []common.Address{testAddrs.Factory, testAddrs.PoolLP, testAddrs.Factory}}

	got, err := r.FetchAllowances(context.Background(), common.HexToAddress("0x01"))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[testAddrs.Factory].Equal(decimal.NewFromInt(1_000_000_000)))
	assert.True(t, got[testAddrs.PoolLP].IsZero())
	assert.Equal(t, 2, token.calls)
}

func TestFetchAllowancesError(t *testing.T) {
	r := &AllowanceReader{token: &fakeToken{err: errors.New("rpc down")}, spenders: []common.Address{testAddrs.Factory}}
	_, err := r.FetchAllowances(context.Background(), common.HexToAddress("0x01"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc down")
}

func TestFetchAllowancesMalformedResultIsNotRetried(t *testing.T) {
	token := &fakeToken{raw: []interface{}{"not a number"}}
	r := &AllowanceReader{token: token, spenders: []common.Address{testAddrs.Factory}}

	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	_, err := retry.Value(context.Background(), policy, func(ctx context.Context) (types.Allowances, error) {
		return r.FetchAllowances(ctx, common.HexToAddress("0x01"))
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected result string")
	assert.Equal(t, 1, token.calls)
}
