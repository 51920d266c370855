package wallet

import (
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gipsh/potions-go/internal/retry"
)

type rejectedError struct{}

func (rejectedError) Error() string  { return "User rejected the request." }
func (rejectedError) ErrorCode() int { return codeUserRejected }

// fakeWalletService serves the eth_ namespace of an external wallet.
type fakeWalletService struct {
	mu         sync.Mutex
	key        *ecdsa.PrivateKey
	chainID    int64
	authorized bool
	reject     bool

	accountsCalls int
}

func (s *fakeWalletService) Accounts() ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accountsCalls++
	if s.reject {
		return nil, rejectedError{}
	}
	if !s.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{AddressFromKey(s.key)}, nil
}

func (s *fakeWalletService) RequestAccounts() ([]common.Address, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.reject {
		return nil, rejectedError{}
	}
	s.authorized = true
	return []common.Address{AddressFromKey(s.key)}, nil
}

func (s *fakeWalletService) ChainId() *hexutil.Big {
	return (*hexutil.Big)(big.NewInt(s.chainID))
}

func (s *fakeWalletService) SignTransaction(args signArgs) (hexutil.Bytes, error) {
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{
		Nonce:    uint64(args.Nonce),
		To:       args.To,
		Gas:      uint64(args.Gas),
		GasPrice: args.GasPrice.ToInt(),
		Value:    args.Value.ToInt(),
		Data:     args.Data,
	})
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(big.NewInt(s.chainID)), s.key)
	if err != nil {
		return nil, err
	}
	return signed.MarshalBinary()
}

func newTestRPCProvider(t *testing.T, svc *fakeWalletService) *RPCProvider {
	t.Helper()
	srv := rpc.NewServer()
	require.NoError(t, srv.RegisterName("eth", svc))
	p := NewRPCProvider(rpc.DialInProc(srv))
	t.Cleanup(func() {
		p.Close()
		srv.Stop()
	})
	return p
}

func testWalletService(t *testing.T) *fakeWalletService {
	key, err := ParsePrivateKey(testKeyHex)
	require.NoError(t, err)
	return &fakeWalletService{key: key, chainID: 5}
}

func TestRPCProviderAccounts(t *testing.T) {
	ctx := context.Background()
	p := newTestRPCProvider(t, testWalletService(t))

	accounts, err := p.Accounts(ctx)
	require.NoError(t, err)
	assert.Empty(t, accounts)

	_, err = p.Signer(ctx)
	assert.ErrorIs(t, err, ErrNotAuthorized)

	accounts, err = p.RequestAccounts(ctx)
	require.NoError(t, err)
	assert.Equal(t, []common.Address{testKeyAddress}, accounts)

	net, err := p.Network(ctx)
	require.NoError(t, err)
	assert.Equal(t, "goerli", net.Name)
}

func TestRPCProviderUserRejected(t *testing.T) {
	svc := testWalletService(t)
	svc.reject = true
	p := newTestRPCProvider(t, svc)

	_, err := p.RequestAccounts(context.Background())
	assert.ErrorIs(t, err, ErrUserRejected)
}

func TestRPCProviderRejectionIsNotRetried(t *testing.T) {
	svc := testWalletService(t)
	svc.reject = true
	p := newTestRPCProvider(t, svc)

	policy := retry.Policy{MaxAttempts: 3, InitialBackoff: time.Millisecond}
	_, err := retry.Value(context.Background(), policy, p.Accounts)
	assert.ErrorIs(t, err, ErrUserRejected)
	assert.Equal(t, 1, svc.accountsCalls)
}

func TestRPCProviderSignerDelegatesSigning(t *testing.T) {
	ctx := context.Background()
	svc := testWalletService(t)
	svc.authorized = true
	p := newTestRPCProvider(t, svc)

	signer, err := p.Signer(ctx)
	require.NoError(t, err)
	opts, err := signer.TransactOpts(ctx)
	require.NoError(t, err)

	to := common.HexToAddress("0x02")
	tx := ethtypes.NewTx(&ethtypes.LegacyTx{Nonce: 7, To: &to, Gas: 50000, GasPrice: big.NewInt(20e9), Value: big.NewInt(0), Data: []byte{0xde, 0xad}})
	signed, err := opts.Signer(testKeyAddress, tx)
	require.NoError(t, err)

	assert.Equal(t, uint64(7), signed.Nonce())
	assert.Equal(t, []byte{0xde, 0xad}, signed.Data())
	sender, err := ethtypes.Sender(ethtypes.LatestSignerForChainID(big.NewInt(5)), signed)
	require.NoError(t, err)
	assert.Equal(t, testKeyAddress, sender)

	_, err = opts.Signer(common.HexToAddress("0x03"), tx)
	assert.Error(t, err)
}

func TestDecodeSignResult(t *testing.T) {
	raw, err := decodeSignResult(json.RawMessage(`"0x0102"`))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2}, raw)

	raw, err = decodeSignResult(json.RawMessage(`{"raw":"0x0a0b","tx":{}}`))
	require.NoError(t, err)
	assert.Equal(t, []byte{0x0a, 0x0b}, raw)

	_, err = decodeSignResult(json.RawMessage(`{"tx":{}}`))
	assert.Error(t, err)
}
