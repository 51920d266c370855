package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
)

// codeUserRejected is the EIP-1193 "user rejected the request" code.
const codeUserRejected = 4001

// RPCProvider is an external wallet reached over JSON-RPC. Account access
// and signing are delegated to the wallet; chain reads go through the same
// connection.
type RPCProvider struct {
	rpc *rpc.Client
	eth *ethclient.Client
}

// DialRPCProvider connects to a wallet JSON-RPC endpoint.
func DialRPCProvider(ctx context.Context, url string) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial wallet rpc: %w", err)
	}
	return NewRPCProvider(c), nil
}

// NewRPCProvider wraps an existing rpc client.
func NewRPCProvider(c *rpc.Client) *RPCProvider {
	return &RPCProvider{rpc: c, eth: ethclient.NewClient(c)}
}

func (p *RPCProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_accounts"); err != nil {
		return nil, wrapRPC("eth_accounts", err)
	}
	return accounts, nil
}

func (p *RPCProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	var accounts []common.Address
	if err := p.rpc.CallContext(ctx, &accounts, "eth_requestAccounts"); err != nil {
		return nil, wrapRPC("eth_requestAccounts", err)
	}
	return accounts, nil
}

func (p *RPCProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return p.eth.BalanceAt(ctx, account, nil)
}

func (p *RPCProvider) LookupAddress(ctx context.Context, account common.Address) (string, error) {
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return "", fmt.Errorf("chain id: %w", err)
	}
	return lookupOnNetwork(ctx, p.eth, id.Int64(), account)
}

func (p *RPCProvider) Network(ctx context.Context) (types.Network, error) {
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return types.Network{}, fmt.Errorf("chain id: %w", err)
	}
	return NetworkByChainID(id.Int64()), nil
}

func (p *RPCProvider) Signer(ctx context.Context) (Signer, error) {
	accounts, err := p.Accounts(ctx)
	if err != nil {
		return nil, err
	}
	from, err := FirstAccount(accounts)
	if err != nil {
		return nil, err
	}
	id, err := p.eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	return &rpcSigner{rpc: p.rpc, address: from, chainID: id}, nil
}

func (p *RPCProvider) Backend() Backend { return p.eth }

// Close closes the underlying connection.
func (p *RPCProvider) Close() { p.rpc.Close() }

// ── Signing ───────────────────────────────────────────────────────────────

type rpcSigner struct {
	rpc     *rpc.Client
	address common.Address
	chainID *big.Int
}

func (s *rpcSigner) Address() common.Address { return s.address }

func (s *rpcSigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	return &bind.TransactOpts{
		From:    s.address,
		Context: ctx,
		Signer: func(addr common.Address, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
			if addr != s.address {
				return nil, bind.ErrNotAuthorized
			}
			return s.signTransaction(ctx, tx)
		},
	}, nil
}

type signArgs struct {
	From                 common.Address  `json:"from"`
	To                   *common.Address `json:"to,omitempty"`
	Gas                  hexutil.Uint64  `json:"gas"`
	GasPrice             *hexutil.Big    `json:"gasPrice,omitempty"`
	MaxFeePerGas         *hexutil.Big    `json:"maxFeePerGas,omitempty"`
	MaxPriorityFeePerGas *hexutil.Big    `json:"maxPriorityFeePerGas,omitempty"`
	Value                *hexutil.Big    `json:"value"`
	Nonce                hexutil.Uint64  `json:"nonce"`
	Data                 hexutil.Bytes   `json:"data"`
	ChainID              *hexutil.Big    `json:"chainId"`
}

func newSignArgs(from common.Address, chainID *big.Int, tx *ethtypes.Transaction) signArgs {
	args := signArgs{
		From:    from,
		To:      tx.To(),
		Gas:     hexutil.Uint64(tx.Gas()),
		Value:   (*hexutil.Big)(tx.Value()),
		Nonce:   hexutil.Uint64(tx.Nonce()),
		Data:    tx.Data(),
		ChainID: (*hexutil.Big)(chainID),
	}
	if tx.Type() == ethtypes.DynamicFeeTxType {
		args.MaxFeePerGas = (*hexutil.Big)(tx.GasFeeCap())
		args.MaxPriorityFeePerGas = (*hexutil.Big)(tx.GasTipCap())
	} else {
		args.GasPrice = (*hexutil.Big)(tx.GasPrice())
	}
	return args
}

func (s *rpcSigner) signTransaction(ctx context.Context, tx *ethtypes.Transaction) (*ethtypes.Transaction, error) {
	var result json.RawMessage
	args := newSignArgs(s.address, s.chainID, tx)
	if err := s.rpc.CallContext(ctx, &result, "eth_signTransaction", args); err != nil {
		return nil, wrapRPC("eth_signTransaction", err)
	}
	raw, err := decodeSignResult(result)
	if err != nil {
		return nil, err
	}
	signed := new(ethtypes.Transaction)
	if err := signed.UnmarshalBinary(raw); err != nil {
		return nil, fmt.Errorf("decode signed tx: %w", err)
	}
	return signed, nil
}

// decodeSignResult accepts both a bare hex string and geth's {raw, tx} object.
func decodeSignResult(result json.RawMessage) ([]byte, error) {
	var raw hexutil.Bytes
	if err := json.Unmarshal(result, &raw); err == nil {
		return raw, nil
	}
	var obj struct {
		Raw hexutil.Bytes `json:"raw"`
	}
	if err := json.Unmarshal(result, &obj); err != nil {
		return nil, fmt.Errorf("decode sign result: %w", err)
	}
	if len(obj.Raw) == 0 {
		return nil, errors.New("decode sign result: empty raw transaction")
	}
	return obj.Raw, nil
}

func wrapRPC(method string, err error) error {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeUserRejected {
		return retry.Permanent(fmt.Errorf("%s: %w", method, ErrUserRejected))
	}
	return fmt.Errorf("%s: %w", method, err)
}
