package wallet

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/gipsh/potions-go/internal/types"
)

// ParsePrivateKey parses a hex-encoded private key (with or without 0x).
func ParsePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return key, nil
}

// AddressFromKey derives the account address from a private key.
func AddressFromKey(key *ecdsa.PrivateKey) common.Address {
	return crypto.PubkeyToAddress(key.PublicKey)
}

// KeyProvider is a wallet backed by a local private key.
type KeyProvider struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	chainID int64

	mu         sync.Mutex
	authorized bool
}

// DialKeyProvider connects to rpcURL and wraps hexKey. A zero chainID is
// read from the node.
func DialKeyProvider(ctx context.Context, rpcURL, hexKey string, chainID int64, autoAuthorize bool) (*KeyProvider, error) {
	key, err := ParsePrivateKey(hexKey)
	if err != nil {
		return nil, err
	}
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial rpc: %w", err)
	}
	return NewKeyProvider(client, key, chainID, autoAuthorize), nil
}

// NewKeyProvider wraps an existing backend.
func NewKeyProvider(backend Backend, key *ecdsa.PrivateKey, chainID int64, autoAuthorize bool) *KeyProvider {
	return &KeyProvider{
		backend:    backend,
		key:        key,
		address:    AddressFromKey(key),
		chainID:    chainID,
		authorized: autoAuthorize,
	}
}

func (p *KeyProvider) Accounts(ctx context.Context) ([]common.Address, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.authorized {
		return []common.Address{}, nil
	}
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) RequestAccounts(ctx context.Context) ([]common.Address, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if !p.authorized {
		log.Printf("[wallet] authorized %s", p.address.Hex())
	}
	p.authorized = true
	p.mu.Unlock()
	return []common.Address{p.address}, nil
}

func (p *KeyProvider) BalanceAt(ctx context.Context, account common.Address) (*big.Int, error) {
	return p.backend.BalanceAt(ctx, account, nil)
}

func (p *KeyProvider) LookupAddress(ctx context.Context, account common.Address) (string, error) {
	id, err := p.chain(ctx)
	if err != nil {
		return "", err
	}
	return lookupOnNetwork(ctx, p.backend, id, account)
}

func (p *KeyProvider) Network(ctx context.Context) (types.Network, error) {
	id, err := p.chain(ctx)
	if err != nil {
		return types.Network{}, err
	}
	return NetworkByChainID(id), nil
}

func (p *KeyProvider) Signer(ctx context.Context) (Signer, error) {
	p.mu.Lock()
	authorized := p.authorized
	p.mu.Unlock()
	if !authorized {
		return nil, ErrNotAuthorized
	}
	id, err := p.chain(ctx)
	if err != nil {
		return nil, err
	}
	return &keySigner{key: p.key, address: p.address, chainID: big.NewInt(id)}, nil
}

func (p *KeyProvider) Backend() Backend { return p.backend }

// chain returns the configured chain id, falling back to the node.
func (p *KeyProvider) chain(ctx context.Context) (int64, error) {
	if p.chainID != 0 {
		return p.chainID, nil
	}
	id, err := p.backend.ChainID(ctx)
	if err != nil {
		return 0, fmt.Errorf("chain id: %w", err)
	}
	return id.Int64(), nil
}

type keySigner struct {
	key     *ecdsa.PrivateKey
	address common.Address
	chainID *big.Int
}

func (s *keySigner) Address() common.Address { return s.address }

func (s *keySigner) TransactOpts(ctx context.Context) (*bind.TransactOpts, error) {
	opts, err := bind.NewKeyedTransactorWithChainID(s.key, s.chainID)
	if err != nil {
		return nil, fmt.Errorf("transactor: %w", err)
	}
	opts.Context = ctx
	return opts, nil
}

// Close releases the backend connection when it owns one.
func (p *KeyProvider) Close() {
	if c, ok := p.backend.(interface{ Close() }); ok {
		c.Close()
	}
}
