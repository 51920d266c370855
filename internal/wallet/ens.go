package wallet

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// ── ABIs ─────────────────────────────────────────────────────────────────

const ensRegistryABI = `[{
	"name":"resolver",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"node","type":"bytes32"}],
	"outputs":[{"name":"","type":"address"}]
}]`

const ensResolverABI = `[{
	"name":"name",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"node","type":"bytes32"}],
	"outputs":[{"name":"","type":"string"}]
},{
	"name":"addr",
	"type":"function",
	"stateMutability":"view",
	"inputs":[{"name":"node","type":"bytes32"}],
	"outputs":[{"name":"","type":"address"}]
}]`

var (
	registryABI = mustParseABI(ensRegistryABI)
	resolverABI = mustParseABI(ensResolverABI)
)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse abi: %v", err))
	}
	return parsed
}

// Namehash computes the EIP-137 node for an ENS name.
func Namehash(name string) common.Hash {
	var node common.Hash
	if name == "" {
		return node
	}
	labels := strings.Split(strings.ToLower(name), ".")
	for i := len(labels) - 1; i >= 0; i-- {
		label := crypto.Keccak256Hash([]byte(labels[i]))
		node = crypto.Keccak256Hash(node.Bytes(), label.Bytes())
	}
	return node
}

// ReverseNode returns the node of "<addr>.addr.reverse".
func ReverseNode(addr common.Address) common.Hash {
	return Namehash(strings.ToLower(strings.TrimPrefix(addr.Hex(), "0x")) + ".addr.reverse")
}

// ENS resolves primary names through the registry.
type ENS struct {
	registry *bind.BoundContract
	caller   bind.ContractCaller
}

// NewENS binds the registry at registryAddr.
func NewENS(caller bind.ContractCaller, registryAddr common.Address) *ENS {
	return &ENS{
		registry: bind.NewBoundContract(registryAddr, registryABI, caller, nil, nil),
		caller:   caller,
	}
}

// LookupAddress returns the verified primary name of addr, or "".
// Resolver failures count as "no name"; registry failures are returned.
func (e *ENS) LookupAddress(ctx context.Context, addr common.Address) (string, error) {
	node := ReverseNode(addr)
	resolver, err := e.resolverOf(ctx, node)
	if err != nil {
		return "", err
	}
	if resolver == (common.Address{}) {
		return "", nil
	}

	name, err := e.callString(ctx, resolver, "name", node)
	if err != nil {
		log.Printf("[wallet/ens] reverse resolver %s: %v", resolver.Hex(), err)
		return "", nil
	}
	if name == "" {
		return "", nil
	}

	// The reverse record is only trusted if the name resolves back.
	forwardNode := Namehash(name)
	forward, err := e.resolverOf(ctx, forwardNode)
	if err != nil {
		return "", err
	}
	if forward == (common.Address{}) {
		return "", nil
	}
	resolved, err := e.callAddress(ctx, forward, "addr", forwardNode)
	if err != nil {
		log.Printf("[wallet/ens] forward resolver %s: %v", forward.Hex(), err)
		return "", nil
	}
	if resolved != addr {
		return "", nil
	}
	return name, nil
}

func (e *ENS) resolverOf(ctx context.Context, node common.Hash) (common.Address, error) {
	var out []interface{}
	if err := e.registry.Call(&bind.CallOpts{Context: ctx}, &out, "resolver", node); err != nil {
		return common.Address{}, fmt.Errorf("ens registry: %w", err)
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

func (e *ENS) callString(ctx context.Context, at common.Address, method string, node common.Hash) (string, error) {
	var out []interface{}
	c := bind.NewBoundContract(at, resolverABI, e.caller, nil, nil)
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, node); err != nil {
		return "", err
	}
	if len(out) == 0 {
		return "", nil
	}
	s, _ := out[0].(string)
	return s, nil
}

func (e *ENS) callAddress(ctx context.Context, at common.Address, method string, node common.Hash) (common.Address, error) {
	var out []interface{}
	c := bind.NewBoundContract(at, resolverABI, e.caller, nil, nil)
	if err := c.Call(&bind.CallOpts{Context: ctx}, &out, method, node); err != nil {
		return common.Address{}, err
	}
	if len(out) == 0 {
		return common.Address{}, nil
	}
	addr, _ := out[0].(common.Address)
	return addr, nil
}

// lookupOnNetwork is the shared LookupAddress used by the providers: chains
// without a registry have no names.
func lookupOnNetwork(ctx context.Context, backend Backend, chainID int64, addr common.Address) (string, error) {
	if !HasENS(chainID) {
		return "", nil
	}
	return NewENS(backend, ENSRegistryAddress).LookupAddress(ctx, addr)
}
