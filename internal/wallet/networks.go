package wallet

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/potions-go/internal/types"
)

// ENSRegistryAddress is the ENS registry on every network that has one.
var ENSRegistryAddress = common.HexToAddress("0x00000000000C2E074eC69A0dFb2997BA6C7d2e1e")

type networkInfo struct {
	name string
	ens  bool
}

var knownNetworks = map[int64]networkInfo{
	1:        {"homestead", true},
	3:        {"ropsten", true},
	4:        {"rinkeby", true},
	5:        {"goerli", true},
	42:       {"kovan", false},
	11155111: {"sepolia", true},
	10:       {"optimism", false},
	420:      {"optimism-goerli", false},
	42161:    {"arbitrum", false},
	421613:   {"arbitrum-goerli", false},
	137:      {"matic", false},
	80001:    {"maticmum", false},
	56:       {"bnb", false},
	97:       {"bnbt", false},
	100:      {"xdai", false},
	61:       {"classic", false},
}

// NetworkByChainID returns the well-known network for chainID, or
// {chainID, "unknown"}.
func NetworkByChainID(chainID int64) types.Network {
	if n, ok := knownNetworks[chainID]; ok {
		return types.Network{ChainID: chainID, Name: n.name}
	}
	return types.Network{ChainID: chainID, Name: "unknown"}
}

// HasENS reports whether the ENS registry is deployed on chainID.
func HasENS(chainID int64) bool {
	return knownNetworks[chainID].ens
}

// ParseChainID accepts "0x"-prefixed hex (chainChanged) or decimal
// (networkChanged) chain ids.
func ParseChainID(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return strconv.ParseInt(s[2:], 16, 64)
	}
	return strconv.ParseInt(s, 10, 64)
}
