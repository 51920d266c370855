// Package holdings looks up the potion positions owned by an address.
package holdings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
)

const maxResponseBytes = 1 << 20

const potionsQuery = `query Potions($owner: String!) {
  potions(where: {owner: $owner}, orderBy: expiry, orderDirection: asc) {
    id
    tokenAddress
    name
    symbol
    assetClass
    expiry
    strikePrice
    quantity
  }
}`

// Subgraph queries a GraphQL indexer for holdings.
type Subgraph struct {
	url     string
	httpCli *http.Client
}

// NewSubgraph creates a client for the GraphQL endpoint at url.
func NewSubgraph(url string) *Subgraph {
	return &Subgraph{
		url:     url,
		httpCli: &http.Client{Timeout: 10 * time.Second},
	}
}

type graphRequest struct {
	Query     string                 `json:"query"`
	Variables map[string]interface{} `json:"variables"`
}

type graphPotion struct {
	ID           string `json:"id"`
	TokenAddress string `json:"tokenAddress"`
	Name         string `json:"name"`
	Symbol       string `json:"symbol"`
	AssetClass   string `json:"assetClass"`
	Expiry       string `json:"expiry"` // BigInt, serialized as string
	StrikePrice  string `json:"strikePrice"`
	Quantity     string `json:"quantity"`
}

type graphResponse struct {
	Data struct {
		Potions []graphPotion `json:"potions"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// FetchHoldings returns the potions owned by owner, ordered by expiry.
func (s *Subgraph) FetchHoldings(ctx context.Context, owner common.Address) ([]types.Holding, error) {
	payload, err := json.Marshal(graphRequest{
		Query:     potionsQuery,
		Variables: map[string]interface{}{"owner": strings.ToLower(owner.Hex())},
	})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read subgraph response: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, retry.Permanent(fmt.Errorf("subgraph: response exceeds %d bytes", maxResponseBytes))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subgraph: HTTP %d: %s", resp.StatusCode, body)
	}

	var result graphResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, retry.Permanent(fmt.Errorf("parse subgraph response: %w", err))
	}
	if len(result.Errors) > 0 {
		return nil, fmt.Errorf("subgraph: %s", result.Errors[0].Message)
	}

	out := make([]types.Holding, 0, len(result.Data.Potions))
	for _, p := range result.Data.Potions {
		expiry, err := strconv.ParseInt(p.Expiry, 10, 64)
		if err != nil && p.Expiry != "" {
			return nil, retry.Permanent(fmt.Errorf("potion %s: invalid expiry %q", p.ID, p.Expiry))
		}
		out = append(out, types.Holding{
			ID:           p.ID,
			TokenAddress: p.TokenAddress,
			Name:         p.Name,
			Symbol:       p.Symbol,
			AssetClass:   p.AssetClass,
			Expiry:       expiry,
			StrikePrice:  p.StrikePrice,
			Quantity:     p.Quantity,
		})
	}
	return out, nil
}
