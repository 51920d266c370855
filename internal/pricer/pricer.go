// Package pricer fetches USD exchange rates from the CoinGecko simple-price API.
package pricer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/gipsh/potions-go/internal/assets"
	"github.com/gipsh/potions-go/internal/retry"
	"github.com/gipsh/potions-go/internal/types"
)

const (
	simplePriceEndpoint = "/api/v3/simple/price"
	vsCurrency          = "usd"
	maxResponseBytes    = 1 << 20
)

// Pricer fetches exchange rates for every asset in a catalog.
type Pricer struct {
	host    string
	catalog assets.Catalog
	httpCli *http.Client
}

// NewPricer creates a REST-based pricer against host (e.g. https://api.coingecko.com).
func NewPricer(host string, catalog assets.Catalog) *Pricer {
	return &Pricer{
		host:    strings.TrimRight(host, "/"),
		catalog: catalog,
		httpCli: &http.Client{
			Timeout: 6 * time.Second,
		},
	}
}

// FetchExchangeRates returns ticker → USD rate for every catalog asset the
// quote service knows. Assets missing from the response are left out.
func (p *Pricer) FetchExchangeRates(ctx context.Context) (types.ExchangeRates, error) {
	ids := make([]string, 0, len(p.catalog))
	byID := make(map[string]string, len(p.catalog))
	for _, a := range p.catalog.Sorted() {
		if a.QuoteID == "" {
			continue
		}
		ids = append(ids, a.QuoteID)
		byID[a.QuoteID] = a.Ticker
	}
	if len(ids) == 0 {
		return types.ExchangeRates{}, nil
	}

	params := url.Values{}
	params.Set("ids", strings.Join(ids, ","))
	params.Set("vs_currencies", vsCurrency)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.host+simplePriceEndpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read quotes: %w", err)
	}
	if len(body) > maxResponseBytes {
		return nil, retry.Permanent(fmt.Errorf("quotes response exceeds %d bytes", maxResponseBytes))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}

	// {"bitcoin": {"usd": 50123.4}, ...}
	var quotes map[string]map[string]decimal.Decimal
	if err := json.Unmarshal(body, &quotes); err != nil {
		return nil, retry.Permanent(fmt.Errorf("unparseable quotes: %w", err))
	}

	rates := make(types.ExchangeRates, len(quotes))
	for id, q := range quotes {
		ticker, ok := byID[id]
		if !ok {
			continue
		}
		if rate, ok := q[vsCurrency]; ok {
			rates[ticker] = rate
		}
	}
	return rates, nil
}
