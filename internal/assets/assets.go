// Package assets holds the catalog of underlying assets a potion can be
// written on.
package assets

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

//go:embed assets.json
var catalogJSON []byte

// ErrUnknownAsset is returned when a key is not in the catalog.
var ErrUnknownAsset = errors.New("unknown asset")

// Asset describes one underlying.
type Asset struct {
	Key     string `json:"-"`
	Ticker  string `json:"ticker"`
	Name    string `json:"name"`
	QuoteID string `json:"quoteId"` // price-quote service id
}

// Catalog maps asset keys to assets.
type Catalog map[string]Asset

// Default returns the embedded catalog.
func Default() Catalog {
	c, err := Parse(catalogJSON)
	if err != nil {
		panic(fmt.Sprintf("embedded asset catalog: %v", err))
	}
	return c
}

// Parse decodes a catalog from JSON of the form {"key": {"ticker": ...}}.
func Parse(raw []byte) (Catalog, error) {
	var c Catalog
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	for k, a := range c {
		if a.Ticker == "" {
			return nil, fmt.Errorf("asset %q has no ticker", k)
		}
		a.Key = k
		c[k] = a
	}
	return c, nil
}

// Lookup returns the asset for key.
func (c Catalog) Lookup(key string) (Asset, error) {
	a, ok := c[key]
	if !ok {
		return Asset{}, fmt.Errorf("%w: %q", ErrUnknownAsset, key)
	}
	return a, nil
}

// Ticker returns the ticker symbol for key.
func (c Catalog) Ticker(key string) (string, error) {
	a, err := c.Lookup(key)
	if err != nil {
		return "", err
	}
	return a.Ticker, nil
}

// Sorted returns the assets ordered by key, for stable iteration.
func (c Catalog) Sorted() []Asset {
	out := make([]Asset, 0, len(c))
	for _, a := range c {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
