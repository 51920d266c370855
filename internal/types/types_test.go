package types

import (
	"encoding/json"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionStateCloneIsDeep(t *testing.T) {
	addr := common.HexToAddress("0x00000000000000000000000000000000000000aa")
	spender := common.HexToAddress("0x00000000000000000000000000000000000000bb")

	s := DefaultSessionState()
	s.Address = &addr
	s.ExchangeRates["ETH"] = decimal.NewFromInt(2000)
	s.Allowances[spender] = decimal.NewFromInt(5)
	s.Holdings = append(s.Holdings, Holding{ID: "1"})

	c := s.Clone()
	c.Address[0] = 0xff
	c.ExchangeRates["ETH"] = decimal.NewFromInt(1)
	c.Allowances[spender] = decimal.Zero
	c.Holdings[0].ID = "changed"

	assert.Equal(t, addr, *s.Address)
	assert.True(t, s.ExchangeRates["ETH"].Equal(decimal.NewFromInt(2000)))
	assert.True(t, s.Allowances[spender].Equal(decimal.NewFromInt(5)))
	assert.Equal(t, "1", s.Holdings[0].ID)
}

func TestDefaultSessionState(t *testing.T) {
	s := DefaultSessionState()
	assert.Equal(t, StatusUninitialized, s.Status)
	assert.False(t, s.Loading)
	assert.False(t, s.Connected())
	assert.Empty(t, s.Holdings)
}

func TestSessionStateJSON(t *testing.T) {
	s := DefaultSessionState()
	s.Status = StatusConnected

	raw, err := json.Marshal(s)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"status":"CONNECTED"`)
	assert.Contains(t, string(raw), `"address":null`)
}
