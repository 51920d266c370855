package holdings

import (
	"context"
	"errors"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/gipsh/potions-go/internal/types"
)

// PostgresIndex reads holdings from a table kept current by an indexer.
type PostgresIndex struct {
	pool *pgxpool.Pool
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS potions (
    id TEXT PRIMARY KEY,
    owner TEXT NOT NULL,
    token_address TEXT NOT NULL,
    name TEXT NOT NULL,
    symbol TEXT NOT NULL,
    asset_class TEXT NOT NULL,
    expiry BIGINT NOT NULL,
    strike_price TEXT NOT NULL,
    quantity TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS potions_owner_idx ON potions (owner);
`

// NewPostgresIndex connects using dsn and ensures the table exists.
func NewPostgresIndex(ctx context.Context, dsn string) (*PostgresIndex, error) {
	if dsn == "" {
		return nil, errors.New("postgres dsn is empty")
	}

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if _, err := pool.Exec(ctx, createTableSQL); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresIndex{pool: pool}, nil
}

func (p *PostgresIndex) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

// Ping checks the pool can reach the database. Served as the health check.
func (p *PostgresIndex) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// FetchHoldings returns the potions owned by owner, ordered by expiry.
func (p *PostgresIndex) FetchHoldings(ctx context.Context, owner common.Address) ([]types.Holding, error) {
	rows, err := p.pool.Query(ctx, `
SELECT id, token_address, name, symbol, asset_class, expiry, strike_price, quantity
FROM potions
WHERE owner = $1
ORDER BY expiry, id
`, strings.ToLower(owner.Hex()))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []types.Holding{}
	for rows.Next() {
		var h types.Holding
		if err := rows.Scan(&h.ID, &h.TokenAddress, &h.Name, &h.Symbol, &h.AssetClass, &h.Expiry, &h.StrikePrice, &h.Quantity); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	return out, rows.Err()
}

// Upsert records a holding for owner. The table is filled by an external
// indexer process; this is the write path it shares with the tests.
func (p *PostgresIndex) Upsert(ctx context.Context, owner common.Address, h types.Holding) error {
	_, err := p.pool.Exec(ctx, `
INSERT INTO potions (id, owner, token_address, name, symbol, asset_class, expiry, strike_price, quantity)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE
SET owner = EXCLUDED.owner,
    token_address = EXCLUDED.token_address,
    name = EXCLUDED.name,
    symbol = EXCLUDED.symbol,
    asset_class = EXCLUDED.asset_class,
    expiry = EXCLUDED.expiry,
    strike_price = EXCLUDED.strike_price,
    quantity = EXCLUDED.quantity
`, h.ID, strings.ToLower(owner.Hex()), h.TokenAddress, h.Name, h.Symbol, h.AssetClass, h.Expiry, h.StrikePrice, h.Quantity)
	return err
}
