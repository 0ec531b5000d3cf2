package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"orderflow/logger"
)

// Row-store schema. The uniqueness constraint on (symbol, agg_trade_id) is
// what dedups redelivered trades; the orderbook table stores raw deltas
// without update-id sequencing validation.
const schemaDDL = `
CREATE TABLE IF NOT EXISTS futures_trades (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	symbol VARCHAR(20) NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	trade_time TIMESTAMPTZ,
	price NUMERIC(38, 18) NOT NULL,
	quantity NUMERIC(38, 18) NOT NULL,
	is_buyer_maker BOOLEAN NOT NULL,
	agg_trade_id BIGINT,
	ingest_time TIMESTAMPTZ NOT NULL DEFAULT now(),
	CONSTRAINT uq_trades_symbol_aggid UNIQUE (symbol, agg_trade_id)
);
CREATE INDEX IF NOT EXISTS ix_trades_symbol ON futures_trades (symbol);
CREATE INDEX IF NOT EXISTS ix_trades_event_time ON futures_trades (event_time);

CREATE TABLE IF NOT EXISTS futures_orderbook_updates (
	id BIGINT GENERATED ALWAYS AS IDENTITY PRIMARY KEY,
	symbol VARCHAR(20) NOT NULL,
	event_time TIMESTAMPTZ NOT NULL,
	first_update_id BIGINT,
	final_update_id BIGINT,
	bids JSONB NOT NULL,
	asks JSONB NOT NULL,
	ingest_time TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ix_orderbook_symbol_final_u ON futures_orderbook_updates (symbol, final_update_id);
`

// NewPostgresPool connects a pgx pool to the configured database.
func NewPostgresPool(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping postgres: %w", err)
	}
	logger.GetLogger().WithComponent("postgres").Info("postgres pool initialized")
	return pool, nil
}

// EnsureSchema creates the recorder tables when they do not exist.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schemaDDL); err != nil {
		return fmt.Errorf("failed to ensure schema: %w", err)
	}
	return nil
}
