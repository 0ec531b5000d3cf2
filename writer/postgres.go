package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"orderflow/logger"
)

const (
	insertTradeSQL = `INSERT INTO futures_trades
		(symbol, event_time, trade_time, price, quantity, is_buyer_maker, agg_trade_id)
		VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6, $7)`

	insertDepthSQL = `INSERT INTO futures_orderbook_updates
		(symbol, event_time, first_update_id, final_update_id, bids, asks)
		VALUES ($1, $2, $3, $4, $5, $6)`
)

// PostgresBatchWriter persists flush snapshots into the row store, one
// transaction per event kind. A duplicate (symbol, agg_trade_id) rolls back
// that kind's whole flush; there is no partial commit.
type PostgresBatchWriter struct {
	pool *pgxpool.Pool
	log  *logger.Log
}

// NewPostgresBatchWriter wraps the pool as a sink backend.
func NewPostgresBatchWriter(pool *pgxpool.Pool) *PostgresBatchWriter {
	return &PostgresBatchWriter{pool: pool, log: logger.GetLogger()}
}

// WriteBatch inserts the snapshot's trades and depth updates. Each kind is
// attempted independently so a trade dedup conflict does not discard depth
// rows from the same flush.
func (w *PostgresBatchWriter) WriteBatch(ctx context.Context, batch Batch) error {
	log := w.log.WithComponent("postgres_batch_writer").WithFields(logger.Fields{"batch_id": batch.BatchID})

	var tradeErr, depthErr error

	if n := countTrades(batch); n > 0 {
		if tradeErr = w.writeTrades(ctx, batch); tradeErr != nil {
			log.WithError(tradeErr).Error("trade transaction rolled back, rows lost")
		} else {
			log.WithFields(logger.Fields{"rows": n}).Info("trade rows committed")
		}
	}
	if n := countDepths(batch); n > 0 {
		if depthErr = w.writeDepths(ctx, batch); depthErr != nil {
			log.WithError(depthErr).Error("depth transaction rolled back, rows lost")
		} else {
			log.WithFields(logger.Fields{"rows": n}).Info("depth rows committed")
		}
	}

	if tradeErr != nil {
		return fmt.Errorf("write trades: %w", tradeErr)
	}
	if depthErr != nil {
		return fmt.Errorf("write depth updates: %w", depthErr)
	}
	return nil
}

func (w *PostgresBatchWriter) writeTrades(ctx context.Context, batch Batch) error {
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		for symbol, events := range batch.Trades {
			for _, ev := range events {
				var aggID interface{}
				if ev.AggTradeID != nil {
					aggID = *ev.AggTradeID
				}
				if _, err := tx.Exec(ctx, insertTradeSQL,
					symbol,
					ev.EventTime,
					nullableTime(ev.TradeTime),
					ev.Price.String(),
					ev.Quantity.String(),
					ev.IsBuyerMaker,
					aggID,
				); err != nil {
					return fmt.Errorf("insert trade %s: %w", symbol, err)
				}
			}
		}
		return nil
	})
}

func (w *PostgresBatchWriter) writeDepths(ctx context.Context, batch Batch) error {
	return pgx.BeginFunc(ctx, w.pool, func(tx pgx.Tx) error {
		for symbol, events := range batch.Depths {
			for _, ev := range events {
				bids, err := json.Marshal(levelsOrEmpty(ev.Bids))
				if err != nil {
					return fmt.Errorf("marshal bids %s: %w", symbol, err)
				}
				asks, err := json.Marshal(levelsOrEmpty(ev.Asks))
				if err != nil {
					return fmt.Errorf("marshal asks %s: %w", symbol, err)
				}
				var first, final interface{}
				if ev.FirstUpdateID != nil {
					first = *ev.FirstUpdateID
				}
				if ev.FinalUpdateID != nil {
					final = *ev.FinalUpdateID
				}
				if _, err := tx.Exec(ctx, insertDepthSQL,
					symbol,
					ev.EventTime,
					first,
					final,
					bids,
					asks,
				); err != nil {
					return fmt.Errorf("insert depth update %s: %w", symbol, err)
				}
			}
		}
		return nil
	})
}

func countTrades(batch Batch) int {
	n := 0
	for _, evs := range batch.Trades {
		n += len(evs)
	}
	return n
}

func countDepths(batch Batch) int {
	n := 0
	for _, evs := range batch.Depths {
		n += len(evs)
	}
	return n
}

func nullableTime(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t
}

func levelsOrEmpty(levels [][]string) [][]string {
	if levels == nil {
		return [][]string{}
	}
	return levels
}
