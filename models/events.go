package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceBinanceFutures tags every event produced from the Binance futures feed.
const SourceBinanceFutures = "binance-futures"

// Event kinds as they appear in artifact names and the raw CSV "type" column.
const (
	KindTrades = "trades"
	KindDepth  = "depth"
)

// TradeEvent is one executed aggregate trade, normalized from the feed.
// (Symbol, AggTradeID) identifies a trade for dedup where the backend
// enforces uniqueness.
type TradeEvent struct {
	Source       string
	Symbol       string
	EventTime    time.Time
	TradeTime    time.Time
	Price        decimal.Decimal
	Quantity     decimal.Decimal
	IsBuyerMaker bool
	AggTradeID   *int64
}

// DepthEvent is one order-book delta as reported by the feed. Bid and ask
// levels are kept verbatim as [price, quantity] string pairs; no sequencing
// validation is applied to the update ids, and either id may be nil when the
// feed omits it.
type DepthEvent struct {
	Source        string
	Symbol        string
	EventTime     time.Time
	FirstUpdateID *int64
	FinalUpdateID *int64
	Bids          [][]string
	Asks          [][]string
}
