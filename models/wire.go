package models

import "encoding/json"

/////////////////////////////////////////////////////////////////////////////
///////////////////////////////// BINANCE ///////////////////////////////////
/////////////////////////////////////////////////////////////////////////////

// CombinedFrame is the envelope of a Binance combined-stream message. The
// stream tag carries the "{symbol}@{suffix}" token used for dispatch.
type CombinedFrame struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// BinanceAggTradeResp mirrors Binance's futures aggTrade websocket event.
type BinanceAggTradeResp struct {
	Event        string `json:"e"`
	EventTime    int64  `json:"E"`
	Symbol       string `json:"s"`
	AggTradeID   *int64 `json:"a"`
	Price        string `json:"p"`
	Quantity     string `json:"q"`
	TradeTime    int64  `json:"T"`
	IsBuyerMaker bool   `json:"m"`
}

// BinanceDepthResp mirrors Binance's futures partial depth websocket event.
// Update ids are pointers so an absent field is distinguishable from zero.
type BinanceDepthResp struct {
	Event         string     `json:"e"`
	EventTime     int64      `json:"E"`
	Symbol        string     `json:"s"`
	FirstUpdateID *int64     `json:"U"`
	FinalUpdateID *int64     `json:"u"`
	Bids          [][]string `json:"b"`
	Asks          [][]string `json:"a"`
}
