package binance

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"orderflow/models"
)

// Normalization is total over any payload that parses as JSON: missing
// numeric fields become zero, missing booleans false, absent update ids stay
// nil. Callers must treat those fields as optional.

// NormalizeTrade maps one aggTrade payload to a TradeEvent.
func NormalizeTrade(data []byte) (models.TradeEvent, error) {
	var raw models.BinanceAggTradeResp
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.TradeEvent{}, fmt.Errorf("parse aggTrade payload: %w", err)
	}
	return models.TradeEvent{
		Source:       models.SourceBinanceFutures,
		Symbol:       strings.ToUpper(raw.Symbol),
		EventTime:    msToTime(raw.EventTime),
		TradeTime:    msToTime(raw.TradeTime),
		Price:        decimalOrZero(raw.Price),
		Quantity:     decimalOrZero(raw.Quantity),
		IsBuyerMaker: raw.IsBuyerMaker,
		AggTradeID:   raw.AggTradeID,
	}, nil
}

// NormalizeDepth maps one depth payload to a DepthEvent. Bid and ask levels
// are passed through as reported; update ids are not sequence-checked.
func NormalizeDepth(data []byte) (models.DepthEvent, error) {
	var raw models.BinanceDepthResp
	if err := json.Unmarshal(data, &raw); err != nil {
		return models.DepthEvent{}, fmt.Errorf("parse depth payload: %w", err)
	}
	return models.DepthEvent{
		Source:        models.SourceBinanceFutures,
		Symbol:        strings.ToUpper(raw.Symbol),
		EventTime:     msToTime(raw.EventTime),
		FirstUpdateID: raw.FirstUpdateID,
		FinalUpdateID: raw.FinalUpdateID,
		Bids:          raw.Bids,
		Asks:          raw.Asks,
	}, nil
}

// msToTime converts a millisecond epoch timestamp to a UTC instant. A zero
// value means the feed omitted the field and maps to the zero time.
func msToTime(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

func decimalOrZero(s string) decimal.Decimal {
	if s == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}
