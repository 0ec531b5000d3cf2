package binance

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal literal %q: %v", s, err)
	}
	return d
}

func TestNormalizeTrade(t *testing.T) {
	payload := []byte(`{"e":"aggTrade","E":1700000000123,"s":"btcusdt","a":981273645,"p":"100.00","q":"2.0","T":1700000000100,"m":true}`)

	ev, err := NormalizeTrade(payload)
	if err != nil {
		t.Fatalf("NormalizeTrade: %v", err)
	}
	if ev.Source != "binance-futures" {
		t.Errorf("source: got %q", ev.Source)
	}
	if ev.Symbol != "BTCUSDT" {
		t.Errorf("symbol not upper-cased: got %q", ev.Symbol)
	}
	if ev.AggTradeID == nil || *ev.AggTradeID != 981273645 {
		t.Errorf("agg trade id: got %v", ev.AggTradeID)
	}
	if !ev.IsBuyerMaker {
		t.Errorf("expected buyer-maker flag set")
	}
	if !ev.Price.Equal(mustDecimal(t, "100.00")) {
		t.Errorf("price: got %s", ev.Price)
	}
	if !ev.Quantity.Equal(mustDecimal(t, "2.0")) {
		t.Errorf("quantity: got %s", ev.Quantity)
	}
	want := time.UnixMilli(1700000000100).UTC()
	if !ev.TradeTime.Equal(want) {
		t.Errorf("trade time: got %s, want %s", ev.TradeTime, want)
	}
	if ev.EventTime.Location() != time.UTC {
		t.Errorf("event time must be UTC")
	}
}

func TestNormalizeTradeAbsentFields(t *testing.T) {
	ev, err := NormalizeTrade([]byte(`{"e":"aggTrade","s":"ETHUSDT"}`))
	if err != nil {
		t.Fatalf("NormalizeTrade: %v", err)
	}
	if ev.AggTradeID != nil {
		t.Errorf("absent agg trade id must stay nil, got %d", *ev.AggTradeID)
	}
	if !ev.EventTime.IsZero() || !ev.TradeTime.IsZero() {
		t.Errorf("absent timestamps must map to zero time")
	}
	if !ev.Price.IsZero() || !ev.Quantity.IsZero() {
		t.Errorf("absent numerics must map to zero")
	}
}

func TestNormalizeTradeRejectsMalformedJSON(t *testing.T) {
	if _, err := NormalizeTrade([]byte(`{"p":`)); err == nil {
		t.Fatalf("expected error for truncated payload")
	}
}

func TestNormalizeDepth(t *testing.T) {
	payload := []byte(`{"e":"depthUpdate","E":1700000000123,"s":"btcusdt","U":100,"u":105,"b":[["50000.10","0.500"],["50000.00","1.250"]],"a":[["50000.20","0.750"]]}`)

	ev, err := NormalizeDepth(payload)
	if err != nil {
		t.Fatalf("NormalizeDepth: %v", err)
	}
	if ev.Symbol != "BTCUSDT" {
		t.Errorf("symbol not upper-cased: got %q", ev.Symbol)
	}
	if ev.FirstUpdateID == nil || *ev.FirstUpdateID != 100 {
		t.Errorf("first update id: got %v", ev.FirstUpdateID)
	}
	if ev.FinalUpdateID == nil || *ev.FinalUpdateID != 105 {
		t.Errorf("final update id: got %v", ev.FinalUpdateID)
	}
	// Levels pass through exactly as reported, trailing zeros included.
	if len(ev.Bids) != 2 || ev.Bids[0][0] != "50000.10" || ev.Bids[1][1] != "1.250" {
		t.Errorf("bids altered: got %v", ev.Bids)
	}
	if len(ev.Asks) != 1 || ev.Asks[0][0] != "50000.20" {
		t.Errorf("asks altered: got %v", ev.Asks)
	}
}

func TestNormalizeDepthAbsentUpdateIDs(t *testing.T) {
	ev, err := NormalizeDepth([]byte(`{"e":"depthUpdate","s":"BTCUSDT","b":[],"a":[]}`))
	if err != nil {
		t.Fatalf("NormalizeDepth: %v", err)
	}
	if ev.FirstUpdateID != nil || ev.FinalUpdateID != nil {
		t.Errorf("absent update ids must stay nil")
	}
}
