package models

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// Raw artifacts are self-describing CSVs: a header row followed by one row
// per event. Readers resolve columns by name so a column added later does not
// break older files; a column absent from the header defaults to zero/empty.

var tradeColumns = []string{
	"source", "type", "symbol", "event_time", "trade_time",
	"price", "quantity", "is_buyer_maker", "agg_trade_id",
}

var depthColumns = []string{
	"source", "type", "symbol", "event_time",
	"first_update_id", "final_update_id", "bids", "asks",
}

var candleColumns = []string{
	"time", "open", "high", "low", "close",
	"vol_total", "vol_buy", "vol_sell", "vol_delta", "trade_count",
}

const eventTimeLayout = time.RFC3339Nano

// EncodeTradesCSV serializes trade events into one raw artifact body.
func EncodeTradesCSV(events []TradeEvent) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(tradeColumns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		row := []string{
			ev.Source,
			"trade",
			ev.Symbol,
			formatEventTime(ev.EventTime),
			formatEventTime(ev.TradeTime),
			ev.Price.String(),
			ev.Quantity.String(),
			strconv.FormatBool(ev.IsBuyerMaker),
			formatOptionalID(ev.AggTradeID),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write trade row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// EncodeDepthCSV serializes depth events into one raw artifact body. Bid and
// ask level lists are JSON-encoded into single columns.
func EncodeDepthCSV(events []DepthEvent) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(depthColumns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, ev := range events {
		bids, err := json.Marshal(ev.Bids)
		if err != nil {
			return nil, fmt.Errorf("marshal bids: %w", err)
		}
		asks, err := json.Marshal(ev.Asks)
		if err != nil {
			return nil, fmt.Errorf("marshal asks: %w", err)
		}
		row := []string{
			ev.Source,
			"orderbook",
			ev.Symbol,
			formatEventTime(ev.EventTime),
			formatOptionalID(ev.FirstUpdateID),
			formatOptionalID(ev.FinalUpdateID),
			string(bids),
			string(asks),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write depth row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeTradesCSV parses one raw trade artifact. Rows whose present fields do
// not parse are skipped and counted rather than failing the batch; columns
// missing from the header default to zero values.
func DecodeTradesCSV(data []byte) ([]TradeEvent, int, error) {
	rows, idx, err := readTable(data)
	if err != nil {
		return nil, 0, err
	}
	events := make([]TradeEvent, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		ev := TradeEvent{
			Source: field(row, idx, "source"),
			Symbol: field(row, idx, "symbol"),
		}
		ok := true
		if ev.EventTime, ok = parseEventTime(field(row, idx, "event_time")); !ok {
			skipped++
			continue
		}
		if ev.TradeTime, ok = parseEventTime(field(row, idx, "trade_time")); !ok {
			skipped++
			continue
		}
		if ev.Price, ok = parseDecimal(field(row, idx, "price")); !ok {
			skipped++
			continue
		}
		if ev.Quantity, ok = parseDecimal(field(row, idx, "quantity")); !ok {
			skipped++
			continue
		}
		if s := field(row, idx, "is_buyer_maker"); s != "" {
			v, err := strconv.ParseBool(s)
			if err != nil {
				skipped++
				continue
			}
			ev.IsBuyerMaker = v
		}
		if s := field(row, idx, "agg_trade_id"); s != "" {
			id, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				skipped++
				continue
			}
			ev.AggTradeID = &id
		}
		events = append(events, ev)
	}
	return events, skipped, nil
}

// EncodeCandlesCSV serializes a candle series. Bucket times are written as
// Unix seconds, prices at the price scale, volumes at the volume scale.
func EncodeCandlesCSV(candles []Candle) ([]byte, error) {
	buf := &bytes.Buffer{}
	w := csv.NewWriter(buf)
	if err := w.Write(candleColumns); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	for _, c := range candles {
		row := []string{
			strconv.FormatInt(c.Time.UTC().Unix(), 10),
			c.Open.StringFixed(PriceScale),
			c.High.StringFixed(PriceScale),
			c.Low.StringFixed(PriceScale),
			c.Close.StringFixed(PriceScale),
			c.VolTotal.StringFixed(VolumeScale),
			c.VolBuy.StringFixed(VolumeScale),
			c.VolSell.StringFixed(VolumeScale),
			c.VolDelta.StringFixed(VolumeScale),
			strconv.FormatInt(c.TradeCount, 10),
		}
		if err := w.Write(row); err != nil {
			return nil, fmt.Errorf("write candle row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeCandlesCSV parses a candle series artifact with the same missing
// column tolerance as the raw decoders.
func DecodeCandlesCSV(data []byte) ([]Candle, int, error) {
	rows, idx, err := readTable(data)
	if err != nil {
		return nil, 0, err
	}
	candles := make([]Candle, 0, len(rows))
	skipped := 0
	for _, row := range rows {
		var c Candle
		secs, err := strconv.ParseInt(field(row, idx, "time"), 10, 64)
		if err != nil {
			skipped++
			continue
		}
		c.Time = time.Unix(secs, 0).UTC()
		ok := true
		if c.Open, ok = parseDecimal(field(row, idx, "open")); !ok {
			skipped++
			continue
		}
		if c.High, ok = parseDecimal(field(row, idx, "high")); !ok {
			skipped++
			continue
		}
		if c.Low, ok = parseDecimal(field(row, idx, "low")); !ok {
			skipped++
			continue
		}
		if c.Close, ok = parseDecimal(field(row, idx, "close")); !ok {
			skipped++
			continue
		}
		if c.VolTotal, ok = parseDecimal(field(row, idx, "vol_total")); !ok {
			skipped++
			continue
		}
		if c.VolBuy, ok = parseDecimal(field(row, idx, "vol_buy")); !ok {
			skipped++
			continue
		}
		if c.VolSell, ok = parseDecimal(field(row, idx, "vol_sell")); !ok {
			skipped++
			continue
		}
		if c.VolDelta, ok = parseDecimal(field(row, idx, "vol_delta")); !ok {
			skipped++
			continue
		}
		if s := field(row, idx, "trade_count"); s != "" {
			n, err := strconv.ParseInt(s, 10, 64)
			if err != nil {
				skipped++
				continue
			}
			c.TradeCount = n
		}
		candles = append(candles, c)
	}
	return candles, skipped, nil
}

// readTable reads a headered CSV into rows plus a column name index. An empty
// body yields no rows and no error.
func readTable(data []byte) ([][]string, map[string]int, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read csv: %w", err)
	}
	if len(records) == 0 {
		return nil, nil, nil
	}
	idx := make(map[string]int, len(records[0]))
	for i, name := range records[0] {
		idx[name] = i
	}
	return records[1:], idx, nil
}

func field(row []string, idx map[string]int, name string) string {
	i, ok := idx[name]
	if !ok || i >= len(row) {
		return ""
	}
	return row[i]
}

func formatEventTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(eventTimeLayout)
}

// parseEventTime reports ok=false only for garbled values; an empty field is
// a valid absent timestamp.
func parseEventTime(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, true
	}
	t, err := time.Parse(eventTimeLayout, s)
	if err != nil {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func parseDecimal(s string) (decimal.Decimal, bool) {
	if s == "" {
		return decimal.Zero, true
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

func formatOptionalID(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
