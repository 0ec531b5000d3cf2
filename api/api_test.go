package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/shopspring/decimal"

	"orderflow/models"
)

type fakeGetter struct {
	objects map[string][]byte
	err     error
}

func (g *fakeGetter) Get(_ context.Context, key string) ([]byte, error) {
	if g.err != nil {
		return nil, g.err
	}
	data, ok := g.objects[key]
	if !ok {
		return nil, fmt.Errorf("failed to download %s: %w", key, &s3types.NoSuchKey{})
	}
	return data, nil
}

func seedCandles(t *testing.T, symbol, date, resolution string) map[string][]byte {
	t.Helper()
	day, err := time.Parse("2006-01-02", date)
	if err != nil {
		t.Fatalf("bad date: %v", err)
	}
	body, err := models.EncodeCandlesCSV([]models.Candle{{
		Time:       day,
		Open:       decimal.RequireFromString("100.00"),
		High:       decimal.RequireFromString("101.00"),
		Low:        decimal.RequireFromString("99.50"),
		Close:      decimal.RequireFromString("100.50"),
		VolTotal:   decimal.RequireFromString("3.5"),
		VolBuy:     decimal.RequireFromString("2.0"),
		VolSell:    decimal.RequireFromString("1.5"),
		VolDelta:   decimal.RequireFromString("0.5"),
		TradeCount: 7,
	}})
	if err != nil {
		t.Fatalf("encode candles: %v", err)
	}
	return map[string][]byte{
		models.CandleKey(symbol, day, resolution): body,
	}
}

func serve(h *Handler, url string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, url, nil)
	h.Router().ServeHTTP(w, req)
	return w
}

func TestGetCandles(t *testing.T) {
	h := NewHandler(&fakeGetter{objects: seedCandles(t, "BTCUSDT", "2026-08-29", "1m")})

	w := serve(h, "/candles?symbol=btcusdt&date=2026-08-29&resolution=1m")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var rows []CandleRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	row := rows[0]
	if row.Open != 100.0 || row.Close != 100.5 {
		t.Errorf("prices: got open=%v close=%v", row.Open, row.Close)
	}
	if row.VolDelta != 0.5 {
		t.Errorf("vol_delta: got %v", row.VolDelta)
	}
	if row.TradeCount != 7 {
		t.Errorf("trade_count: got %d", row.TradeCount)
	}
}

func TestGetCandlesAbsentArtifactReturnsEmptyList(t *testing.T) {
	h := NewHandler(&fakeGetter{objects: map[string][]byte{}})

	w := serve(h, "/candles?symbol=BTCUSDT&date=2026-08-29&resolution=1s")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if got := w.Body.String(); got != "[]" {
		t.Fatalf("body: got %s, want []", got)
	}
}

func TestGetCandlesRejectsBadRequests(t *testing.T) {
	h := NewHandler(&fakeGetter{objects: map[string][]byte{}})

	urls := []string{
		"/candles?date=2026-08-29&resolution=1m",
		"/candles?symbol=BTCUSDT&resolution=1m",
		"/candles?symbol=BTCUSDT&date=not-a-date&resolution=1m",
		"/candles?symbol=BTCUSDT&date=2026-08-29&resolution=5m",
	}
	for _, url := range urls {
		if w := serve(h, url); w.Code != http.StatusBadRequest {
			t.Errorf("%s: got status %d, want 400", url, w.Code)
		}
	}
}

func TestGetCandlesDefaultsToOneMinute(t *testing.T) {
	h := NewHandler(&fakeGetter{objects: seedCandles(t, "BTCUSDT", "2026-08-29", "1m")})

	w := serve(h, "/candles?symbol=BTCUSDT&date=2026-08-29")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var rows []CandleRow
	if err := json.Unmarshal(w.Body.Bytes(), &rows); err != nil || len(rows) != 1 {
		t.Fatalf("default resolution must serve the 1m artifact: err=%v rows=%d", err, len(rows))
	}
}

func TestGetCandlesStorageFailure(t *testing.T) {
	h := NewHandler(&fakeGetter{err: errors.New("connection reset")})

	w := serve(h, "/candles?symbol=BTCUSDT&date=2026-08-29&resolution=1m")
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want 500", w.Code)
	}
}

func TestHealthCheck(t *testing.T) {
	h := NewHandler(&fakeGetter{})

	w := serve(h, "/health")
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
}
