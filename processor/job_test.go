package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/models"
)

type fakeStore struct {
	mu          sync.Mutex
	objects     map[string][]byte
	listErr     error
	listErrFor  string
	archiveLost bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: map[string][]byte{}}
}

func (s *fakeStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (s *fakeStore) Put(_ context.Context, key string, body []byte, _ string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[key] = body
	return nil
}

func (s *fakeStore) List(_ context.Context, prefix string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil && (s.listErrFor == "" || strings.Contains(prefix, s.listErrFor)) {
		return nil, s.listErr
	}
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *fakeStore) Exists(_ context.Context, key string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.archiveLost && strings.HasPrefix(key, "archive/") {
		return false, nil
	}
	_, ok := s.objects[key]
	return ok, nil
}

func (s *fakeStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.objects, key)
	return nil
}

func (s *fakeStore) keys(prefix string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var keys []string
	for k := range s.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

func jobConfig() appconfig.JobConfig {
	return appconfig.JobConfig{DownloadsPerSecond: 1000, DownloadBurst: 1000}
}

func seedRawDay(t *testing.T, store *fakeStore, symbol string) {
	t.Helper()
	t1 := trade(t, 10*time.Second, "100.00", "1.0", false)
	t2 := trade(t, 70*time.Second, "101.00", "2.0", true)

	first, err := models.EncodeTradesCSV([]models.TradeEvent{t1})
	if err != nil {
		t.Fatalf("encode trades: %v", err)
	}
	second, err := models.EncodeTradesCSV([]models.TradeEvent{t2})
	if err != nil {
		t.Fatalf("encode trades: %v", err)
	}
	depth, err := models.EncodeDepthCSV([]models.DepthEvent{{
		Source: models.SourceBinanceFutures,
		Symbol: symbol,
		Bids:   [][]string{{"99.9", "1"}},
		Asks:   [][]string{{"100.1", "1"}},
	}})
	if err != nil {
		t.Fatalf("encode depth: %v", err)
	}

	store.objects[models.RawArtifactKey(symbol, testDay.Add(1*time.Minute), models.KindTrades)] = first
	store.objects[models.RawArtifactKey(symbol, testDay.Add(2*time.Minute), models.KindTrades)] = second
	store.objects[models.RawArtifactKey(symbol, testDay.Add(2*time.Minute), models.KindDepth)] = depth
}

func TestProcessSymbolDayEmptyPrefixIsNoop(t *testing.T) {
	store := newFakeStore()
	job := NewJob(store, jobConfig())

	if err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay); err != nil {
		t.Fatalf("empty symbol-day must not fail: %v", err)
	}
	if len(store.objects) != 0 {
		t.Fatalf("empty symbol-day must write nothing, store has %v", store.keys(""))
	}
}

func TestProcessSymbolDayCompactsRawArtifacts(t *testing.T) {
	store := newFakeStore()
	seedRawDay(t, store, "BTCUSDT")
	job := NewJob(store, jobConfig())

	if err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay); err != nil {
		t.Fatalf("ProcessSymbolDay: %v", err)
	}

	if raws := store.keys("raw/BTCUSDT/"); len(raws) != 0 {
		t.Errorf("raw artifacts must be deleted after verification, still have %v", raws)
	}

	body, err := store.Get(context.Background(), models.CandleKey("BTCUSDT", testDay, models.Resolution1s))
	if err != nil {
		t.Fatalf("1s candle artifact missing: %v", err)
	}
	seconds, skipped, err := models.DecodeCandlesCSV(body)
	if err != nil || skipped != 0 {
		t.Fatalf("decode 1s candles: err=%v skipped=%d", err, skipped)
	}
	if len(seconds) != secondsPerDay {
		t.Fatalf("1s series: got %d rows, want %d", len(seconds), secondsPerDay)
	}
	equal(t, seconds[10].Close, "100.00", "first trade bucket close")
	equal(t, seconds[70].VolSell, "2.0", "second trade bucket vol_sell")

	minutes, _, err := models.DecodeCandlesCSV(mustGet(t, store, models.CandleKey("BTCUSDT", testDay, models.Resolution1m)))
	if err != nil {
		t.Fatalf("decode 1m candles: %v", err)
	}
	if len(minutes) != minutesPerDay {
		t.Fatalf("1m series: got %d rows, want %d", len(minutes), minutesPerDay)
	}

	archive := mustGet(t, store, models.ArchiveKey("BTCUSDT", testDay))
	zr, err := zip.NewReader(bytes.NewReader(archive), int64(len(archive)))
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	names := make([]string, 0, len(zr.File))
	for _, f := range zr.File {
		names = append(names, f.Name)
	}
	sort.Strings(names)
	want := []string{"00-01-00_trades.csv", "00-02-00_depth.csv", "00-02-00_trades.csv"}
	if len(names) != len(want) {
		t.Fatalf("archive entries: got %v, want %v", names, want)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Fatalf("archive entries: got %v, want %v", names, want)
		}
	}
}

func TestProcessSymbolDayFiltersAdjacentDayRows(t *testing.T) {
	store := newFakeStore()
	job := NewJob(store, jobConfig())

	inDay := trade(t, 5*time.Second, "100.00", "1.0", false)
	nextDay := trade(t, 24*time.Hour+5*time.Second, "999.00", "9.0", false)
	body, err := models.EncodeTradesCSV([]models.TradeEvent{inDay, nextDay})
	if err != nil {
		t.Fatalf("encode trades: %v", err)
	}
	store.objects[models.RawArtifactKey("BTCUSDT", testDay.Add(time.Minute), models.KindTrades)] = body

	if err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay); err != nil {
		t.Fatalf("ProcessSymbolDay: %v", err)
	}

	seconds, _, err := models.DecodeCandlesCSV(mustGet(t, store, models.CandleKey("BTCUSDT", testDay, models.Resolution1s)))
	if err != nil {
		t.Fatalf("decode 1s candles: %v", err)
	}
	var total int64
	for _, c := range seconds {
		total += c.TradeCount
	}
	if total != 1 {
		t.Fatalf("adjacent-day rows must be discarded: counted %d trades", total)
	}
}

func TestProcessSymbolDayWithoutSurvivingTradesLeavesRaws(t *testing.T) {
	store := newFakeStore()
	job := NewJob(store, jobConfig())

	// Only adjacent-day rows: nothing survives the day filter.
	stray := trade(t, 25*time.Hour, "1.00", "1.0", false)
	body, err := models.EncodeTradesCSV([]models.TradeEvent{stray})
	if err != nil {
		t.Fatalf("encode trades: %v", err)
	}
	key := models.RawArtifactKey("BTCUSDT", testDay.Add(time.Minute), models.KindTrades)
	store.objects[key] = body

	if err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay); err != nil {
		t.Fatalf("ProcessSymbolDay: %v", err)
	}
	if _, ok := store.objects[key]; !ok {
		t.Fatalf("raw artifact must stay when no trades survive")
	}
	if _, ok := store.objects[models.ArchiveKey("BTCUSDT", testDay)]; ok {
		t.Fatalf("no archive must be written when no trades survive")
	}
}

func TestProcessSymbolDayKeepsRawsWhenVerificationFails(t *testing.T) {
	store := newFakeStore()
	seedRawDay(t, store, "BTCUSDT")
	store.archiveLost = true
	job := NewJob(store, jobConfig())

	err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay)
	if err == nil {
		t.Fatalf("expected error when archive verification fails")
	}
	if raws := store.keys("raw/BTCUSDT/"); len(raws) != 3 {
		t.Fatalf("raw artifacts must be untouched on verification failure, have %v", raws)
	}
}

func TestProcessSymbolDayPublishesMetrics(t *testing.T) {
	var buf bytes.Buffer
	log := logger.GetLogger()
	log.SetOutput(&buf)
	defer log.SetOutput(os.Stdout)

	store := newFakeStore()
	seedRawDay(t, store, "BTCUSDT")
	job := NewJob(store, jobConfig())

	if err := job.ProcessSymbolDay(context.Background(), "BTCUSDT", testDay); err != nil {
		t.Fatalf("ProcessSymbolDay: %v", err)
	}

	out := buf.String()
	for _, metric := range []string{"trades_aggregated", "raw_artifacts_compacted", "duration_ms"} {
		if !strings.Contains(out, metric) {
			t.Errorf("symbol-day run must publish %s, got logs: %s", metric, out)
		}
	}
}

func TestRunIsolatesSymbolFailures(t *testing.T) {
	store := newFakeStore()
	seedRawDay(t, store, "ETHUSDT")
	store.listErr = errors.New("store outage")
	store.listErrFor = "BTCUSDT"
	job := NewJob(store, jobConfig())

	err := job.Run(context.Background(), []string{"BTCUSDT", "ETHUSDT"}, testDay)
	if err == nil {
		t.Fatalf("expected aggregate error when one symbol fails")
	}
	if !strings.Contains(err.Error(), "1 of 2") {
		t.Errorf("error must count failed symbols: %v", err)
	}
	if _, ok := store.objects[models.ArchiveKey("ETHUSDT", testDay)]; !ok {
		t.Errorf("healthy symbol must still be processed")
	}
}

func mustGet(t *testing.T, store *fakeStore, key string) []byte {
	t.Helper()
	data, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("expected object %s: %v", key, err)
	}
	return data
}
