package writer

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"orderflow/models"
)

type recordingPutter struct {
	mu           sync.Mutex
	objects      map[string][]byte
	contentTypes map[string]string
	failKey      string
}

func newRecordingPutter() *recordingPutter {
	return &recordingPutter{
		objects:      map[string][]byte{},
		contentTypes: map[string]string{},
	}
}

func (p *recordingPutter) Put(_ context.Context, key string, body []byte, contentType string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failKey != "" && key == p.failKey {
		return errors.New("upload refused")
	}
	p.objects[key] = body
	p.contentTypes[key] = contentType
	return nil
}

func artifactBatch(flushedAt time.Time) Batch {
	return Batch{
		BatchID:   "test-batch",
		FlushedAt: flushedAt,
		Trades: map[string][]models.TradeEvent{
			"BTCUSDT": {trade("BTCUSDT", "100.5"), trade("BTCUSDT", "100.6")},
			"ETHUSDT": {trade("ETHUSDT", "2000.1")},
		},
		Depths: map[string][]models.DepthEvent{
			"BTCUSDT": {{
				Source: models.SourceBinanceFutures,
				Symbol: "BTCUSDT",
				Bids:   [][]string{{"100.4", "1"}},
				Asks:   [][]string{{"100.6", "2"}},
			}},
		},
	}
}

func TestS3WriteBatchFansOutPerSymbolAndKind(t *testing.T) {
	putter := newRecordingPutter()
	w := NewS3BatchWriter(putter)
	flushedAt := time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)

	if err := w.WriteBatch(context.Background(), artifactBatch(flushedAt)); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}

	wantKeys := []string{
		models.RawArtifactKey("BTCUSDT", flushedAt, models.KindTrades),
		models.RawArtifactKey("ETHUSDT", flushedAt, models.KindTrades),
		models.RawArtifactKey("BTCUSDT", flushedAt, models.KindDepth),
	}
	if len(putter.objects) != len(wantKeys) {
		t.Fatalf("got %d uploads, want %d", len(putter.objects), len(wantKeys))
	}
	for _, key := range wantKeys {
		body, ok := putter.objects[key]
		if !ok {
			t.Fatalf("missing artifact %s", key)
		}
		if putter.contentTypes[key] != "text/csv" {
			t.Errorf("%s: content type %q", key, putter.contentTypes[key])
		}
		if !strings.Contains(key, "2026-08-29") || !strings.Contains(key, "14-30-05") {
			t.Errorf("key not named by flush time: %s", key)
		}
		if len(body) == 0 {
			t.Errorf("%s: empty body", key)
		}
	}

	events, skipped, err := models.DecodeTradesCSV(putter.objects[wantKeys[0]])
	if err != nil || skipped != 0 {
		t.Fatalf("decode uploaded trades: err=%v skipped=%d", err, skipped)
	}
	if len(events) != 2 || !events[0].Price.Equal(trade("BTCUSDT", "100.5").Price) {
		t.Fatalf("uploaded artifact lost rows: %v", events)
	}
}

func TestS3WriteBatchPartialFailureLosesOnlyThatArtifact(t *testing.T) {
	putter := newRecordingPutter()
	flushedAt := time.Date(2026, 8, 29, 14, 30, 5, 0, time.UTC)
	putter.failKey = models.RawArtifactKey("BTCUSDT", flushedAt, models.KindTrades)
	w := NewS3BatchWriter(putter)

	err := w.WriteBatch(context.Background(), artifactBatch(flushedAt))
	if err == nil {
		t.Fatalf("expected error when an upload fails")
	}
	if !strings.Contains(err.Error(), "1 of 3") {
		t.Errorf("error must count failed uploads: %v", err)
	}

	// The other artifacts of the same flush still landed.
	if _, ok := putter.objects[models.RawArtifactKey("ETHUSDT", flushedAt, models.KindTrades)]; !ok {
		t.Errorf("unrelated trade artifact lost")
	}
	if _, ok := putter.objects[models.RawArtifactKey("BTCUSDT", flushedAt, models.KindDepth)]; !ok {
		t.Errorf("depth artifact lost")
	}
}

func TestS3WriteBatchSkipsEmptySymbolBuffers(t *testing.T) {
	putter := newRecordingPutter()
	w := NewS3BatchWriter(putter)

	batch := Batch{
		BatchID:   "test-batch",
		FlushedAt: time.Now().UTC(),
		Trades:    map[string][]models.TradeEvent{"BTCUSDT": {}},
		Depths:    map[string][]models.DepthEvent{},
	}
	if err := w.WriteBatch(context.Background(), batch); err != nil {
		t.Fatalf("WriteBatch: %v", err)
	}
	if len(putter.objects) != 0 {
		t.Fatalf("empty buffers must not upload, got %v", putter.objects)
	}
}
