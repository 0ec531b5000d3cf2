package processor

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"time"

	"golang.org/x/time/rate"

	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/models"
)

// objectStore is the slice of storage the job depends on.
type objectStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, body []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
}

// Job compacts one day of raw artifacts per symbol into candle files and an
// archive bundle, deleting the raw artifacts only after the bundle is
// verified present.
type Job struct {
	store   objectStore
	limiter *rate.Limiter
	log     *logger.Log
}

// NewJob builds a daily aggregation job. Downloads are throttled by the
// configured rate so a large backlog does not hammer the store.
func NewJob(store objectStore, cfg appconfig.JobConfig) *Job {
	return &Job{
		store:   store,
		limiter: rate.NewLimiter(rate.Limit(cfg.DownloadsPerSecond), cfg.DownloadBurst),
		log:     logger.GetLogger(),
	}
}

// Run processes every symbol for the target date. Symbols are independent:
// a failure on one is logged and the rest still run. The returned error
// reports how many symbols failed, if any.
func (j *Job) Run(ctx context.Context, symbols []string, date time.Time) error {
	log := j.log.WithComponent("aggregation_job").WithFields(logger.Fields{
		"date": date.Format("2006-01-02"),
	})
	log.WithFields(logger.Fields{"symbols": symbols}).Info("starting daily aggregation")

	failures := 0
	for _, symbol := range symbols {
		if err := j.ProcessSymbolDay(ctx, symbol, date); err != nil {
			failures++
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("symbol-day aggregation failed")
		}
	}

	if failures > 0 {
		return fmt.Errorf("%d of %d symbols failed", failures, len(symbols))
	}
	log.Info("daily aggregation finished")
	return nil
}

// ProcessSymbolDay runs the full compaction pipeline for one symbol-day.
// A day with no raw artifacts is a clean no-op. Raw artifacts are deleted
// only after the archive bundle is confirmed present in the store.
func (j *Job) ProcessSymbolDay(ctx context.Context, symbol string, date time.Time) error {
	started := time.Now()
	symbol = strings.ToUpper(symbol)
	dayStart := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	dayEnd := dayStart.Add(24 * time.Hour)

	log := j.log.WithComponent("aggregation_job").WithFields(logger.Fields{
		"symbol": symbol,
		"date":   dayStart.Format("2006-01-02"),
	})

	prefix := models.RawPrefix(symbol, dayStart)
	keys, err := j.store.List(ctx, prefix)
	if err != nil {
		return fmt.Errorf("list raw artifacts under %s: %w", prefix, err)
	}
	if len(keys) == 0 {
		log.Warn("no raw artifacts for symbol-day, skipping")
		return nil
	}
	sort.Strings(keys)
	log.WithFields(logger.Fields{"artifacts": len(keys)}).Info("downloading raw artifacts")

	// Download everything once. The bytes feed both the trade parse and
	// the archive bundle.
	blobs := make(map[string][]byte, len(keys))
	for _, key := range keys {
		if err := j.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("download throttle: %w", err)
		}
		data, err := j.store.Get(ctx, key)
		if err != nil {
			return fmt.Errorf("download raw artifact %s: %w", key, err)
		}
		blobs[key] = data
	}

	trades := j.parseTrades(log, keys, blobs)

	sort.SliceStable(trades, func(a, b int) bool {
		return trades[a].TradeTime.Before(trades[b].TradeTime)
	})
	trades = filterDay(trades, dayStart, dayEnd)

	if len(trades) == 0 {
		log.Warn("no trades left after parsing and filtering, leaving raw artifacts in place")
		return nil
	}

	seconds := Resample1s(trades, dayStart)
	minutes := ResampleMinutes(seconds)

	if err := j.uploadCandles(ctx, symbol, dayStart, models.Resolution1s, seconds); err != nil {
		return err
	}
	if err := j.uploadCandles(ctx, symbol, dayStart, models.Resolution1m, minutes); err != nil {
		return err
	}
	log.WithFields(logger.Fields{
		"trades":     len(trades),
		"candles_1s": len(seconds),
		"candles_1m": len(minutes),
	}).Info("candle artifacts uploaded")

	archiveKey := models.ArchiveKey(symbol, dayStart)
	bundle, err := buildArchive(keys, blobs)
	if err != nil {
		return fmt.Errorf("build archive bundle: %w", err)
	}
	if err := j.store.Put(ctx, archiveKey, bundle, "application/zip"); err != nil {
		return fmt.Errorf("upload archive bundle %s: %w", archiveKey, err)
	}

	exists, err := j.store.Exists(ctx, archiveKey)
	if err != nil {
		return fmt.Errorf("verify archive bundle %s: %w", archiveKey, err)
	}
	if !exists {
		return fmt.Errorf("archive bundle %s not found after upload, raw artifacts kept", archiveKey)
	}

	deleted := 0
	for _, key := range keys {
		if err := j.store.Delete(ctx, key); err != nil {
			log.WithError(err).WithFields(logger.Fields{"key": key}).Error("failed to delete raw artifact")
			continue
		}
		deleted++
	}
	log.WithFields(logger.Fields{"archive": archiveKey, "deleted": deleted}).Info("symbol-day compacted")

	j.log.LogMetric("aggregation_job", "trades_aggregated", len(trades), "counter", logger.Fields{"symbol": symbol})
	j.log.LogMetric("aggregation_job", "raw_artifacts_compacted", deleted, "counter", logger.Fields{"symbol": symbol})
	logger.LogPerformanceEntry(log, "aggregation_job", "process_symbol_day", time.Since(started), logger.Fields{"symbol": symbol})
	return nil
}

// parseTrades decodes every trade artifact, skipping unparseable rows with a
// warning. Depth artifacts are carried into the archive but not aggregated.
func (j *Job) parseTrades(log *logger.Entry, keys []string, blobs map[string][]byte) []models.TradeEvent {
	var trades []models.TradeEvent
	for _, key := range keys {
		if !strings.HasSuffix(key, "_"+models.KindTrades+".csv") {
			continue
		}
		parsed, skipped, err := models.DecodeTradesCSV(blobs[key])
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"key": key}).Warn("unreadable trade artifact skipped")
			continue
		}
		if skipped > 0 {
			log.WithFields(logger.Fields{"key": key, "rows": skipped}).Warn("skipped unparseable trade rows")
		}
		trades = append(trades, parsed...)
	}
	return trades
}

func (j *Job) uploadCandles(ctx context.Context, symbol string, date time.Time, resolution string, candles []models.Candle) error {
	body, err := models.EncodeCandlesCSV(candles)
	if err != nil {
		return fmt.Errorf("encode %s candles: %w", resolution, err)
	}
	key := models.CandleKey(symbol, date, resolution)
	if err := j.store.Put(ctx, key, body, "text/csv"); err != nil {
		return fmt.Errorf("upload candle artifact %s: %w", key, err)
	}
	return nil
}

// filterDay keeps trades with a trade time in [dayStart, dayEnd). The trade
// time is the source of truth; buffering lag lets adjacent-day rows leak
// into a day's artifacts.
func filterDay(trades []models.TradeEvent, dayStart, dayEnd time.Time) []models.TradeEvent {
	kept := trades[:0]
	for _, tr := range trades {
		if tr.TradeTime.Before(dayStart) || !tr.TradeTime.Before(dayEnd) {
			continue
		}
		kept = append(kept, tr)
	}
	return kept
}

// buildArchive zips every consumed raw artifact under its original basename.
func buildArchive(keys []string, blobs map[string][]byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, key := range keys {
		w, err := zw.Create(path.Base(key))
		if err != nil {
			return nil, fmt.Errorf("add %s to archive: %w", key, err)
		}
		if _, err := w.Write(blobs[key]); err != nil {
			return nil, fmt.Errorf("write %s into archive: %w", key, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("finalize archive: %w", err)
	}
	return buf.Bytes(), nil
}
