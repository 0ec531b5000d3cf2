package models

import (
	"fmt"
	"time"
)

// Storage path conventions. Raw artifacts are partitioned by symbol and UTC
// date and named by time of flush; a day's candles and archive live beside
// them under their own prefixes.
//
//	raw/{SYMBOL}/{YYYY-MM-DD}/{HH-MM-SS}_{kind}.csv
//	aggregated/{SYMBOL}/{YYYY-MM-DD}_{resolution}.csv
//	archive/{SYMBOL}/{YYYY-MM-DD}_raw.zip

const dateLayout = "2006-01-02"

// RawPrefix returns the listing prefix for one symbol-day of raw artifacts.
func RawPrefix(symbol string, date time.Time) string {
	return fmt.Sprintf("raw/%s/%s/", symbol, date.UTC().Format(dateLayout))
}

// RawArtifactKey returns the object key for a raw batch flushed at t.
func RawArtifactKey(symbol string, t time.Time, kind string) string {
	t = t.UTC()
	return fmt.Sprintf("raw/%s/%s/%s_%s.csv", symbol, t.Format(dateLayout), t.Format("15-04-05"), kind)
}

// CandleKey returns the object key for a symbol-day candle series.
func CandleKey(symbol string, date time.Time, resolution string) string {
	return fmt.Sprintf("aggregated/%s/%s_%s.csv", symbol, date.UTC().Format(dateLayout), resolution)
}

// ArchiveKey returns the object key for a symbol-day raw archive bundle.
func ArchiveKey(symbol string, date time.Time) string {
	return fmt.Sprintf("archive/%s/%s_raw.zip", symbol, date.UTC().Format(dateLayout))
}
