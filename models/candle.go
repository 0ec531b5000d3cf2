package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Rounding scales applied uniformly when candles are written: prices to two
// decimals, volumes (and the derived delta) to six.
const (
	PriceScale  = 2
	VolumeScale = 6
)

// Candle resolutions accepted by the aggregation job and the query service.
const (
	Resolution1s = "1s"
	Resolution1m = "1m"
)

// Candle is one fixed-duration OHLCV bucket for a symbol. When TradeCount is
// zero the price fields carry the prior bucket's close forward and every
// volume field is zero.
type Candle struct {
	Time       time.Time
	Open       decimal.Decimal
	High       decimal.Decimal
	Low        decimal.Decimal
	Close      decimal.Decimal
	VolTotal   decimal.Decimal
	VolBuy     decimal.Decimal
	VolSell    decimal.Decimal
	VolDelta   decimal.Decimal
	TradeCount int64
}

// ValidResolution reports whether res is a resolution this system produces.
func ValidResolution(res string) bool {
	return res == Resolution1s || res == Resolution1m
}
