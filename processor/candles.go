package processor

import (
	"time"

	"github.com/shopspring/decimal"

	"orderflow/models"
)

const (
	secondsPerDay    = 86400
	secondsPerMinute = 60
	minutesPerDay    = 1440
)

// Resample1s buckets one UTC day of trades into 86400 one-second candles.
// Trades must be sorted by trade time and already filtered to
// [dayStart, dayStart+24h). Buckets with no trades carry the prior close
// forward on every price field and zero-fill the volumes; buckets before the
// first trade of the day have zero prices. Prices are rounded to two
// decimals, volumes to six, and vol_delta is derived from the rounded
// volumes so the written columns stay self-consistent.
func Resample1s(trades []models.TradeEvent, dayStart time.Time) []models.Candle {
	candles := make([]models.Candle, secondsPerDay)

	var lastClose decimal.Decimal
	i := 0
	for sec := 0; sec < secondsPerDay; sec++ {
		bucketStart := dayStart.Add(time.Duration(sec) * time.Second)
		bucketEnd := bucketStart.Add(time.Second)

		candle := models.Candle{Time: bucketStart}

		var open, high, low, close decimal.Decimal
		var volBuy, volSell, volTotal decimal.Decimal
		count := int64(0)

		for i < len(trades) && trades[i].TradeTime.Before(bucketEnd) {
			tr := trades[i]
			i++

			if count == 0 {
				open, high, low = tr.Price, tr.Price, tr.Price
			} else {
				if tr.Price.GreaterThan(high) {
					high = tr.Price
				}
				if tr.Price.LessThan(low) {
					low = tr.Price
				}
			}
			close = tr.Price
			count++

			volTotal = volTotal.Add(tr.Quantity)
			if tr.IsBuyerMaker {
				volSell = volSell.Add(tr.Quantity)
			} else {
				volBuy = volBuy.Add(tr.Quantity)
			}
		}

		if count > 0 {
			candle.Open = open.Round(models.PriceScale)
			candle.High = high.Round(models.PriceScale)
			candle.Low = low.Round(models.PriceScale)
			candle.Close = close.Round(models.PriceScale)
			lastClose = candle.Close
		} else {
			candle.Open = lastClose
			candle.High = lastClose
			candle.Low = lastClose
			candle.Close = lastClose
		}

		candle.VolTotal = volTotal.Round(models.VolumeScale)
		candle.VolBuy = volBuy.Round(models.VolumeScale)
		candle.VolSell = volSell.Round(models.VolumeScale)
		candle.VolDelta = candle.VolBuy.Sub(candle.VolSell)
		candle.TradeCount = count

		candles[sec] = candle
	}

	return candles
}

// ResampleMinutes folds a filled one-second series into 1440 one-minute
// candles with first/max/min/last on prices and sums on volumes and counts.
// Gap semantics are already resolved in the input, so this is a pure fold;
// seconds before the first trade of the day carry no price and are skipped
// when picking open/high/low/close.
func ResampleMinutes(seconds []models.Candle) []models.Candle {
	candles := make([]models.Candle, 0, minutesPerDay)

	for start := 0; start < len(seconds); start += secondsPerMinute {
		end := start + secondsPerMinute
		if end > len(seconds) {
			end = len(seconds)
		}

		candle := models.Candle{Time: seconds[start].Time}
		priced := false

		for _, sec := range seconds[start:end] {
			if sec.TradeCount > 0 || !sec.Close.IsZero() {
				if !priced {
					candle.Open = sec.Open
					candle.High = sec.High
					candle.Low = sec.Low
					priced = true
				} else {
					if sec.High.GreaterThan(candle.High) {
						candle.High = sec.High
					}
					if sec.Low.LessThan(candle.Low) {
						candle.Low = sec.Low
					}
				}
				candle.Close = sec.Close
			}

			candle.VolTotal = candle.VolTotal.Add(sec.VolTotal)
			candle.VolBuy = candle.VolBuy.Add(sec.VolBuy)
			candle.VolSell = candle.VolSell.Add(sec.VolSell)
			candle.TradeCount += sec.TradeCount
		}

		candle.VolDelta = candle.VolBuy.Sub(candle.VolSell)
		candles = append(candles, candle)
	}

	return candles
}
