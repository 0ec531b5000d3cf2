package api

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"orderflow/logger"
	"orderflow/models"
	"orderflow/storage"
)

// CandleRow is the JSON shape of one candle bucket.
type CandleRow struct {
	Time       int64   `json:"time"`
	Open       float64 `json:"open"`
	High       float64 `json:"high"`
	Low        float64 `json:"low"`
	Close      float64 `json:"close"`
	VolTotal   float64 `json:"vol_total"`
	VolBuy     float64 `json:"vol_buy"`
	VolSell    float64 `json:"vol_sell"`
	VolDelta   float64 `json:"vol_delta"`
	TradeCount int64   `json:"trade_count"`
}

// GetCandles handles GET /candles?symbol=&date=&resolution=. A symbol-day
// with no aggregated artifact yields an empty list, not an error.
func (h *Handler) GetCandles(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), defaultTimeout)
	defer cancel()

	symbol := strings.ToUpper(strings.TrimSpace(c.Query("symbol")))
	if symbol == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "symbol is required"})
		return
	}

	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "date must be YYYY-MM-DD"})
		return
	}

	resolution := c.DefaultQuery("resolution", defaultResolution)
	if !models.ValidResolution(resolution) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "resolution must be 1s or 1m"})
		return
	}

	key := models.CandleKey(symbol, date, resolution)
	body, err := h.store.Get(ctx, key)
	if err != nil {
		if storage.IsNotFound(err) {
			c.JSON(http.StatusOK, []CandleRow{})
			return
		}
		h.log.WithComponent("candle_api").WithError(err).WithFields(logger.Fields{
			"key": key,
		}).Error("failed to fetch candle artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "storage unavailable"})
		return
	}

	candles, skipped, err := models.DecodeCandlesCSV(body)
	if err != nil {
		h.log.WithComponent("candle_api").WithError(err).WithFields(logger.Fields{
			"key": key,
		}).Error("unreadable candle artifact")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "artifact unreadable"})
		return
	}
	if skipped > 0 {
		h.log.WithComponent("candle_api").WithFields(logger.Fields{
			"key": key, "rows": skipped,
		}).Warn("skipped unparseable candle rows")
	}

	rows := make([]CandleRow, 0, len(candles))
	for _, cd := range candles {
		rows = append(rows, CandleRow{
			Time:       cd.Time.Unix(),
			Open:       cd.Open.InexactFloat64(),
			High:       cd.High.InexactFloat64(),
			Low:        cd.Low.InexactFloat64(),
			Close:      cd.Close.InexactFloat64(),
			VolTotal:   cd.VolTotal.InexactFloat64(),
			VolBuy:     cd.VolBuy.InexactFloat64(),
			VolSell:    cd.VolSell.InexactFloat64(),
			VolDelta:   cd.VolDelta.InexactFloat64(),
			TradeCount: cd.TradeCount,
		})
	}
	c.JSON(http.StatusOK, rows)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
