package api

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"orderflow/logger"
)

const (
	defaultTimeout    = 30 * time.Second
	defaultResolution = "1m"
)

// ObjectGetter is the read-only slice of storage the query service needs.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Handler serves aggregated candle series straight from the object store.
type Handler struct {
	store ObjectGetter
	log   *logger.Log
}

// NewHandler creates the candle query handler.
func NewHandler(store ObjectGetter) *Handler {
	return &Handler{
		store: store,
		log:   logger.GetLogger(),
	}
}

// Router builds the HTTP routes.
func (h *Handler) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", h.HealthCheck)
	router.GET("/candles", h.GetCandles)

	return router
}
