package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	futures "github.com/adshao/go-binance/v2/futures"
	"github.com/gorilla/websocket"
	"github.com/jpillora/backoff"

	appconfig "orderflow/config"
	"orderflow/logger"
	"orderflow/models"
	"orderflow/writer"
)

// Reconnect policy: 1s doubling to a 30s cap, no retry limit, reset on a
// successful dial.
const (
	reconnectMin = 1 * time.Second
	reconnectMax = 30 * time.Second
)

// StreamClient owns one combined-stream websocket connection covering every
// configured symbol on both the depth and trade channels. It demultiplexes
// inbound frames by stream tag, normalizes them and hands the events to the
// sink. The client reconnects forever on connection-level failures; only
// context cancellation stops it.
type StreamClient struct {
	config  *appconfig.Config
	sink    writer.EventSink
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
}

// NewStreamClient creates a stream client delivering events to sink.
func NewStreamClient(cfg *appconfig.Config, sink writer.EventSink) *StreamClient {
	return &StreamClient{
		config: cfg,
		sink:   sink,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

// Start validates the configured symbols against the exchange and launches
// the connection worker.
func (c *StreamClient) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return fmt.Errorf("stream client already running")
	}
	c.running = true
	c.ctx = ctx
	c.mu.Unlock()

	log := c.log.WithComponent("binance_stream").WithFields(logger.Fields{"operation": "start"})

	if c.config.Feed.ValidateSymbols {
		c.validateSymbols(ctx)
	}

	log.WithFields(logger.Fields{
		"symbols":      c.config.Feed.Symbols,
		"depth_suffix": c.config.Feed.DepthSuffix,
		"trade_suffix": c.config.Feed.TradeSuffix,
	}).Info("starting stream client")

	c.wg.Add(1)
	go c.run()

	log.Info("stream client started successfully")
	return nil
}

// Stop waits for the connection worker to exit. The worker only exits on
// context cancellation, so the caller cancels first.
func (c *StreamClient) Stop() {
	c.mu.Lock()
	c.running = false
	c.mu.Unlock()

	c.log.WithComponent("binance_stream").Info("stopping stream client")
	c.wg.Wait()
	c.log.WithComponent("binance_stream").Info("stream client stopped")
}

// streamURL builds the combined subscription URL from slash-joined
// {symbol}@{suffix} tokens, two per symbol.
func (c *StreamClient) streamURL() string {
	tokens := make([]string, 0, 2*len(c.config.Feed.Symbols))
	for _, sym := range c.config.Feed.Symbols {
		lower := strings.ToLower(sym)
		tokens = append(tokens, lower+"@"+c.config.Feed.DepthSuffix)
		tokens = append(tokens, lower+"@"+c.config.Feed.TradeSuffix)
	}
	return strings.TrimSuffix(c.config.Feed.BaseURL, "/") + "?streams=" + strings.Join(tokens, "/")
}

func newReconnectBackoff() *backoff.Backoff {
	return &backoff.Backoff{Min: reconnectMin, Max: reconnectMax, Factor: 2}
}

// run is the reconnect state machine: Connecting, Streaming, Backoff, back
// to Connecting. Cancellation exits immediately from any state and is never
// treated as a retryable failure.
func (c *StreamClient) run() {
	defer c.wg.Done()

	log := c.log.WithComponent("binance_stream").WithFields(logger.Fields{"worker": "stream"})
	url := c.streamURL()
	b := newReconnectBackoff()

	log.WithFields(logger.Fields{"url": url}).Info("connecting to combined stream")

	for {
		if c.ctx.Err() != nil {
			log.Warn("stream client cancelled, shutting down")
			return
		}

		dialer := websocket.Dialer{HandshakeTimeout: c.config.Feed.HandshakeTimeout.Std()}
		conn, resp, err := dialer.DialContext(c.ctx, url, nil)
		if resp != nil && resp.Body != nil {
			resp.Body.Close()
		}
		if err != nil {
			if c.ctx.Err() != nil {
				log.Warn("stream client cancelled, shutting down")
				return
			}
			if !c.waitBackoff(log, b, err) {
				return
			}
			continue
		}

		b.Reset()
		log.Info("combined stream connected")

		err = c.readLoop(conn)
		conn.Close()

		if c.ctx.Err() != nil {
			log.Warn("stream client cancelled, shutting down")
			return
		}
		if !c.waitBackoff(log, b, err) {
			return
		}
	}
}

// waitBackoff sleeps for the next backoff delay; it returns false when the
// context was cancelled while waiting.
func (c *StreamClient) waitBackoff(log *logger.Entry, b *backoff.Backoff, cause error) bool {
	delay := b.Duration()
	log.WithError(cause).WithFields(logger.Fields{
		"reconnect_in": delay.String(),
	}).Warn("connection failed, reconnecting")

	select {
	case <-c.ctx.Done():
		log.Warn("stream client cancelled, shutting down")
		return false
	case <-time.After(delay):
		return true
	}
}

// readLoop reads frames until the connection fails or the context is
// cancelled. The pinger closes the connection on cancellation to unblock the
// read.
func (c *StreamClient) readLoop(conn *websocket.Conn) error {
	conn.SetReadLimit(c.config.Feed.ReadLimitBytes)

	pongWait := 2 * c.config.Feed.PingInterval.Std()
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	done := make(chan struct{})
	defer close(done)
	go c.pinger(conn, done)

	for {
		_, frame, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(frame)
	}
}

// pinger keeps the connection alive and tears it down on cancellation.
func (c *StreamClient) pinger(conn *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(c.config.Feed.PingInterval.Std())
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-c.ctx.Done():
			conn.Close()
			return
		case <-ticker.C:
			deadline := time.Now().Add(c.config.Feed.PingInterval.Std() / 2)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.log.WithComponent("binance_stream").WithError(err).Debug("ping failed")
			}
		}
	}
}

// dispatch routes one inbound frame to the matching normalizer and sink
// callback. Malformed frames and per-event sink failures are logged and
// dropped; neither tears down the connection.
func (c *StreamClient) dispatch(frame []byte) {
	log := c.log.WithComponent("binance_stream")

	var env models.CombinedFrame
	if err := json.Unmarshal(frame, &env); err != nil {
		log.WithError(err).Warn("non-JSON frame dropped")
		return
	}
	if env.Stream == "" || len(env.Data) == 0 {
		log.Debug("frame missing stream tag or data, dropped")
		return
	}

	switch {
	case strings.HasSuffix(env.Stream, "@"+c.config.Feed.DepthSuffix):
		ev, err := NormalizeDepth(env.Data)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"stream": env.Stream}).Warn("depth payload dropped")
			return
		}
		if err := c.sink.WriteDepth(ev); err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": ev.Symbol}).Error("depth handler failed")
		}
	case strings.HasSuffix(env.Stream, "@"+c.config.Feed.TradeSuffix):
		ev, err := NormalizeTrade(env.Data)
		if err != nil {
			log.WithError(err).WithFields(logger.Fields{"stream": env.Stream}).Warn("trade payload dropped")
			return
		}
		if err := c.sink.WriteTrade(ev); err != nil {
			log.WithError(err).WithFields(logger.Fields{"symbol": ev.Symbol}).Error("trade handler failed")
		}
	default:
		log.WithFields(logger.Fields{"stream": env.Stream}).Debug("frame for unconfigured stream dropped")
	}
}

// validateSymbols cross-checks the configured symbols against the futures
// exchange info. Failures are warnings only; the feed itself is the source
// of truth once connected.
func (c *StreamClient) validateSymbols(ctx context.Context) {
	log := c.log.WithComponent("binance_stream").WithFields(logger.Fields{"operation": "validate_symbols"})

	client := futures.NewClient("", "")
	info, err := client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		log.WithError(err).Warn("failed to fetch exchange info, skipping symbol validation")
		return
	}

	known := make(map[string]struct{}, len(info.Symbols))
	for _, s := range info.Symbols {
		known[strings.ToUpper(s.Symbol)] = struct{}{}
	}
	for _, sym := range c.config.Feed.Symbols {
		if _, ok := known[sym]; !ok {
			log.WithFields(logger.Fields{"symbol": sym}).Warn("symbol not listed on exchange")
		}
	}
}
