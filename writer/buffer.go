package writer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"orderflow/logger"
	"orderflow/models"
)

// BufferedSink accumulates normalized events per symbol in memory and hands
// snapshots to its backend on a fixed timer. The event-delivery path and the
// flush path share only the buffer maps, guarded by one mutex; the durable
// write always runs outside that lock so frame delivery is never blocked on
// storage I/O. Flushes themselves are serialized.
type BufferedSink struct {
	backend  BatchWriter
	interval time.Duration

	mu     sync.Mutex
	trades map[string][]models.TradeEvent
	depths map[string][]models.DepthEvent

	flushMu     sync.Mutex
	flushTicker *time.Ticker
	stopCh      chan struct{}
	stopOnce    sync.Once
	ctx         context.Context
	wg          *sync.WaitGroup
	stateMu     sync.RWMutex
	running     bool
	log         *logger.Log
}

// NewBufferedSink creates a sink flushing to backend every interval.
func NewBufferedSink(backend BatchWriter, interval time.Duration) *BufferedSink {
	return &BufferedSink{
		backend:  backend,
		interval: interval,
		trades:   make(map[string][]models.TradeEvent),
		depths:   make(map[string][]models.DepthEvent),
		stopCh:   make(chan struct{}),
		wg:       &sync.WaitGroup{},
		log:      logger.GetLogger(),
	}
}

// WriteTrade buffers one trade event.
func (s *BufferedSink) WriteTrade(event models.TradeEvent) error {
	s.mu.Lock()
	s.trades[event.Symbol] = append(s.trades[event.Symbol], event)
	s.mu.Unlock()
	return nil
}

// WriteDepth buffers one depth event.
func (s *BufferedSink) WriteDepth(event models.DepthEvent) error {
	s.mu.Lock()
	s.depths[event.Symbol] = append(s.depths[event.Symbol], event)
	s.mu.Unlock()
	return nil
}

// Start launches the periodic flush worker.
func (s *BufferedSink) Start(ctx context.Context) error {
	s.stateMu.Lock()
	if s.running {
		s.stateMu.Unlock()
		return fmt.Errorf("buffered sink already running")
	}
	s.running = true
	s.ctx = ctx
	s.stateMu.Unlock()

	log := s.log.WithComponent("buffered_sink").WithFields(logger.Fields{"operation": "start"})

	s.flushTicker = time.NewTicker(s.interval)
	s.wg.Add(1)
	go s.flushWorker()

	log.WithFields(logger.Fields{"flush_interval": s.interval.String()}).Info("buffered sink started")
	return nil
}

// Stop cancels the flush timer, waits for the worker, then performs one final
// synchronous flush. Events buffered when Stop is called are not lost.
func (s *BufferedSink) Stop() {
	s.stateMu.Lock()
	s.running = false
	s.stateMu.Unlock()

	s.stopOnce.Do(func() { close(s.stopCh) })
	if s.flushTicker != nil {
		s.flushTicker.Stop()
	}
	s.wg.Wait()

	s.flush("shutdown")
	s.log.WithComponent("buffered_sink").Info("buffered sink stopped")
}

func (s *BufferedSink) flushWorker() {
	defer s.wg.Done()

	log := s.log.WithComponent("buffered_sink").WithFields(logger.Fields{"worker": "flush"})
	log.Info("starting flush worker")

	for {
		select {
		case <-s.ctx.Done():
			log.Info("flush worker stopped due to context cancellation")
			return
		case <-s.stopCh:
			log.Info("flush worker stopped")
			return
		case <-s.flushTicker.C:
			s.flush("interval")
		}
	}
}

// flush swaps the buffers for empty ones under the lock and writes the
// captured snapshot outside it. A failed durable write loses the snapshot;
// re-buffering would risk unbounded growth, so the loss is logged instead.
func (s *BufferedSink) flush(reason string) {
	s.flushMu.Lock()
	defer s.flushMu.Unlock()

	s.mu.Lock()
	trades := s.trades
	depths := s.depths
	s.trades = make(map[string][]models.TradeEvent)
	s.depths = make(map[string][]models.DepthEvent)
	s.mu.Unlock()

	batch := Batch{
		BatchID:   uuid.New().String(),
		FlushedAt: time.Now().UTC(),
		Trades:    trades,
		Depths:    depths,
	}
	if batch.Size() == 0 {
		return
	}

	log := s.log.WithComponent("buffered_sink").WithFields(logger.Fields{
		"batch_id":     batch.BatchID,
		"record_count": batch.Size(),
		"reason":       reason,
	})
	log.Info("flushing buffers")

	// The recorder cancels its context before stopping the sink; the final
	// flush must still reach storage.
	ctx := context.Background()
	if s.ctx != nil {
		ctx = context.WithoutCancel(s.ctx)
	}

	if err := s.backend.WriteBatch(ctx, batch); err != nil {
		log.WithError(err).Error("durable write failed, snapshot lost")
		s.log.LogMetric("buffered_sink", "events_lost", batch.Size(), "counter", logger.Fields{"reason": reason})
		return
	}

	s.log.LogMetric("buffered_sink", "events_flushed", batch.Size(), "counter", logger.Fields{"reason": reason})
	s.log.LogMetric("buffered_sink", "flushes", 1, "counter", logger.Fields{"reason": reason})
	logger.LogDataFlowEntry(log, "buffer", "durable_storage", batch.Size(), "events")
}
