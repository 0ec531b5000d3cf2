package writer

import (
	"context"
	"time"

	"orderflow/models"
)

// EventSink is the capability the ingestion path depends on. Both writes must
// be safe to call concurrently with an in-progress flush.
type EventSink interface {
	WriteTrade(event models.TradeEvent) error
	WriteDepth(event models.DepthEvent) error
}

// Sink is a buffered sink with its full lifecycle. Start begins the periodic
// flush timer; Stop cancels it and performs one final synchronous flush so no
// buffered event present at Stop-time is lost.
type Sink interface {
	EventSink
	Start(ctx context.Context) error
	Stop()
}

// Batch is one flush snapshot: the per-symbol buffers captured while swapping
// in empty ones. Per-symbol insertion order is preserved.
type Batch struct {
	BatchID   string
	FlushedAt time.Time
	Trades    map[string][]models.TradeEvent
	Depths    map[string][]models.DepthEvent
}

// Size returns the number of events in the batch.
func (b Batch) Size() int {
	n := 0
	for _, evs := range b.Trades {
		n += len(evs)
	}
	for _, evs := range b.Depths {
		n += len(evs)
	}
	return n
}

// BatchWriter persists one flush snapshot durably. A returned error means the
// snapshot is lost; the buffered sink logs it and does not retry.
type BatchWriter interface {
	WriteBatch(ctx context.Context, batch Batch) error
}
