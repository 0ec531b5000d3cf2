package writer

import (
	"context"
	"fmt"

	"orderflow/logger"
	"orderflow/models"
)

// objectPutter is the slice of storage the artifact writer depends on.
type objectPutter interface {
	Put(ctx context.Context, key string, body []byte, contentType string) error
}

// S3BatchWriter persists flush snapshots as raw CSV artifacts, one object per
// symbol and event kind, named by the flush time. Uploads are whole-object:
// a failed upload loses that symbol/kind artifact only.
type S3BatchWriter struct {
	store objectPutter
	log   *logger.Log
}

// NewS3BatchWriter wraps the object store as a sink backend.
func NewS3BatchWriter(store objectPutter) *S3BatchWriter {
	return &S3BatchWriter{store: store, log: logger.GetLogger()}
}

// WriteBatch uploads every non-empty symbol buffer in the snapshot.
func (w *S3BatchWriter) WriteBatch(ctx context.Context, batch Batch) error {
	log := w.log.WithComponent("s3_batch_writer").WithFields(logger.Fields{"batch_id": batch.BatchID})

	uploads, failed := 0, 0

	for symbol, events := range batch.Trades {
		if len(events) == 0 {
			continue
		}
		data, err := models.EncodeTradesCSV(events)
		if err != nil {
			failed++
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("failed to encode trade artifact")
			continue
		}
		key := models.RawArtifactKey(symbol, batch.FlushedAt, models.KindTrades)
		if err := w.upload(ctx, log, key, data, len(events)); err != nil {
			failed++
			continue
		}
		uploads++
	}

	for symbol, events := range batch.Depths {
		if len(events) == 0 {
			continue
		}
		data, err := models.EncodeDepthCSV(events)
		if err != nil {
			failed++
			log.WithError(err).WithFields(logger.Fields{"symbol": symbol}).Error("failed to encode depth artifact")
			continue
		}
		key := models.RawArtifactKey(symbol, batch.FlushedAt, models.KindDepth)
		if err := w.upload(ctx, log, key, data, len(events)); err != nil {
			failed++
			continue
		}
		uploads++
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d artifact uploads failed", failed, failed+uploads)
	}
	return nil
}

func (w *S3BatchWriter) upload(ctx context.Context, log *logger.Entry, key string, data []byte, records int) error {
	if err := w.store.Put(ctx, key, data, "text/csv"); err != nil {
		log.WithError(err).
			WithEnv("S3_BUCKET").
			WithFields(logger.Fields{"key": key}).
			Error("failed to upload raw artifact")
		return err
	}
	log.WithFields(logger.Fields{
		"key":          key,
		"record_count": records,
		"size_bytes":   len(data),
	}).Info("raw artifact uploaded")
	return nil
}
