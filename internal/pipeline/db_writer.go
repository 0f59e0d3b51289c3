package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/metrics"
)

// StatusWriter persists status pings in bulk.
type StatusWriter interface {
	BatchInsertStatus(ctx context.Context, obs []*domain.Observation) error
}

type DBWriter struct {
	ch         <-chan *domain.Observation
	db         StatusWriter
	log        *logrus.Logger
	batchSize  int
	flushEvery time.Duration
	retryDelay time.Duration
}

func NewDBWriter(
	ch <-chan *domain.Observation,
	db StatusWriter,
	log *logrus.Logger,
	batchSize int,
	flushMS int,
) *DBWriter {
	if batchSize <= 0 {
		batchSize = 1
	}
	if flushMS <= 0 {
		flushMS = 100
	}
	return &DBWriter{
		ch:         ch,
		db:         db,
		log:        log,
		batchSize:  batchSize,
		flushEvery: time.Duration(flushMS) * time.Millisecond,
		retryDelay: 500 * time.Millisecond,
	}
}

func (w *DBWriter) Run(ctx context.Context) {
	batch := make([]*domain.Observation, 0, w.batchSize)
	ticker := time.NewTicker(w.flushEvery)
	defer ticker.Stop()

	for {
		select {
		case obs, ok := <-w.ch:
			if !ok {
				if len(batch) > 0 {
					w.flush(context.WithoutCancel(ctx), batch)
				}
				return
			}
			batch = append(batch, obs)
			if len(batch) >= w.batchSize {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flush(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			if len(batch) > 0 {
				w.flush(context.WithoutCancel(ctx), batch)
			}
			return
		}
	}
}

func (w *DBWriter) flush(ctx context.Context, batch []*domain.Observation) {
	err := w.db.BatchInsertStatus(ctx, batch)
	if err != nil {
		w.log.WithError(err).WithField("batch", len(batch)).Warn("status write failed, retrying")
		time.Sleep(w.retryDelay)
		err = w.db.BatchInsertStatus(ctx, batch)
		if err != nil {
			w.log.WithError(err).WithField("batch", len(batch)).Error("status write permanently failed")
			metrics.DBWriteFailures.Add(float64(len(batch)))
			return
		}
	}
	metrics.DBWriteSuccess.Add(float64(len(batch)))
}
