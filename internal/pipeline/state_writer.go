package pipeline

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/domain"
)

// StateStore keeps the latest state of every charger.
type StateStore interface {
	PipelineStateUpdate(ctx context.Context, obs *domain.Observation) error
}

const (
	stateBatchSize = 100
	stateFlush     = 50 * time.Millisecond
)

type StateWriter struct {
	ch    <-chan *domain.Observation
	state StateStore
	log   *logrus.Logger
}

func NewStateWriter(
	ch <-chan *domain.Observation,
	state StateStore,
	log *logrus.Logger,
) *StateWriter {
	return &StateWriter{ch: ch, state: state, log: log}
}

func (w *StateWriter) Run(ctx context.Context) {
	batch := make([]*domain.Observation, 0, stateBatchSize)
	ticker := time.NewTicker(stateFlush)
	defer ticker.Stop()

	for {
		select {
		case obs, ok := <-w.ch:
			if !ok {
				w.flushBatch(context.WithoutCancel(ctx), batch)
				return
			}
			batch = append(batch, obs)
			if len(batch) >= stateBatchSize {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ticker.C:
			if len(batch) > 0 {
				w.flushBatch(ctx, batch)
				batch = batch[:0]
			}

		case <-ctx.Done():
			w.flushBatch(context.WithoutCancel(ctx), batch)
			return
		}
	}
}

func (w *StateWriter) flushBatch(ctx context.Context, batch []*domain.Observation) {
	for _, obs := range batch {
		if err := w.state.PipelineStateUpdate(ctx, obs); err != nil {
			w.log.WithError(err).WithField("charger_id", obs.ChargerID).Warn("live state update failed")
		}
	}
}
