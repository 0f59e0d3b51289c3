package pipeline

import (
	"errors"
	"fmt"
	"time"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/metrics"
)

// ErrInvalidPing marks a ping rejected before it reaches the writers.
var ErrInvalidPing = errors.New("invalid status ping")

// Dispatcher fans every accepted ping out to the writers. A full channel
// drops the ping for that writer only.
type Dispatcher struct {
	DBChan    chan *domain.Observation
	StateChan chan *domain.Observation
	AlertChan chan *domain.Observation
}

func NewDispatcher(dbSize, stateSize, alertSize int) *Dispatcher {
	return &Dispatcher{
		DBChan:    make(chan *domain.Observation, dbSize),
		StateChan: make(chan *domain.Observation, stateSize),
		AlertChan: make(chan *domain.Observation, alertSize),
	}
}

func (d *Dispatcher) Dispatch(obs *domain.Observation) {
	select {
	case d.DBChan <- obs:
	default:
		metrics.ChannelDrops.WithLabelValues("db").Inc()
	}

	select {
	case d.StateChan <- obs:
	default:
		metrics.ChannelDrops.WithLabelValues("state").Inc()
	}

	select {
	case d.AlertChan <- obs:
	default:
		metrics.ChannelDrops.WithLabelValues("alert").Inc()
	}
}

// Ingest validates a ping from the named source, stamps its receipt time
// when the source did not, and dispatches it.
func (d *Dispatcher) Ingest(source string, obs *domain.Observation) error {
	switch {
	case obs.ChargerID == "":
		return fmt.Errorf("%w: charger_id is required", ErrInvalidPing)
	case obs.Timestamp.IsZero():
		return fmt.Errorf("%w: timestamp is required", ErrInvalidPing)
	case !obs.State.Valid():
		return fmt.Errorf("%w: state %q", ErrInvalidPing, obs.State)
	}
	if obs.ReceivedAt.IsZero() {
		obs.ReceivedAt = time.Now().UTC()
	}
	obs.Timestamp = obs.Timestamp.UTC()

	metrics.StatusReceived.WithLabelValues(source).Inc()
	d.Dispatch(obs)
	return nil
}

// Close stops the writers once they have drained their channels.
func (d *Dispatcher) Close() {
	close(d.DBChan)
	close(d.StateChan)
	close(d.AlertChan)
}
