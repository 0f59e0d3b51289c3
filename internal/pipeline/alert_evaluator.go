package pipeline

import (
	"context"
	"encoding/json"
	"time"

	"github.com/sirupsen/logrus"

	"charger-monitor/reliability/internal/domain"
	"charger-monitor/reliability/internal/metrics"
)

// AlertRecorder persists raised alerts.
type AlertRecorder interface {
	InsertAlert(ctx context.Context, obs *domain.Observation, alertType domain.AlertType, severity domain.AlertSeverity) error
}

// AlertBus deduplicates alerts and fans them out to live subscribers.
type AlertBus interface {
	ClaimAlert(ctx context.Context, chargerID string, alertType domain.AlertType, ttl time.Duration) (bool, error)
	PublishAlert(ctx context.Context, payload []byte) error
}

// AlertMessage is the payload published for every raised alert.
type AlertMessage struct {
	ChargerID   string               `json:"charger_id"`
	AlertType   domain.AlertType     `json:"alert_type"`
	Severity    domain.AlertSeverity `json:"severity"`
	State       domain.State         `json:"state"`
	ErrorCode   string               `json:"error_code,omitempty"`
	ObservedAt  time.Time            `json:"observed_at"`
	TriggeredAt int64                `json:"triggered_at"`
}

type AlertEvaluator struct {
	ch       <-chan *domain.Observation
	recorder AlertRecorder
	bus      AlertBus
	log      *logrus.Logger
	rules    []domain.AlertRule
	dedupTTL time.Duration
	now      func() time.Time
}

func NewAlertEvaluator(
	ch <-chan *domain.Observation,
	recorder AlertRecorder,
	bus AlertBus,
	log *logrus.Logger,
	dedupTTL time.Duration,
) *AlertEvaluator {
	return &AlertEvaluator{
		ch:       ch,
		recorder: recorder,
		bus:      bus,
		log:      log,
		rules:    domain.DefaultAlertRules,
		dedupTTL: dedupTTL,
		now:      time.Now,
	}
}

func (e *AlertEvaluator) Run(ctx context.Context) {
	for {
		select {
		case obs, ok := <-e.ch:
			if !ok {
				return
			}
			e.evaluate(context.WithoutCancel(ctx), obs)

		case <-ctx.Done():
			return
		}
	}
}

func (e *AlertEvaluator) evaluate(ctx context.Context, obs *domain.Observation) {
	for _, rule := range e.rules {
		if !rule.Evaluator(obs) {
			continue
		}
		fields := logrus.Fields{"charger_id": obs.ChargerID, "alert_type": rule.Type}

		claimed, err := e.bus.ClaimAlert(ctx, obs.ChargerID, rule.Type, e.dedupTTL)
		if err != nil {
			e.log.WithError(err).WithFields(fields).Warn("alert dedup check failed")
			continue
		}
		if !claimed {
			continue
		}

		if err := e.recorder.InsertAlert(ctx, obs, rule.Type, rule.Severity); err != nil {
			e.log.WithError(err).WithFields(fields).Error("alert insert failed")
			continue
		}
		metrics.AlertsRaised.WithLabelValues(string(rule.Type)).Inc()

		payload, err := json.Marshal(AlertMessage{
			ChargerID:   obs.ChargerID,
			AlertType:   rule.Type,
			Severity:    rule.Severity,
			State:       obs.State,
			ErrorCode:   obs.ErrorCode,
			ObservedAt:  obs.Timestamp,
			TriggeredAt: e.now().Unix(),
		})
		if err != nil {
			e.log.WithError(err).WithFields(fields).Error("alert encode failed")
			continue
		}
		if err := e.bus.PublishAlert(ctx, payload); err != nil {
			e.log.WithError(err).WithFields(fields).Warn("alert publish failed")
		}
	}
}
