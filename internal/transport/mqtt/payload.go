package mqtt

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"

	"charger-monitor/reliability/internal/domain"
)

const (
	ocppCall           = 2
	actionStatusNotify = "StatusNotification"
	topicPrefix        = "chargers/"
	topicLeaf          = "/status"
)

var ErrUnsupportedPayload = errors.New("unsupported status payload")

// statusPayload is the native ping format.
type statusPayload struct {
	ChargerID   string    `json:"charger_id"`
	ConnectorID int       `json:"connector_id"`
	Timestamp   time.Time `json:"timestamp"`
	State       string    `json:"state"`
	ErrorCode   string    `json:"error_code"`
}

// ChargerFromTopic extracts the charger id from chargers/{id}/status.
func ChargerFromTopic(topic string) (string, error) {
	if !strings.HasPrefix(topic, topicPrefix) || !strings.HasSuffix(topic, topicLeaf) {
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
	id := strings.TrimSuffix(strings.TrimPrefix(topic, topicPrefix), topicLeaf)
	if id == "" || strings.Contains(id, "/") {
		return "", fmt.Errorf("unexpected topic %q", topic)
	}
	return id, nil
}

// ParsePayload decodes a status message. Three shapes are accepted: the
// native JSON ping, a bare OCPP 1.6 StatusNotification request, and an
// OCPP-J CALL frame carrying one.
func ParsePayload(chargerID string, payload []byte, receivedAt time.Time) (domain.Observation, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) == 0 {
		return domain.Observation{}, ErrUnsupportedPayload
	}

	if payload[0] == '[' {
		req, err := parseCallFrame(payload)
		if err != nil {
			return domain.Observation{}, err
		}
		return domain.ObservationFromStatusNotification(chargerID, req, receivedAt), nil
	}

	var probe map[string]json.RawMessage
	if err := json.Unmarshal(payload, &probe); err != nil {
		return domain.Observation{}, fmt.Errorf("decode status payload: %w", err)
	}
	if _, ok := probe["status"]; ok {
		var req core.StatusNotificationRequest
		if err := json.Unmarshal(payload, &req); err != nil {
			return domain.Observation{}, fmt.Errorf("decode StatusNotification: %w", err)
		}
		return domain.ObservationFromStatusNotification(chargerID, &req, receivedAt), nil
	}
	if _, ok := probe["state"]; !ok {
		return domain.Observation{}, ErrUnsupportedPayload
	}

	var p statusPayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return domain.Observation{}, fmt.Errorf("decode status payload: %w", err)
	}
	if p.ChargerID != "" && p.ChargerID != chargerID {
		return domain.Observation{}, fmt.Errorf("payload charger %q published on topic of %q", p.ChargerID, chargerID)
	}
	state, err := domain.ParseState(p.State)
	if err != nil {
		return domain.Observation{}, err
	}
	ts := p.Timestamp
	if ts.IsZero() {
		ts = receivedAt
	}
	return domain.Observation{
		ChargerID:   chargerID,
		ConnectorID: p.ConnectorID,
		Timestamp:   ts.UTC(),
		State:       state,
		ErrorCode:   p.ErrorCode,
		ReceivedAt:  receivedAt.UTC(),
	}, nil
}

func parseCallFrame(payload []byte) (*core.StatusNotificationRequest, error) {
	var frame []json.RawMessage
	if err := json.Unmarshal(payload, &frame); err != nil {
		return nil, fmt.Errorf("decode OCPP frame: %w", err)
	}
	if len(frame) != 4 {
		return nil, fmt.Errorf("%w: OCPP frame has %d elements", ErrUnsupportedPayload, len(frame))
	}

	var (
		msgType int
		action  string
	)
	if err := json.Unmarshal(frame[0], &msgType); err != nil || msgType != ocppCall {
		return nil, fmt.Errorf("%w: not an OCPP CALL", ErrUnsupportedPayload)
	}
	if err := json.Unmarshal(frame[2], &action); err != nil || action != actionStatusNotify {
		return nil, fmt.Errorf("%w: action %s", ErrUnsupportedPayload, frame[2])
	}

	var req core.StatusNotificationRequest
	if err := json.Unmarshal(frame[3], &req); err != nil {
		return nil, fmt.Errorf("decode StatusNotification: %w", err)
	}
	return &req, nil
}
