package mqtt

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charger-monitor/reliability/internal/domain"
)

var received = time.Date(2025, 3, 1, 8, 0, 30, 0, time.UTC)

func TestChargerFromTopic(t *testing.T) {
	id, err := ChargerFromTopic("chargers/CHR-0001/status")
	require.NoError(t, err)
	assert.Equal(t, "CHR-0001", id)

	for _, topic := range []string{"chargers//status", "vehicles/V1/status", "chargers/a/b/status", "chargers/CHR-1"} {
		_, err := ChargerFromTopic(topic)
		assert.Error(t, err, topic)
	}
}

func TestParseNativePayload(t *testing.T) {
	obs, err := ParsePayload("CHR-1", []byte(`{"connector_id":2,"timestamp":"2025-03-01T09:00:00+01:00","state":"faulted","error_code":"GROUND_FAULT"}`), received)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFaulted, obs.State)
	assert.Equal(t, 2, obs.ConnectorID)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), obs.Timestamp)
	assert.Equal(t, "GROUND_FAULT", obs.ErrorCode)
	assert.Equal(t, received, obs.ReceivedAt)

	obs, err = ParsePayload("CHR-1", []byte(`{"state":"AVAILABLE"}`), received)
	require.NoError(t, err)
	assert.Equal(t, received, obs.Timestamp, "missing timestamp falls back to receipt time")

	_, err = ParsePayload("CHR-1", []byte(`{"charger_id":"CHR-2","state":"AVAILABLE"}`), received)
	assert.Error(t, err)

	_, err = ParsePayload("CHR-1", []byte(`{"state":"ON_FIRE"}`), received)
	assert.Error(t, err)
}

func TestParseOCPPPayload(t *testing.T) {
	obs, err := ParsePayload("CHR-1", []byte(`{"connectorId":1,"errorCode":"GroundFailure","status":"Faulted","timestamp":"2025-03-01T08:00:00Z"}`), received)
	require.NoError(t, err)
	assert.Equal(t, domain.StateFaulted, obs.State)
	assert.Equal(t, "GroundFailure", obs.ErrorCode)
	assert.Equal(t, time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC), obs.Timestamp)

	obs, err = ParsePayload("CHR-1", []byte(`[2,"19223201","StatusNotification",{"connectorId":1,"errorCode":"NoError","status":"Unavailable"}]`), received)
	require.NoError(t, err)
	assert.Equal(t, domain.StateOffline, obs.State)
	assert.Empty(t, obs.ErrorCode)
	assert.Equal(t, received, obs.Timestamp)

	_, err = ParsePayload("CHR-1", []byte(`[2,"19223201","Heartbeat",{}]`), received)
	assert.True(t, errors.Is(err, ErrUnsupportedPayload))

	_, err = ParsePayload("CHR-1", []byte(`{"temperature":21}`), received)
	assert.True(t, errors.Is(err, ErrUnsupportedPayload))
}

type recordingIngester struct {
	got []*domain.Observation
}

func (r *recordingIngester) Ingest(_ string, obs *domain.Observation) error {
	r.got = append(r.got, obs)
	return nil
}

func TestSubscriberProcess(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)
	ing := &recordingIngester{}
	s := &Subscriber{ingest: ing, log: log, now: func() time.Time { return received }}

	s.process("chargers/CHR-7/status", []byte(`{"state":"CHARGING"}`))
	s.process("chargers/CHR-7/status", []byte(`not json`))
	s.process("elsewhere", []byte(`{"state":"CHARGING"}`))

	require.Len(t, ing.got, 1)
	assert.Equal(t, "CHR-7", ing.got[0].ChargerID)
	assert.Equal(t, domain.StateCharging, ing.got[0].State)
}
