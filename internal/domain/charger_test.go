package domain

import (
	"testing"
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
	"github.com/lorenzodonini/ocpp-go/ocpp1.6/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseState(t *testing.T) {
	st, err := ParseState(" faulted ")
	require.NoError(t, err)
	assert.Equal(t, StateFaulted, st)

	_, err = ParseState("BROKEN")
	assert.Error(t, err)
}

func TestSeverityOrder(t *testing.T) {
	for i := 1; i < len(States); i++ {
		assert.Greater(t, States[i].Severity(), States[i-1].Severity(), "%s vs %s", States[i], States[i-1])
	}
	assert.True(t, StateFaulted.IsOutage())
	assert.True(t, StateOffline.IsOutage())
	assert.False(t, StateUnknown.IsOutage())
}

func TestStateFromOCPP(t *testing.T) {
	cases := map[core.ChargePointStatus]State{
		core.ChargePointStatusAvailable:     StateAvailable,
		core.ChargePointStatusPreparing:     StateAvailable,
		core.ChargePointStatusCharging:      StateCharging,
		core.ChargePointStatusSuspendedEVSE: StateCharging,
		core.ChargePointStatusFaulted:       StateFaulted,
		core.ChargePointStatusUnavailable:   StateOffline,
		core.ChargePointStatus("Bogus"):     StateUnknown,
	}
	for in, want := range cases {
		assert.Equal(t, want, StateFromOCPP(in), "status %s", in)
	}
}

func TestObservationFromStatusNotification(t *testing.T) {
	received := time.Date(2025, 3, 1, 10, 0, 30, 0, time.UTC)
	reported := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

	req := &core.StatusNotificationRequest{
		ConnectorId: 2,
		ErrorCode:   core.GroundFailure,
		Status:      core.ChargePointStatusFaulted,
		Timestamp:   types.NewDateTime(reported),
	}
	obs := ObservationFromStatusNotification("CHR-0001", req, received)
	assert.Equal(t, "CHR-0001", obs.ChargerID)
	assert.Equal(t, 2, obs.ConnectorID)
	assert.Equal(t, StateFaulted, obs.State)
	assert.Equal(t, "GroundFailure", obs.ErrorCode)
	assert.True(t, obs.Timestamp.Equal(reported))

	req = &core.StatusNotificationRequest{ErrorCode: core.NoError, Status: core.ChargePointStatusAvailable}
	obs = ObservationFromStatusNotification("CHR-0001", req, received)
	assert.Empty(t, obs.ErrorCode)
	assert.True(t, obs.Timestamp.Equal(received))
}
