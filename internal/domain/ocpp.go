package domain

import (
	"time"

	"github.com/lorenzodonini/ocpp-go/ocpp1.6/core"
)

// StateFromOCPP maps an OCPP 1.6 connector status onto the reliability states.
// Unavailable means the operator or the charger took the connector out of
// service, which users experience the same way as a charger that is offline.
func StateFromOCPP(status core.ChargePointStatus) State {
	switch status {
	case core.ChargePointStatusAvailable,
		core.ChargePointStatusPreparing,
		core.ChargePointStatusFinishing,
		core.ChargePointStatusReserved:
		return StateAvailable
	case core.ChargePointStatusCharging,
		core.ChargePointStatusSuspendedEV,
		core.ChargePointStatusSuspendedEVSE:
		return StateCharging
	case core.ChargePointStatusFaulted:
		return StateFaulted
	case core.ChargePointStatusUnavailable:
		return StateOffline
	default:
		return StateUnknown
	}
}

// ObservationFromStatusNotification converts a StatusNotification request.
// Chargers without a synchronised clock omit the timestamp; receipt time is
// used instead.
func ObservationFromStatusNotification(chargerID string, req *core.StatusNotificationRequest, receivedAt time.Time) Observation {
	ts := receivedAt
	if req.Timestamp != nil && !req.Timestamp.Time.IsZero() {
		ts = req.Timestamp.Time
	}

	errorCode := ""
	if req.ErrorCode != core.NoError {
		errorCode = string(req.ErrorCode)
	}

	return Observation{
		ChargerID:   chargerID,
		ConnectorID: req.ConnectorId,
		Timestamp:   ts.UTC(),
		State:       StateFromOCPP(req.Status),
		ErrorCode:   errorCode,
		ReceivedAt:  receivedAt.UTC(),
	}
}
