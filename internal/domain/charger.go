package domain

import (
	"fmt"
	"strings"
	"time"
)

// State is the status a charger reports in a ping.
type State string

const (
	StateAvailable State = "AVAILABLE"
	StateCharging  State = "CHARGING"
	StateFaulted   State = "FAULTED"
	StateOffline   State = "OFFLINE"
	StateUnknown   State = "UNKNOWN"
)

// States lists every state in ascending severity.
var States = []State{StateUnknown, StateAvailable, StateCharging, StateOffline, StateFaulted}

func ParseState(s string) (State, error) {
	st := State(strings.ToUpper(strings.TrimSpace(s)))
	if !st.Valid() {
		return StateUnknown, fmt.Errorf("unknown charger state %q", s)
	}
	return st, nil
}

func (s State) Valid() bool {
	switch s {
	case StateAvailable, StateCharging, StateFaulted, StateOffline, StateUnknown:
		return true
	default:
		return false
	}
}

// IsOutage reports whether the state counts against uptime.
func (s State) IsOutage() bool {
	return s == StateFaulted || s == StateOffline
}

// Severity orders states when two pings for the same instant disagree.
func (s State) Severity() int {
	switch s {
	case StateFaulted:
		return 4
	case StateOffline:
		return 3
	case StateCharging:
		return 2
	case StateAvailable:
		return 1
	default:
		return 0
	}
}

// Observation is a single status ping.
type Observation struct {
	ChargerID   string
	ConnectorID int
	Timestamp   time.Time
	State       State
	ErrorCode   string

	// ReceivedAt is the server receipt time; the latest receipt wins when
	// two pings share a timestamp.
	ReceivedAt time.Time
}

// Session is a charging session as recorded by the charger backend.
type Session struct {
	SessionID string
	ChargerID string
	Start     time.Time
	End       time.Time
	EnergyKWh float64
}

type Charger struct {
	ChargerID     string  `json:"charger_id" msgpack:"charger_id"`
	SiteID        string  `json:"site_id" msgpack:"site_id"`
	SiteName      string  `json:"site_name" msgpack:"site_name"`
	Model         string  `json:"model" msgpack:"model"`
	ConnectorType string  `json:"connector_type" msgpack:"connector_type"`
	MaxPowerKW    float64 `json:"max_power_kw" msgpack:"max_power_kw"`
}
