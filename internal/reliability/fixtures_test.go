package reliability

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"charger-monitor/reliability/internal/domain"
)

var t0 = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func at(min int) time.Time {
	return t0.Add(time.Duration(min) * time.Minute)
}

func ptr(t time.Time) *time.Time { return &t }

func hour(t *testing.T) Window {
	t.Helper()
	w, err := NewWindow(at(0), at(60))
	require.NoError(t, err)
	return w
}

func ping(chargerID string, min int, st domain.State) domain.Observation {
	return domain.Observation{
		ChargerID:  chargerID,
		Timestamp:  at(min),
		State:      st,
		ReceivedAt: at(min),
	}
}

// timeline pings every five minutes from 0 to 60 inclusive. Minutes listed
// in overrides report that state, all others report AVAILABLE.
func timeline(chargerID string, overrides map[int]domain.State) []domain.Observation {
	var obs []domain.Observation
	for m := 0; m <= 60; m += 5 {
		st := domain.StateAvailable
		if o, ok := overrides[m]; ok {
			st = o
		}
		obs = append(obs, ping(chargerID, m, st))
	}
	return obs
}

// randomPings returns a noisy stream around [0, 60]: pre-window pings,
// pings on the boundaries, duplicate timestamps and invalid states.
func randomPings(r *rand.Rand, chargerID string) []domain.Observation {
	n := r.Intn(40)
	obs := make([]domain.Observation, 0, n)
	for i := 0; i < n; i++ {
		ts := at(-30).Add(time.Duration(r.Intn(120*60)) * time.Second)
		if r.Intn(10) == 0 {
			ts = at(60)
		}
		st := domain.States[r.Intn(len(domain.States))]
		if r.Intn(25) == 0 {
			st = domain.State("BROKEN")
		}
		o := domain.Observation{
			ChargerID:  chargerID,
			Timestamp:  ts,
			State:      st,
			ReceivedAt: ts.Add(time.Duration(r.Intn(5)) * time.Second),
		}
		obs = append(obs, o)
		if r.Intn(8) == 0 {
			obs = append(obs, o)
		}
	}
	return obs
}

func randomSessions(r *rand.Rand, chargerID string) []domain.Session {
	n := r.Intn(6)
	out := make([]domain.Session, 0, n)
	for i := 0; i < n; i++ {
		start := at(-10).Add(time.Duration(r.Intn(80)) * time.Minute)
		out = append(out, domain.Session{
			SessionID: chargerID + "-s" + string(rune('a'+i)),
			ChargerID: chargerID,
			Start:     start,
			End:       start.Add(time.Duration(5+r.Intn(40)) * time.Minute),
			EnergyKWh: 10,
		})
	}
	return out
}

func mustCompute(t *testing.T, id string, obs []domain.Observation, sessions []domain.Session, w Window, p Params) ChargerResult {
	t.Helper()
	res, err := ComputeCharger(domain.Charger{ChargerID: id}, obs, sessions, w, p)
	require.NoError(t, err)
	return res
}
