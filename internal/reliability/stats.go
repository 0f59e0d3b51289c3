package reliability

import (
	"sort"
	"time"

	"charger-monitor/reliability/internal/domain"
)

// SessionStats summarizes the charging sessions of one charger that touch
// the window. Sessions are counted whole, including the parts outside it.
type SessionStats struct {
	Count              int        `json:"sessions" msgpack:"sessions"`
	TotalEnergyKWh     float64    `json:"total_energy_kwh" msgpack:"total_energy_kwh"`
	AvgDurationMinutes *float64   `json:"avg_duration_minutes" msgpack:"avg_duration_minutes"`
	FirstSession       *time.Time `json:"first_session" msgpack:"first_session"`
	LastSession        *time.Time `json:"last_session" msgpack:"last_session"`
}

// LastStatus is the most recent real ping known at the end of the window.
type LastStatus struct {
	State      domain.State `json:"state" msgpack:"state"`
	ObservedAt time.Time    `json:"observed_at" msgpack:"observed_at"`
}

// SummarizeSessions visits sessions in start order so the energy sum does
// not depend on the order the store returned them in.
func SummarizeSessions(sessions []domain.Session) SessionStats {
	ss := make([]domain.Session, len(sessions))
	copy(ss, sessions)
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].Start.Equal(ss[j].Start) {
			return ss[i].Start.Before(ss[j].Start)
		}
		return ss[i].SessionID < ss[j].SessionID
	})

	var (
		stats SessionStats
		total time.Duration
	)
	for _, s := range ss {
		stats.Count++
		stats.TotalEnergyKWh += s.EnergyKWh
		total += s.End.Sub(s.Start)
		if stats.FirstSession == nil || s.Start.Before(*stats.FirstSession) {
			start := s.Start
			stats.FirstSession = &start
		}
		if stats.LastSession == nil || s.End.After(*stats.LastSession) {
			end := s.End
			stats.LastSession = &end
		}
	}
	if stats.Count > 0 {
		stats.AvgDurationMinutes = minutes(total / time.Duration(stats.Count))
	}
	return stats
}

// lastStatus reads the last real ping out of a normalized stream. The
// closing point always carries it unless nothing was known.
func lastStatus(s Stream) *LastStatus {
	if s.Empty {
		return nil
	}
	closing := s.Points[len(s.Points)-1]
	return &LastStatus{State: closing.State, ObservedAt: closing.ObservedAt}
}
