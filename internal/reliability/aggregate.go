package reliability

import (
	"sort"
	"time"

	"charger-monitor/reliability/internal/domain"
)

// ChargerResult holds everything derived for one charger in one window.
type ChargerResult struct {
	Charger   domain.Charger
	Window    Window
	Intervals []StateInterval
	Episodes  []Episode
	Impacts   []SessionImpact
	Sessions  SessionStats
	// LastStatus is nil when nothing was known about the charger.
	LastStatus *LastStatus
	// Warning is set when the charger had no data at all.
	Warning *EmptyInputWarning
}

// ComputeCharger runs the per-charger pipeline: normalize, build intervals,
// classify episodes, intersect sessions. It has no side effects and may run
// concurrently for different chargers.
func ComputeCharger(ch domain.Charger, obs []domain.Observation, sessions []domain.Session, w Window, p Params) (ChargerResult, error) {
	if err := p.Validate(); err != nil {
		return ChargerResult{}, err
	}
	stream, err := Normalize(ch.ChargerID, obs, w)
	if err != nil {
		return ChargerResult{}, err
	}
	intervals, err := BuildIntervals(stream, p)
	if err != nil {
		return ChargerResult{}, err
	}
	episodes, err := ClassifyEpisodes(intervals, w, p.MergeTolerance)
	if err != nil {
		return ChargerResult{}, err
	}
	impacts, err := SessionOverlap(sessions, episodes, w)
	if err != nil {
		return ChargerResult{}, err
	}

	res := ChargerResult{
		Charger:    ch,
		Window:     w,
		Intervals:  intervals,
		Episodes:   episodes,
		Impacts:    impacts,
		Sessions:   SummarizeSessions(sessions),
		LastStatus: lastStatus(stream),
	}
	if stream.Empty {
		res.Warning = &EmptyInputWarning{ChargerID: ch.ChargerID}
	}
	return res, nil
}

type ActiveAlert struct {
	ChargerID string      `json:"charger_id" msgpack:"charger_id"`
	Kind      EpisodeKind `json:"kind" msgpack:"kind"`
	Start     time.Time   `json:"start" msgpack:"start"`
}

// Report is the reliability summary of a scope over a window. MTBF and MTTR
// are minutes, nil when their denominator is zero. FaultRate counts outage
// episodes starting in the window per charger-day.
type Report struct {
	Scope              ScopeKind     `json:"scope" msgpack:"scope"`
	ScopeID            string        `json:"scope_id" msgpack:"scope_id"`
	WindowStart        time.Time     `json:"window_start" msgpack:"window_start"`
	WindowEnd          time.Time     `json:"window_end" msgpack:"window_end"`
	UptimeRatio        float64       `json:"uptime_ratio" msgpack:"uptime_ratio"`
	MTBF               *float64      `json:"mtbf" msgpack:"mtbf"`
	MTTR               *float64      `json:"mttr" msgpack:"mttr"`
	FaultCount         int           `json:"fault_count" msgpack:"fault_count"`
	OfflineCount       int           `json:"offline_count" msgpack:"offline_count"`
	FaultRate          float64       `json:"fault_rate" msgpack:"fault_rate"`
	LostSessionMinutes float64       `json:"lost_session_minutes" msgpack:"lost_session_minutes"`
	ActiveAlerts       []ActiveAlert `json:"active_alerts" msgpack:"active_alerts"`

	ChargerCount  int      `json:"charger_count" msgpack:"charger_count"`
	ObservedRatio float64  `json:"observed_ratio" msgpack:"observed_ratio"`
	SessionCount  int      `json:"session_count" msgpack:"session_count"`
	Warnings      []string `json:"warnings,omitempty" msgpack:"warnings,omitempty"`
}

// Aggregate pools per-charger results into one report. Durations are summed
// as integers before any division and chargers are visited in id order, so
// the output does not depend on the order results arrive in.
func Aggregate(scope Scope, w Window, results []ChargerResult) Report {
	sorted := make([]ChargerResult, len(results))
	copy(sorted, results)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Charger.ChargerID < sorted[j].Charger.ChargerID
	})

	rep := Report{
		Scope:        scope.Kind,
		ScopeID:      scope.ID,
		WindowStart:  w.Start,
		WindowEnd:    w.End,
		ChargerCount: len(sorted),
		ActiveAlerts: []ActiveAlert{},
	}

	var (
		down, unknown, repair, lost time.Duration
		started, closed             int
	)
	for _, r := range sorted {
		for _, iv := range r.Intervals {
			switch {
			case iv.State.IsOutage():
				down += iv.Duration()
			case iv.State == domain.StateUnknown:
				unknown += iv.Duration()
			}
		}
		for _, ep := range r.Episodes {
			if !ep.StartCensored {
				started++
				switch ep.Kind {
				case EpisodeFault:
					rep.FaultCount++
				case EpisodeOffline:
					rep.OfflineCount++
				}
			}
			if ep.Open() {
				rep.ActiveAlerts = append(rep.ActiveAlerts, ActiveAlert{
					ChargerID: ep.ChargerID,
					Kind:      ep.Kind,
					Start:     ep.Start,
				})
				continue
			}
			closed++
			repair += ep.Duration(w)
		}
		for _, im := range r.Impacts {
			lost += im.Overlap
		}
		rep.SessionCount += len(r.Impacts)
		if r.Warning != nil {
			rep.Warnings = append(rep.Warnings, r.Warning.Error())
		}
	}

	total := w.Duration() * time.Duration(len(sorted))
	rep.UptimeRatio = 1
	if total > 0 {
		rep.UptimeRatio = float64(total-down) / float64(total)
		rep.ObservedRatio = float64(total-unknown) / float64(total)
	}
	if total > 0 {
		rep.FaultRate = float64(started) * float64(24*time.Hour) / float64(total)
	}
	if started > 0 {
		rep.MTBF = minutes(total / time.Duration(started))
	}
	if closed > 0 {
		rep.MTTR = minutes(repair / time.Duration(closed))
	}
	rep.LostSessionMinutes = lost.Minutes()

	sort.SliceStable(rep.ActiveAlerts, func(i, j int) bool {
		a, b := rep.ActiveAlerts[i], rep.ActiveAlerts[j]
		if !a.Start.Equal(b.Start) {
			return a.Start.Before(b.Start)
		}
		return a.ChargerID < b.ChargerID
	})
	return rep
}

func minutes(d time.Duration) *float64 {
	m := d.Minutes()
	return &m
}
