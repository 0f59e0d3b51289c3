package reliability

import (
	"time"

	"charger-monitor/reliability/internal/domain"
)

type EpisodeKind string

const (
	EpisodeFault   EpisodeKind = "FAULT"
	EpisodeOffline EpisodeKind = "OFFLINE"
)

func kindOf(s domain.State) EpisodeKind {
	if s == domain.StateOffline {
		return EpisodeOffline
	}
	return EpisodeFault
}

// Episode is one outage built from one or more FAULTED/OFFLINE intervals.
// A nil End means the outage was still ongoing at the end of the window.
type Episode struct {
	ChargerID   string      `json:"charger_id" msgpack:"charger_id"`
	Kind        EpisodeKind `json:"kind" msgpack:"kind"`
	Start       time.Time   `json:"start" msgpack:"start"`
	End         *time.Time  `json:"end" msgpack:"end"`
	IntervalIDs []int       `json:"interval_ids" msgpack:"interval_ids"`

	// StartCensored is set when the outage was already in progress at the
	// window start, so its real start is unknown.
	StartCensored bool `json:"start_censored" msgpack:"start_censored"`
	// EndCensored is set on a closed episode whose end came from the ping
	// going stale rather than from an observed recovery.
	EndCensored bool `json:"end_censored" msgpack:"end_censored"`
}

func (e Episode) Open() bool {
	return e.End == nil
}

// EndOr returns the episode end, or fallback when it is still open.
func (e Episode) EndOr(fallback time.Time) time.Time {
	if e.End == nil {
		return fallback
	}
	return *e.End
}

// Duration of the episode within w. Open episodes run to w.End.
func (e Episode) Duration(w Window) time.Duration {
	return e.EndOr(w.End).Sub(e.Start)
}

// ClassifyEpisodes merges outage intervals into episodes. Two outage
// intervals join when the gap between them is at most tolerance, whatever
// lies in between. The first interval decides the kind of the episode.
func ClassifyEpisodes(intervals []StateInterval, w Window, tolerance time.Duration) ([]Episode, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	if tolerance < 0 {
		return nil, &ConfigError{Field: "merge_tolerance", Reason: "must not be negative"}
	}

	var (
		episodes []Episode
		cur      *Episode
		lastIdx  int
		lastEnd  time.Time
	)

	flush := func() {
		if cur == nil {
			return
		}
		last := intervals[lastIdx]
		if last.End.Equal(w.End) && last.CensoredEnd {
			cur.End = nil
		} else {
			end := last.End
			cur.End = &end
			if lastIdx+1 < len(intervals) && intervals[lastIdx+1].State == domain.StateUnknown {
				cur.EndCensored = true
			}
		}
		episodes = append(episodes, *cur)
		cur = nil
	}

	for i, iv := range intervals {
		if !iv.State.IsOutage() {
			continue
		}
		if cur != nil && iv.Start.Sub(lastEnd) <= tolerance {
			cur.IntervalIDs = append(cur.IntervalIDs, iv.ID)
		} else {
			flush()
			cur = &Episode{
				ChargerID:     iv.ChargerID,
				Kind:          kindOf(iv.State),
				Start:         iv.Start,
				IntervalIDs:   []int{iv.ID},
				StartCensored: iv.CensoredStart,
			}
		}
		lastIdx = i
		lastEnd = iv.End
	}
	flush()

	return episodes, nil
}

// ActiveAlerts returns the open episodes.
func ActiveAlerts(episodes []Episode) []Episode {
	var out []Episode
	for _, e := range episodes {
		if e.Open() {
			out = append(out, e)
		}
	}
	return out
}
