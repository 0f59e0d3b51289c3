package reliability

import (
	"sort"
	"time"

	"charger-monitor/reliability/internal/domain"
)

// SessionImpact is the part of one charging session lost to outages.
type SessionImpact struct {
	SessionID string        `json:"session_id" msgpack:"session_id"`
	ChargerID string        `json:"charger_id" msgpack:"charger_id"`
	Overlap   time.Duration `json:"overlap_ns" msgpack:"overlap_ns"`
}

func (si SessionImpact) LostMinutes() float64 {
	return si.Overlap.Minutes()
}

// SessionOverlap intersects the sessions of one charger with that charger's
// episodes inside w. Episodes must not overlap each other, which
// ClassifyEpisodes guarantees. Every session yields an impact, zero when it
// never met an outage.
func SessionOverlap(sessions []domain.Session, episodes []Episode, w Window) ([]SessionImpact, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}

	ss := make([]domain.Session, len(sessions))
	copy(ss, sessions)
	sort.SliceStable(ss, func(i, j int) bool {
		if !ss[i].Start.Equal(ss[j].Start) {
			return ss[i].Start.Before(ss[j].Start)
		}
		return ss[i].SessionID < ss[j].SessionID
	})

	eps := make([]Episode, len(episodes))
	copy(eps, episodes)
	sort.SliceStable(eps, func(i, j int) bool { return eps[i].Start.Before(eps[j].Start) })

	impacts := make([]SessionImpact, 0, len(ss))
	j := 0
	for _, s := range ss {
		start, end := clip(s.Start, s.End, w)
		impact := SessionImpact{SessionID: s.SessionID, ChargerID: s.ChargerID}
		if !end.After(start) {
			impacts = append(impacts, impact)
			continue
		}

		// Sessions are visited by ascending start, so an episode that ended
		// before this session started is behind every later session too.
		for j < len(eps) && !eps[j].EndOr(w.End).After(start) {
			j++
		}
		for k := j; k < len(eps) && eps[k].Start.Before(end); k++ {
			impact.Overlap += overlap(start, end, eps[k].Start, eps[k].EndOr(w.End))
		}
		impacts = append(impacts, impact)
	}
	return impacts, nil
}

func clip(start, end time.Time, w Window) (time.Time, time.Time) {
	if start.Before(w.Start) {
		start = w.Start
	}
	if end.After(w.End) {
		end = w.End
	}
	return start, end
}

func overlap(aStart, aEnd, bStart, bEnd time.Time) time.Duration {
	lo, hi := aStart, aEnd
	if bStart.After(lo) {
		lo = bStart
	}
	if bEnd.Before(hi) {
		hi = bEnd
	}
	if !hi.After(lo) {
		return 0
	}
	return hi.Sub(lo)
}
