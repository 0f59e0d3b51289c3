package reliability

import (
	"time"

	"charger-monitor/reliability/internal/domain"
)

// StateInterval is a half-open span [Start, End) during which a charger is
// considered to be in State. ID is the position in the charger's sequence.
type StateInterval struct {
	ID            int          `json:"id" msgpack:"id"`
	ChargerID     string       `json:"charger_id" msgpack:"charger_id"`
	State         domain.State `json:"state" msgpack:"state"`
	Start         time.Time    `json:"start" msgpack:"start"`
	End           time.Time    `json:"end" msgpack:"end"`
	CensoredStart bool         `json:"is_censored_start" msgpack:"is_censored_start"`
	CensoredEnd   bool         `json:"is_censored_end" msgpack:"is_censored_end"`
}

func (iv StateInterval) Duration() time.Duration {
	return iv.End.Sub(iv.Start)
}

// BuildIntervals walks a normalized stream and emits contiguous intervals
// covering the whole window. A reported state holds for at most MaxPingGap
// after it was observed; the remainder up to the next point becomes UNKNOWN.
func BuildIntervals(s Stream, p Params) ([]StateInterval, error) {
	if err := s.Window.Validate(); err != nil {
		return nil, err
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := checkStream(s); err != nil {
		return nil, err
	}

	n := len(s.Points)
	segments := make([]StateInterval, 0, n)
	for i := 0; i < n-1; i++ {
		cur, next := s.Points[i], s.Points[i+1]
		staleAt := cur.ObservedAt.Add(p.MaxPingGap)

		switch {
		case !staleAt.After(cur.At):
			segments = append(segments, segment(s.ChargerID, domain.StateUnknown, cur.At, next.At))
		case staleAt.Before(next.At):
			segments = append(segments,
				segment(s.ChargerID, cur.State, cur.At, staleAt),
				segment(s.ChargerID, domain.StateUnknown, staleAt, next.At))
		default:
			segments = append(segments, segment(s.ChargerID, cur.State, cur.At, next.At))
		}
	}

	first := s.Points[0]
	if first.Synthetic && first.ObservedAt.Before(first.At) && first.ObservedAt.Add(p.MaxPingGap).After(first.At) {
		segments[0].CensoredStart = true
	}

	// Only an observed return to service at the window end closes the tail.
	last := &segments[len(segments)-1]
	closing := s.Points[n-1]
	recovered := !closing.State.IsOutage() && closing.State != domain.StateUnknown
	last.CensoredEnd = !(s.EndObserved && closing.State != last.State && recovered)

	return coalesce(segments), nil
}

func segment(chargerID string, st domain.State, start, end time.Time) StateInterval {
	return StateInterval{ChargerID: chargerID, State: st, Start: start, End: end}
}

// checkStream guards the normalizer contract: points strictly increasing,
// first on the window start and last on the window end.
func checkStream(s Stream) error {
	if len(s.Points) < 2 {
		return &UnsortedInputError{ChargerID: s.ChargerID, Index: len(s.Points)}
	}
	first, last := s.Points[0], s.Points[len(s.Points)-1]
	if !first.At.Equal(s.Window.Start) {
		return &UnsortedInputError{ChargerID: s.ChargerID, Index: 0, Prev: s.Window.Start, At: first.At}
	}
	if !last.At.Equal(s.Window.End) {
		return &UnsortedInputError{ChargerID: s.ChargerID, Index: len(s.Points) - 1, Prev: s.Window.End, At: last.At}
	}
	for i := 1; i < len(s.Points); i++ {
		if !s.Points[i].At.After(s.Points[i-1].At) {
			return &UnsortedInputError{
				ChargerID: s.ChargerID,
				Index:     i,
				Prev:      s.Points[i-1].At,
				At:        s.Points[i].At,
			}
		}
	}
	return nil
}

// coalesce joins neighbouring segments with the same state and numbers the
// result. Censoring flags survive from the outermost segments.
func coalesce(segments []StateInterval) []StateInterval {
	out := make([]StateInterval, 0, len(segments))
	for _, seg := range segments {
		if seg.Start.Equal(seg.End) {
			continue
		}
		if k := len(out) - 1; k >= 0 && out[k].State == seg.State {
			out[k].End = seg.End
			out[k].CensoredEnd = seg.CensoredEnd
			continue
		}
		out = append(out, seg)
	}
	for i := range out {
		out[i].ID = i
	}
	return out
}
