package reliability

import (
	"sort"
	"time"

	"charger-monitor/reliability/internal/domain"
)

// Point is one entry of a normalized stream.
type Point struct {
	At    time.Time
	State domain.State
	// ObservedAt is when State was reported. It only differs from At on the
	// window-start point when that point carries a pre-window state.
	ObservedAt time.Time
	Synthetic  bool
}

// Stream is the gap-aware, time-ordered sequence of one charger clipped to a
// window. Points[0] sits on Window.Start and the last point on Window.End;
// the last point only closes the final interval.
type Stream struct {
	ChargerID string
	Window    Window
	Points    []Point
	// Empty is set when nothing was known about the charger: no pre-window
	// state and no ping inside the window.
	Empty bool
	// EndObserved is set when a real ping sits exactly on Window.End.
	EndObserved bool
}

// Normalize orders and deduplicates the observations of a single charger and
// clips them to w. Pings sharing a timestamp resolve to the latest ReceivedAt,
// then to the most severe state, so the result does not depend on input order.
func Normalize(chargerID string, obs []domain.Observation, w Window) (Stream, error) {
	if err := w.Validate(); err != nil {
		return Stream{}, err
	}

	sorted := make([]domain.Observation, len(obs))
	copy(sorted, obs)
	for i := range sorted {
		if !sorted[i].State.Valid() {
			sorted[i].State = domain.StateUnknown
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		if !a.ReceivedAt.Equal(b.ReceivedAt) {
			return a.ReceivedAt.Before(b.ReceivedAt)
		}
		return a.State.Severity() < b.State.Severity()
	})
	deduped := dedupeByTimestamp(sorted)

	var (
		pre      *domain.Observation
		inWindow []domain.Observation
		atEnd    *domain.Observation
	)
	for i := range deduped {
		o := &deduped[i]
		switch {
		case o.Timestamp.Before(w.Start):
			pre = o
		case o.Timestamp.Before(w.End):
			inWindow = append(inWindow, *o)
		case o.Timestamp.Equal(w.End):
			atEnd = o
		}
	}

	s := Stream{ChargerID: chargerID, Window: w}
	points := make([]Point, 0, len(inWindow)+2)

	if len(inWindow) == 0 || !inWindow[0].Timestamp.Equal(w.Start) {
		start := Point{At: w.Start, State: domain.StateUnknown, ObservedAt: w.Start, Synthetic: true}
		if pre != nil {
			start.State = pre.State
			start.ObservedAt = pre.Timestamp
		}
		points = append(points, start)
	}
	for _, o := range inWindow {
		points = append(points, Point{At: o.Timestamp, State: o.State, ObservedAt: o.Timestamp})
	}

	last := points[len(points)-1]
	closing := Point{At: w.End, State: last.State, ObservedAt: last.ObservedAt, Synthetic: true}
	if atEnd != nil {
		closing = Point{At: w.End, State: atEnd.State, ObservedAt: atEnd.Timestamp}
		s.EndObserved = true
	}
	points = append(points, closing)

	s.Points = points
	s.Empty = pre == nil && len(inWindow) == 0
	return s, nil
}

// dedupeByTimestamp keeps the last observation of every run sharing a
// timestamp. Input must be sorted with the winner last in each run.
func dedupeByTimestamp(sorted []domain.Observation) []domain.Observation {
	if len(sorted) <= 1 {
		return sorted
	}
	out := make([]domain.Observation, 0, len(sorted))
	for i := range sorted {
		if i+1 < len(sorted) && sorted[i+1].Timestamp.Equal(sorted[i].Timestamp) {
			continue
		}
		out = append(out, sorted[i])
	}
	return out
}
