package reliability

import (
	"time"
)

const (
	DefaultPingCadence    = 5 * time.Minute
	DefaultPingGapFactor  = 3.0
	DefaultMergeTolerance = 2 * DefaultPingCadence
)

// Params are the tuning knobs of one computation. They travel with every call
// so concurrent computations can use different tolerances.
type Params struct {
	// MaxPingGap is how long a reported state stays credible without a new ping.
	MaxPingGap time.Duration
	// MergeTolerance is the largest gap between two outage intervals that
	// still belongs to a single episode. Inclusive.
	MergeTolerance time.Duration
}

func DefaultParams() Params {
	return ParamsForCadence(DefaultPingCadence, DefaultPingGapFactor)
}

// ParamsForCadence derives parameters from the expected ping cadence.
func ParamsForCadence(cadence time.Duration, gapFactor float64) Params {
	return Params{
		MaxPingGap:     time.Duration(float64(cadence) * gapFactor),
		MergeTolerance: 2 * cadence,
	}
}

func (p Params) Validate() error {
	if p.MaxPingGap <= 0 {
		return &ConfigError{Field: "max_ping_gap", Reason: "must be positive"}
	}
	if p.MergeTolerance < 0 {
		return &ConfigError{Field: "merge_tolerance", Reason: "must not be negative"}
	}
	return nil
}

// Window is a half-open query range [Start, End).
type Window struct {
	Start time.Time
	End   time.Time
}

func NewWindow(start, end time.Time) (Window, error) {
	w := Window{Start: start.UTC(), End: end.UTC()}
	if err := w.Validate(); err != nil {
		return Window{}, err
	}
	return w, nil
}

func (w Window) Validate() error {
	if !w.End.After(w.Start) {
		return &InvalidWindowError{Start: w.Start, End: w.End}
	}
	return nil
}

func (w Window) Duration() time.Duration {
	return w.End.Sub(w.Start)
}
