package reliability

import (
	"fmt"
	"time"
)

// InvalidWindowError is returned when a window does not end after it starts.
type InvalidWindowError struct {
	Start time.Time
	End   time.Time
}

func (e *InvalidWindowError) Error() string {
	return fmt.Sprintf("invalid window: end %s is not after start %s",
		e.End.Format(time.RFC3339), e.Start.Format(time.RFC3339))
}

// UnsortedInputError means a normalized stream reached the interval builder
// out of order. It indicates a bug in the caller, not bad data.
type UnsortedInputError struct {
	ChargerID string
	Index     int
	Prev      time.Time
	At        time.Time
}

func (e *UnsortedInputError) Error() string {
	return fmt.Sprintf("unsorted stream for charger %s at index %d: %s does not follow %s",
		e.ChargerID, e.Index, e.At.Format(time.RFC3339Nano), e.Prev.Format(time.RFC3339Nano))
}

// UnknownScopeError is returned when the data source cannot resolve a scope id.
type UnknownScopeError struct {
	Scope ScopeKind
	ID    string
}

func (e *UnknownScopeError) Error() string {
	return fmt.Sprintf("unknown %s %q", e.Scope, e.ID)
}

type ConfigError struct {
	Field  string
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// EmptyInputWarning is not fatal: the charger is reported as UNKNOWN for the
// whole window.
type EmptyInputWarning struct {
	ChargerID string
}

func (e *EmptyInputWarning) Error() string {
	return fmt.Sprintf("no observations for charger %s in window", e.ChargerID)
}
