package reliability

import (
	"fmt"
	"strings"
)

type ScopeKind string

const (
	ScopeCharger ScopeKind = "charger"
	ScopeSite    ScopeKind = "site"
	ScopeModel   ScopeKind = "model"
	// ScopeFleet covers every registered charger and takes no id.
	ScopeFleet ScopeKind = "fleet"
)

func ParseScopeKind(s string) (ScopeKind, error) {
	k := ScopeKind(strings.ToLower(strings.TrimSpace(s)))
	switch k {
	case ScopeCharger, ScopeSite, ScopeModel, ScopeFleet:
		return k, nil
	default:
		return "", &ConfigError{Field: "scope", Reason: fmt.Sprintf("%q is not one of charger, site, model, fleet", s)}
	}
}

type Scope struct {
	Kind ScopeKind
	ID   string
}

func (s Scope) Validate() error {
	if _, err := ParseScopeKind(string(s.Kind)); err != nil {
		return err
	}
	if s.Kind != ScopeFleet && s.ID == "" {
		return &ConfigError{Field: "scope id", Reason: "required for " + string(s.Kind) + " scope"}
	}
	return nil
}

func (s Scope) String() string {
	if s.Kind == ScopeFleet {
		return string(s.Kind)
	}
	return string(s.Kind) + ":" + s.ID
}
