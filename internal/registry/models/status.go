package models

import (
	"strings"

	dErrors "certify/pkg/domain-errors"
)

// Status is the lifecycle state of an issuer. Numeric values are stable and
// appear in events and storage.
type Status uint8

const (
	StatusActive      Status = 0
	StatusSuspended   Status = 1
	StatusDeactivated Status = 2
)

var statusNames = map[Status]string{
	StatusActive:      "active",
	StatusSuspended:   "suspended",
	StatusDeactivated: "deactivated",
}

// ParseStatus accepts the lower-case status name.
func ParseStatus(s string) (Status, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for st, name := range statusNames {
		if name == s {
			return st, nil
		}
	}
	return 0, dErrors.New(dErrors.CodeValidation, "unknown issuer status")
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return "unknown"
}

// IsValid reports whether s is one of the defined statuses.
func (s Status) IsValid() bool {
	_, ok := statusNames[s]
	return ok
}

// IsTerminal reports whether no transition may leave s.
func (s Status) IsTerminal() bool {
	return s == StatusDeactivated
}

// CheckTransition validates moving from s to next.
//
// Transitions: active <-> suspended, active|suspended -> deactivated.
// Deactivated has no outgoing edges, so every request against a deactivated
// issuer (including Deactivated again) is a terminal-state rejection.
// Rejections are evaluated in this order: unknown target, terminal source, no-op.
func (s Status) CheckTransition(next Status) error {
	if !next.IsValid() {
		return dErrors.New(dErrors.CodeValidation, "unknown issuer status")
	}
	if s.IsTerminal() {
		return dErrors.New(dErrors.CodeTerminalState, "issuer is permanently deactivated")
	}
	if next == s {
		return dErrors.New(dErrors.CodeNoOpTransition, "issuer already has this status")
	}
	return nil
}

// MarshalText encodes the status by name.
func (s Status) MarshalText() ([]byte, error) {
	if !s.IsValid() {
		return nil, dErrors.New(dErrors.CodeValidation, "unknown issuer status")
	}
	return []byte(s.String()), nil
}

// UnmarshalText accepts the status name.
func (s *Status) UnmarshalText(b []byte) error {
	parsed, err := ParseStatus(string(b))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}
