package models

import "strings"

// Status is the lifecycle state of a registration request.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// IsTerminal reports whether no further transition is allowed.
func (s Status) IsTerminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// CanTransitionTo allows only pending → approved and pending → rejected.
func (s Status) CanTransitionTo(target Status) bool {
	return s == StatusPending && target.IsTerminal()
}

// WireName is the upper-case form exposed by the admin API.
func (s Status) WireName() string {
	return strings.ToUpper(string(s))
}

// ParseStatus accepts either the stored or the wire form.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(strings.ToLower(raw)); s {
	case StatusPending, StatusApproved, StatusRejected:
		return s, true
	}
	return "", false
}
