package audit

import (
	"context"
	"time"

	id "regdesk/pkg/domain"
)

// EntityType names the kind of record an audit event is about.
type EntityType string

const (
	EntityUser                EntityType = "user"
	EntityRegistrationRequest EntityType = "registration_request"
)

// Action is what happened to the entity.
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
)

// Event is an append-only audit record. Keep it transport-agnostic so the
// in-memory store, the outbox and the relay can share it.
type Event struct {
	ID         id.EventID
	EntityType EntityType
	EntityID   string
	Action     Action
	// ActorID is the administrator (or, for anonymous submissions, the nil id)
	// that caused the change.
	ActorID   id.UserID
	Timestamp time.Time
	// RequestID is the HTTP correlation id, when known.
	RequestID string
	Detail    string
}

// Store persists audit events. Implementations bound to a transaction must
// only make the event visible when the transaction commits.
type Store interface {
	Append(ctx context.Context, event Event) error
}
