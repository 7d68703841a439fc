package domain

import (
	"unicode/utf8"

	"github.com/google/uuid"

	dErrors "regdesk/pkg/domain-errors"
)

// Typed identifiers keep request, account and admin ids from being mixed up
// at compile time. All are UUIDs on the wire.
type (
	UserID    uuid.UUID
	RequestID uuid.UUID
	EventID   uuid.UUID
)

func (u UserID) String() string    { return uuid.UUID(u).String() }
func (u UserID) IsNil() bool       { return uuid.UUID(u) == uuid.Nil }
func (r RequestID) String() string { return uuid.UUID(r).String() }
func (r RequestID) IsNil() bool    { return uuid.UUID(r) == uuid.Nil }
func (e EventID) String() string   { return uuid.UUID(e).String() }
func (e EventID) IsNil() bool      { return uuid.UUID(e) == uuid.Nil }

// NewRequestID returns a fresh random request id.
func NewRequestID() RequestID { return RequestID(uuid.New()) }

// NewEventID returns a fresh random audit event id.
func NewEventID() EventID { return EventID(uuid.New()) }

// NewUserID returns a fresh random account id.
func NewUserID() UserID { return UserID(uuid.New()) }

// ParseUserID parses an account or admin id from external input.
func ParseUserID(s string) (UserID, error) {
	u, err := parseUUID(s, "user ID")
	return UserID(u), err
}

// ParseRequestID parses a registration request id from external input.
func ParseRequestID(s string) (RequestID, error) {
	u, err := parseUUID(s, "request ID")
	return RequestID(u), err
}

func parseUUID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" required")
	}
	if !utf8.ValidString(s) || len(s) > 64 {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be nil")
	}
	return u, nil
}
