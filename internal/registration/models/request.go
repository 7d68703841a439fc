package models

import (
	"time"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
)

// Request is a self-service account-creation request awaiting review.
//
// Invariants:
//   - ID and CreatedAt are immutable after construction
//   - PasswordHash is stored as received and never re-hashed
//   - Decision is nil iff Status is pending
//   - Once Decision is set the status is terminal and never changes
//
// Storage adapters that keep a soft-delete column derive it from Decision.At;
// it is not part of the model.
type Request struct {
	ID           id.RequestID
	Username     string
	Email        string
	PasswordHash string
	Message      *string
	Status       Status
	CreatedAt    time.Time
	Decision     *Decision
}

// Decision records who resolved a request, when, and with what response.
type Decision struct {
	By       id.UserID
	At       time.Time
	Response *string
}

// NewRequest builds a pending request.
func NewRequest(requestID id.RequestID, username, email, passwordHash string, message *string, now time.Time) (*Request, error) {
	if requestID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "request id cannot be nil")
	}
	if username == "" || email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username and email are required")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash is required")
	}
	return &Request{
		ID:           requestID,
		Username:     username,
		Email:        email,
		PasswordHash: passwordHash,
		Message:      message,
		Status:       StatusPending,
		CreatedAt:    now,
	}, nil
}

func (r *Request) IsPending() bool {
	return r.Status == StatusPending && r.Decision == nil
}

// CanResolve checks that the request may move to target.
// Call ApplyDecision only after CanResolve succeeds.
func (r *Request) CanResolve(target Status) error {
	if !r.IsPending() || !r.Status.CanTransitionTo(target) {
		return &AlreadyProcessedError{RequestID: r.ID, Status: r.Status}
	}
	return nil
}

// ApplyDecision moves the request to its terminal status.
func (r *Request) ApplyDecision(target Status, adminID id.UserID, now time.Time, response *string) {
	r.Status = target
	r.Decision = &Decision{By: adminID, At: now, Response: response}
}

// Resolve validates and applies a decision in one call.
func (r *Request) Resolve(target Status, adminID id.UserID, now time.Time, response *string) error {
	if err := r.CanResolve(target); err != nil {
		return err
	}
	r.ApplyDecision(target, adminID, now, response)
	return nil
}

// ProcessedAt is nil while the request is pending.
func (r *Request) ProcessedAt() *time.Time {
	if r.Decision == nil {
		return nil
	}
	at := r.Decision.At
	return &at
}

// Clone returns a deep copy so stores never share mutable state with callers.
func (r *Request) Clone() *Request {
	if r == nil {
		return nil
	}
	c := *r
	if r.Message != nil {
		msg := *r.Message
		c.Message = &msg
	}
	if r.Decision != nil {
		d := *r.Decision
		if r.Decision.Response != nil {
			resp := *r.Decision.Response
			d.Response = &resp
		}
		c.Decision = &d
	}
	return &c
}
