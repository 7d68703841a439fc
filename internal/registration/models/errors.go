package models

import (
	"fmt"

	id "regdesk/pkg/domain"
)

// AlreadyProcessedError is returned when a request has already left the
// pending state. It is an expected outcome under concurrent review.
type AlreadyProcessedError struct {
	RequestID id.RequestID
	Status    Status
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("registration request %s already processed (status %s)", e.RequestID, e.Status)
}

// NotFoundError identifies a missing registration request.
type NotFoundError struct {
	RequestID id.RequestID
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("registration request %s not found", e.RequestID)
}
