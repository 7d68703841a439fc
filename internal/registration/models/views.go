package models

import (
	"time"

	id "regdesk/pkg/domain"
)

// PendingView is the admin queue projection of a pending request.
type PendingView struct {
	ID        id.RequestID
	Username  string
	Email     string
	CreatedAt time.Time
	Message   *string
}

// RequestView is the history projection, including resolved requests.
type RequestView struct {
	ID          id.RequestID
	Username    string
	Email       string
	Status      Status
	CreatedAt   time.Time
	Message     *string
	ProcessedAt *time.Time
	ProcessedBy *id.UserID
	Response    *string
}

func NewPendingView(r *Request) PendingView {
	return PendingView{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		CreatedAt: r.CreatedAt,
		Message:   r.Message,
	}
}

func NewRequestView(r *Request) RequestView {
	view := RequestView{
		ID:        r.ID,
		Username:  r.Username,
		Email:     r.Email,
		Status:    r.Status,
		CreatedAt: r.CreatedAt,
		Message:   r.Message,
	}
	if r.Decision != nil {
		at := r.Decision.At
		by := r.Decision.By
		view.ProcessedAt = &at
		view.ProcessedBy = &by
		view.Response = r.Decision.Response
	}
	return view
}
