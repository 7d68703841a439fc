package handler

import (
	"net/url"
	"strings"

	"regdesk/internal/registration/models"
	dErrors "regdesk/pkg/domain-errors"
)

// SubmitRequest is the public registration form. It is accepted as JSON or
// as a url-encoded form.
type SubmitRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Email    string `json:"email"`
	Message  string `json:"message"`
}

func (r *SubmitRequest) BindForm(values url.Values) {
	r.Username = values.Get("username")
	r.Password = values.Get("password")
	r.Email = values.Get("email")
	r.Message = values.Get("message")
}

// Validate checks presence only; length rules are enforced by the service.
func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.Username) == "" {
		return dErrors.New(dErrors.CodeValidation, "username is required")
	}
	if r.Password == "" {
		return dErrors.New(dErrors.CodeValidation, "password is required")
	}
	if strings.TrimSpace(r.Email) == "" {
		return dErrors.New(dErrors.CodeValidation, "email is required")
	}
	return nil
}

// DecisionRequest carries the administrator's optional response text.
type DecisionRequest struct {
	Response string `json:"response"`
}

func (r *DecisionRequest) BindForm(values url.Values) {
	r.Response = values.Get("response")
}

func (r *DecisionRequest) Validate() error {
	return nil
}

// PendingResponse is one entry of the review queue. Dates are Unix
// milliseconds.
type PendingResponse struct {
	ID         string  `json:"id"`
	Username   string  `json:"username"`
	Email      string  `json:"email"`
	CreateDate int64   `json:"create_date"`
	Message    *string `json:"message"`
}

type ListPendingResponse struct {
	Requests []PendingResponse `json:"requests"`
}

// RequestResponse is one entry of the request history. Unset optional fields
// are rendered as null.
type RequestResponse struct {
	ID          string  `json:"id"`
	Username    string  `json:"username"`
	Email       string  `json:"email"`
	Status      string  `json:"status"`
	CreateDate  int64   `json:"create_date"`
	ProcessDate *int64  `json:"process_date"`
	ProcessedBy *string `json:"processed_by"`
	Message     *string `json:"message"`
	Response    *string `json:"response"`
}

type ListAllResponse struct {
	Requests []RequestResponse `json:"requests"`
}

func toPendingResponse(v models.PendingView) PendingResponse {
	return PendingResponse{
		ID:         v.ID.String(),
		Username:   v.Username,
		Email:      v.Email,
		CreateDate: v.CreatedAt.UnixMilli(),
		Message:    v.Message,
	}
}

func toRequestResponse(v models.RequestView) RequestResponse {
	resp := RequestResponse{
		ID:         v.ID.String(),
		Username:   v.Username,
		Email:      v.Email,
		Status:     v.Status.WireName(),
		CreateDate: v.CreatedAt.UnixMilli(),
		Message:    v.Message,
		Response:   v.Response,
	}
	if v.ProcessedAt != nil {
		ms := v.ProcessedAt.UnixMilli()
		resp.ProcessDate = &ms
	}
	if v.ProcessedBy != nil {
		by := v.ProcessedBy.String()
		resp.ProcessedBy = &by
	}
	return resp
}
