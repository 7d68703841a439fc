package testutil

import (
	"net/http"

	id "regdesk/pkg/domain"
	"regdesk/pkg/requestcontext"
)

// WithAdmin adds an administrator id to the request context, simulating the
// admin guard for handler tests that mount routes without it.
func WithAdmin(req *http.Request, adminID id.UserID) *http.Request {
	return req.WithContext(requestcontext.WithAdminID(req.Context(), adminID))
}
