package auth

import (
	"log/slog"
	"net/http"
	"strings"

	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID string
	Role   string
	JTI    string
}

const adminRole = "admin"

// RequireAdmin admits only bearer tokens carrying the admin role and puts the
// administrator id into the request context. Every refusal is a 403 so the
// admin surface does not reveal whether a token was merely missing.
func RequireAdmin(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			requestID := requestcontext.RequestID(ctx)

			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || token == "" {
				logger.WarnContext(ctx, "forbidden - missing token",
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator access required"))
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "forbidden - invalid token",
					"error", err,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator access required"))
				return
			}

			adminID, err := id.ParseUserID(claims.UserID)
			if err != nil || claims.Role != adminRole {
				logger.WarnContext(ctx, "forbidden - not an administrator",
					"user_id", claims.UserID,
					"role", claims.Role,
					"request_id", requestID,
				)
				httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator access required"))
				return
			}

			ctx = requestcontext.WithAdminID(ctx, adminID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
