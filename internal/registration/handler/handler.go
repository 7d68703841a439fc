package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"regdesk/internal/registration/models"
	"regdesk/internal/registration/service"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	"regdesk/pkg/platform/httputil"
	"regdesk/pkg/platform/middleware/auth"
	"regdesk/pkg/platform/middleware/request"
	"regdesk/pkg/requestcontext"
)

// Service defines the registration operations exposed over HTTP.
type Service interface {
	Submit(ctx context.Context, cmd service.SubmitCommand) (id.RequestID, error)
	Approve(ctx context.Context, requestID id.RequestID, adminID id.UserID, response string) error
	Reject(ctx context.Context, requestID id.RequestID, adminID id.UserID, response string) error
	ListPending(ctx context.Context) ([]models.PendingView, error)
	ListAll(ctx context.Context, offset, limit *int) ([]models.RequestView, error)
	Get(ctx context.Context, requestID id.RequestID) (*models.Request, error)
}

// Handler serves the registration endpoints.
type Handler struct {
	registration Service
	logger       *slog.Logger
	jwtValidator auth.JWTValidator
	corsOrigins  []string
}

// New creates a registration Handler. corsOrigins applies to the public
// submission route only; an empty list allows any origin.
func New(registration Service, logger *slog.Logger, jwtValidator auth.JWTValidator, corsOrigins []string) *Handler {
	if len(corsOrigins) == 0 {
		corsOrigins = []string{"*"}
	}
	return &Handler{
		registration: registration,
		logger:       logger,
		jwtValidator: jwtValidator,
		corsOrigins:  corsOrigins,
	}
}

// Register registers the registration routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Route("/user/register", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(cors.Handler(cors.Options{
				AllowedOrigins: h.corsOrigins,
				AllowedMethods: []string{http.MethodPut, http.MethodOptions},
				AllowedHeaders: []string{"Content-Type", request.HeaderRequestID},
				ExposedHeaders: []string{request.HeaderRequestID},
				MaxAge:         300,
			}))
			r.Put("/", h.handleSubmit)
			r.Options("/", func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(http.StatusNoContent)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(auth.RequireAdmin(h.jwtValidator, h.logger))
			r.Get("/", h.handleListAll)
			r.Get("/pending", h.handleListPending)
			r.Get("/{id}", h.handleGet)
			r.Post("/approve/{id}", h.handleApprove)
			r.Post("/reject/{id}", h.handleReject)
		})
	})
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[SubmitRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if _, err := h.registration.Submit(ctx, service.SubmitCommand{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
		Message:  req.Message,
	}); err != nil {
		h.logger.WarnContext(ctx, "registration submission failed",
			"error", err,
			"request_id", requestID,
		)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.OK)
}

func (h *Handler) handleListPending(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	views, err := h.registration.ListPending(ctx)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := ListPendingResponse{Requests: make([]PendingResponse, 0, len(views))}
	for _, v := range views {
		resp.Requests = append(resp.Requests, toPendingResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleListAll(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	offset, err := queryInt(r, "offset")
	if err != nil {
		h.logger.WarnContext(ctx, "invalid list query", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		h.logger.WarnContext(ctx, "invalid list query", "error", err, "request_id", requestID)
		httputil.WriteError(w, err)
		return
	}

	views, err := h.registration.ListAll(ctx, offset, limit)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	resp := ListAllResponse{Requests: make([]RequestResponse, 0, len(views))}
	for _, v := range views {
		resp.Requests = append(resp.Requests, toRequestResponse(v))
	}
	httputil.WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	regID, ok := h.pathRequestID(w, r)
	if !ok {
		return
	}
	req, err := h.registration.Get(ctx, regID)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, toRequestResponse(models.NewRequestView(req)))
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.registration.Approve)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	h.handleDecision(w, r, h.registration.Reject)
}

type decideFunc func(ctx context.Context, requestID id.RequestID, adminID id.UserID, response string) error

func (h *Handler) handleDecision(w http.ResponseWriter, r *http.Request, decide decideFunc) {
	ctx := r.Context()
	requestID := request.GetRequestID(ctx)

	adminID := requestcontext.AdminID(ctx)
	if adminID.IsNil() {
		// RequireAdmin always sets it; reaching here means a routing mistake.
		h.logger.ErrorContext(ctx, "admin id missing from context despite admin guard",
			"request_id", requestID,
		)
		httputil.WriteError(w, dErrors.New(dErrors.CodeForbidden, "administrator access required"))
		return
	}

	regID, ok := h.pathRequestID(w, r)
	if !ok {
		return
	}
	req, ok := httputil.DecodeAndPrepare[DecisionRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	if err := decide(ctx, regID, adminID, req.Response); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, httputil.OK)
}

func (h *Handler) pathRequestID(w http.ResponseWriter, r *http.Request) (id.RequestID, bool) {
	raw := chi.URLParam(r, "id")
	regID, err := id.ParseRequestID(raw)
	if err != nil {
		h.logger.WarnContext(r.Context(), "invalid registration request id",
			"id", raw,
			"request_id", request.GetRequestID(r.Context()),
		)
		httputil.WriteError(w, dErrors.Wrap(err, dErrors.CodeBadRequest, "invalid registration request id"))
		return id.RequestID{}, false
	}
	return regID, true
}

// queryInt returns nil when the parameter is absent.
func queryInt(r *http.Request, name string) (*int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeValidation, name+" must be an integer")
	}
	return &v, nil
}
