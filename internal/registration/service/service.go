// Package service owns the registration request lifecycle: submission,
// the pending → approved/rejected state machine, and the atomic link between
// approving a request and creating its account.
package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	accountmodels "regdesk/internal/account/models"
	"regdesk/internal/registration/metrics"
	"regdesk/internal/registration/models"
	"regdesk/internal/registration/notify"
	id "regdesk/pkg/domain"
	dErrors "regdesk/pkg/domain-errors"
	audit "regdesk/pkg/platform/audit"
	"regdesk/pkg/platform/audit/publishers/compliance"
	"regdesk/pkg/platform/sentinel"
	"regdesk/pkg/requestcontext"
	"regdesk/pkg/validate"
)

// Field length rules, in runes, applied after trimming.
const (
	UsernameMin = 3
	UsernameMax = 50
	PasswordMin = 8
	PasswordMax = 50
	EmailMin    = 1
	EmailMax    = 100
	MessageMax  = 1000
	ResponseMax = 1000
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200
)

type RequestStore interface {
	Create(ctx context.Context, req *models.Request) error
	FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.Request, error)
	FindByUsername(ctx context.Context, username string) (*models.Request, error)
	ListPending(ctx context.Context) ([]*models.Request, error)
	ListAll(ctx context.Context, offset, limit int) ([]*models.Request, error)
	Resolve(ctx context.Context, req *models.Request) error
}

type UserStore interface {
	Create(ctx context.Context, account *accountmodels.Account) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
}

type KeyGenerator interface {
	Generate() (string, error)
}

// AuditRecorder appends an event to the given (transaction-bound) store.
type AuditRecorder interface {
	Record(ctx context.Context, store audit.Store, event audit.Event) error
}

// Notifier is told about committed lifecycle changes. Failures never affect
// the outcome of the operation.
type Notifier interface {
	Notify(ctx context.Context, event string, requestID id.RequestID, at time.Time) error
}

// TxStores are the stores bound to one transaction.
type TxStores struct {
	Requests RequestStore
	Users    UserStore
	Audit    audit.Store
}

// RegistrationTx runs fn atomically: every write made through stores
// commits together or not at all. The ctx passed to fn carries the
// transaction and must be used for every store call inside it.
type RegistrationTx interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error
}

// SubmitCommand is the raw, unvalidated input of a registration request.
type SubmitCommand struct {
	Username string
	Password string
	Email    string
	Message  string
}

// Service orchestrates registration review.
type Service struct {
	requests     RequestStore
	tx           RegistrationTx
	hasher       PasswordHasher
	keys         KeyGenerator
	auditor      AuditRecorder
	notifier     Notifier
	logger       *slog.Logger
	metrics      *metrics.Metrics
	tracer       trace.Tracer
	maxListLimit int
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithAuditRecorder(recorder AuditRecorder) Option {
	return func(s *Service) {
		s.auditor = recorder
	}
}

func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		s.notifier = n
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithMaxListLimit caps the page size of ListAll.
func WithMaxListLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.maxListLimit = limit
		}
	}
}

// New constructs a Service. requests serves reads outside transactions.
func New(requests RequestStore, tx RegistrationTx, hasher PasswordHasher, keys KeyGenerator, opts ...Option) *Service {
	s := &Service{
		requests:     requests,
		tx:           tx,
		hasher:       hasher,
		keys:         keys,
		logger:       slog.Default(),
		maxListLimit: MaxListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.auditor == nil {
		s.auditor = compliance.New(compliance.WithLogger(s.logger), compliance.WithMetrics(s.metrics))
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("regdesk/internal/registration")
	}
	return s
}

// Submit validates and records a new pending request. No uniqueness check is
// made against existing accounts or pending requests; a duplicate username
// surfaces as a conflict when an administrator approves it.
func (s *Service) Submit(ctx context.Context, cmd SubmitCommand) (id.RequestID, error) {
	start := time.Now()
	defer s.metrics.ObserveOperation("submit", start)
	ctx, span := s.tracer.Start(ctx, "registration.Submit")
	defer span.End()

	username, err := validate.Length(cmd.Username, "username", UsernameMin, UsernameMax, false)
	if err != nil {
		return id.RequestID{}, err
	}
	password, err := validate.Length(cmd.Password, "password", PasswordMin, PasswordMax, false)
	if err != nil {
		return id.RequestID{}, err
	}
	email, err := validate.Length(cmd.Email, "email", EmailMin, EmailMax, false)
	if err != nil {
		return id.RequestID{}, err
	}
	message, err := validate.Length(cmd.Message, "message", 0, MessageMax, true)
	if err != nil {
		return id.RequestID{}, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeInvalidInput) {
			return id.RequestID{}, err
		}
		return id.RequestID{}, s.internal(ctx, span, "failed to hash password", err)
	}

	now := requestcontext.Now(ctx)
	req, err := models.NewRequest(id.NewRequestID(), username, email, hash, validate.Optional(message), now)
	if err != nil {
		return id.RequestID{}, dErrors.Wrap(err, dErrors.CodeValidation, err.Error())
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		return stores.Requests.Create(ctx, req)
	})
	if err != nil {
		if dErrors.HasCode(err, dErrors.CodeTimeout) {
			return id.RequestID{}, err
		}
		return id.RequestID{}, s.internal(ctx, span, "failed to store registration request", err)
	}

	span.SetAttributes(attribute.String("registration.request_id", req.ID.String()))
	s.metrics.IncrementSubmitted()
	s.logger.InfoContext(ctx, "registration request submitted",
		"registration_request_id", req.ID,
		"username", req.Username,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notify.EventSubmitted, req.ID, now)
	return req.ID, nil
}

// Approve resolves a pending request as approved and creates its account in
// the same transaction. Concurrent reviewers that lose the race get
// CodeAlreadyProcessed and no account is created on their behalf.
func (s *Service) Approve(ctx context.Context, requestID id.RequestID, adminID id.UserID, response string) error {
	start := time.Now()
	defer s.metrics.ObserveOperation("approve", start)
	ctx, span := s.tracer.Start(ctx, "registration.Approve",
		trace.WithAttributes(attribute.String("registration.request_id", requestID.String())))
	defer span.End()

	if adminID.IsNil() {
		return dErrors.New(dErrors.CodeForbidden, "administrator required")
	}
	resp, err := validate.Length(response, "response", 0, ResponseMax, true)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	var account *accountmodels.Account
	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		req, err := s.loadPending(ctx, stores, requestID, models.StatusApproved)
		if err != nil {
			return err
		}

		key, err := s.keys.Generate()
		if err != nil {
			return err
		}
		account, err = accountmodels.NewAccount(id.NewUserID(), req.Username, req.Email, req.PasswordHash, key, now)
		if err != nil {
			return err
		}
		if err := stores.Users.Create(ctx, account); err != nil {
			if errors.Is(err, sentinel.ErrAlreadyUsed) {
				return dErrors.Wrap(err, dErrors.CodeConflict, "username is already taken")
			}
			return err
		}

		req.ApplyDecision(models.StatusApproved, adminID, now, validate.Optional(resp))
		if err := s.persistDecision(ctx, stores, req); err != nil {
			return err
		}

		if err := s.record(ctx, stores, audit.EntityUser, account.ID.String(), audit.ActionCreate, adminID, now,
			"created from registration request "+req.ID.String()); err != nil {
			return err
		}
		return s.record(ctx, stores, audit.EntityRegistrationRequest, req.ID.String(), audit.ActionUpdate, adminID, now,
			string(models.StatusApproved))
	})
	if err != nil {
		return s.reviewError(ctx, span, "approve", requestID, err)
	}

	s.metrics.IncrementDecision(string(models.StatusApproved))
	s.metrics.IncrementAccountsCreated()
	s.logger.InfoContext(ctx, "registration request approved",
		"registration_request_id", requestID,
		"account_id", account.ID,
		"admin_id", adminID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notify.EventApproved, requestID, now)
	return nil
}

// Reject resolves a pending request as rejected. No account is created.
func (s *Service) Reject(ctx context.Context, requestID id.RequestID, adminID id.UserID, response string) error {
	start := time.Now()
	defer s.metrics.ObserveOperation("reject", start)
	ctx, span := s.tracer.Start(ctx, "registration.Reject",
		trace.WithAttributes(attribute.String("registration.request_id", requestID.String())))
	defer span.End()

	if adminID.IsNil() {
		return dErrors.New(dErrors.CodeForbidden, "administrator required")
	}
	resp, err := validate.Length(response, "response", 0, ResponseMax, true)
	if err != nil {
		return err
	}
	now := requestcontext.Now(ctx)

	err = s.tx.RunInTx(ctx, func(ctx context.Context, stores TxStores) error {
		req, err := s.loadPending(ctx, stores, requestID, models.StatusRejected)
		if err != nil {
			return err
		}
		req.ApplyDecision(models.StatusRejected, adminID, now, validate.Optional(resp))
		if err := s.persistDecision(ctx, stores, req); err != nil {
			return err
		}
		return s.record(ctx, stores, audit.EntityRegistrationRequest, req.ID.String(), audit.ActionUpdate, adminID, now,
			string(models.StatusRejected))
	})
	if err != nil {
		return s.reviewError(ctx, span, "reject", requestID, err)
	}

	s.metrics.IncrementDecision(string(models.StatusRejected))
	s.logger.InfoContext(ctx, "registration request rejected",
		"registration_request_id", requestID,
		"admin_id", adminID,
		"request_id", requestcontext.RequestID(ctx),
	)
	s.notify(ctx, notify.EventRejected, requestID, now)
	return nil
}

// ListPending returns the review queue, oldest first.
func (s *Service) ListPending(ctx context.Context) ([]models.PendingView, error) {
	ctx, span := s.tracer.Start(ctx, "registration.ListPending")
	defer span.End()

	requests, err := s.requests.ListPending(ctx)
	if err != nil {
		return nil, s.internal(ctx, span, "failed to list pending registration requests", err)
	}
	views := make([]models.PendingView, 0, len(requests))
	for _, req := range requests {
		views = append(views, models.NewPendingView(req))
	}
	return views, nil
}

// ListAll returns one page of the request history, newest first. A nil
// offset or limit takes the default; limits above the configured cap are
// clamped.
func (s *Service) ListAll(ctx context.Context, offset, limit *int) ([]models.RequestView, error) {
	ctx, span := s.tracer.Start(ctx, "registration.ListAll")
	defer span.End()

	off, lim, err := s.page(offset, limit)
	if err != nil {
		return nil, err
	}
	requests, err := s.requests.ListAll(ctx, off, lim)
	if err != nil {
		return nil, s.internal(ctx, span, "failed to list registration requests", err)
	}
	views := make([]models.RequestView, 0, len(requests))
	for _, req := range requests {
		views = append(views, models.NewRequestView(req))
	}
	return views, nil
}

// Get returns a single request whatever its status.
func (s *Service) Get(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	ctx, span := s.tracer.Start(ctx, "registration.Get")
	defer span.End()

	req, err := s.requests.FindByID(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, dErrors.Wrap(&models.NotFoundError{RequestID: requestID}, dErrors.CodeNotFound, "registration request not found")
		}
		return nil, s.internal(ctx, span, "failed to load registration request", err)
	}
	return req, nil
}

func (s *Service) page(offset, limit *int) (int, int, error) {
	off, lim := 0, DefaultListLimit
	if offset != nil {
		if *offset < 0 {
			return 0, 0, dErrors.New(dErrors.CodeValidation, "offset must not be negative")
		}
		off = *offset
	}
	if limit != nil {
		if *limit <= 0 {
			return 0, 0, dErrors.New(dErrors.CodeValidation, "limit must be positive")
		}
		lim = *limit
	}
	return off, min(lim, s.maxListLimit), nil
}

// loadPending fetches the request with a row lock and checks it may move to
// target.
func (s *Service) loadPending(ctx context.Context, stores TxStores, requestID id.RequestID, target models.Status) (*models.Request, error) {
	req, err := stores.Requests.FindByIDForUpdate(ctx, requestID)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return nil, &models.NotFoundError{RequestID: requestID}
		}
		return nil, err
	}
	if err := req.CanResolve(target); err != nil {
		return nil, err
	}
	return req, nil
}

// persistDecision writes the decision; the store's conditional update is the
// final arbiter when two reviewers race.
func (s *Service) persistDecision(ctx context.Context, stores TxStores, req *models.Request) error {
	err := stores.Requests.Resolve(ctx, req)
	if err == nil {
		return nil
	}
	if errors.Is(err, sentinel.ErrNotFound) {
		return &models.NotFoundError{RequestID: req.ID}
	}
	if errors.Is(err, sentinel.ErrInvalidState) {
		current := models.Status("")
		if stored, findErr := stores.Requests.FindByID(ctx, req.ID); findErr == nil {
			current = stored.Status
		}
		return &models.AlreadyProcessedError{RequestID: req.ID, Status: current}
	}
	return err
}

func (s *Service) record(ctx context.Context, stores TxStores, entity audit.EntityType, entityID string, action audit.Action, actor id.UserID, now time.Time, detail string) error {
	return s.auditor.Record(ctx, stores.Audit, audit.Event{
		EntityType: entity,
		EntityID:   entityID,
		Action:     action,
		ActorID:    actor,
		Timestamp:  now,
		RequestID:  requestcontext.RequestID(ctx),
		Detail:     detail,
	})
}

// reviewError maps a failed Approve/Reject transaction to a coded error.
func (s *Service) reviewError(ctx context.Context, span trace.Span, action string, requestID id.RequestID, err error) error {
	var processed *models.AlreadyProcessedError
	if errors.As(err, &processed) {
		s.metrics.IncrementAlreadyProcessed(action)
		s.logger.InfoContext(ctx, "registration request already processed",
			"action", action,
			"registration_request_id", requestID,
			"status", processed.Status,
			"request_id", requestcontext.RequestID(ctx),
		)
		return dErrors.Wrap(err, dErrors.CodeAlreadyProcessed, "registration request already processed")
	}

	var notFound *models.NotFoundError
	if errors.As(err, &notFound) {
		return dErrors.Wrap(err, dErrors.CodeNotFound, "registration request not found")
	}

	var de *dErrors.Error
	if errors.As(err, &de) && de.Code != dErrors.CodeInternal {
		s.logger.WarnContext(ctx, "registration review failed",
			"action", action,
			"registration_request_id", requestID,
			"error", err,
			"request_id", requestcontext.RequestID(ctx),
		)
		return de
	}
	return s.internal(ctx, span, "failed to "+action+" registration request", err)
}

func (s *Service) internal(ctx context.Context, span trace.Span, msg string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, msg)
	s.logger.ErrorContext(ctx, msg,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, msg)
}

func (s *Service) notify(ctx context.Context, event string, requestID id.RequestID, at time.Time) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, requestID, at); err != nil {
		s.metrics.IncNotifyFailures()
		s.logger.WarnContext(ctx, "registration notification failed",
			"event", event,
			"registration_request_id", requestID,
			"error", err,
		)
	}
}
