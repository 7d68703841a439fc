// Package compliance provides a fail-closed audit recorder.
//
// Events are written synchronously to the underlying store and the caller
// blocks until the write succeeds. If the write fails an error is returned and
// the calling operation must fail: a lifecycle change without its audit trail
// is never committed.
package compliance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	id "regdesk/pkg/domain"
	audit "regdesk/pkg/platform/audit"
)

// Metrics receives publisher outcomes. A nil Metrics is ignored.
type Metrics interface {
	IncAuditPersistFailures()
	ObserveAuditPersist(seconds float64)
}

// Publisher emits audit events with fail-closed semantics.
type Publisher struct {
	logger  *slog.Logger
	metrics Metrics
}

// Option configures the Publisher.
type Option func(*Publisher)

// WithLogger sets a logger for error reporting.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Publisher) {
		p.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(m Metrics) Option {
	return func(p *Publisher) {
		p.metrics = m
	}
}

func New(opts ...Option) *Publisher {
	p := &Publisher{}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Record validates event, fills defaults and appends it to store. The store
// is passed per call so a transaction-bound store can be used.
func (p *Publisher) Record(ctx context.Context, store audit.Store, event audit.Event) error {
	start := time.Now()

	if event.EntityType == "" || event.EntityID == "" {
		return errors.New("audit event requires an entity")
	}
	if event.Action == "" {
		return errors.New("audit event requires an action")
	}
	if event.ID.IsNil() {
		event.ID = id.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := store.Append(ctx, event); err != nil {
		if p.metrics != nil {
			p.metrics.IncAuditPersistFailures()
		}
		if p.logger != nil {
			p.logger.ErrorContext(ctx, "audit persistence failed",
				"entity_type", event.EntityType,
				"entity_id", event.EntityID,
				"action", event.Action,
				"error", err,
			)
		}
		return fmt.Errorf("audit persistence failed: %w", err)
	}

	if p.metrics != nil {
		p.metrics.ObserveAuditPersist(time.Since(start).Seconds())
	}
	return nil
}
