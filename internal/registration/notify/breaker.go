package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/circuit"
)

// ErrCircuitOpen is returned while the breaker is skipping notifications.
var ErrCircuitOpen = errors.New("notification circuit open")

type Notifier interface {
	Notify(ctx context.Context, event string, requestID id.RequestID, at time.Time) error
}

// Guarded stops calling a failing notifier so every request does not pay
// the broker's timeout. Skipped notifications are lost.
type Guarded struct {
	next    Notifier
	breaker *circuit.Breaker
	logger  *slog.Logger
}

func NewGuarded(next Notifier, breaker *circuit.Breaker, logger *slog.Logger) *Guarded {
	if logger == nil {
		logger = slog.Default()
	}
	return &Guarded{next: next, breaker: breaker, logger: logger}
}

func (g *Guarded) Notify(ctx context.Context, event string, requestID id.RequestID, at time.Time) error {
	if !g.breaker.Allow() {
		return ErrCircuitOpen
	}

	if err := g.next.Notify(ctx, event, requestID, at); err != nil {
		if _, change := g.breaker.RecordFailure(); change.Opened {
			g.logger.WarnContext(ctx, "notification circuit opened",
				"breaker", g.breaker.Name(),
				"error", err,
			)
		}
		return err
	}

	if _, change := g.breaker.RecordSuccess(); change.Closed {
		g.logger.InfoContext(ctx, "notification circuit closed",
			"breaker", g.breaker.Name(),
		)
	}
	return nil
}
