package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/circuit"
)

type countingNotifier struct {
	calls int
	err   error
}

func (c *countingNotifier) Notify(context.Context, string, id.RequestID, time.Time) error {
	c.calls++
	return c.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestGuarded_SkipsWhileOpen(t *testing.T) {
	next := &countingNotifier{err: errors.New("publish failed")}
	g := NewGuarded(next, circuit.New("notify", circuit.WithFailureThreshold(2), circuit.WithCooldown(time.Hour)), discard())
	ctx := context.Background()

	require.Error(t, g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now()))
	require.Error(t, g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now()))
	assert.Equal(t, 2, next.calls)

	err := g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now())
	assert.ErrorIs(t, err, ErrCircuitOpen)
	assert.Equal(t, 2, next.calls)
}

func TestGuarded_PassesThroughWhenHealthy(t *testing.T) {
	next := &countingNotifier{}
	g := NewGuarded(next, circuit.New("notify"), discard())

	for range 10 {
		require.NoError(t, g.Notify(context.Background(), EventApproved, id.NewRequestID(), time.Now()))
	}
	assert.Equal(t, 10, next.calls)
}

func TestGuarded_RedisOutageOpensCircuit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })

	breaker := circuit.New("notify", circuit.WithFailureThreshold(1), circuit.WithCooldown(time.Hour))
	g := NewGuarded(NewRedisNotifier(client, ""), breaker, discard())
	ctx := context.Background()

	require.NoError(t, g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now()))

	mr.Close()
	require.Error(t, g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now()))
	assert.True(t, breaker.IsOpen())
	assert.ErrorIs(t, g.Notify(ctx, EventSubmitted, id.NewRequestID(), time.Now()), ErrCircuitOpen)
}
