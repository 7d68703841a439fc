package service

import (
	"context"
	"sync"
	"time"

	dErrors "regdesk/pkg/domain-errors"
)

// defaultTxTimeout is the maximum duration for a registration transaction
// when the caller set no deadline.
const defaultTxTimeout = 5 * time.Second

// Snapshotter is implemented by in-memory stores that can roll back.
type Snapshotter interface {
	Snapshot() (restore func())
}

// InMemoryTx is a coarse unit of work for the in-memory stores: one
// transaction at a time, with snapshot rollback when fn fails.
type InMemoryTx struct {
	mu      sync.Mutex
	stores  TxStores
	timeout time.Duration
}

// NewInMemoryTx wraps stores. Stores implementing Snapshotter are rolled
// back on failure; others keep whatever fn wrote.
func NewInMemoryTx(stores TxStores, timeout time.Duration) *InMemoryTx {
	return &InMemoryTx{stores: stores, timeout: timeout}
}

func (t *InMemoryTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	// check again after acquiring lock
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	var restores []func()
	for _, store := range []any{t.stores.Requests, t.stores.Users, t.stores.Audit} {
		if s, ok := store.(Snapshotter); ok {
			restores = append(restores, s.Snapshot())
		}
	}
	rollback := func() {
		for i := len(restores) - 1; i >= 0; i-- {
			restores[i]()
		}
	}
	defer func() {
		if p := recover(); p != nil {
			rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, t.stores); err != nil {
		rollback()
		return err
	}
	if err := ctx.Err(); err != nil {
		rollback()
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
	}
	return nil
}
