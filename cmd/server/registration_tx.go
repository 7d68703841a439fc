package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	accountstore "regdesk/internal/account/store"
	"regdesk/internal/registration/service"
	requeststore "regdesk/internal/registration/store"
	dErrors "regdesk/pkg/domain-errors"
	auditpostgres "regdesk/pkg/platform/audit/store/postgres"
	txcontext "regdesk/pkg/platform/tx"
)

const defaultRegistrationTxTimeout = 5 * time.Second

// registrationPostgresTx binds the request, account and audit outbox stores
// to one *sql.Tx. The audit store finds the transaction through ctx.
type registrationPostgresTx struct {
	db      *sql.DB
	audit   *auditpostgres.Store
	timeout time.Duration
}

func newRegistrationPostgresTx(db *sql.DB, timeout time.Duration) *registrationPostgresTx {
	return &registrationPostgresTx{db: db, audit: auditpostgres.New(db), timeout: timeout}
}

func (t *registrationPostgresTx) RunInTx(ctx context.Context, fn func(ctx context.Context, stores service.TxStores) error) error {
	if err := ctx.Err(); err != nil {
		return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: context cancelled")
	}

	timeout := t.timeout
	if timeout == 0 {
		timeout = defaultRegistrationTxTimeout
	}
	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tx, err := t.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin registration tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	stores := service.TxStores{
		Requests: requeststore.NewPostgresTx(tx),
		Users:    accountstore.NewPostgresTx(tx),
		Audit:    t.audit,
	}
	if err := fn(txcontext.WithTx(ctx, tx), stores); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		if ctx.Err() != nil {
			return dErrors.Wrap(err, dErrors.CodeTimeout, "transaction aborted: deadline exceeded")
		}
		return fmt.Errorf("commit registration tx: %w", err)
	}
	return nil
}
