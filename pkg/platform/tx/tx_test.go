package tx

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWithTx(t *testing.T) {
	ctx := context.Background()

	_, ok := From(WithTx(ctx, nil))
	assert.False(t, ok, "nil tx is not bound")

	tx := &sql.Tx{}
	got, ok := From(WithTx(ctx, tx))
	assert.True(t, ok)
	assert.Same(t, tx, got)
}

func TestExecerFrom(t *testing.T) {
	db := &sql.DB{}
	assert.Same(t, db, ExecerFrom(context.Background(), db))

	tx := &sql.Tx{}
	assert.Same(t, tx, ExecerFrom(WithTx(context.Background(), tx), db))
}
