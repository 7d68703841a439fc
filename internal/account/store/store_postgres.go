package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"regdesk/internal/account/models"
	"regdesk/internal/platform/postgres"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists accounts in the users table.
type PostgresStore struct {
	db dbExecutor
}

func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// NewPostgresTx binds the store to an open transaction.
func NewPostgresTx(tx *sql.Tx) *PostgresStore {
	return &PostgresStore{db: tx}
}

// Create inserts account. A username collision surfaces as
// sentinel.ErrAlreadyUsed and, inside a transaction, aborts it.
func (s *PostgresStore) Create(ctx context.Context, account *models.Account) error {
	query := `
		INSERT INTO users (id, username, email, password_hash, role, private_key,
		                   storage_quota, storage_used, onboarding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		uuid.UUID(account.ID),
		account.Username,
		account.Email,
		account.PasswordHash,
		account.Role,
		account.PrivateKey,
		account.StorageQuota,
		account.StorageUsed,
		account.Onboarding,
		account.CreatedAt,
	)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return sentinel.ErrAlreadyUsed
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

const selectAccount = `
	SELECT id, username, email, password_hash, role, private_key,
	       storage_quota, storage_used, onboarding, created_at
	FROM users`

func (s *PostgresStore) FindByID(ctx context.Context, userID id.UserID) (*models.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE id = $1`, uuid.UUID(userID))
}

func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	return s.findOne(ctx, selectAccount+` WHERE username = $1`, username)
}

// Count returns the number of accounts.
func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count accounts: %w", err)
	}
	return n, nil
}

func (s *PostgresStore) findOne(ctx context.Context, query string, arg any) (*models.Account, error) {
	var (
		userID  uuid.UUID
		account models.Account
	)
	err := s.db.QueryRowContext(ctx, query, arg).Scan(
		&userID,
		&account.Username,
		&account.Email,
		&account.PasswordHash,
		&account.Role,
		&account.PrivateKey,
		&account.StorageQuota,
		&account.StorageUsed,
		&account.Onboarding,
		&account.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find account: %w", err)
	}
	account.ID = id.UserID(userID)
	return &account, nil
}
