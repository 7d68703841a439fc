package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"regdesk/internal/registration/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

type dbExecutor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PostgresStore persists registration requests in PostgreSQL. Resolved
// requests get deleted_at = processed_at and are never physically removed.
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

const selectColumns = `
	SELECT id, username, email, password_hash, message, status, created_at,
	       processed_at, processed_by, response
	FROM registration_requests`

func (s *PostgresStore) Create(ctx context.Context, req *models.Request) error {
	query := `
		INSERT INTO registration_requests (id, username, email, password_hash, message, status, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(req.ID),
		req.Username,
		req.Email,
		req.PasswordHash,
		nullString(req.Message),
		string(models.StatusPending),
		req.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert registration request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("insert registration request rows: %w", err)
	}
	if rows == 0 {
		return sentinel.ErrAlreadyUsed
	}
	return nil
}

func (s *PostgresStore) FindByID(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	return s.findOne(ctx, selectColumns+` WHERE id = $1`, uuid.UUID(requestID))
}

// FindByIDForUpdate locks the row until the surrounding transaction ends.
// Only meaningful on a store from NewPostgresTx.
func (s *PostgresStore) FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	return s.findOne(ctx, selectColumns+` WHERE id = $1 FOR UPDATE`, uuid.UUID(requestID))
}

// FindByUsername returns the oldest non-deleted (pending) request.
func (s *PostgresStore) FindByUsername(ctx context.Context, username string) (*models.Request, error) {
	return s.findOne(ctx, selectColumns+`
		WHERE username = $1 AND deleted_at IS NULL
		ORDER BY created_at ASC
		LIMIT 1`, username)
}

func (s *PostgresStore) ListPending(ctx context.Context) ([]*models.Request, error) {
	return s.findMany(ctx, selectColumns+`
		WHERE status = 'pending'
		ORDER BY created_at ASC, id ASC`)
}

func (s *PostgresStore) ListAll(ctx context.Context, offset, limit int) ([]*models.Request, error) {
	return s.findMany(ctx, selectColumns+`
		ORDER BY created_at DESC, id DESC
		OFFSET $1 LIMIT $2`, offset, limit)
}

// Resolve writes the decision only while the row is still pending. Zero
// affected rows means another transaction won the race or the request was
// already terminal.
func (s *PostgresStore) Resolve(ctx context.Context, req *models.Request) error {
	if req.Decision == nil || !req.Status.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	query := `
		UPDATE registration_requests
		SET status = $2, processed_at = $3, processed_by = $4, response = $5, deleted_at = $3
		WHERE id = $1 AND status = 'pending'
	`
	res, err := s.db.ExecContext(ctx, query,
		uuid.UUID(req.ID),
		string(req.Status),
		req.Decision.At,
		uuid.UUID(req.Decision.By),
		nullString(req.Decision.Response),
	)
	if err != nil {
		return fmt.Errorf("resolve registration request: %w", err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("resolve registration request rows: %w", err)
	}
	if rows == 1 {
		return nil
	}

	var exists bool
	if err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM registration_requests WHERE id = $1)`,
		uuid.UUID(req.ID),
	).Scan(&exists); err != nil {
		return fmt.Errorf("check registration request: %w", err)
	}
	if !exists {
		return sentinel.ErrNotFound
	}
	return sentinel.ErrInvalidState
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (s *PostgresStore) findOne(ctx context.Context, query string, args ...any) (*models.Request, error) {
	req, err := scanRequest(s.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find registration request: %w", err)
	}
	return req, nil
}

func (s *PostgresStore) findMany(ctx context.Context, query string, args ...any) ([]*models.Request, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list registration requests: %w", err)
	}
	defer rows.Close()

	requests := []*models.Request{}
	for rows.Next() {
		req, err := scanRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("scan registration request: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate registration requests: %w", err)
	}
	return requests, nil
}

func scanRequest(row rowScanner) (*models.Request, error) {
	var (
		reqID       uuid.UUID
		message     sql.NullString
		status      string
		processedAt sql.NullTime
		processedBy uuid.NullUUID
		response    sql.NullString
		req         models.Request
	)
	if err := row.Scan(
		&reqID,
		&req.Username,
		&req.Email,
		&req.PasswordHash,
		&message,
		&status,
		&req.CreatedAt,
		&processedAt,
		&processedBy,
		&response,
	); err != nil {
		return nil, err
	}

	req.ID = id.RequestID(reqID)
	req.Status = models.Status(status)
	req.Message = stringPtr(message)
	if processedAt.Valid {
		req.Decision = &models.Decision{
			By:       id.UserID(processedBy.UUID),
			At:       processedAt.Time,
			Response: stringPtr(response),
		}
	}
	return &req, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func stringPtr(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	v := ns.String
	return &v
}
