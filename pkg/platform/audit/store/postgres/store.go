package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	id "regdesk/pkg/domain"
	audit "regdesk/pkg/platform/audit"
	txcontext "regdesk/pkg/platform/tx"
)

// Store implements audit.Store using the transactional outbox pattern.
// Events are written to audit_outbox inside the caller's transaction and
// published to Kafka by the outbox relay.
type Store struct {
	db *sql.DB
}

// New creates a PostgreSQL audit store that writes to the outbox.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Payload is the JSON document stored in the outbox and published to Kafka.
type Payload struct {
	ID         string `json:"id"`
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`
	Action     string `json:"action"`
	ActorID    string `json:"actor_id,omitempty"`
	Timestamp  string `json:"timestamp"`
	RequestID  string `json:"request_id,omitempty"`
	Detail     string `json:"detail,omitempty"`
}

// Append writes an audit event to the outbox table.
func (s *Store) Append(ctx context.Context, event audit.Event) error {
	eventID := uuid.UUID(event.ID)
	if eventID == uuid.Nil {
		eventID = uuid.New()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	payload := Payload{
		ID:         eventID.String(),
		EntityType: string(event.EntityType),
		EntityID:   event.EntityID,
		Action:     string(event.Action),
		Timestamp:  event.Timestamp.UTC().Format(time.RFC3339Nano),
		RequestID:  event.RequestID,
		Detail:     event.Detail,
	}
	var actorID *uuid.UUID
	if !event.ActorID.IsNil() {
		payload.ActorID = event.ActorID.String()
		uid := uuid.UUID(event.ActorID)
		actorID = &uid
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal audit payload: %w", err)
	}

	query := `
		INSERT INTO audit_outbox (id, entity_type, entity_id, action, actor_id, payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	_, err = txcontext.ExecerFrom(ctx, s.db).ExecContext(ctx, query,
		eventID,
		string(event.EntityType),
		event.EntityID,
		string(event.Action),
		actorID,
		payloadBytes,
		event.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}
	return nil
}

// ListByEntity returns the outbox history of one entity, oldest first.
func (s *Store) ListByEntity(ctx context.Context, entityType audit.EntityType, entityID string) ([]audit.Event, error) {
	query := `
		SELECT id, entity_type, entity_id, action, actor_id, payload, created_at
		FROM audit_outbox
		WHERE entity_type = $1 AND entity_id = $2
		ORDER BY created_at ASC
	`
	rows, err := s.db.QueryContext(ctx, query, string(entityType), entityID)
	if err != nil {
		return nil, fmt.Errorf("query audit outbox: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var (
			eventID    uuid.UUID
			entityKind string
			action     string
			actorID    *uuid.UUID
			raw        []byte
			event      audit.Event
		)
		if err := rows.Scan(&eventID, &entityKind, &event.EntityID, &action, &actorID, &raw, &event.Timestamp); err != nil {
			return nil, fmt.Errorf("scan audit outbox: %w", err)
		}
		var payload Payload
		if err := json.Unmarshal(raw, &payload); err != nil {
			return nil, fmt.Errorf("decode audit payload: %w", err)
		}
		event.ID = id.EventID(eventID)
		event.EntityType = audit.EntityType(entityKind)
		event.Action = audit.Action(action)
		event.RequestID = payload.RequestID
		event.Detail = payload.Detail
		if actorID != nil {
			event.ActorID = id.UserID(*actorID)
		}
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit outbox: %w", err)
	}
	return events, nil
}
