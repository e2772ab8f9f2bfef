package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodian/internal/audit"
	"custodian/pkg/domain"
)

// Store persists access log entries in postgres. Each append also writes a
// row to the audit outbox inside the same transaction; the outbox relay
// publishes those rows to Kafka for downstream compliance consumers.
type Store struct {
	db *sql.DB
}

// New creates a postgres-backed audit store.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// outboxPayload is the JSON structure published to Kafka. Field names match
// the wire shape consumed by the compliance pipeline.
type outboxPayload struct {
	ID            string         `json:"id"`
	ActorID       string         `json:"actorId"`
	TargetID      string         `json:"targetId,omitempty"`
	Category      string         `json:"category"`
	AccessType    string         `json:"accessType"`
	Timestamp     string         `json:"timestamp"`
	Success       bool           `json:"success"`
	ErrorMessage  string         `json:"errorMessage,omitempty"`
	SourceAddress string         `json:"sourceAddress,omitempty"`
	UserAgent     string         `json:"userAgent,omitempty"`
	Context       map[string]any `json:"context,omitempty"`
}

// Append writes the entry and its outbox row atomically.
func (s *Store) Append(ctx context.Context, entry audit.Entry) error {
	var contextJSON []byte
	if entry.Context != nil {
		var err error
		contextJSON, err = json.Marshal(entry.Context)
		if err != nil {
			return fmt.Errorf("marshal audit context: %w", err)
		}
	}

	payload := outboxPayload{
		ID:            entry.ID.String(),
		ActorID:       entry.ActorID.String(),
		Category:      entry.Category.String(),
		AccessType:    string(entry.AccessType),
		Timestamp:     entry.OccurredAt.Format(time.RFC3339Nano),
		Success:       entry.Success,
		ErrorMessage:  entry.ErrorMessage,
		SourceAddress: entry.SourceAddress,
		UserAgent:     entry.UserAgent,
		Context:       entry.Context,
	}
	if !entry.TargetID.IsNil() {
		payload.TargetID = entry.TargetID.String()
	}
	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal outbox payload: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin audit tx: %w", err)
	}
	defer tx.Rollback()

	var targetID *uuid.UUID
	if !entry.TargetID.IsNil() {
		tid := uuid.UUID(entry.TargetID)
		targetID = &tid
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO access_log (
			id, actor_id, target_id, category, access_type, occurred_at,
			success, error_message, source_address, user_agent, agent_summary, context
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO NOTHING
	`,
		entry.ID,
		uuid.UUID(entry.ActorID),
		targetID,
		entry.Category.String(),
		string(entry.AccessType),
		entry.OccurredAt,
		entry.Success,
		entry.ErrorMessage,
		entry.SourceAddress,
		entry.UserAgent,
		entry.AgentSummary,
		nullableJSON(contextJSON),
	)
	if err != nil {
		return fmt.Errorf("insert access log entry: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO audit_outbox (id, payload, created_at)
		VALUES ($1, $2, $3)
	`, uuid.New(), payloadBytes, time.Now())
	if err != nil {
		return fmt.Errorf("insert outbox entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit audit tx: %w", err)
	}
	return nil
}

// Query returns entries most recent first. Filters are simple equality on
// indexed columns.
func (s *Store) Query(ctx context.Context, filter audit.Filter) ([]audit.Entry, error) {
	query := `
		SELECT id, actor_id, target_id, category, access_type, occurred_at,
			   success, error_message, source_address, user_agent, agent_summary, context
		FROM access_log
		WHERE ($1::uuid IS NULL OR actor_id = $1)
		  AND ($2::text IS NULL OR category = $2)
		  AND ($3::text IS NULL OR access_type = $3)
		ORDER BY occurred_at DESC
		LIMIT $4
	`

	var actorID *uuid.UUID
	if !filter.ActorID.IsNil() {
		aid := uuid.UUID(filter.ActorID)
		actorID = &aid
	}
	var category, accessType *string
	if filter.Category != "" {
		c := filter.Category.String()
		category = &c
	}
	if filter.AccessType != "" {
		a := string(filter.AccessType)
		accessType = &a
	}

	rows, err := s.db.QueryContext(ctx, query, actorID, category, accessType, filter.Limit)
	if err != nil {
		return nil, fmt.Errorf("query access log: %w", err)
	}
	defer rows.Close()

	return scanEntries(rows)
}

func scanEntries(rows *sql.Rows) ([]audit.Entry, error) {
	var entries []audit.Entry
	for rows.Next() {
		var (
			entry       audit.Entry
			actorID     uuid.UUID
			targetID    *uuid.UUID
			category    string
			accessType  string
			contextJSON []byte
		)
		err := rows.Scan(
			&entry.ID,
			&actorID,
			&targetID,
			&category,
			&accessType,
			&entry.OccurredAt,
			&entry.Success,
			&entry.ErrorMessage,
			&entry.SourceAddress,
			&entry.UserAgent,
			&entry.AgentSummary,
			&contextJSON,
		)
		if err != nil {
			return nil, fmt.Errorf("scan access log entry: %w", err)
		}
		entry.ActorID = domain.OwnerID(actorID)
		if targetID != nil {
			entry.TargetID = domain.RecordID(*targetID)
		}
		entry.Category = domain.DataCategory(category)
		entry.AccessType = audit.AccessType(accessType)
		if len(contextJSON) > 0 {
			if err := json.Unmarshal(contextJSON, &entry.Context); err != nil {
				return nil, fmt.Errorf("unmarshal audit context: %w", err)
			}
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate access log entries: %w", err)
	}
	return entries, nil
}

// nullableJSON converts empty JSON to a SQL NULL.
func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}
