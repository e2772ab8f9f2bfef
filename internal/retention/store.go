package retention

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"

	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// TrackingStore persists retention tracking records. Records are created
// once and mutated by the sweeps; they are never deleted.
type TrackingStore interface {
	Insert(ctx context.Context, record *TrackingRecord) error
	FindByRecord(ctx context.Context, recordID domain.RecordID) (*TrackingRecord, error)
	Update(ctx context.Context, record *TrackingRecord) error
	ListByOwner(ctx context.Context, ownerID domain.OwnerID) ([]*TrackingRecord, error)

	// ListDueForArchive returns records in the given statuses whose archive
	// date has passed but whose deletion date has not.
	ListDueForArchive(ctx context.Context, now time.Time, limit int) ([]*TrackingRecord, error)

	// ListDueForDeletion returns ACTIVE, PENDING_DELETION, and ARCHIVED
	// records whose scheduled deletion date has passed.
	ListDueForDeletion(ctx context.Context, now time.Time, limit int) ([]*TrackingRecord, error)

	// ListDeletedBefore returns DELETED records whose deletion happened at
	// or before the cutoff, candidates for the PURGED transition.
	ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*TrackingRecord, error)
}

// InMemoryTrackingStore is a map-backed TrackingStore for tests and local
// development.
type InMemoryTrackingStore struct {
	mu      sync.RWMutex
	records map[domain.RecordID]*TrackingRecord
}

func NewInMemoryTrackingStore() *InMemoryTrackingStore {
	return &InMemoryTrackingStore{records: make(map[domain.RecordID]*TrackingRecord)}
}

func (s *InMemoryTrackingStore) Insert(_ context.Context, record *TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[record.RecordID]; exists {
		return sentinel.ErrConflict
	}
	s.records[record.RecordID] = cloneTracking(record)
	return nil
}

func (s *InMemoryTrackingStore) FindByRecord(_ context.Context, recordID domain.RecordID) (*TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.records[recordID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return cloneTracking(record), nil
}

func (s *InMemoryTrackingStore) Update(_ context.Context, record *TrackingRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[record.RecordID]; !ok {
		return sentinel.ErrNotFound
	}
	s.records[record.RecordID] = cloneTracking(record)
	return nil
}

func (s *InMemoryTrackingStore) ListByOwner(_ context.Context, ownerID domain.OwnerID) ([]*TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TrackingRecord
	for _, record := range s.records {
		if record.OwnerID == ownerID {
			out = append(out, cloneTracking(record))
		}
	}
	sortTracking(out)
	return out, nil
}

func (s *InMemoryTrackingStore) ListDueForArchive(_ context.Context, now time.Time, limit int) ([]*TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*TrackingRecord
	for _, record := range s.records {
		if record.Status != StatusActive || record.ScheduledArchiveAt == nil {
			continue
		}
		if !record.ScheduledArchiveAt.After(now) && record.ScheduledDeletionAt.After(now) {
			due = append(due, cloneTracking(record))
		}
	}
	sortTracking(due)
	return capTracking(due, limit), nil
}

func (s *InMemoryTrackingStore) ListDueForDeletion(_ context.Context, now time.Time, limit int) ([]*TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*TrackingRecord
	for _, record := range s.records {
		switch record.Status {
		case StatusActive, StatusPendingDeletion, StatusArchived:
		default:
			continue
		}
		if !record.ScheduledDeletionAt.After(now) {
			due = append(due, cloneTracking(record))
		}
	}
	sortTracking(due)
	return capTracking(due, limit), nil
}

func (s *InMemoryTrackingStore) ListDeletedBefore(_ context.Context, cutoff time.Time, limit int) ([]*TrackingRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var due []*TrackingRecord
	for _, record := range s.records {
		if record.Status != StatusDeleted || record.DeletedAt == nil {
			continue
		}
		if !record.DeletedAt.After(cutoff) {
			due = append(due, cloneTracking(record))
		}
	}
	sortTracking(due)
	return capTracking(due, limit), nil
}

func sortTracking(records []*TrackingRecord) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].ScheduledDeletionAt.Before(records[j].ScheduledDeletionAt)
	})
}

func capTracking(records []*TrackingRecord, limit int) []*TrackingRecord {
	if limit > 0 && len(records) > limit {
		return records[:limit]
	}
	return records
}

func cloneTracking(record *TrackingRecord) *TrackingRecord {
	copied := *record
	if record.ScheduledArchiveAt != nil {
		at := *record.ScheduledArchiveAt
		copied.ScheduledArchiveAt = &at
	}
	if record.ComplianceFlags != nil {
		copied.ComplianceFlags = make(map[string]bool, len(record.ComplianceFlags))
		for k, v := range record.ComplianceFlags {
			copied.ComplianceFlags[k] = v
		}
	}
	if record.ArchivedAt != nil {
		at := *record.ArchivedAt
		copied.ArchivedAt = &at
	}
	if record.DeletedAt != nil {
		at := *record.DeletedAt
		copied.DeletedAt = &at
	}
	return &copied
}

// PostgresTrackingStore persists tracking records in postgres. The policy
// snapshot and compliance flags are stored as JSONB.
type PostgresTrackingStore struct {
	db *sql.DB
}

func NewPostgresTrackingStore(db *sql.DB) *PostgresTrackingStore {
	return &PostgresTrackingStore{db: db}
}

const trackingColumns = `
	id, owner_id, record_id, category, status, scheduled_deletion_at,
	scheduled_archive_at, policy, compliance_flags, created_at, updated_at,
	archived_at, deleted_at`

func (s *PostgresTrackingStore) Insert(ctx context.Context, record *TrackingRecord) error {
	policyJSON, flagsJSON, err := marshalTracking(record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO retention_tracking (`+trackingColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
		uuid.UUID(record.RecordID),
		record.Category.String(),
		string(record.Status),
		record.ScheduledDeletionAt,
		record.ScheduledArchiveAt,
		policyJSON,
		flagsJSON,
		record.CreatedAt,
		record.UpdatedAt,
		record.ArchivedAt,
		record.DeletedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return sentinel.ErrConflict
		}
		return fmt.Errorf("insert tracking record: %w", err)
	}
	return nil
}

func (s *PostgresTrackingStore) FindByRecord(ctx context.Context, recordID domain.RecordID) (*TrackingRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+trackingColumns+`
		FROM retention_tracking
		WHERE record_id = $1
	`, uuid.UUID(recordID))

	record, err := scanTracking(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find tracking record: %w", err)
	}
	return record, nil
}

func (s *PostgresTrackingStore) Update(ctx context.Context, record *TrackingRecord) error {
	policyJSON, flagsJSON, err := marshalTracking(record)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE retention_tracking
		SET status = $1, scheduled_deletion_at = $2, scheduled_archive_at = $3,
		    policy = $4, compliance_flags = $5, updated_at = $6,
		    archived_at = $7, deleted_at = $8
		WHERE record_id = $9
	`,
		string(record.Status),
		record.ScheduledDeletionAt,
		record.ScheduledArchiveAt,
		policyJSON,
		flagsJSON,
		record.UpdatedAt,
		record.ArchivedAt,
		record.DeletedAt,
		uuid.UUID(record.RecordID),
	)
	if err != nil {
		return fmt.Errorf("update tracking record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("tracking rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

func (s *PostgresTrackingStore) ListByOwner(ctx context.Context, ownerID domain.OwnerID) ([]*TrackingRecord, error) {
	return s.list(ctx, `
		SELECT `+trackingColumns+`
		FROM retention_tracking
		WHERE owner_id = $1
		ORDER BY scheduled_deletion_at
	`, uuid.UUID(ownerID))
}

func (s *PostgresTrackingStore) ListDueForArchive(ctx context.Context, now time.Time, limit int) ([]*TrackingRecord, error) {
	return s.list(ctx, `
		SELECT `+trackingColumns+`
		FROM retention_tracking
		WHERE status = 'ACTIVE'
		  AND scheduled_archive_at IS NOT NULL
		  AND scheduled_archive_at <= $1
		  AND scheduled_deletion_at > $1
		ORDER BY scheduled_archive_at
		LIMIT $2
	`, now, limit)
}

func (s *PostgresTrackingStore) ListDueForDeletion(ctx context.Context, now time.Time, limit int) ([]*TrackingRecord, error) {
	return s.list(ctx, `
		SELECT `+trackingColumns+`
		FROM retention_tracking
		WHERE status IN ('ACTIVE', 'PENDING_DELETION', 'ARCHIVED')
		  AND scheduled_deletion_at <= $1
		ORDER BY scheduled_deletion_at
		LIMIT $2
	`, now, limit)
}

func (s *PostgresTrackingStore) ListDeletedBefore(ctx context.Context, cutoff time.Time, limit int) ([]*TrackingRecord, error) {
	return s.list(ctx, `
		SELECT `+trackingColumns+`
		FROM retention_tracking
		WHERE status = 'DELETED' AND deleted_at <= $1
		ORDER BY deleted_at
		LIMIT $2
	`, cutoff, limit)
}

func (s *PostgresTrackingStore) list(ctx context.Context, query string, args ...any) ([]*TrackingRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tracking records: %w", err)
	}
	defer rows.Close()

	var out []*TrackingRecord
	for rows.Next() {
		record, err := scanTracking(rows)
		if err != nil {
			return nil, fmt.Errorf("scan tracking record: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate tracking records: %w", err)
	}
	return out, nil
}

func marshalTracking(record *TrackingRecord) (policyJSON, flagsJSON any, err error) {
	p, err := json.Marshal(record.Policy)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal policy snapshot: %w", err)
	}
	if record.ComplianceFlags == nil {
		return p, nil, nil
	}
	f, err := json.Marshal(record.ComplianceFlags)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal compliance flags: %w", err)
	}
	return p, f, nil
}

func scanTracking(row interface{ Scan(dest ...any) error }) (*TrackingRecord, error) {
	var (
		record                TrackingRecord
		id, ownerID, recordID uuid.UUID
		category, status      string
		policyJSON, flagsJSON []byte
	)
	err := row.Scan(
		&id,
		&ownerID,
		&recordID,
		&category,
		&status,
		&record.ScheduledDeletionAt,
		&record.ScheduledArchiveAt,
		&policyJSON,
		&flagsJSON,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ArchivedAt,
		&record.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ID = domain.TrackingID(id)
	record.OwnerID = domain.OwnerID(ownerID)
	record.RecordID = domain.RecordID(recordID)
	record.Category = domain.DataCategory(category)
	record.Status = Status(status)
	if err := json.Unmarshal(policyJSON, &record.Policy); err != nil {
		return nil, fmt.Errorf("unmarshal policy snapshot: %w", err)
	}
	if len(flagsJSON) > 0 {
		if err := json.Unmarshal(flagsJSON, &record.ComplianceFlags); err != nil {
			return nil, fmt.Errorf("unmarshal compliance flags: %w", err)
		}
	}
	return &record, nil
}
