package securestore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
)

// PostgresRecordStore persists secure records in postgres.
type PostgresRecordStore struct {
	db *sql.DB
}

// NewPostgresRecordStore creates a postgres-backed record store.
func NewPostgresRecordStore(db *sql.DB) *PostgresRecordStore {
	return &PostgresRecordStore{db: db}
}

const recordColumns = `
	id, owner_id, category, sensitivity, payload, checksum, algorithm, key_id,
	retention_days, access_count, last_accessed_at, metadata, is_active,
	is_archived, created_at, updated_at, expires_at, deleted_at`

func (s *PostgresRecordStore) Insert(ctx context.Context, record *Record) error {
	metadataJSON, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO secure_records (`+recordColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
		record.Category.String(),
		record.Sensitivity.String(),
		record.Payload,
		record.Checksum,
		record.Algorithm,
		record.KeyID,
		record.RetentionDays,
		record.AccessCount,
		record.LastAccessedAt,
		metadataJSON,
		record.IsActive,
		record.IsArchived,
		record.CreatedAt,
		record.UpdatedAt,
		record.ExpiresAt,
		record.DeletedAt,
	)
	if err != nil {
		return fmt.Errorf("insert secure record: %w", err)
	}
	return nil
}

func (s *PostgresRecordStore) FindOne(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID, now time.Time) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM secure_records
		WHERE id = $1 AND owner_id = $2 AND is_active AND expires_at > $3
	`, uuid.UUID(id), uuid.UUID(ownerID), now)

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find secure record: %w", err)
	}
	return record, nil
}

func (s *PostgresRecordStore) FindForBackup(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID) (*Record, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+recordColumns+`
		FROM secure_records
		WHERE id = $1 AND owner_id = $2
	`, uuid.UUID(id), uuid.UUID(ownerID))

	record, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sentinel.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find secure record for backup: %w", err)
	}
	return record, nil
}

func (s *PostgresRecordStore) Update(ctx context.Context, record *Record) error {
	metadataJSON, err := marshalMetadata(record.Metadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE secure_records
		SET payload = $1, checksum = $2, algorithm = $3, key_id = $4,
		    metadata = $5, expires_at = $6, updated_at = $7
		WHERE id = $8 AND owner_id = $9 AND is_active
	`,
		record.Payload,
		record.Checksum,
		record.Algorithm,
		record.KeyID,
		metadataJSON,
		record.ExpiresAt,
		record.UpdatedAt,
		uuid.UUID(record.ID),
		uuid.UUID(record.OwnerID),
	)
	if err != nil {
		return fmt.Errorf("update secure record: %w", err)
	}
	return expectOneRow(result)
}

func (s *PostgresRecordStore) TouchAccess(ctx context.Context, id domain.RecordID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE secure_records
		SET access_count = access_count + 1, last_accessed_at = $1
		WHERE id = $2
	`, at, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("touch secure record: %w", err)
	}
	return expectOneRow(result)
}

func (s *PostgresRecordStore) SoftDelete(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID, at time.Time) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE secure_records
		SET is_active = FALSE, deleted_at = $1, updated_at = $1
		WHERE id = $2 AND owner_id = $3 AND is_active
	`, at, uuid.UUID(id), uuid.UUID(ownerID))
	if err != nil {
		return false, fmt.Errorf("soft delete secure record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("soft delete rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresRecordStore) HardDeleteOwned(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM secure_records WHERE id = $1 AND owner_id = $2
	`, uuid.UUID(id), uuid.UUID(ownerID))
	if err != nil {
		return false, fmt.Errorf("hard delete owned secure record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("hard delete owned rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresRecordStore) HardDelete(ctx context.Context, id domain.RecordID) (bool, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM secure_records WHERE id = $1
	`, uuid.UUID(id))
	if err != nil {
		return false, fmt.Errorf("hard delete secure record: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("hard delete rows affected: %w", err)
	}
	return affected > 0, nil
}

func (s *PostgresRecordStore) MarkArchived(ctx context.Context, id domain.RecordID, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE secure_records SET is_archived = TRUE, updated_at = $1 WHERE id = $2
	`, at, uuid.UUID(id))
	if err != nil {
		return fmt.Errorf("mark secure record archived: %w", err)
	}
	return expectOneRow(result)
}

func (s *PostgresRecordStore) ListExpired(ctx context.Context, now time.Time, limit int) ([]*Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+recordColumns+`
		FROM secure_records
		WHERE is_active AND expires_at <= $1
		ORDER BY expires_at
		LIMIT $2
	`, now, limit)
	if err != nil {
		return nil, fmt.Errorf("list expired secure records: %w", err)
	}
	defer rows.Close()

	var expired []*Record
	for rows.Next() {
		record, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan expired secure record: %w", err)
		}
		expired = append(expired, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired secure records: %w", err)
	}
	return expired, nil
}

func (s *PostgresRecordStore) Summarize(ctx context.Context, ownerID domain.OwnerID) (map[domain.DataCategory]CategorySummary, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT category,
		       COUNT(*),
		       COALESCE(SUM(LENGTH(payload)), 0),
		       MIN(created_at),
		       MAX(created_at),
		       ARRAY_AGG(DISTINCT sensitivity ORDER BY sensitivity)
		FROM secure_records
		WHERE owner_id = $1 AND is_active
		GROUP BY category
	`, uuid.UUID(ownerID))
	if err != nil {
		return nil, fmt.Errorf("summarize secure records: %w", err)
	}
	defer rows.Close()

	summaries := make(map[domain.DataCategory]CategorySummary)
	for rows.Next() {
		var (
			category string
			summary  CategorySummary
			levels   []byte
		)
		if err := rows.Scan(&category, &summary.Count, &summary.TotalBytes, &summary.Oldest, &summary.Newest, &levels); err != nil {
			return nil, fmt.Errorf("scan category summary: %w", err)
		}
		summary.SensitivityLevels = parseTextArray(levels)
		summaries[domain.DataCategory(category)] = summary
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate category summaries: %w", err)
	}
	return summaries, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*Record, error) {
	var (
		record       Record
		id, ownerID  uuid.UUID
		category     string
		sensitivity  string
		metadataJSON []byte
	)
	err := row.Scan(
		&id,
		&ownerID,
		&category,
		&sensitivity,
		&record.Payload,
		&record.Checksum,
		&record.Algorithm,
		&record.KeyID,
		&record.RetentionDays,
		&record.AccessCount,
		&record.LastAccessedAt,
		&metadataJSON,
		&record.IsActive,
		&record.IsArchived,
		&record.CreatedAt,
		&record.UpdatedAt,
		&record.ExpiresAt,
		&record.DeletedAt,
	)
	if err != nil {
		return nil, err
	}
	record.ID = domain.RecordID(id)
	record.OwnerID = domain.OwnerID(ownerID)
	record.Category = domain.DataCategory(category)
	record.Sensitivity = domain.Sensitivity(sensitivity)
	if len(metadataJSON) > 0 {
		if err := json.Unmarshal(metadataJSON, &record.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal record metadata: %w", err)
		}
	}
	return &record, nil
}

func marshalMetadata(metadata map[string]any) (any, error) {
	if metadata == nil {
		return nil, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return nil, fmt.Errorf("marshal record metadata: %w", err)
	}
	return b, nil
}

func expectOneRow(result sql.Result) error {
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return sentinel.ErrNotFound
	}
	return nil
}

// parseTextArray decodes a one-dimensional postgres text array of simple
// identifiers. Sensitivity labels never contain quotes or commas, so the
// naive split is safe.
func parseTextArray(raw []byte) []string {
	trimmed := string(raw)
	if len(trimmed) < 2 || trimmed == "{}" {
		return nil
	}
	trimmed = trimmed[1 : len(trimmed)-1]
	var out []string
	start := 0
	for i := 0; i <= len(trimmed); i++ {
		if i == len(trimmed) || trimmed[i] == ',' {
			if i > start {
				out = append(out, trimmed[start:i])
			}
			start = i + 1
		}
	}
	return out
}

// PostgresArchiveStore persists archive copies in postgres.
type PostgresArchiveStore struct {
	db *sql.DB
}

func NewPostgresArchiveStore(db *sql.DB) *PostgresArchiveStore {
	return &PostgresArchiveStore{db: db}
}

func (s *PostgresArchiveStore) Insert(ctx context.Context, record *ArchiveRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO archive_records (id, record_id, owner_id, category, payload, checksum, archived_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.RecordID),
		uuid.UUID(record.OwnerID),
		record.Category.String(),
		record.Payload,
		record.Checksum,
		record.ArchivedAt,
	)
	if err != nil {
		return fmt.Errorf("insert archive record: %w", err)
	}
	return nil
}

// PostgresBackupStore persists pre-deletion snapshots in postgres.
type PostgresBackupStore struct {
	db *sql.DB
}

func NewPostgresBackupStore(db *sql.DB) *PostgresBackupStore {
	return &PostgresBackupStore{db: db}
}

func (s *PostgresBackupStore) Insert(ctx context.Context, record *BackupRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO backup_records (id, record_id, owner_id, category, payload, checksum, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`,
		uuid.UUID(record.ID),
		uuid.UUID(record.RecordID),
		uuid.UUID(record.OwnerID),
		record.Category.String(),
		record.Payload,
		record.Checksum,
		record.CreatedAt,
		record.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("insert backup record: %w", err)
	}
	return nil
}

func (s *PostgresBackupStore) DeleteExpired(ctx context.Context, now time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM backup_records WHERE expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("delete expired backups: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("expired backups rows affected: %w", err)
	}
	return int(affected), nil
}
