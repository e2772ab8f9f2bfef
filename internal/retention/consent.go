package retention

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"custodian/pkg/domain"
)

// ConsentRecord captures an owner's processing consent for one data
// category.
type ConsentRecord struct {
	ID        uuid.UUID
	OwnerID   domain.OwnerID
	Category  domain.DataCategory
	GrantedAt time.Time
	ExpiresAt time.Time // zero means consent does not expire on its own
	RevokedAt *time.Time
}

// IsActive reports whether the consent is currently valid.
func (c ConsentRecord) IsActive(now time.Time) bool {
	if c.RevokedAt != nil && !c.RevokedAt.After(now) {
		return false
	}
	return c.ExpiresAt.IsZero() || now.Before(c.ExpiresAt)
}

// ConsentStore persists consent records.
type ConsentStore interface {
	Save(ctx context.Context, record ConsentRecord) error
	ListByOwner(ctx context.Context, ownerID domain.OwnerID, category domain.DataCategory) ([]ConsentRecord, error)
	Revoke(ctx context.Context, ownerID domain.OwnerID, category domain.DataCategory, revokedAt time.Time) error
}

// InMemoryConsentStore is a map-backed ConsentStore for tests and local
// development.
type InMemoryConsentStore struct {
	mu      sync.RWMutex
	records []ConsentRecord
}

func NewInMemoryConsentStore() *InMemoryConsentStore {
	return &InMemoryConsentStore{}
}

func (s *InMemoryConsentStore) Save(_ context.Context, record ConsentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, record)
	return nil
}

func (s *InMemoryConsentStore) ListByOwner(_ context.Context, ownerID domain.OwnerID, category domain.DataCategory) ([]ConsentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ConsentRecord
	for _, record := range s.records {
		if record.OwnerID == ownerID && record.Category == category {
			out = append(out, record)
		}
	}
	return out, nil
}

func (s *InMemoryConsentStore) Revoke(_ context.Context, ownerID domain.OwnerID, category domain.DataCategory, revokedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].OwnerID == ownerID && s.records[i].Category == category && s.records[i].RevokedAt == nil {
			at := revokedAt
			s.records[i].RevokedAt = &at
		}
	}
	return nil
}

// PostgresConsentStore persists consent records in postgres.
type PostgresConsentStore struct {
	db *sql.DB
}

func NewPostgresConsentStore(db *sql.DB) *PostgresConsentStore {
	return &PostgresConsentStore{db: db}
}

func (s *PostgresConsentStore) Save(ctx context.Context, record ConsentRecord) error {
	var expiresAt *time.Time
	if !record.ExpiresAt.IsZero() {
		expiresAt = &record.ExpiresAt
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO consent_records (id, owner_id, category, granted_at, expires_at, revoked_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`,
		record.ID,
		uuid.UUID(record.OwnerID),
		record.Category.String(),
		record.GrantedAt,
		expiresAt,
		record.RevokedAt,
	)
	if err != nil {
		return fmt.Errorf("insert consent record: %w", err)
	}
	return nil
}

func (s *PostgresConsentStore) ListByOwner(ctx context.Context, ownerID domain.OwnerID, category domain.DataCategory) ([]ConsentRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, owner_id, category, granted_at, expires_at, revoked_at
		FROM consent_records
		WHERE owner_id = $1 AND category = $2
	`, uuid.UUID(ownerID), category.String())
	if err != nil {
		return nil, fmt.Errorf("query consent records: %w", err)
	}
	defer rows.Close()

	var out []ConsentRecord
	for rows.Next() {
		var (
			record    ConsentRecord
			ownerID   uuid.UUID
			category  string
			expiresAt *time.Time
		)
		if err := rows.Scan(&record.ID, &ownerID, &category, &record.GrantedAt, &expiresAt, &record.RevokedAt); err != nil {
			return nil, fmt.Errorf("scan consent record: %w", err)
		}
		record.OwnerID = domain.OwnerID(ownerID)
		record.Category = domain.DataCategory(category)
		if expiresAt != nil {
			record.ExpiresAt = *expiresAt
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate consent records: %w", err)
	}
	return out, nil
}

func (s *PostgresConsentStore) Revoke(ctx context.Context, ownerID domain.OwnerID, category domain.DataCategory, revokedAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE consent_records
		SET revoked_at = $1
		WHERE owner_id = $2 AND category = $3 AND revoked_at IS NULL
	`, revokedAt, uuid.UUID(ownerID), category.String())
	if err != nil {
		return fmt.Errorf("revoke consent records: %w", err)
	}
	return nil
}
