package securestore

import (
	"context"
	"time"

	"custodian/pkg/domain"
)

// RecordStore abstracts persistence for secure records. Implementations
// return sentinel.ErrNotFound when a lookup or update matches nothing so the
// service can map absence without string matching.
type RecordStore interface {
	Insert(ctx context.Context, record *Record) error

	// FindOne returns the active, unexpired record owned by ownerID.
	FindOne(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID, now time.Time) (*Record, error)

	// FindForBackup returns the owner's record regardless of expiry or
	// active state, so pre-deletion snapshots can cover records whose
	// retention window has already closed.
	FindForBackup(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID) (*Record, error)

	// Update replaces the mutable fields (payload, checksum, metadata,
	// expiry, updated-at) of the record matching id and owner.
	Update(ctx context.Context, record *Record) error

	// TouchAccess atomically increments the access counter and stamps the
	// last-accessed time. Concurrent touches must not lose increments.
	TouchAccess(ctx context.Context, id domain.RecordID, at time.Time) error

	// SoftDelete deactivates the record and stamps deleted-at. Returns
	// false when no active record matched.
	SoftDelete(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID, at time.Time) (bool, error)

	// HardDeleteOwned physically removes the record only when ownerID
	// owns it. Returns false otherwise.
	HardDeleteOwned(ctx context.Context, ownerID domain.OwnerID, id domain.RecordID) (bool, error)

	// HardDelete physically removes the record regardless of state or
	// owner. Reserved for system-wide sweeps; anything acting on behalf
	// of an owner goes through HardDeleteOwned.
	HardDelete(ctx context.Context, id domain.RecordID) (bool, error)

	// MarkArchived flags the record as archived without touching payload.
	MarkArchived(ctx context.Context, id domain.RecordID, at time.Time) error

	// ListExpired returns active records whose expiry is at or before now.
	ListExpired(ctx context.Context, now time.Time, limit int) ([]*Record, error)

	// Summarize aggregates the owner's active records per category.
	Summarize(ctx context.Context, ownerID domain.OwnerID) (map[domain.DataCategory]CategorySummary, error)
}

// ArchiveStore persists non-destructive archive copies.
type ArchiveStore interface {
	Insert(ctx context.Context, record *ArchiveRecord) error
}

// BackupStore persists pre-deletion snapshots.
type BackupStore interface {
	Insert(ctx context.Context, record *BackupRecord) error

	// DeleteExpired removes snapshots past their own expiry and reports
	// how many were removed.
	DeleteExpired(ctx context.Context, now time.Time) (int, error)
}
