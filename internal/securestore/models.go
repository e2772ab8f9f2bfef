package securestore

import (
	"time"

	"custodian/pkg/domain"
)

// Record is a stored secure record: a whole-payload-encrypted document plus
// the metadata needed to verify, account for, and expire it.
//
// Lifecycle: created by Store; re-encrypted and re-checksummed by Update;
// access-counted by Retrieve; soft- or hard-deleted by Delete; physically
// purged by the retention sweep once past ExpiresAt.
type Record struct {
	ID          domain.RecordID
	OwnerID     domain.OwnerID
	Category    domain.DataCategory
	Sensitivity domain.Sensitivity

	// Payload is the ciphertext of the JSON-serialized payload.
	Payload string
	// Checksum is the SHA-256 hex digest of the plaintext, recomputed and
	// compared on every retrieval.
	Checksum string

	// Encryption metadata.
	Algorithm     string
	KeyID         string
	RetentionDays int

	Metadata map[string]any

	AccessCount    int
	LastAccessedAt *time.Time

	IsActive   bool
	IsArchived bool

	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
	DeletedAt *time.Time
}

// ArchiveRecord is a non-destructive copy of a record in the archive area.
// The payload stays encrypted; archiving never exposes plaintext.
type ArchiveRecord struct {
	ID         domain.RecordID
	RecordID   domain.RecordID
	OwnerID    domain.OwnerID
	Category   domain.DataCategory
	Payload    string
	Checksum   string
	ArchivedAt time.Time
}

// BackupRecord is an encrypted pre-deletion snapshot with its own expiry,
// written when a retention policy requests backup-before-deletion.
type BackupRecord struct {
	ID        domain.RecordID
	RecordID  domain.RecordID
	OwnerID   domain.OwnerID
	Category  domain.DataCategory
	Payload   string
	Checksum  string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// CategorySummary aggregates an owner's records in one category for
// self-service transparency and compliance dashboards.
type CategorySummary struct {
	Count             int
	TotalBytes        int64
	Oldest            time.Time
	Newest            time.Time
	SensitivityLevels []string
}

// PurgeResult reports a purge sweep: how many expired records were removed
// and how many failed. Individual failures never abort the sweep.
type PurgeResult struct {
	Deleted int
	Errors  int
}
