// Package securestore is the CRUD façade over encrypted record persistence.
// Every write passes through whole-payload encryption, every read is
// decrypted and checksum-verified, and every operation emits exactly one
// access log entry.
package securestore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"custodian/internal/audit"
	"custodian/internal/crypto"
	"custodian/internal/platform/metrics"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

const (
	backupExpiry     = 90 * 24 * time.Hour
	purgeBatchSize   = 500
	purgeConcurrency = 4
)

// RetentionSchedule resolves the retention period for a data category. The
// retention package's policy set satisfies this.
type RetentionSchedule interface {
	RetentionDays(category domain.DataCategory) int
}

// Service implements the secure record operations. It holds no mutable state
// beyond its collaborators and is safe for concurrent use.
type Service struct {
	records  RecordStore
	archives ArchiveStore
	backups  BackupStore
	keyring  *crypto.Keyring
	schedule RetentionSchedule
	auditLog *audit.Log
	metrics  *metrics.Metrics
	logger   *slog.Logger
	tracer   trace.Tracer
}

// Option configures the Service.
type Option func(*Service)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// New creates the secure record service.
func New(
	records RecordStore,
	archives ArchiveStore,
	backups BackupStore,
	keyring *crypto.Keyring,
	schedule RetentionSchedule,
	auditLog *audit.Log,
	m *metrics.Metrics,
	opts ...Option,
) *Service {
	s := &Service{
		records:  records,
		archives: archives,
		backups:  backups,
		keyring:  keyring,
		schedule: schedule,
		auditLog: auditLog,
		metrics:  m,
		logger:   slog.Default(),
		tracer:   otel.Tracer("custodian/securestore"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store serializes, encrypts, and persists a payload, returning the new
// record id. The record's expiry is derived from the category's retention
// period.
func (s *Service) Store(
	ctx context.Context,
	owner domain.OwnerID,
	payload any,
	category domain.DataCategory,
	sensitivity domain.Sensitivity,
	metadata map[string]any,
) (domain.RecordID, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.Store",
		trace.WithAttributes(attribute.String("record.category", category.String())))
	defer span.End()

	if !category.IsValid() {
		return domain.RecordID{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown data category %q", category))
	}
	if !sensitivity.IsValid() {
		return domain.RecordID{}, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("unknown sensitivity %q", sensitivity))
	}

	recordID := domain.NewRecordID()
	now := requestcontext.Now(ctx)

	plaintext, err := json.Marshal(payload)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not serializable")
		s.recordAccess(ctx, owner, recordID, category, audit.AccessCreate, err, nil)
		return domain.RecordID{}, err
	}

	cipher, err := s.keyring.For(category)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "resolve category key")
		s.recordAccess(ctx, owner, recordID, category, audit.AccessCreate, err, nil)
		return domain.RecordID{}, err
	}
	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "encrypt payload")
		s.recordAccess(ctx, owner, recordID, category, audit.AccessCreate, err, nil)
		return domain.RecordID{}, err
	}

	retentionDays := s.schedule.RetentionDays(category)
	record := &Record{
		ID:            recordID,
		OwnerID:       owner,
		Category:      category,
		Sensitivity:   sensitivity,
		Payload:       ciphertext,
		Checksum:      crypto.Checksum(plaintext),
		Algorithm:     crypto.Algorithm,
		KeyID:         s.keyring.KeyID(category),
		RetentionDays: retentionDays,
		Metadata:      metadata,
		IsActive:      true,
		CreatedAt:     now,
		UpdatedAt:     now,
		ExpiresAt:     now.Add(time.Duration(retentionDays) * 24 * time.Hour),
	}
	if err := s.records.Insert(ctx, record); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "persist secure record")
		s.recordAccess(ctx, owner, recordID, category, audit.AccessCreate, err, nil)
		return domain.RecordID{}, err
	}

	s.metrics.RecordsStored.WithLabelValues(category.String()).Inc()
	s.recordAccess(ctx, owner, recordID, category, audit.AccessCreate, nil, nil)
	return recordID, nil
}

// Retrieve decrypts and returns the payload of an active, unexpired record
// owned by the caller. It returns (nil, nil) when no such record exists.
// A checksum mismatch fails closed: the caller gets an integrity error, never
// silently corrupted data.
func (s *Service) Retrieve(ctx context.Context, owner domain.OwnerID, id domain.RecordID) (any, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.Retrieve",
		trace.WithAttributes(attribute.String("record.id", id.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	record, err := s.records.FindOne(ctx, owner, id, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.metrics.RecordsRetrieved.WithLabelValues("not_found").Inc()
		s.recordAccess(ctx, owner, id, "", audit.AccessRead, errRecordNotFound, nil)
		return nil, nil
	}
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "load secure record")
		s.recordAccess(ctx, owner, id, "", audit.AccessRead, err, nil)
		return nil, err
	}

	cipher, err := s.keyring.For(record.Category)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "resolve category key")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessRead, err, nil)
		return nil, err
	}
	plaintext, err := cipher.Decrypt(record.Payload)
	if err != nil {
		s.metrics.DecryptionFailures.Inc()
		s.metrics.RecordsRetrieved.WithLabelValues("decryption_failed").Inc()
		err = dErrors.Wrap(err, dErrors.CodeDecryptionFailed, "decrypt secure record")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessRead, err, nil)
		return nil, err
	}

	if !crypto.VerifyChecksum(plaintext, record.Checksum) {
		s.metrics.IntegrityFailures.Inc()
		s.metrics.RecordsRetrieved.WithLabelValues("integrity_failed").Inc()
		err = dErrors.New(dErrors.CodeIntegrityViolation, "checksum mismatch on retrieval")
		s.logger.ErrorContext(ctx, "secure record failed integrity check",
			"record_id", id, "category", record.Category)
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessRead, err, nil)
		return nil, err
	}

	var payload any
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "deserialize secure record payload")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessRead, err, nil)
		return nil, err
	}

	// Only a read that actually hands data back counts as an access.
	if err := s.records.TouchAccess(ctx, id, now); err != nil {
		// The caller already has the data; losing one access-count tick is
		// preferable to failing the read.
		s.logger.WarnContext(ctx, "failed to bump access counter", "record_id", id, "error", err)
	}

	s.metrics.RecordsRetrieved.WithLabelValues("ok").Inc()
	s.recordAccess(ctx, owner, id, record.Category, audit.AccessRead, nil, nil)
	return payload, nil
}

// Update re-encrypts an active record with a new payload. It reports false
// when no matching record exists.
func (s *Service) Update(ctx context.Context, owner domain.OwnerID, id domain.RecordID, payload any) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.Update",
		trace.WithAttributes(attribute.String("record.id", id.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	record, err := s.records.FindOne(ctx, owner, id, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		s.recordAccess(ctx, owner, id, "", audit.AccessUpdate, errRecordNotFound, nil)
		return false, nil
	}
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "load secure record")
		s.recordAccess(ctx, owner, id, "", audit.AccessUpdate, err, nil)
		return false, err
	}

	plaintext, err := json.Marshal(payload)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInvalidInput, "payload is not serializable")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, err, nil)
		return false, err
	}
	cipher, err := s.keyring.For(record.Category)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "resolve category key")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, err, nil)
		return false, err
	}
	ciphertext, err := cipher.Encrypt(plaintext)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "encrypt payload")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, err, nil)
		return false, err
	}

	record.Payload = ciphertext
	record.Checksum = crypto.Checksum(plaintext)
	record.Algorithm = crypto.Algorithm
	record.KeyID = s.keyring.KeyID(record.Category)
	record.UpdatedAt = now

	if err := s.records.Update(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, errRecordNotFound, nil)
			return false, nil
		}
		err = dErrors.Wrap(err, dErrors.CodeInternal, "persist updated record")
		s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, err, nil)
		return false, err
	}

	s.recordAccess(ctx, owner, id, record.Category, audit.AccessUpdate, nil, nil)
	return true, nil
}

// Delete removes a record. Soft deletion deactivates it and stamps the
// deletion time; hard deletion removes the row. It reports false when
// nothing matched.
func (s *Service) Delete(ctx context.Context, owner domain.OwnerID, id domain.RecordID, hard bool) (bool, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.Delete",
		trace.WithAttributes(
			attribute.String("record.id", id.String()),
			attribute.Bool("record.hard_delete", hard)))
	defer span.End()

	now := requestcontext.Now(ctx)
	var (
		deleted bool
		err     error
	)
	if hard {
		deleted, err = s.records.HardDeleteOwned(ctx, owner, id)
	} else {
		deleted, err = s.records.SoftDelete(ctx, owner, id, now)
	}
	auditCtx := map[string]any{"hard": hard}
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "delete secure record")
		s.recordAccess(ctx, owner, id, "", audit.AccessDelete, err, auditCtx)
		return false, err
	}
	if !deleted {
		s.recordAccess(ctx, owner, id, "", audit.AccessDelete, errRecordNotFound, auditCtx)
		return false, nil
	}
	s.recordAccess(ctx, owner, id, "", audit.AccessDelete, nil, auditCtx)
	return true, nil
}

// Inventory aggregates the owner's active records per category, for
// self-service transparency and compliance dashboards.
func (s *Service) Inventory(ctx context.Context, owner domain.OwnerID) (map[domain.DataCategory]CategorySummary, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.Inventory")
	defer span.End()

	summaries, err := s.records.Summarize(ctx, owner)
	if err != nil {
		err = dErrors.Wrap(err, dErrors.CodeInternal, "summarize records")
		s.recordAccess(ctx, owner, domain.RecordID{}, "", audit.AccessExport, err, nil)
		return nil, err
	}
	s.recordAccess(ctx, owner, domain.RecordID{}, "", audit.AccessExport, nil,
		map[string]any{"categories": len(summaries)})
	return summaries, nil
}

// PurgeExpired hard-deletes every active record past its expiry, logging each
// removal. Individual failures increment the error counter without aborting
// the sweep.
func (s *Service) PurgeExpired(ctx context.Context) (PurgeResult, error) {
	ctx, span := s.tracer.Start(ctx, "securestore.PurgeExpired")
	defer span.End()

	now := requestcontext.Now(ctx)
	expired, err := s.records.ListExpired(ctx, now, purgeBatchSize)
	if err != nil {
		return PurgeResult{}, dErrors.Wrap(err, dErrors.CodeInternal, "list expired records")
	}

	var deleted, failed atomic.Int64
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(purgeConcurrency)
	for _, record := range expired {
		group.Go(func() error {
			ok, err := s.records.HardDelete(groupCtx, record.ID)
			if err != nil {
				failed.Add(1)
				s.logger.WarnContext(groupCtx, "failed to purge expired record",
					"record_id", record.ID, "error", err)
				return nil
			}
			if ok {
				deleted.Add(1)
				s.recordAccess(groupCtx, record.OwnerID, record.ID, record.Category,
					audit.AccessDelete, nil, map[string]any{"reason": "expired"})
			}
			return nil
		})
	}
	// Workers never return errors; Wait only propagates context cancellation.
	if err := group.Wait(); err != nil {
		return PurgeResult{Deleted: int(deleted.Load()), Errors: int(failed.Load())}, err
	}
	return PurgeResult{Deleted: int(deleted.Load()), Errors: int(failed.Load())}, nil
}

// Archive copies a record's still-encrypted payload into the archive area
// and flags the original as archived. Archiving is non-destructive.
func (s *Service) Archive(ctx context.Context, owner domain.OwnerID, id domain.RecordID) error {
	ctx, span := s.tracer.Start(ctx, "securestore.Archive",
		trace.WithAttributes(attribute.String("record.id", id.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	record, err := s.records.FindOne(ctx, owner, id, now)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "no active record to archive")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load secure record")
	}

	archiveRecord := &ArchiveRecord{
		ID:         domain.NewRecordID(),
		RecordID:   record.ID,
		OwnerID:    record.OwnerID,
		Category:   record.Category,
		Payload:    record.Payload,
		Checksum:   record.Checksum,
		ArchivedAt: now,
	}
	if err := s.archives.Insert(ctx, archiveRecord); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write archive copy")
	}
	if err := s.records.MarkArchived(ctx, id, now); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "mark record archived")
	}
	s.recordAccess(ctx, owner, id, record.Category, audit.AccessExport, nil,
		map[string]any{"reason": "archived"})
	return nil
}

// Backup writes an encrypted pre-deletion snapshot of the record with its own
// 90-day expiry. The lookup ignores the record's own expiry: deletion sweeps
// run after the retention window has closed, and the snapshot must still be
// written then.
func (s *Service) Backup(ctx context.Context, owner domain.OwnerID, id domain.RecordID) error {
	ctx, span := s.tracer.Start(ctx, "securestore.Backup",
		trace.WithAttributes(attribute.String("record.id", id.String())))
	defer span.End()

	now := requestcontext.Now(ctx)
	record, err := s.records.FindForBackup(ctx, owner, id)
	if errors.Is(err, sentinel.ErrNotFound) {
		return dErrors.New(dErrors.CodeNotFound, "no record to back up")
	}
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "load secure record")
	}

	backup := &BackupRecord{
		ID:        domain.NewRecordID(),
		RecordID:  record.ID,
		OwnerID:   record.OwnerID,
		Category:  record.Category,
		Payload:   record.Payload,
		Checksum:  record.Checksum,
		CreatedAt: now,
		ExpiresAt: now.Add(backupExpiry),
	}
	if err := s.backups.Insert(ctx, backup); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "write backup snapshot")
	}
	return nil
}

// PruneBackups removes backup snapshots past their own expiry.
func (s *Service) PruneBackups(ctx context.Context) (int, error) {
	removed, err := s.backups.DeleteExpired(ctx, requestcontext.Now(ctx))
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodeInternal, "prune expired backups")
	}
	return removed, nil
}

var errRecordNotFound = errors.New("no matching active record")

// recordAccess appends one audit entry for the operation. Audit failures are
// discarded after a warning so a logging outage never blocks the data path.
func (s *Service) recordAccess(
	ctx context.Context,
	owner domain.OwnerID,
	target domain.RecordID,
	category domain.DataCategory,
	accessType audit.AccessType,
	opErr error,
	auditCtx map[string]any,
) {
	entry := audit.Entry{
		ActorID:    owner,
		TargetID:   target,
		Category:   category,
		AccessType: accessType,
		Success:    opErr == nil,
		Context:    auditCtx,
	}
	if opErr != nil {
		entry.ErrorMessage = opErr.Error()
	}
	if err := s.auditLog.Record(ctx, entry); err != nil {
		s.metrics.AuditAppendFailed.Inc()
		s.logger.WarnContext(ctx, "audit append failed, entry discarded",
			"access_type", accessType, "record_id", target, "error", err)
	}
}
