// Package retention schedules and executes the data lifecycle: applying
// per-category policies, archiving on schedule, and deleting on schedule
// behind a per-regulation compliance gate.
package retention

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"custodian/internal/platform/metrics"
	"custodian/internal/securestore"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/requestcontext"
)

const (
	sweepBatchSize = 500

	// purgeGraceWindow is how long after logical deletion a tracking record
	// stays DELETED before being marked PURGED. It matches the backup
	// snapshot expiry: once the backup is gone the data is unrecoverable.
	purgeGraceWindow = 90 * 24 * time.Hour
)

// Engine drives the retention state machine.
type Engine struct {
	tracking TrackingStore
	policies *PolicySet
	gate     *ComplianceGate
	store    *securestore.Service
	erasure  ErasureRegistry
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// EngineOption configures the Engine.
type EngineOption func(*Engine)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates the retention engine.
func NewEngine(
	tracking TrackingStore,
	policies *PolicySet,
	gate *ComplianceGate,
	store *securestore.Service,
	erasure ErasureRegistry,
	m *metrics.Metrics,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		tracking: tracking,
		policies: policies,
		gate:     gate,
		store:    store,
		erasure:  erasure,
		metrics:  m,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// ApplyPolicy starts tracking a record under its category's policy. Applying
// a policy to an already-tracked record returns the existing tracking record
// unchanged.
func (e *Engine) ApplyPolicy(ctx context.Context, ownerID domain.OwnerID, category domain.DataCategory, recordID domain.RecordID) (*TrackingRecord, error) {
	policy, ok := e.policies.For(category)
	if !ok {
		return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("no retention policy for category %q", category))
	}

	existing, err := e.tracking.FindByRecord(ctx, recordID)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up tracking record")
	}

	now := requestcontext.Now(ctx)
	record := &TrackingRecord{
		ID:                  domain.NewTrackingID(),
		OwnerID:             ownerID,
		RecordID:            recordID,
		Category:            category,
		Status:              StatusActive,
		ScheduledDeletionAt: now.Add(time.Duration(policy.RetentionDays) * 24 * time.Hour),
		Policy:              policy,
		CreatedAt:           now,
		UpdatedAt:           now,
	}
	if policy.Archivable() {
		archiveAt := now.Add(time.Duration(policy.ArchiveAfterDays) * 24 * time.Hour)
		record.ScheduledArchiveAt = &archiveAt
	}

	if err := e.tracking.Insert(ctx, record); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			// Lost a race with a concurrent ApplyPolicy for the same record.
			return e.tracking.FindByRecord(ctx, recordID)
		}
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "persist tracking record")
	}
	return record, nil
}

// RequestErasure registers a right-to-erasure request for the owner and
// accelerates every eligible tracked record: deletion is rescheduled to now,
// so the next sweep picks it up with the erasure request already open.
func (e *Engine) RequestErasure(ctx context.Context, ownerID domain.OwnerID) error {
	if err := e.erasure.Open(ctx, ownerID); err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "open erasure request")
	}

	now := requestcontext.Now(ctx)
	trackings, err := e.tracking.ListByOwner(ctx, ownerID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "list tracked records")
	}
	for _, tracking := range trackings {
		switch tracking.Status {
		case StatusActive:
			tracking.Status = StatusPendingDeletion
		case StatusArchived, StatusPendingDeletion:
			// Already past archiving or already pending; only the date moves.
		default:
			continue
		}
		if tracking.ScheduledDeletionAt.After(now) {
			tracking.ScheduledDeletionAt = now
		}
		tracking.UpdatedAt = now
		if err := e.tracking.Update(ctx, tracking); err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "reschedule tracked record")
		}
	}
	return nil
}

// ProcessScheduledArchiving copies every due record into the archive area
// and transitions its tracking to ARCHIVED. Archiving is non-destructive:
// the original record stays readable.
func (e *Engine) ProcessScheduledArchiving(ctx context.Context) (SweepSummary, error) {
	now := requestcontext.Now(ctx)
	due, err := e.tracking.ListDueForArchive(ctx, now, sweepBatchSize)
	if err != nil {
		return SweepSummary{}, dErrors.Wrap(err, dErrors.CodeInternal, "list records due for archiving")
	}

	var summary SweepSummary
	for _, tracking := range due {
		summary.add(e.archiveOne(ctx, tracking, now))
	}
	return summary, nil
}

func (e *Engine) archiveOne(ctx context.Context, tracking *TrackingRecord, now time.Time) SweepDetail {
	if err := e.store.Archive(ctx, tracking.OwnerID, tracking.RecordID); err != nil {
		if dErrors.HasCode(err, dErrors.CodeNotFound) {
			// The underlying record is already gone; nothing to archive.
			return SweepDetail{RecordID: tracking.RecordID, Action: "skipped", Reason: "record no longer exists"}
		}
		e.logger.WarnContext(ctx, "archive sweep failed for record",
			"record_id", tracking.RecordID, "error", err)
		return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
	}

	if !tracking.Status.CanTransition(StatusArchived) {
		return SweepDetail{RecordID: tracking.RecordID, Action: "error",
			Reason: fmt.Sprintf("cannot archive record in status %s", tracking.Status)}
	}
	tracking.Status = StatusArchived
	tracking.ArchivedAt = &now
	tracking.UpdatedAt = now
	if err := e.tracking.Update(ctx, tracking); err != nil {
		return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
	}
	e.metrics.RecordsSwept.WithLabelValues("archived").Inc()
	return SweepDetail{RecordID: tracking.RecordID, Action: "archived"}
}

// ProcessScheduledDeletions deletes every due record whose compliance gate
// allows it. Denied records stay in place with a "skipped" detail; they are
// reconsidered on the next sweep.
func (e *Engine) ProcessScheduledDeletions(ctx context.Context) (SweepSummary, error) {
	now := requestcontext.Now(ctx)
	due, err := e.tracking.ListDueForDeletion(ctx, now, sweepBatchSize)
	if err != nil {
		return SweepSummary{}, dErrors.Wrap(err, dErrors.CodeInternal, "list records due for deletion")
	}

	var summary SweepSummary
	for _, tracking := range due {
		summary.add(e.deleteOne(ctx, tracking, now))
	}
	return summary, nil
}

func (e *Engine) deleteOne(ctx context.Context, tracking *TrackingRecord, now time.Time) SweepDetail {
	if !tracking.Policy.AutoDelete {
		return SweepDetail{RecordID: tracking.RecordID, Action: "skipped", Reason: "auto-delete disabled by policy"}
	}

	verdict, err := e.gate.CanDelete(ctx, tracking)
	if err != nil {
		e.logger.WarnContext(ctx, "compliance evaluation failed",
			"record_id", tracking.RecordID, "error", err)
		return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
	}
	tracking.UpdatedAt = now
	if !verdict.Allowed {
		// Persist the refreshed compliance flags so the skip is inspectable.
		if err := e.tracking.Update(ctx, tracking); err != nil {
			return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
		}
		return SweepDetail{RecordID: tracking.RecordID, Action: "skipped", Reason: verdict.Reason}
	}

	if tracking.Policy.BackupBeforeDelete {
		if err := e.store.Backup(ctx, tracking.OwnerID, tracking.RecordID); err != nil &&
			!dErrors.HasCode(err, dErrors.CodeNotFound) {
			// Never destroy data whose mandated backup failed to write.
			e.logger.WarnContext(ctx, "pre-deletion backup failed, deletion deferred",
				"record_id", tracking.RecordID, "error", err)
			return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
		}
	}

	if _, err := e.store.Delete(ctx, tracking.OwnerID, tracking.RecordID, true); err != nil {
		return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
	}

	if !tracking.Status.CanTransition(StatusDeleted) {
		return SweepDetail{RecordID: tracking.RecordID, Action: "error",
			Reason: fmt.Sprintf("cannot delete record in status %s", tracking.Status)}
	}
	tracking.Status = StatusDeleted
	tracking.DeletedAt = &now
	if err := e.tracking.Update(ctx, tracking); err != nil {
		return SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()}
	}
	e.metrics.RecordsSwept.WithLabelValues("deleted").Inc()
	return SweepDetail{RecordID: tracking.RecordID, Action: "deleted", Reason: verdict.Reason}
}

// ProcessPurges transitions DELETED tracking records to PURGED once their
// backup grace window has elapsed, and prunes the expired backups
// themselves.
func (e *Engine) ProcessPurges(ctx context.Context) (SweepSummary, error) {
	now := requestcontext.Now(ctx)
	due, err := e.tracking.ListDeletedBefore(ctx, now.Add(-purgeGraceWindow), sweepBatchSize)
	if err != nil {
		return SweepSummary{}, dErrors.Wrap(err, dErrors.CodeInternal, "list purge candidates")
	}

	var summary SweepSummary
	for _, tracking := range due {
		tracking.Status = StatusPurged
		tracking.UpdatedAt = now
		if err := e.tracking.Update(ctx, tracking); err != nil {
			summary.add(SweepDetail{RecordID: tracking.RecordID, Action: "error", Reason: err.Error()})
			continue
		}
		e.metrics.RecordsSwept.WithLabelValues("purged").Inc()
		summary.add(SweepDetail{RecordID: tracking.RecordID, Action: "purged"})
	}

	if _, err := e.store.PruneBackups(ctx); err != nil {
		e.logger.WarnContext(ctx, "backup pruning failed", "error", err)
	}
	return summary, nil
}

// Status returns the tracking record for a stored record.
func (e *Engine) Status(ctx context.Context, recordID domain.RecordID) (*TrackingRecord, error) {
	record, err := e.tracking.FindByRecord(ctx, recordID)
	if errors.Is(err, sentinel.ErrNotFound) {
		return nil, dErrors.New(dErrors.CodeNotFound, "record is not tracked")
	}
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "look up tracking record")
	}
	return record, nil
}
