//go:build integration

package retention_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/platform/postgres"
	"custodian/internal/retention"
	"custodian/pkg/domain"
	"custodian/pkg/platform/sentinel"
	"custodian/pkg/testutil/containers"
)

func TestPostgresTrackingStore(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, postgres.Migrate(ctx, pg.DB))

	store := retention.NewPostgresTrackingStore(pg.DB)
	owner := domain.OwnerID(uuid.New())
	now := time.Now().UTC().Truncate(time.Millisecond)

	policy := retention.Policy{
		Category:           domain.CategoryPersonalInfo,
		RetentionDays:      30,
		ArchiveAfterDays:   10,
		Regulations:        []domain.Regulation{domain.RegulationGDPR},
		AutoDelete:         true,
		RequireConsent:     true,
		BackupBeforeDelete: true,
	}
	newTracking := func(deletionAt time.Time) *retention.TrackingRecord {
		archiveAt := deletionAt.Add(-20 * 24 * time.Hour)
		return &retention.TrackingRecord{
			ID:                  domain.NewTrackingID(),
			OwnerID:             owner,
			RecordID:            domain.NewRecordID(),
			Category:            domain.CategoryPersonalInfo,
			Status:              retention.StatusActive,
			ScheduledDeletionAt: deletionAt,
			ScheduledArchiveAt:  &archiveAt,
			Policy:              policy,
			CreatedAt:           now,
			UpdatedAt:           now,
		}
	}

	t.Run("insert and find round-trips the policy snapshot", func(t *testing.T) {
		record := newTracking(now.Add(30 * 24 * time.Hour))
		require.NoError(t, store.Insert(ctx, record))

		got, err := store.FindByRecord(ctx, record.RecordID)
		require.NoError(t, err)
		assert.Equal(t, retention.StatusActive, got.Status)
		assert.Equal(t, policy, got.Policy)
		require.NotNil(t, got.ScheduledArchiveAt)
	})

	t.Run("duplicate tracking for one record is rejected", func(t *testing.T) {
		record := newTracking(now.Add(30 * 24 * time.Hour))
		require.NoError(t, store.Insert(ctx, record))

		dup := newTracking(now.Add(30 * 24 * time.Hour))
		dup.RecordID = record.RecordID
		assert.Error(t, store.Insert(ctx, dup))
	})

	t.Run("update persists status and flags", func(t *testing.T) {
		record := newTracking(now.Add(30 * 24 * time.Hour))
		require.NoError(t, store.Insert(ctx, record))

		record.Status = retention.StatusArchived
		record.ArchivedAt = &now
		record.ComplianceFlags = map[string]bool{"GDPR": true}
		record.UpdatedAt = now
		require.NoError(t, store.Update(ctx, record))

		got, err := store.FindByRecord(ctx, record.RecordID)
		require.NoError(t, err)
		assert.Equal(t, retention.StatusArchived, got.Status)
		assert.Equal(t, map[string]bool{"GDPR": true}, got.ComplianceFlags)
	})

	t.Run("due queries respect status and dates", func(t *testing.T) {
		dueForArchive := newTracking(now.Add(5 * 24 * time.Hour))
		require.NoError(t, store.Insert(ctx, dueForArchive))

		dueForDeletion := newTracking(now.Add(-time.Hour))
		dueForDeletion.ScheduledArchiveAt = nil
		require.NoError(t, store.Insert(ctx, dueForDeletion))

		archiveDue, err := store.ListDueForArchive(ctx, now, 100)
		require.NoError(t, err)
		assert.True(t, containsRecord(archiveDue, dueForArchive.RecordID))
		assert.False(t, containsRecord(archiveDue, dueForDeletion.RecordID))

		deletionDue, err := store.ListDueForDeletion(ctx, now, 100)
		require.NoError(t, err)
		assert.True(t, containsRecord(deletionDue, dueForDeletion.RecordID))
		assert.False(t, containsRecord(deletionDue, dueForArchive.RecordID))
	})

	t.Run("missing record is a sentinel not-found", func(t *testing.T) {
		_, err := store.FindByRecord(ctx, domain.NewRecordID())
		assert.ErrorIs(t, err, sentinel.ErrNotFound)
	})
}

func TestPostgresConsentStore(t *testing.T) {
	ctx := context.Background()
	pg := containers.NewPostgresContainer(t)
	require.NoError(t, postgres.Migrate(ctx, pg.DB))

	store := retention.NewPostgresConsentStore(pg.DB)
	owner := domain.OwnerID(uuid.New())
	now := time.Now().UTC().Truncate(time.Millisecond)

	require.NoError(t, store.Save(ctx, retention.ConsentRecord{
		ID:        uuid.New(),
		OwnerID:   owner,
		Category:  domain.CategoryPersonalInfo,
		GrantedAt: now,
	}))

	records, err := store.ListByOwner(ctx, owner, domain.CategoryPersonalInfo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.True(t, records[0].IsActive(now))

	require.NoError(t, store.Revoke(ctx, owner, domain.CategoryPersonalInfo, now))

	records, err = store.ListByOwner(ctx, owner, domain.CategoryPersonalInfo)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.False(t, records[0].IsActive(now.Add(time.Second)))
}

func containsRecord(records []*retention.TrackingRecord, id domain.RecordID) bool {
	for _, r := range records {
		if r.RecordID == id {
			return true
		}
	}
	return false
}
