package securestore_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/audit"
	auditmem "custodian/internal/audit/store/memory"
	"custodian/internal/crypto"
	"custodian/internal/platform/metrics"
	"custodian/internal/securestore"
	"custodian/pkg/domain"
	dErrors "custodian/pkg/domain-errors"
	"custodian/pkg/requestcontext"
)

type fixedSchedule struct{ days int }

func (s fixedSchedule) RetentionDays(domain.DataCategory) int { return s.days }

type fixture struct {
	service  *securestore.Service
	records  *securestore.InMemoryRecordStore
	archives *securestore.InMemoryArchiveStore
	backups  *securestore.InMemoryBackupStore
	auditLog *audit.Log
	keyring  *crypto.Keyring
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	keyring, err := crypto.NewKeyring("unit-test master passphrase")
	require.NoError(t, err)

	records := securestore.NewInMemoryRecordStore()
	archives := securestore.NewInMemoryArchiveStore()
	backups := securestore.NewInMemoryBackupStore()
	auditLog := audit.New(auditmem.NewInMemoryStore())

	service := securestore.New(
		records, archives, backups,
		keyring, fixedSchedule{days: 30}, auditLog,
		metrics.New(prometheus.NewRegistry()),
	)
	return &fixture{
		service:  service,
		records:  records,
		archives: archives,
		backups:  backups,
		auditLog: auditLog,
		keyring:  keyring,
	}
}

func TestStoreAndRetrieve(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())

	t.Run("round-trips a structured payload exactly", func(t *testing.T) {
		f := newFixture(t)
		payload := map[string]any{"ssn": "123-45-6789", "plan": "premium"}

		id, err := f.service.Store(ctx, owner, payload, domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
		require.NoError(t, err)
		require.False(t, id.IsNil())

		got, err := f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)
		require.IsType(t, map[string]any{}, got)
		assert.Equal(t, "123-45-6789", got.(map[string]any)["ssn"])
		assert.Equal(t, "premium", got.(map[string]any)["plan"])
	})

	t.Run("stored payload is not plaintext at rest", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, map[string]any{"ssn": "123-45-6789"},
			domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
		require.NoError(t, err)

		stored, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		assert.NotContains(t, stored.Payload, "123-45-6789")
		assert.Equal(t, crypto.Algorithm, stored.Algorithm)
		assert.Equal(t, f.keyring.KeyID(domain.CategoryPersonalInfo), stored.KeyID)
		assert.Equal(t, 30, stored.RetentionDays)
	})

	t.Run("expiry is derived from the category retention period", func(t *testing.T) {
		f := newFixture(t)
		now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		id, err := f.service.Store(requestcontext.WithTime(ctx, now), owner, "secret",
			domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		stored, err := f.records.FindOne(ctx, owner, id, now)
		require.NoError(t, err)
		assert.Equal(t, now.Add(30*24*time.Hour), stored.ExpiresAt)
	})

	t.Run("rejects unknown category and sensitivity", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.service.Store(ctx, owner, "x", domain.DataCategory("nope"), domain.SensitivityPublic, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))

		_, err = f.service.Store(ctx, owner, "x", domain.CategoryPersonalInfo, domain.Sensitivity("loud"), nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("missing record returns nil and logs a failed read", func(t *testing.T) {
		f := newFixture(t)
		got, err := f.service.Retrieve(ctx, owner, domain.NewRecordID())
		require.NoError(t, err)
		assert.Nil(t, got)

		entries, err := f.auditLog.Query(ctx, audit.Filter{ActorID: owner, AccessType: audit.AccessRead})
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Success)
		assert.NotEmpty(t, entries[0].ErrorMessage)
	})

	t.Run("another owner cannot retrieve the record", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "secret", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		got, err := f.service.Retrieve(ctx, domain.OwnerID(mustUUID()), id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("every operation emits exactly one audit entry", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "secret", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)
		_, err = f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)

		entries, err := f.auditLog.Query(ctx, audit.Filter{ActorID: owner})
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, audit.AccessRead, entries[0].AccessType)
		assert.Equal(t, audit.AccessCreate, entries[1].AccessType)
	})
}

func TestRetrieveIntegrity(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())

	t.Run("checksum mismatch fails closed", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "the real secret",
			domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
		require.NoError(t, err)

		// Swap in a ciphertext that decrypts fine but no longer matches the
		// recorded checksum.
		stored, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		cipher, err := f.keyring.For(domain.CategoryPersonalInfo)
		require.NoError(t, err)
		substituted, err := cipher.Encrypt([]byte(`"a different secret"`))
		require.NoError(t, err)
		require.NoError(t, f.records.Update(ctx, &securestore.Record{
			ID: stored.ID, OwnerID: stored.OwnerID,
			Payload: substituted, Checksum: stored.Checksum,
			Algorithm: stored.Algorithm, KeyID: stored.KeyID,
			ExpiresAt: stored.ExpiresAt, UpdatedAt: stored.UpdatedAt,
		}))

		got, err := f.service.Retrieve(ctx, owner, id)
		assert.Nil(t, got)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeIntegrityViolation))

		entries, qerr := f.auditLog.Query(ctx, audit.Filter{ActorID: owner, AccessType: audit.AccessRead})
		require.NoError(t, qerr)
		require.Len(t, entries, 1)
		assert.False(t, entries[0].Success)
	})

	t.Run("corrupted ciphertext surfaces a decryption error", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "the real secret",
			domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
		require.NoError(t, err)

		stored, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		require.NoError(t, f.records.Update(ctx, &securestore.Record{
			ID: stored.ID, OwnerID: stored.OwnerID,
			Payload: "not even base64!!", Checksum: stored.Checksum,
			Algorithm: stored.Algorithm, KeyID: stored.KeyID,
			ExpiresAt: stored.ExpiresAt, UpdatedAt: stored.UpdatedAt,
		}))

		got, err := f.service.Retrieve(ctx, owner, id)
		assert.Nil(t, got)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeDecryptionFailed))
	})

	t.Run("unparseable plaintext leaves the access counter untouched", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "well-formed",
			domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
		require.NoError(t, err)

		// Valid ciphertext and checksum over a payload that is not JSON.
		garbled := []byte("{not json")
		cipher, err := f.keyring.For(domain.CategoryPersonalInfo)
		require.NoError(t, err)
		payload, err := cipher.Encrypt(garbled)
		require.NoError(t, err)
		stored, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		require.NoError(t, f.records.Update(ctx, &securestore.Record{
			ID: stored.ID, OwnerID: stored.OwnerID,
			Payload: payload, Checksum: crypto.Checksum(garbled),
			Algorithm: stored.Algorithm, KeyID: stored.KeyID,
			ExpiresAt: stored.ExpiresAt, UpdatedAt: stored.UpdatedAt,
		}))

		got, err := f.service.Retrieve(ctx, owner, id)
		assert.Nil(t, got)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

		// The failed read is audited but never counted as an access.
		after, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		assert.Equal(t, 0, after.AccessCount)
	})
}

func TestConcurrentRetrieves(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())
	f := newFixture(t)

	id, err := f.service.Store(ctx, owner, "hot record",
		domain.CategoryUsageAnalytics, domain.SensitivityInternal, nil)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			got, err := f.service.Retrieve(ctx, owner, id)
			if err == nil && got == nil {
				err = assert.AnError
			}
			errs[i] = err
		}()
	}
	wg.Wait()
	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	stored, err := f.records.FindOne(ctx, owner, id, time.Now())
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stored.AccessCount, 2)

	reads, err := f.auditLog.Query(ctx, audit.Filter{ActorID: owner, AccessType: audit.AccessRead})
	require.NoError(t, err)
	assert.Len(t, reads, 2)
}

func TestUpdate(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())

	t.Run("re-encrypts and round-trips the new payload", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "v1", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		before, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)

		ok, err := f.service.Update(ctx, owner, id, "v2")
		require.NoError(t, err)
		assert.True(t, ok)

		after, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		assert.NotEqual(t, before.Payload, after.Payload)
		assert.NotEqual(t, before.Checksum, after.Checksum)

		got, err := f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, "v2", got)
	})

	t.Run("reports false when no active record matches", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.service.Update(ctx, owner, domain.NewRecordID(), "v2")
		require.NoError(t, err)
		assert.False(t, ok)
	})
}

func TestDelete(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())

	t.Run("soft delete hides the record from retrieval", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "doomed", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		ok, err := f.service.Delete(ctx, owner, id, false)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)
		assert.Nil(t, got)
	})

	t.Run("hard delete removes the row", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "doomed", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		ok, err := f.service.Delete(ctx, owner, id, true)
		require.NoError(t, err)
		assert.True(t, ok)

		again, err := f.service.Delete(ctx, owner, id, true)
		require.NoError(t, err)
		assert.False(t, again)
	})

	t.Run("reports false when nothing matched", func(t *testing.T) {
		f := newFixture(t)
		ok, err := f.service.Delete(ctx, owner, domain.NewRecordID(), false)
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("hard delete never crosses owner boundaries", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "mine", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		ok, err := f.service.Delete(ctx, domain.OwnerID(mustUUID()), id, true)
		require.NoError(t, err)
		assert.False(t, ok)

		// The record survives for its real owner.
		got, err := f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, "mine", got)
	})
}

func TestInventory(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())
	f := newFixture(t)

	_, err := f.service.Store(ctx, owner, "one", domain.CategoryPersonalInfo, domain.SensitivityRestricted, nil)
	require.NoError(t, err)
	_, err = f.service.Store(ctx, owner, "two", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
	require.NoError(t, err)
	_, err = f.service.Store(ctx, owner, "three", domain.CategoryMediaAssets, domain.SensitivityPublic, nil)
	require.NoError(t, err)
	// Another owner's data never shows up.
	_, err = f.service.Store(ctx, domain.OwnerID(mustUUID()), "four", domain.CategoryPersonalInfo, domain.SensitivityPublic, nil)
	require.NoError(t, err)

	summaries, err := f.service.Inventory(ctx, owner)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	personal := summaries[domain.CategoryPersonalInfo]
	assert.Equal(t, 2, personal.Count)
	assert.Positive(t, personal.TotalBytes)
	assert.ElementsMatch(t, []string{"confidential", "restricted"}, personal.SensitivityLevels)

	media := summaries[domain.CategoryMediaAssets]
	assert.Equal(t, 1, media.Count)

	exports, err := f.auditLog.Query(ctx, audit.Filter{ActorID: owner, AccessType: audit.AccessExport})
	require.NoError(t, err)
	assert.Len(t, exports, 1)
}

func TestPurgeExpired(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())
	f := newFixture(t)

	start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	id, err := f.service.Store(requestcontext.WithTime(ctx, start), owner, "short-lived",
		domain.CategoryUsageAnalytics, domain.SensitivityInternal, nil)
	require.NoError(t, err)

	// One second past expiry: invisible to retrieve, removed by the purge.
	later := start.Add(30*24*time.Hour + time.Second)
	laterCtx := requestcontext.WithTime(ctx, later)

	got, err := f.service.Retrieve(laterCtx, owner, id)
	require.NoError(t, err)
	assert.Nil(t, got)

	result, err := f.service.PurgeExpired(laterCtx)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Deleted)
	assert.Equal(t, 0, result.Errors)

	deletes, err := f.auditLog.Query(ctx, audit.Filter{ActorID: owner, AccessType: audit.AccessDelete})
	require.NoError(t, err)
	require.Len(t, deletes, 1)
	assert.Equal(t, "expired", deletes[0].Context["reason"])

	// A second sweep finds nothing.
	result, err = f.service.PurgeExpired(laterCtx)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Deleted)
}

func TestArchiveAndBackup(t *testing.T) {
	ctx := context.Background()
	owner := domain.OwnerID(mustUUID())

	t.Run("archive copies ciphertext and keeps the original readable", func(t *testing.T) {
		f := newFixture(t)
		id, err := f.service.Store(ctx, owner, "keep me", domain.CategoryExperienceData, domain.SensitivityInternal, nil)
		require.NoError(t, err)

		require.NoError(t, f.service.Archive(ctx, owner, id))

		copies := f.archives.All()
		require.Len(t, copies, 1)
		assert.Equal(t, id, copies[0].RecordID)
		assert.NotContains(t, copies[0].Payload, "keep me")

		stored, err := f.records.FindOne(ctx, owner, id, time.Now())
		require.NoError(t, err)
		assert.True(t, stored.IsArchived)

		got, err := f.service.Retrieve(ctx, owner, id)
		require.NoError(t, err)
		assert.Equal(t, "keep me", got)
	})

	t.Run("backup snapshots expire after ninety days", func(t *testing.T) {
		f := newFixture(t)
		now := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		nowCtx := requestcontext.WithTime(ctx, now)

		id, err := f.service.Store(nowCtx, owner, "snapshot me", domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)
		require.NoError(t, f.service.Backup(nowCtx, owner, id))

		snapshots := f.backups.All()
		require.Len(t, snapshots, 1)
		assert.Equal(t, now.Add(90*24*time.Hour), snapshots[0].ExpiresAt)

		removed, err := f.service.PruneBackups(requestcontext.WithTime(ctx, now.Add(91*24*time.Hour)))
		require.NoError(t, err)
		assert.Equal(t, 1, removed)
		assert.Empty(t, f.backups.All())
	})

	t.Run("backs up a record already past its expiry", func(t *testing.T) {
		f := newFixture(t)
		start := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
		id, err := f.service.Store(requestcontext.WithTime(ctx, start), owner, "late snapshot",
			domain.CategoryPersonalInfo, domain.SensitivityConfidential, nil)
		require.NoError(t, err)

		// Deletion sweeps only run once the retention window has closed, so
		// the pre-deletion snapshot must work on an expired record.
		afterExpiry := requestcontext.WithTime(ctx, start.Add(31*24*time.Hour))
		require.NoError(t, f.service.Backup(afterExpiry, owner, id))

		snapshots := f.backups.All()
		require.Len(t, snapshots, 1)
		assert.Equal(t, id, snapshots[0].RecordID)
	})

	t.Run("backing up a missing record is a not-found error", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.Backup(ctx, owner, domain.NewRecordID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	t.Run("archiving a missing record is a not-found error", func(t *testing.T) {
		f := newFixture(t)
		err := f.service.Archive(ctx, owner, domain.NewRecordID())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

func mustUUID() uuid.UUID { return uuid.New() }
