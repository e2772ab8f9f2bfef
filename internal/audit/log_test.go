package audit_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/audit"
	"custodian/internal/audit/store/memory"
	"custodian/pkg/domain"
	"custodian/pkg/requestcontext"
)

func TestRecord(t *testing.T) {
	ctx := context.Background()
	actor := domain.OwnerID(uuid.New())

	t.Run("fills id, timestamp, and caller metadata from context", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		log := audit.New(store)

		fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		reqCtx := requestcontext.WithTime(ctx, fixed)
		reqCtx = requestcontext.WithClientMetadata(reqCtx,
			"203.0.113.7",
			"Mozilla/5.0 (X11; Linux x86_64; rv:121.0) Gecko/20100101 Firefox/121.0")

		err := log.Record(reqCtx, audit.Entry{
			ActorID:    actor,
			Category:   domain.CategoryPersonalInfo,
			AccessType: audit.AccessRead,
			Success:    true,
		})
		require.NoError(t, err)

		entries, err := log.Query(ctx, audit.Filter{ActorID: actor})
		require.NoError(t, err)
		require.Len(t, entries, 1)

		got := entries[0]
		assert.NotEqual(t, uuid.Nil, got.ID)
		assert.Equal(t, fixed, got.OccurredAt)
		assert.Equal(t, "203.0.113.7", got.SourceAddress)
		assert.Contains(t, got.AgentSummary, "Firefox")
		assert.Contains(t, got.AgentSummary, "Linux")
	})

	t.Run("entries are append-only and queryable by filters", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		log := audit.New(store)

		base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
		for i, at := range []audit.AccessType{audit.AccessCreate, audit.AccessRead, audit.AccessRead, audit.AccessDelete} {
			err := log.Record(requestcontext.WithTime(ctx, base.Add(time.Duration(i)*time.Second)), audit.Entry{
				ActorID:    actor,
				Category:   domain.CategoryPersonalInfo,
				AccessType: at,
				Success:    true,
			})
			require.NoError(t, err)
		}

		reads, err := log.Query(ctx, audit.Filter{ActorID: actor, AccessType: audit.AccessRead})
		require.NoError(t, err)
		assert.Len(t, reads, 2)

		all, err := log.Query(ctx, audit.Filter{ActorID: actor})
		require.NoError(t, err)
		require.Len(t, all, 4)
		// Most recent first.
		assert.Equal(t, audit.AccessDelete, all[0].AccessType)
		assert.Equal(t, audit.AccessCreate, all[3].AccessType)
	})

	t.Run("limit is applied and capped", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		log := audit.New(store)

		for i := 0; i < 10; i++ {
			require.NoError(t, log.Record(ctx, audit.Entry{
				ActorID:    actor,
				Category:   domain.CategoryUsageAnalytics,
				AccessType: audit.AccessRead,
				Success:    true,
			}))
		}

		entries, err := log.Query(ctx, audit.Filter{ActorID: actor, Limit: 3})
		require.NoError(t, err)
		assert.Len(t, entries, 3)

		// Absurd limits fall back to the server-side cap rather than erroring.
		entries, err = log.Query(ctx, audit.Filter{ActorID: actor, Limit: 1_000_000})
		require.NoError(t, err)
		assert.Len(t, entries, 10)
	})

	t.Run("other actors' entries are not visible", func(t *testing.T) {
		store := memory.NewInMemoryStore()
		log := audit.New(store)

		other := domain.OwnerID(uuid.New())
		require.NoError(t, log.Record(ctx, audit.Entry{ActorID: other, AccessType: audit.AccessRead, Success: true}))

		entries, err := log.Query(ctx, audit.Filter{ActorID: actor})
		require.NoError(t, err)
		assert.Empty(t, entries)
	})
}
