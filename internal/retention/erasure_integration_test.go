//go:build integration

package retention_test

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	platformredis "custodian/internal/platform/redis"
	"custodian/internal/retention"
	"custodian/pkg/domain"
	"custodian/pkg/testutil/containers"
)

func TestRedisErasureRegistry(t *testing.T) {
	ctx := context.Background()
	rc := containers.NewRedisContainer(t)

	registry := retention.NewRedisErasureRegistry(&platformredis.Client{Client: rc.Client})
	owner := domain.OwnerID(uuid.New())

	open, err := registry.HasOpenRequest(ctx, owner)
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, registry.Open(ctx, owner))

	open, err = registry.HasOpenRequest(ctx, owner)
	require.NoError(t, err)
	assert.True(t, open)

	// Another owner's flag is independent.
	open, err = registry.HasOpenRequest(ctx, domain.OwnerID(uuid.New()))
	require.NoError(t, err)
	assert.False(t, open)

	require.NoError(t, registry.Resolve(ctx, owner))
	open, err = registry.HasOpenRequest(ctx, owner)
	require.NoError(t, err)
	assert.False(t, open)
}
