package domain

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dErrors "custodian/pkg/domain-errors"
)

// TestParseUUID_Invariants validates the parsing invariant:
// "IDs must be valid, non-empty, non-nil UUIDs"
func TestParseUUID_Invariants(t *testing.T) {
	t.Run("rejects empty string", func(t *testing.T) {
		_, err := ParseOwnerID("")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects invalid format", func(t *testing.T) {
		_, err := ParseRecordID("not-a-uuid")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("rejects nil UUID", func(t *testing.T) {
		_, err := ParseOwnerID(uuid.Nil.String())
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts valid UUID", func(t *testing.T) {
		validUUID := uuid.New()
		id, err := ParseRecordID(validUUID.String())
		require.NoError(t, err)
		assert.Equal(t, RecordID(validUUID), id)
	})
}

// TestTypeDistinction verifies the compiler enforces type safety between
// owner and record IDs. If this compiles, the invariant holds.
func TestTypeDistinction(t *testing.T) {
	ownerID := OwnerID(uuid.New())
	recordID := RecordID(uuid.New())

	// These would fail to compile if types were interchangeable:
	// var _ OwnerID = recordID   // compile error
	// var _ RecordID = ownerID   // compile error

	assert.NotEqual(t, uuid.UUID(ownerID), uuid.UUID(recordID))
}

func TestParseDataCategory(t *testing.T) {
	t.Run("rejects empty", func(t *testing.T) {
		_, err := ParseDataCategory("")
		require.Error(t, err)
	})

	t.Run("rejects unknown", func(t *testing.T) {
		_, err := ParseDataCategory("telemetry")
		require.Error(t, err)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInvalidInput))
	})

	t.Run("accepts all supported categories", func(t *testing.T) {
		for _, c := range Categories() {
			got, err := ParseDataCategory(c.String())
			require.NoError(t, err)
			assert.Equal(t, c, got)
		}
	})
}

func TestParseSensitivity(t *testing.T) {
	t.Run("accepts known levels", func(t *testing.T) {
		for _, s := range []string{"public", "internal", "confidential", "restricted"} {
			got, err := ParseSensitivity(s)
			require.NoError(t, err)
			assert.True(t, got.IsValid())
		}
	})

	t.Run("rejects unknown level", func(t *testing.T) {
		_, err := ParseSensitivity("top-secret")
		require.Error(t, err)
	})
}
