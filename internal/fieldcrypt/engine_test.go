package fieldcrypt

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"custodian/internal/crypto"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	cipher, err := crypto.NewFromPassphrase("engine-test")
	require.NoError(t, err)

	schemas := NewSchemaSet(map[string]Schema{
		"user_profile": {
			"ssn":               true,
			"profile.firstName": true,
			"profile.lastName":  false,
			"experience.0.company": true,
			"contact.phone":     true,
			"tags":              true,
		},
	})
	return New(schemas, cipher)
}

func profileDoc() map[string]any {
	return map[string]any{
		"ssn": "123-45-6789",
		"profile": map[string]any{
			"firstName": "Ada",
			"lastName":  "Lovelace",
		},
		"experience": []any{
			map[string]any{"company": "Analytical Engines Ltd", "years": float64(7)},
		},
		"tags":   []any{"math", "computing"},
		"active": true,
	}
}

func TestEncryptDocument(t *testing.T) {
	engine := newTestEngine(t)

	t.Run("marked fields are replaced, unmarked are bit-identical", func(t *testing.T) {
		doc := profileDoc()
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)

		ssn, _ := getPath(encrypted, "ssn")
		assert.NotEqual(t, "123-45-6789", ssn)
		first, _ := getPath(encrypted, "profile.firstName")
		assert.NotEqual(t, "Ada", first)

		// lastName is marked false, active is unmarked.
		last, _ := getPath(encrypted, "profile.lastName")
		assert.Equal(t, "Lovelace", last)
		active, _ := getPath(encrypted, "active")
		assert.Equal(t, true, active)
	})

	t.Run("stamps exactly one metadata block", func(t *testing.T) {
		encrypted, err := engine.EncryptDocument(profileDoc(), "user_profile")
		require.NoError(t, err)

		meta, ok := encrypted[MetadataKey].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, true, meta["encrypted"])
		assert.Equal(t, "user_profile", meta["schema"])
		assert.Equal(t, SchemaVersion, meta["version"])
	})

	t.Run("does not mutate the input document", func(t *testing.T) {
		doc := profileDoc()
		_, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)
		assert.Equal(t, "123-45-6789", doc["ssn"])
		_, hasMeta := doc[MetadataKey]
		assert.False(t, hasMeta)
	})

	t.Run("unknown schema is a no-op", func(t *testing.T) {
		doc := profileDoc()
		out, err := engine.EncryptDocument(doc, "unknown_entity")
		require.NoError(t, err)
		assert.Equal(t, doc, out)
	})

	t.Run("absent marked paths are skipped", func(t *testing.T) {
		doc := map[string]any{"profile": map[string]any{"firstName": "Ada"}}
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)
		_, ok := getPath(encrypted, "contact.phone")
		assert.False(t, ok)
	})
}

func TestDecryptDocument(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(t)

	t.Run("round-trips every marked field", func(t *testing.T) {
		doc := profileDoc()
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)

		decrypted, err := engine.DecryptDocument(ctx, encrypted, "user_profile")
		require.NoError(t, err)
		assert.Equal(t, doc, decrypted)
	})

	t.Run("round-trips list and map values", func(t *testing.T) {
		doc := profileDoc()
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)

		// tags is a marked list field.
		encTags, _ := getPath(encrypted, "tags")
		_, isString := encTags.(string)
		assert.True(t, isString, "list value should be sealed as opaque string")

		decrypted, err := engine.DecryptDocument(ctx, encrypted, "user_profile")
		require.NoError(t, err)
		tags, _ := getPath(decrypted, "tags")
		assert.Equal(t, []any{"math", "computing"}, tags)
	})

	t.Run("numeric-looking strings keep their type", func(t *testing.T) {
		schemas := NewSchemaSet(map[string]Schema{"doc": {"code": true}})
		cipher, err := crypto.NewFromPassphrase("engine-test")
		require.NoError(t, err)
		e := New(schemas, cipher)

		doc := map[string]any{"code": "007"}
		encrypted, err := e.EncryptDocument(doc, "doc")
		require.NoError(t, err)
		decrypted, err := e.DecryptDocument(ctx, encrypted, "doc")
		require.NoError(t, err)
		assert.Equal(t, "007", decrypted["code"])
	})

	t.Run("never-encrypted document is returned unchanged", func(t *testing.T) {
		doc := profileDoc()
		out, err := engine.DecryptDocument(ctx, doc, "user_profile")
		require.NoError(t, err)
		assert.Equal(t, doc, out)
	})

	t.Run("already-decrypted document is idempotent", func(t *testing.T) {
		doc := profileDoc()
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)
		once, err := engine.DecryptDocument(ctx, encrypted, "user_profile")
		require.NoError(t, err)
		twice, err := engine.DecryptDocument(ctx, once, "user_profile")
		require.NoError(t, err)
		assert.Equal(t, once, twice)
	})

	t.Run("unknown schema is a no-op even with marker", func(t *testing.T) {
		encrypted, err := engine.EncryptDocument(profileDoc(), "user_profile")
		require.NoError(t, err)
		out, err := engine.DecryptDocument(ctx, encrypted, "unknown_entity")
		require.NoError(t, err)
		assert.Equal(t, encrypted, out)
	})

	t.Run("corrupted field fails open and keeps ciphertext", func(t *testing.T) {
		doc := profileDoc()
		encrypted, err := engine.EncryptDocument(doc, "user_profile")
		require.NoError(t, err)

		require.True(t, setPath(encrypted, "ssn", "not-a-real-ciphertext"))

		decrypted, err := engine.DecryptDocument(ctx, encrypted, "user_profile")
		require.NoError(t, err, "per-field corruption must not fail the document")

		// The corrupted field keeps its (broken) encrypted value.
		ssn, _ := getPath(decrypted, "ssn")
		assert.Equal(t, "not-a-real-ciphertext", ssn)

		// Other marked fields still decrypt.
		first, _ := getPath(decrypted, "profile.firstName")
		assert.Equal(t, "Ada", first)

		// Metadata is stripped regardless.
		_, hasMeta := decrypted[MetadataKey]
		assert.False(t, hasMeta)
	})
}
