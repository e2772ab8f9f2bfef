// Package fieldcrypt applies declarative per-entity-type encryption schemas
// to nested documents, encrypting and decrypting only the marked field paths.
package fieldcrypt

import (
	"context"
	"log/slog"

	"custodian/internal/crypto"
)

// MetadataKey is the field stamped onto encrypted documents.
const MetadataKey = "_encryption"

// SchemaVersion is recorded in the metadata block so future schema changes
// can be migrated.
const SchemaVersion = "1.0"

// Engine encrypts and decrypts marked fields of generic documents. The
// schema table and cipher are read-only after construction; the engine is
// safe for concurrent use.
type Engine struct {
	schemas *SchemaSet
	cipher  *crypto.Cipher
	logger  *slog.Logger
}

// Option configures the Engine.
type Option func(*Engine)

// WithLogger sets the logger used for per-field decryption warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) { e.logger = logger }
}

// New builds an Engine over an immutable schema set and cipher.
func New(schemas *SchemaSet, cipher *crypto.Cipher, opts ...Option) *Engine {
	e := &Engine{
		schemas: schemas,
		cipher:  cipher,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// EncryptDocument returns a copy of doc with every schema-marked field
// replaced by its ciphertext, stamped with an encryption metadata block.
// An unknown schema name returns the document unchanged.
//
// All values are JSON-serialized before sealing so that decryption restores
// the exact original type, including strings that look like numbers.
func (e *Engine) EncryptDocument(doc map[string]any, schemaName string) (map[string]any, error) {
	schema, ok := e.schemas.Lookup(schemaName)
	if !ok {
		return doc, nil
	}

	out, _ := deepCopy(doc).(map[string]any)
	for _, path := range schema.EncryptedPaths() {
		value, present := getPath(out, path)
		if !present || value == nil {
			continue
		}
		ciphertext, err := e.cipher.EncryptObject(value)
		if err != nil {
			return nil, err
		}
		setPath(out, path, ciphertext)
	}

	out[MetadataKey] = map[string]any{
		"encrypted": true,
		"schema":    schemaName,
		"version":   SchemaVersion,
	}
	return out, nil
}

// DecryptDocument reverses EncryptDocument. Documents without an encryption
// marker, or with an unknown schema name, are returned unchanged. A field
// that fails to decrypt keeps its encrypted value and is logged - fail-open
// per field, so partial corruption never destroys the rest of the document.
func (e *Engine) DecryptDocument(ctx context.Context, doc map[string]any, schemaName string) (map[string]any, error) {
	if !isEncrypted(doc) {
		return doc, nil
	}
	schema, ok := e.schemas.Lookup(schemaName)
	if !ok {
		return doc, nil
	}

	out, _ := deepCopy(doc).(map[string]any)
	for _, path := range schema.EncryptedPaths() {
		value, present := getPath(out, path)
		if !present {
			continue
		}
		ciphertext, isString := value.(string)
		if !isString {
			continue
		}

		plaintext, err := e.decryptValue(ciphertext)
		if err != nil {
			e.logger.WarnContext(ctx, "field decryption failed, keeping encrypted value",
				"path", path,
				"schema", schemaName,
				"error", err,
			)
			continue
		}
		setPath(out, path, plaintext)
	}

	delete(out, MetadataKey)
	return out, nil
}

// decryptValue tries object decryption first (the write path JSON-encodes
// everything), falling back to raw string decryption for values sealed by
// older writers.
func (e *Engine) decryptValue(ciphertext string) (any, error) {
	value, err := e.cipher.DecryptObject(ciphertext)
	if err == nil {
		return value, nil
	}
	raw, rawErr := e.cipher.Decrypt(ciphertext)
	if rawErr != nil {
		return nil, err
	}
	return string(raw), nil
}

func isEncrypted(doc map[string]any) bool {
	meta, ok := doc[MetadataKey].(map[string]any)
	if !ok {
		return false
	}
	encrypted, _ := meta["encrypted"].(bool)
	return encrypted
}
