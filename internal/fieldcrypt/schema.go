package fieldcrypt

// Schema maps dotted field paths of one entity type to an "encrypt this
// field" flag. Paths not present are left untouched.
type Schema map[string]bool

// SchemaSet is the immutable table of named schemas, one per entity type.
// Built once at process start; not runtime-mutable.
type SchemaSet struct {
	schemas map[string]Schema
}

// NewSchemaSet copies the provided table so later mutation of the input
// cannot change engine behavior.
func NewSchemaSet(table map[string]Schema) *SchemaSet {
	schemas := make(map[string]Schema, len(table))
	for name, schema := range table {
		copied := make(Schema, len(schema))
		for path, encrypt := range schema {
			copied[path] = encrypt
		}
		schemas[name] = copied
	}
	return &SchemaSet{schemas: schemas}
}

// Lookup returns the schema for an entity type, or ok=false when the name is
// unknown. Unknown schemas make encryption/decryption a no-op rather than an
// error so unannotated entity types pass through the pipeline safely.
func (s *SchemaSet) Lookup(name string) (Schema, bool) {
	schema, ok := s.schemas[name]
	return schema, ok
}

// EncryptedPaths returns the paths marked for encryption, in no particular
// order.
func (sc Schema) EncryptedPaths() []string {
	paths := make([]string, 0, len(sc))
	for path, encrypt := range sc {
		if encrypt {
			paths = append(paths, path)
		}
	}
	return paths
}
