package fieldcrypt

import (
	"strconv"
	"strings"
)

// Dotted-path traversal over generic documents (map[string]any / []any).
// Segments are either map keys or numeric list indexes, e.g.
// "profile.firstName" or "experience.0.company". A missing or mismatched
// segment is a clean miss, never an error: schemas routinely mark paths that
// a given document does not carry.

// getPath resolves a dotted path, reporting ok=false when any segment is
// absent or the structure does not match.
func getPath(doc map[string]any, path string) (any, bool) {
	var current any = doc
	for _, segment := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]any:
			value, ok := node[segment]
			if !ok {
				return nil, false
			}
			current = value
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return nil, false
			}
			current = node[index]
		default:
			return nil, false
		}
	}
	return current, true
}

// setPath writes value at a dotted path, reporting whether the write landed.
// Only existing structure is written into; setPath never creates
// intermediate containers.
func setPath(doc map[string]any, path string, value any) bool {
	segments := strings.Split(path, ".")
	var current any = doc
	for i, segment := range segments {
		last := i == len(segments)-1
		switch node := current.(type) {
		case map[string]any:
			if last {
				if _, ok := node[segment]; !ok {
					return false
				}
				node[segment] = value
				return true
			}
			next, ok := node[segment]
			if !ok {
				return false
			}
			current = next
		case []any:
			index, err := strconv.Atoi(segment)
			if err != nil || index < 0 || index >= len(node) {
				return false
			}
			if last {
				node[index] = value
				return true
			}
			current = node[index]
		default:
			return false
		}
	}
	return false
}

// deepCopy clones a document so encryption never mutates the caller's value.
// Only JSON-shaped values (maps, slices, scalars) are duplicated; anything
// else is shared, which is safe because the engine only rewrites marked
// paths.
func deepCopy(value any) any {
	switch node := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(node))
		for key, child := range node {
			copied[key] = deepCopy(child)
		}
		return copied
	case []any:
		copied := make([]any, len(node))
		for i, child := range node {
			copied[i] = deepCopy(child)
		}
		return copied
	default:
		return node
	}
}
