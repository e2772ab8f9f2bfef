package audit

import "context"

// Store persists access log entries. Implementations must treat entries as
// append-only; Query returns most-recent-first.
type Store interface {
	Append(ctx context.Context, entry Entry) error
	Query(ctx context.Context, filter Filter) ([]Entry, error)
}
