// Package audit is the append-only access log for the secure record store.
// Every store operation emits exactly one entry; appends are best-effort at
// the call site so a logging outage never blocks the guarded operation.
package audit

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/mssola/useragent"

	"custodian/pkg/requestcontext"
)

// maxQueryLimit hard-caps query result sizes server-side so a missing or
// hostile limit cannot trigger an unbounded scan.
const maxQueryLimit = 200

// Log records and queries access entries. Record returns its error rather
// than swallowing it: the call site decides to discard it (with a log
// statement), keeping the best-effort policy explicit and visible.
type Log struct {
	store  Store
	logger *slog.Logger
}

// Option configures the Log.
type Option func(*Log)

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) { l.logger = logger }
}

// New builds an audit log over the given store.
func New(store Store, opts ...Option) *Log {
	l := &Log{store: store, logger: slog.Default()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Record enriches and appends one entry. The ID, timestamp, and caller
// metadata are filled from the context when not already set.
func (l *Log) Record(ctx context.Context, entry Entry) error {
	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	if entry.OccurredAt.IsZero() {
		entry.OccurredAt = requestcontext.Now(ctx)
	}
	if entry.SourceAddress == "" {
		entry.SourceAddress = requestcontext.ClientIP(ctx)
	}
	if entry.UserAgent == "" {
		entry.UserAgent = requestcontext.UserAgent(ctx)
	}
	if entry.AgentSummary == "" && entry.UserAgent != "" {
		entry.AgentSummary = summarizeAgent(entry.UserAgent)
	}
	return l.store.Append(ctx, entry)
}

// Query returns entries for an actor, most recent first, bounded by the
// server-side cap.
func (l *Log) Query(ctx context.Context, filter Filter) ([]Entry, error) {
	if filter.Limit <= 0 || filter.Limit > maxQueryLimit {
		filter.Limit = maxQueryLimit
	}
	return l.store.Query(ctx, filter)
}

// summarizeAgent renders a raw User-Agent header as "Browser version on OS"
// for dashboards. Unparseable agents fall back to the raw string.
func summarizeAgent(raw string) string {
	ua := useragent.New(raw)
	name, version := ua.Browser()
	if name == "" {
		return raw
	}
	summary := name
	if version != "" {
		summary += " " + version
	}
	if os := ua.OS(); os != "" {
		summary += " on " + os
	}
	if ua.Bot() {
		summary += " (bot)"
	}
	return summary
}
