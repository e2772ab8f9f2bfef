package audit

import (
	"time"

	"github.com/google/uuid"

	"custodian/pkg/domain"
)

// AccessType classifies what an actor did to a record.
type AccessType string

const (
	AccessCreate  AccessType = "create"
	AccessRead    AccessType = "read"
	AccessUpdate  AccessType = "update"
	AccessDelete  AccessType = "delete"
	AccessExport  AccessType = "export"
	AccessDecrypt AccessType = "decrypt"
)

// Entry is one immutable access log record: who accessed what, when, with
// what outcome. Entries are append-only and never mutated after insertion.
type Entry struct {
	ID         uuid.UUID
	ActorID    domain.OwnerID
	TargetID   domain.RecordID
	Category   domain.DataCategory
	AccessType AccessType
	OccurredAt time.Time
	Success    bool

	// ErrorMessage is set when Success is false.
	ErrorMessage string

	// Request context captured from the caller, when available.
	SourceAddress string
	UserAgent     string
	// AgentSummary is a normalized "browser on OS" rendering of UserAgent,
	// filled in by the recorder for operator dashboards.
	AgentSummary string

	// Context carries free-form operation detail (e.g. deletion reason).
	Context map[string]any
}

// Filter bounds an audit query. Zero-valued fields are not applied.
type Filter struct {
	ActorID    domain.OwnerID
	Category   domain.DataCategory
	AccessType AccessType
	Limit      int
}
