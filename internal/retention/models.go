package retention

import (
	"time"

	"custodian/pkg/domain"
)

// Status is the retention lifecycle state of a tracked record.
//
// Valid transitions:
//
//	ACTIVE -> PENDING_DELETION | ARCHIVED | DELETED
//	PENDING_DELETION -> DELETED
//	ARCHIVED -> DELETED
//	DELETED -> PURGED
//
// A record never regresses; DELETED means logically deleted (a backup
// snapshot may still exist), PURGED means unrecoverable.
type Status string

const (
	StatusActive          Status = "ACTIVE"
	StatusPendingDeletion Status = "PENDING_DELETION"
	StatusArchived        Status = "ARCHIVED"
	StatusDeleted         Status = "DELETED"
	StatusPurged          Status = "PURGED"
)

var validTransitions = map[Status][]Status{
	StatusActive:          {StatusPendingDeletion, StatusArchived, StatusDeleted},
	StatusPendingDeletion: {StatusDeleted},
	StatusArchived:        {StatusDeleted},
	StatusDeleted:         {StatusPurged},
}

// CanTransition reports whether moving from s to next is allowed.
func (s Status) CanTransition(next Status) bool {
	for _, allowed := range validTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// Policy is the static retention rule for one data category.
type Policy struct {
	Category           domain.DataCategory
	RetentionDays      int
	ArchiveAfterDays   int // 0 means the category is never archived
	Regulations        []domain.Regulation
	AutoDelete         bool
	RequireConsent     bool
	BackupBeforeDelete bool
}

// Archivable reports whether the policy schedules an archive step.
func (p Policy) Archivable() bool { return p.ArchiveAfterDays > 0 }

// TrackingRecord follows one stored record through the retention state
// machine. It is created when a policy is first applied and mutated by the
// sweeps, but never deleted: it is its own audit trail.
type TrackingRecord struct {
	ID       domain.TrackingID
	OwnerID  domain.OwnerID
	RecordID domain.RecordID
	Category domain.DataCategory
	Status   Status

	ScheduledDeletionAt time.Time
	ScheduledArchiveAt  *time.Time

	// Policy is a snapshot of the rule in force when tracking began, so a
	// later policy change never rewrites history.
	Policy Policy

	// ComplianceFlags records the most recent per-regulation gate verdicts.
	ComplianceFlags map[string]bool

	CreatedAt  time.Time
	UpdatedAt  time.Time
	ArchivedAt *time.Time
	DeletedAt  *time.Time
}

// SweepDetail explains what happened to one record during a sweep.
type SweepDetail struct {
	RecordID domain.RecordID
	Action   string // "archived", "deleted", "purged", "skipped", "error"
	Reason   string
}

// SweepSummary is the structured result of one sweep run. Operators verify
// sweep behavior from this summary instead of re-deriving state from logs.
type SweepSummary struct {
	Processed int
	Archived  int
	Deleted   int
	Purged    int
	Skipped   int
	Errors    int
	Details   []SweepDetail
}

func (s *SweepSummary) add(detail SweepDetail) {
	s.Processed++
	switch detail.Action {
	case "archived":
		s.Archived++
	case "deleted":
		s.Deleted++
	case "purged":
		s.Purged++
	case "skipped":
		s.Skipped++
	case "error":
		s.Errors++
	}
	s.Details = append(s.Details, detail)
}
