package domain

import (
	"github.com/google/uuid"

	dErrors "custodian/pkg/domain-errors"
)

// Typed IDs prevent cross-type assignment between owners, records, and
// tracking rows. Construct via the Parse helpers at trust boundaries; direct
// casting bypasses validation.
type (
	// OwnerID identifies the principal that owns a stored record.
	OwnerID uuid.UUID

	// RecordID identifies a stored secure record.
	RecordID uuid.UUID

	// TrackingID identifies a retention tracking row.
	TrackingID uuid.UUID
)

// NewRecordID generates a fresh record identifier.
func NewRecordID() RecordID { return RecordID(uuid.New()) }

// NewTrackingID generates a fresh tracking identifier.
func NewTrackingID() TrackingID { return TrackingID(uuid.New()) }

func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(err, dErrors.CodeInvalidInput, "id is not a valid UUID")
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil UUID")
	}
	return u, nil
}

// ParseOwnerID validates and returns an OwnerID.
func ParseOwnerID(s string) (OwnerID, error) {
	u, err := parseUUID(s)
	return OwnerID(u), err
}

// ParseRecordID validates and returns a RecordID.
func ParseRecordID(s string) (RecordID, error) {
	u, err := parseUUID(s)
	return RecordID(u), err
}

func (id OwnerID) String() string    { return uuid.UUID(id).String() }
func (id RecordID) String() string   { return uuid.UUID(id).String() }
func (id TrackingID) String() string { return uuid.UUID(id).String() }

func (id OwnerID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id RecordID) IsNil() bool   { return uuid.UUID(id) == uuid.Nil }
func (id TrackingID) IsNil() bool { return uuid.UUID(id) == uuid.Nil }
