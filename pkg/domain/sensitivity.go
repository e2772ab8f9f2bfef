package domain

import dErrors "custodian/pkg/domain-errors"

// Sensitivity classifies a stored record independently of its data category.
// It drives operator dashboards and inventory summaries, not key selection.
type Sensitivity string

const (
	SensitivityPublic       Sensitivity = "public"
	SensitivityInternal     Sensitivity = "internal"
	SensitivityConfidential Sensitivity = "confidential"
	SensitivityRestricted   Sensitivity = "restricted"
)

var validSensitivities = map[Sensitivity]bool{
	SensitivityPublic:       true,
	SensitivityInternal:     true,
	SensitivityConfidential: true,
	SensitivityRestricted:   true,
}

// ParseSensitivity constructs a Sensitivity from external input.
func ParseSensitivity(s string) (Sensitivity, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "sensitivity cannot be empty")
	}
	v := Sensitivity(s)
	if !validSensitivities[v] {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid sensitivity: "+s)
	}
	return v, nil
}

// IsValid checks if the sensitivity is one of the supported enum values.
func (s Sensitivity) IsValid() bool { return validSensitivities[s] }

func (s Sensitivity) String() string { return string(s) }
