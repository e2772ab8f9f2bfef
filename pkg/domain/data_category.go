package domain

import dErrors "custodian/pkg/domain-errors"

// DataCategory is the functional grouping of stored data. The category
// selects the encryption key and the retention policy applied to a record.
//
// Usage: construct via ParseDataCategory at trust boundaries to enforce the
// allowlist; direct casting bypasses validation.
type DataCategory string

// Supported data categories.
const (
	CategoryPersonalInfo     DataCategory = "personal_info"
	CategoryExperienceData   DataCategory = "experience_data"
	CategoryGeneratedContent DataCategory = "generated_content"
	CategoryUsageAnalytics   DataCategory = "usage_analytics"
	CategoryMediaAssets      DataCategory = "media_assets"
)

// validDataCategories is the single source of truth for valid categories.
var validDataCategories = map[DataCategory]bool{
	CategoryPersonalInfo:     true,
	CategoryExperienceData:   true,
	CategoryGeneratedContent: true,
	CategoryUsageAnalytics:   true,
	CategoryMediaAssets:      true,
}

// ParseDataCategory constructs a DataCategory from external input.
//
// Errors: returns CodeInvalidInput when the value is empty or unsupported.
func ParseDataCategory(s string) (DataCategory, error) {
	if s == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "data category cannot be empty")
	}
	c := DataCategory(s)
	if !c.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "invalid data category: "+s)
	}
	return c, nil
}

// IsValid checks if the category is one of the supported enum values.
func (c DataCategory) IsValid() bool { return validDataCategories[c] }

func (c DataCategory) String() string { return string(c) }

// Categories returns all supported categories in stable order. Used when
// building keyrings and default policy tables.
func Categories() []DataCategory {
	return []DataCategory{
		CategoryPersonalInfo,
		CategoryExperienceData,
		CategoryGeneratedContent,
		CategoryUsageAnalytics,
		CategoryMediaAssets,
	}
}
