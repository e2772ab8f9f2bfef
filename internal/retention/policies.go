package retention

import (
	"fmt"

	"custodian/pkg/domain"
)

// PolicySet is the immutable table of per-category policies, loaded once at
// startup and safe for unsynchronized concurrent reads.
type PolicySet struct {
	policies map[domain.DataCategory]Policy
}

// NewPolicySet validates and indexes the given policies.
func NewPolicySet(policies []Policy) (*PolicySet, error) {
	indexed := make(map[domain.DataCategory]Policy, len(policies))
	for _, p := range policies {
		if !p.Category.IsValid() {
			return nil, fmt.Errorf("policy for unknown category %q", p.Category)
		}
		if p.RetentionDays <= 0 {
			return nil, fmt.Errorf("policy for %s: retention days must be positive", p.Category)
		}
		if p.ArchiveAfterDays < 0 || p.ArchiveAfterDays >= p.RetentionDays {
			return nil, fmt.Errorf("policy for %s: archive window must fall inside the retention period", p.Category)
		}
		if _, dup := indexed[p.Category]; dup {
			return nil, fmt.Errorf("duplicate policy for category %s", p.Category)
		}
		indexed[p.Category] = p
	}
	return &PolicySet{policies: indexed}, nil
}

// For returns the policy for a category.
func (ps *PolicySet) For(category domain.DataCategory) (Policy, bool) {
	p, ok := ps.policies[category]
	return p, ok
}

// RetentionDays resolves the retention period for a category, falling back
// to the most conservative configured period when the category is untracked.
func (ps *PolicySet) RetentionDays(category domain.DataCategory) int {
	if p, ok := ps.policies[category]; ok {
		return p.RetentionDays
	}
	shortest := 0
	for _, p := range ps.policies {
		if shortest == 0 || p.RetentionDays < shortest {
			shortest = p.RetentionDays
		}
	}
	return shortest
}

// DefaultPolicies is the stock policy table. Personal data carries the
// strictest handling: consent-gated GDPR/CCPA deletion with a pre-deletion
// backup.
func DefaultPolicies() []Policy {
	return []Policy{
		{
			Category:           domain.CategoryPersonalInfo,
			RetentionDays:      365 * 2,
			ArchiveAfterDays:   365,
			Regulations:        []domain.Regulation{domain.RegulationGDPR, domain.RegulationCCPA},
			AutoDelete:         true,
			RequireConsent:     true,
			BackupBeforeDelete: true,
		},
		{
			Category:           domain.CategoryExperienceData,
			RetentionDays:      365 * 3,
			ArchiveAfterDays:   365 * 2,
			Regulations:        []domain.Regulation{domain.RegulationGDPR},
			AutoDelete:         true,
			RequireConsent:     false,
			BackupBeforeDelete: true,
		},
		{
			Category:         domain.CategoryGeneratedContent,
			RetentionDays:    365 * 5,
			ArchiveAfterDays: 365 * 3,
			Regulations:      []domain.Regulation{domain.RegulationGDPR},
			AutoDelete:       false,
			RequireConsent:   false,
		},
		{
			Category:      domain.CategoryUsageAnalytics,
			RetentionDays: 90,
			Regulations:   []domain.Regulation{domain.RegulationGDPR, domain.RegulationCCPA},
			AutoDelete:    true,
		},
		{
			Category:           domain.CategoryMediaAssets,
			RetentionDays:      365 * 2,
			ArchiveAfterDays:   365,
			Regulations:        []domain.Regulation{domain.RegulationGDPR},
			AutoDelete:         true,
			BackupBeforeDelete: true,
		},
	}
}
