package domain

// Regulation names a regulatory regime whose compliance handler must allow a
// deletion before the retention sweep may execute it. Multiple regulations on
// one policy are ANDed.
type Regulation string

const (
	RegulationGDPR  Regulation = "GDPR"
	RegulationCCPA  Regulation = "CCPA"
	RegulationHIPAA Regulation = "HIPAA"
)

func (r Regulation) String() string { return string(r) }

// Regulations converts a string slice (as stored in postgres text arrays)
// into typed values. Unknown names are preserved; the compliance gate treats
// regimes without a registered handler as allow-by-default.
func Regulations(names []string) []Regulation {
	out := make([]Regulation, 0, len(names))
	for _, n := range names {
		out = append(out, Regulation(n))
	}
	return out
}
