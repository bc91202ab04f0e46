package aggregate

import (
	"github.com/fyrsmithlabs/debugmem/internal/incident"
)

// FromIncident compacts an incident. A positive SimilarityScore carries over
// as the match signal; incidents that did not come from a search have none.
func FromIncident(inc *incident.Incident) CompactIncident {
	ci := CompactIncident{
		ID:         inc.ID,
		Symptom:    inc.Symptom,
		RootCause:  inc.RootCause.Description,
		Fix:        inc.Fix.Approach,
		Category:   inc.RootCause.Category,
		Confidence: Float(inc.RootCause.Confidence),
		Verified:   verificationCode(inc.Verification.Status),
		Tags:       inc.Tags,
	}
	if inc.SimilarityScore > 0 {
		ci.Similarity = Float(inc.SimilarityScore)
	}
	if !inc.Timestamp.IsZero() {
		ci.Timestamp = inc.Timestamp.UnixMilli()
	}
	return ci
}

// FromPattern compacts a pattern matched with the given score.
func FromPattern(p *incident.Pattern, match float64) CompactPattern {
	cp := CompactPattern{
		ID:          p.ID,
		Name:        p.Name,
		Category:    p.Category,
		Solution:    p.SolutionTemplate,
		SuccessRate: p.SuccessRate,
		Uses:        p.UsageHistory.TotalUses,
		Tags:        p.Tags,
		Match:       Float(match),
	}
	if !p.LastUsed.IsZero() {
		cp.LastUsed = p.LastUsed.UnixMilli()
	}
	return cp
}

func verificationCode(s incident.VerificationStatus) string {
	switch s {
	case incident.StatusVerified:
		return VerifiedCode
	case incident.StatusPartial:
		return PartialCode
	default:
		return UnverifiedCode
	}
}
