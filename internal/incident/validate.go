package incident

import (
	"errors"
	"fmt"
	"strings"
)

// Validation errors.
var (
	ErrInvalidID         = errors.New("invalid id")
	ErrInvalidIncident   = errors.New("invalid incident")
	ErrSymptomRequired   = errors.New("symptom is required")
	ErrInvalidConfidence = errors.New("root_cause.confidence must be between 0.0 and 1.0")
	ErrInvalidStatus     = errors.New("verification.status must be verified, partial or unverified")
	ErrPatternRefMissing = errors.New("patternized incident must carry a pattern_id")
)

// Completeness weights. They sum to 1.0.
const (
	weightSymptom      = 0.20
	weightRootCause    = 0.25
	weightFix          = 0.25
	weightVerification = 0.15
	weightTags         = 0.10
	weightFiles        = 0.05
)

// MaxSymptomLength bounds the symptom text.
const MaxSymptomLength = 5000

// Validate checks the invariants every stored incident must satisfy.
//
// An empty ID is accepted; callers assign one before persisting.
func (i *Incident) Validate() error {
	if i.ID != "" {
		if err := ValidateIncidentID(i.ID); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidIncident, err)
		}
	}
	if strings.TrimSpace(i.Symptom) == "" {
		return fmt.Errorf("%w: %v", ErrInvalidIncident, ErrSymptomRequired)
	}
	if len(i.Symptom) > MaxSymptomLength {
		return fmt.Errorf("%w: symptom exceeds %d characters", ErrInvalidIncident, MaxSymptomLength)
	}
	if i.RootCause.Confidence < 0 || i.RootCause.Confidence > 1 {
		return fmt.Errorf("%w: %v", ErrInvalidIncident, ErrInvalidConfidence)
	}
	if i.Verification.Status != "" && !i.Verification.Status.Valid() {
		return fmt.Errorf("%w: %v", ErrInvalidIncident, ErrInvalidStatus)
	}
	if i.Patternized && i.PatternID == "" {
		return fmt.Errorf("%w: %v", ErrInvalidIncident, ErrPatternRefMissing)
	}
	return nil
}

// ScoreCompleteness inspects which sections of the incident are documented
// and returns the flags together with a weighted quality score in [0, 1].
func ScoreCompleteness(i *Incident) Completeness {
	c := Completeness{
		Symptom:      len(strings.TrimSpace(i.Symptom)) >= 10,
		RootCause:    strings.TrimSpace(i.RootCause.Description) != "" && i.RootCause.Category != "",
		Fix:          strings.TrimSpace(i.Fix.Approach) != "",
		Verification: i.Verification.Status == StatusVerified || i.Verification.Status == StatusPartial,
		Tags:         len(i.Tags) > 0,
		Files:        len(i.FilesChanged) > 0 || len(i.Fix.Changes) > 0,
	}

	score := 0.0
	if c.Symptom {
		score += weightSymptom
	}
	if c.RootCause {
		// Scale by diagnosis confidence so a guessed cause counts for less.
		score += weightRootCause * (0.5 + 0.5*clamp01(i.RootCause.Confidence))
	}
	if c.Fix {
		score += weightFix
	}
	if c.Verification {
		if i.Verification.Status == StatusVerified {
			score += weightVerification
		} else {
			score += weightVerification / 2
		}
	}
	if c.Tags {
		score += weightTags
	}
	if c.Files {
		score += weightFiles
	}

	c.QualityScore = clamp01(score)
	return c
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
