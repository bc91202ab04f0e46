package incident

import (
	"time"
)

// VerificationStatus describes how thoroughly a fix was verified.
type VerificationStatus string

const (
	// StatusVerified means the fix was confirmed to resolve the symptom.
	StatusVerified VerificationStatus = "verified"
	// StatusPartial means some, but not all, checks were performed.
	StatusPartial VerificationStatus = "partial"
	// StatusUnverified means the fix was applied without confirmation.
	StatusUnverified VerificationStatus = "unverified"
)

// Valid reports whether s is one of the known statuses.
func (s VerificationStatus) Valid() bool {
	switch s {
	case StatusVerified, StatusPartial, StatusUnverified:
		return true
	}
	return false
}

// RootCause is the diagnosed origin of an incident.
type RootCause struct {
	// Description explains what was actually wrong.
	Description string `json:"description"`

	// Category is a free-text domain label such as "react-hooks" or "database".
	// Incidents are clustered into patterns by category.
	Category string `json:"category"`

	// Confidence is how sure the author is of the diagnosis (0.0 - 1.0).
	Confidence float64 `json:"confidence"`

	// CodeSnippet is an optional excerpt of the offending code.
	CodeSnippet string `json:"code_snippet,omitempty"`

	// File and Line locate the excerpt, when known.
	File string `json:"file,omitempty"`
	Line int    `json:"line,omitempty"`
}

// FileChange is one edit made as part of a fix.
type FileChange struct {
	File        string `json:"file"`
	Description string `json:"description,omitempty"`
	Before      string `json:"before,omitempty"`
	After       string `json:"after,omitempty"`
}

// Fix describes how an incident was resolved.
type Fix struct {
	// Approach is the prose explanation of the fix.
	Approach string `json:"approach"`

	// Changes lists the individual file edits.
	Changes []FileChange `json:"changes,omitempty"`

	// TimeToFixMinutes is how long the fix took, when recorded.
	TimeToFixMinutes int `json:"time_to_fix_minutes,omitempty"`
}

// Verification records the checks performed after a fix.
type Verification struct {
	Status             VerificationStatus `json:"status"`
	RegressionTests    bool               `json:"regression_tests"`
	UserJourneyTested  bool               `json:"user_journey_tested"`
	TestsPassing       bool               `json:"tests_passing"`
	SuccessCriteriaMet bool               `json:"success_criteria_met"`
}

// Completeness flags which sections of an incident are documented.
type Completeness struct {
	Symptom      bool    `json:"symptom"`
	RootCause    bool    `json:"root_cause"`
	Fix          bool    `json:"fix"`
	Verification bool    `json:"verification"`
	Tags         bool    `json:"tags"`
	Files        bool    `json:"files"`
	QualityScore float64 `json:"quality_score"`
}

// Incident is a record of one resolved problem.
type Incident struct {
	// ID is immutable once assigned. See NewIncidentID for the format.
	ID string `json:"incident_id"`

	// Timestamp is when the incident was recorded.
	Timestamp time.Time `json:"timestamp"`

	// Agent names the session or agent that recorded the incident.
	Agent string `json:"agent,omitempty"`

	Symptom      string       `json:"symptom"`
	RootCause    RootCause    `json:"root_cause"`
	Fix          Fix          `json:"fix"`
	Verification Verification `json:"verification"`

	// Tags are ordered, free-text labels.
	Tags []string `json:"tags"`

	// FilesChanged are the paths touched by the fix.
	FilesChanged []string `json:"files_changed"`

	Completeness Completeness `json:"completeness"`

	// PatternID back-references the pattern this incident was consumed into.
	PatternID string `json:"pattern_id,omitempty"`

	// Patternized excludes the incident from future clustering.
	Patternized bool `json:"patternized,omitempty"`

	// SimilarityScore is attached on retrieval only. Stores drop it before
	// persisting.
	SimilarityScore float64 `json:"similarity_score,omitempty"`
}

// Verified reports whether the fix was fully verified.
func (i *Incident) Verified() bool {
	return i.Verification.Status == StatusVerified
}

// Clone returns a deep copy so callers may mutate the result freely.
func (i *Incident) Clone() *Incident {
	if i == nil {
		return nil
	}
	c := *i
	c.Tags = append([]string(nil), i.Tags...)
	c.FilesChanged = append([]string(nil), i.FilesChanged...)
	c.Fix.Changes = append([]FileChange(nil), i.Fix.Changes...)
	return &c
}

// UsageHistory summarizes how often a pattern's fix has been applied.
type UsageHistory struct {
	// TotalUses equals the cluster size at synthesis time.
	TotalUses int `json:"total_uses"`

	// SuccessfulUses counts verified cluster members.
	SuccessfulUses int `json:"successful_uses"`

	// ByAgent counts cluster members per recording agent.
	ByAgent map[string]int `json:"by_agent,omitempty"`

	// RecentIncidents holds the ids of the most recent cluster members,
	// oldest first.
	RecentIncidents []string `json:"recent_incidents"`
}

// Pattern is a reusable generalization over a cluster of incidents.
type Pattern struct {
	ID          string `json:"pattern_id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Category    string `json:"category"`

	// DetectionSignature holds representative keywords used for matching.
	DetectionSignature []string `json:"detection_signature"`

	// SolutionTemplate is derived from the cluster's most detailed fix.
	SolutionTemplate string `json:"solution_template"`

	// CodeExample comes from the most confident member with a code excerpt.
	CodeExample string `json:"code_example,omitempty"`

	// Tags are the tags shared across the cluster.
	Tags []string `json:"tags"`

	// SuccessRate is the fraction of verified cluster members (0.0 - 1.0).
	SuccessRate float64 `json:"success_rate"`

	UsageHistory UsageHistory `json:"usage_history"`

	// SourceIncidents lists every incident the pattern was synthesized from.
	SourceIncidents []string `json:"source_incidents"`

	// Caveats are warnings derived from the cluster.
	Caveats []string `json:"caveats,omitempty"`

	CreatedAt time.Time `json:"created_at"`

	// LastUsed is the newest member timestamp.
	LastUsed time.Time `json:"last_used"`
}

// Clone returns a deep copy of the pattern.
func (p *Pattern) Clone() *Pattern {
	if p == nil {
		return nil
	}
	c := *p
	c.DetectionSignature = append([]string(nil), p.DetectionSignature...)
	c.Tags = append([]string(nil), p.Tags...)
	c.SourceIncidents = append([]string(nil), p.SourceIncidents...)
	c.Caveats = append([]string(nil), p.Caveats...)
	c.UsageHistory.RecentIncidents = append([]string(nil), p.UsageHistory.RecentIncidents...)
	if p.UsageHistory.ByAgent != nil {
		c.UsageHistory.ByAgent = make(map[string]int, len(p.UsageHistory.ByAgent))
		for k, v := range p.UsageHistory.ByAgent {
			c.UsageHistory.ByAgent[k] = v
		}
	}
	return &c
}
