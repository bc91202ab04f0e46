package aggregate

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Fusion weights.
const (
	matchWeight        = 0.35
	confidenceWeight   = 0.25
	recencyWeight      = 0.15
	verificationWeight = 0.25
)

// Boosts applied after fusion.
const (
	strongBoost  = 1.2
	recentBoost  = 1.1
	patternBoost = 1.15

	recentWindow      = 7 * 24 * time.Hour
	freshAge          = 24 * time.Hour
	staleAge          = 30 * 24 * time.Hour
	minRecency        = 0.1
	neutral           = 0.5
	patternConfidence = 0.8
	maxItemActions    = 3
)

func fuse(match, confidence, recency, verification float64) float64 {
	return matchWeight*clamp01(match) +
		confidenceWeight*clamp01(confidence) +
		recencyWeight*clamp01(recency) +
		verificationWeight*clamp01(verification)
}

// Recency decays linearly from 1.0 at one day old to 0.1 at thirty days.
func Recency(ts, now time.Time) float64 {
	age := now.Sub(ts)
	switch {
	case age <= freshAge:
		return 1
	case age >= staleAge:
		return minRecency
	}
	frac := float64(age-freshAge) / float64(staleAge-freshAge)
	return 1 - (1-minRecency)*frac
}

// VerificationScore maps an incident verification code to a score.
func VerificationScore(code string) float64 {
	switch strings.ToUpper(code) {
	case VerifiedCode:
		return 1.0
	case PartialCode:
		return 0.6
	default:
		return 0.3
	}
}

func scoreAssessment(a Assessment, idx int) ScoredItem {
	match := math.Min(1, float64(len(a.ProbableCauses)+len(a.RelatedIncidents))/5)
	conf := clamp01(a.Confidence)
	var verification float64
	if len(a.RelatedIncidents) > 0 {
		verification = math.Max(0.6, conf)
	} else {
		verification = conf * 0.6
	}

	score := fuse(match, conf, 1.0, verification)
	if conf >= 0.8 {
		score *= strongBoost
	}

	return ScoredItem{
		Type:    TypeAssessment,
		ID:      fmt.Sprintf("assessment:%s:%d", a.Domain, idx),
		Score:   clamp01(score),
		Domain:  a.Domain,
		Summary: a.Summary,
		Actions: capActions(a.Actions),
		Tags:    a.Tags,
		Payload: a,
	}
}

// orNeutral returns *v, or the neutral score when v is unknown.
func orNeutral(v *float64) float64 {
	if v == nil {
		return neutral
	}
	return clamp01(*v)
}

func scoreIncident(ci CompactIncident, now time.Time) ScoredItem {
	match := orNeutral(ci.Similarity)
	conf := orNeutral(ci.Confidence)
	recency := neutral
	var ts time.Time
	if ci.Timestamp > 0 {
		ts = time.UnixMilli(ci.Timestamp)
		recency = Recency(ts, now)
	}
	verification := VerificationScore(ci.Verified)

	score := fuse(match, conf, recency, verification)
	if verification >= 1.0 {
		score *= strongBoost
	}
	if !ts.IsZero() && now.Sub(ts) <= recentWindow {
		score *= recentBoost
	}

	var actions []string
	if ci.Fix != "" {
		actions = []string{ci.Fix}
	}
	return ScoredItem{
		Type:      TypeIncident,
		ID:        ci.ID,
		Score:     clamp01(score),
		Domain:    ci.Category,
		Summary:   ci.Symptom,
		Actions:   actions,
		Tags:      ci.Tags,
		Payload:   ci,
		timestamp: ts,
	}
}

func scorePattern(cp CompactPattern, now time.Time) ScoredItem {
	match := orNeutral(cp.Match)
	recency := neutral
	var ts time.Time
	if cp.LastUsed > 0 {
		ts = time.UnixMilli(cp.LastUsed)
		recency = Recency(ts, now)
	}
	var verification float64
	switch {
	case cp.Uses >= 3:
		verification = 0.8
	case cp.Uses >= 2:
		verification = 0.65
	default:
		verification = 0.5
	}

	score := fuse(match, patternConfidence, recency, verification)
	if !ts.IsZero() && now.Sub(ts) <= recentWindow {
		score *= recentBoost
	}
	if cp.Uses >= 3 {
		score *= patternBoost
	}

	var actions []string
	if first := firstLine(cp.Solution); first != "" {
		actions = []string{first}
	}
	return ScoredItem{
		Type:      TypePattern,
		ID:        cp.ID,
		Score:     clamp01(score),
		Domain:    cp.Category,
		Summary:   cp.Name,
		Actions:   actions,
		Tags:      cp.Tags,
		Payload:   cp,
		timestamp: ts,
	}
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = strings.TrimSpace(s[:i])
	}
	return s
}

func capActions(actions []string) []string {
	if len(actions) > maxItemActions {
		return actions[:maxItemActions]
	}
	return actions
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) || v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
