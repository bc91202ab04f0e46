package incident

import (
	"fmt"
	"hash/fnv"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/google/uuid"
)

// AutoPatternName is the fixed name used for automatically synthesized
// patterns. Combined with the category it yields at most one auto pattern
// per category.
const AutoPatternName = "auto-extracted"

var (
	incidentIDPattern = regexp.MustCompile(`^INC_[0-9]{8}_[0-9]{6}_[a-z0-9]{5}$`)
	patternIDPattern  = regexp.MustCompile(`^PTN_[A-Z0-9_]+$`)
	nonAlnum          = regexp.MustCompile(`[^A-Z0-9]+`)
)

// NewIncidentID returns an id of the form INC_YYYYMMDD_HHMMSS_xxxxx using the
// UTC representation of t.
func NewIncidentID(t time.Time) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:5]
	return fmt.Sprintf("INC_%s_%s", t.UTC().Format("20060102_150405"), suffix)
}

// PatternID derives a deterministic pattern id from category and name.
func PatternID(category, name string) string {
	return "PTN_" + FoldIDPart(category) + "_" + FoldIDPart(name)
}

// FoldIDPart upper-cases s and folds every run of characters outside A-Z and
// 0-9 to a single underscore. Input without letters or digits folds to
// UNKNOWN. Input whose letters all fall outside A-Z, such as a category
// written in another script, folds to X followed by a hash of its lower-cased
// text so that distinct names stay distinct.
func FoldIDPart(s string) string {
	trimmed := strings.TrimSpace(s)
	part := strings.Trim(nonAlnum.ReplaceAllString(strings.ToUpper(trimmed), "_"), "_")
	switch {
	case part != "":
		return part
	case strings.IndexFunc(trimmed, isLetterOrDigit) < 0:
		return "UNKNOWN"
	}
	h := fnv.New32a()
	_, _ = h.Write([]byte(strings.ToLower(trimmed)))
	return fmt.Sprintf("X%08X", h.Sum32())
}

func isLetterOrDigit(r rune) bool { return unicode.IsLetter(r) || unicode.IsDigit(r) }

// ValidateIncidentID returns ErrInvalidID if id is not a well-formed incident id.
func ValidateIncidentID(id string) error {
	if !incidentIDPattern.MatchString(id) {
		return fmt.Errorf("%w: incident id %q", ErrInvalidID, id)
	}
	return nil
}

// ValidatePatternID returns ErrInvalidID if id is not a well-formed pattern id.
func ValidatePatternID(id string) error {
	if !patternIDPattern.MatchString(id) {
		return fmt.Errorf("%w: pattern id %q", ErrInvalidID, id)
	}
	return nil
}
