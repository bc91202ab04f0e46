// Package keywords normalizes free text into comparable keyword sequences.
//
// Every search strategy, the pattern matcher and the commonality analyzer
// extract keywords the same way so their scores stay comparable.
package keywords

import (
	"strings"
	"unicode"
)

// MinLength is the shortest token kept. Shorter tokens are noise.
const MinLength = 3

var stopwords = map[string]struct{}{
	"the": {}, "and": {}, "but": {}, "for": {}, "with": {}, "from": {},
	"are": {}, "was": {}, "were": {}, "been": {}, "being": {}, "have": {},
	"has": {}, "had": {}, "does": {}, "did": {}, "will": {}, "would": {},
	"could": {}, "should": {}, "may": {}, "might": {}, "can": {}, "this": {},
	"that": {}, "these": {}, "those": {}, "you": {}, "she": {}, "they": {},
	"them": {}, "what": {}, "which": {}, "who": {}, "when": {}, "where": {},
	"why": {}, "how": {}, "not": {}, "all": {}, "any": {}, "into": {},
	"its": {}, "our": {}, "your": {}, "there": {}, "then": {}, "than": {},
	"just": {}, "also": {}, "very": {}, "some": {}, "only": {}, "about": {},
	"after": {}, "before": {}, "while": {}, "again": {}, "get": {}, "got": {},
}

// Extract lower-cases text, splits it on anything that is not a letter or a
// digit and drops stopwords and tokens shorter than MinLength. Each keyword
// appears once, in order of first occurrence.
func Extract(text string) []string {
	tokens := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	seen := make(map[string]struct{}, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if len(tok) < MinLength || IsStopword(tok) {
			continue
		}
		if _, dup := seen[tok]; dup {
			continue
		}
		seen[tok] = struct{}{}
		out = append(out, tok)
	}
	return out
}

// IsStopword reports whether the lower-cased token is in the stopword set.
func IsStopword(token string) bool {
	_, ok := stopwords[token]
	return ok
}
