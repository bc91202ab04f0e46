// Package search retrieves incidents and patterns similar to a query.
//
// Four strategies score every incident independently:
//
//   - exact: the query is a substring of the symptom (score 1.0)
//   - tag: a tag and a query keyword contain one another (score 0.9)
//   - fuzzy: Jaro-Winkler similarity against symptom and root cause,
//     accepted above a floor and scaled by 0.85
//   - category: query keywords map to a known domain category (score 0.6)
//
// The Engine loads the corpus once per call, runs the strategies
// concurrently over the shared read-only slice, keeps the best match per
// incident, then filters, sorts and truncates.
//
// Patterns are scored separately by keyword overlap with their detection
// signature (70%) and tags (30%). CheckMemory consults patterns first and
// only searches incidents when no pattern clears the threshold.
package search
