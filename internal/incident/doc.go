// Package incident defines the records the debugging memory is built from.
//
// An Incident documents one resolved problem: the symptom that was observed,
// the root cause that was found, the fix that was applied and how well the fix
// was verified. A Pattern is a generalization synthesized from a cluster of
// incidents sharing a root-cause category.
//
// # Identifiers
//
// Incident ids embed their creation time and are validated before any
// single-record lookup:
//
//	INC_20261016_153045_3fa9c
//
// Pattern ids are a pure function of category and name, so the same cluster
// always maps to the same id:
//
//	incident.PatternID("react-hooks", incident.AutoPatternName) // PTN_REACT_HOOKS_AUTO_EXTRACTED
//
// # Completeness
//
// ScoreCompleteness records which sections of an incident are filled in and
// derives a quality score in [0, 1]. Pattern synthesis uses the score to warn
// about clusters built from thinly documented incidents.
package incident
