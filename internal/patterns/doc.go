// Package patterns mines reusable patterns from clusters of incidents.
//
// Incidents are clustered by root-cause category. A cluster qualifies when it
// is large enough and its members share enough tags and files (see Analyze).
// A qualifying cluster is synthesized into a Pattern whose id is a pure
// function of the category, so each category yields at most one automatic
// pattern and repeated extraction is a no-op.
//
// Extraction runs in three ways: as a batch over the whole corpus
// (ExtractPatterns), right after an incident is stored (MaybeExtractOnStore),
// and periodically from a Scheduler.
package patterns
