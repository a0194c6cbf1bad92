package detect

// Resolve merges overlapping and duplicate findings into a single
// conflict-free set: sorted by start offset, then a single pass keeping
// one accepted finding at a time. A candidate overlapping the current
// finding (next.start <= current.end, adjacency included) wins only if
// it has higher confidence, or equal confidence and a higher-priority
// method (service > model > pattern); otherwise the current, first-seen
// finding stands. A finding fully nested inside a lower-confidence one
// is absorbed, never split.
//
// Resolve is a deterministic, total, idempotent function. The output is
// non-overlapping and start-ordered.
func Resolve(findings FindingSet) FindingSet {
	if len(findings) == 0 {
		return FindingSet{}
	}

	sorted := findings.Sorted()
	merged := FindingSet{sorted[0]}

	for _, next := range sorted[1:] {
		current := &merged[len(merged)-1]
		if next.Start > current.End {
			merged = append(merged, next)
			continue
		}
		if next.Confidence > current.Confidence {
			*current = next
			continue
		}
		if next.Confidence == current.Confidence &&
			next.Method.Priority() > current.Method.Priority() {
			*current = next
		}
	}
	return merged
}
