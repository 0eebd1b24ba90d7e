package validator

import (
	"cmp"
	"slices"
)

type interval struct {
	id         string
	start, end float64
}

// overlappingPairs returns every intersecting pair of half-open intervals.
// Sorting by start lets the inner loop stop at the first interval that
// begins at or after the current one's end.
func overlappingPairs(spans []interval) [][2]interval {
	sorted := slices.Clone(spans)
	slices.SortStableFunc(sorted, func(a, b interval) int {
		return cmp.Or(cmp.Compare(a.start, b.start), cmp.Compare(a.end, b.end), cmp.Compare(a.id, b.id))
	})

	var pairs [][2]interval
	for i := range sorted {
		for j := i + 1; j < len(sorted) && sorted[j].start < sorted[i].end; j++ {
			if sorted[i].start < sorted[j].end {
				pairs = append(pairs, [2]interval{sorted[i], sorted[j]})
			}
		}
	}
	return pairs
}
