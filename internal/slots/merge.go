package slots

import (
	"sort"
)

// MergeBusy sorts busy intervals and joins those that overlap or touch.
// Empty and inverted intervals are dropped. The input is not modified.
func MergeBusy(busy []Interval) []Interval {
	sorted := make([]Interval, 0, len(busy))
	for _, b := range busy {
		if b.End.After(b.Start) {
			sorted = append(sorted, Interval{Start: b.Start.UTC(), End: b.End.UTC()})
		}
	}
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	merged := make([]Interval, 0, len(sorted))
	for _, b := range sorted {
		if n := len(merged); n > 0 && !b.Start.After(merged[n-1].End) {
			if b.End.After(merged[n-1].End) {
				merged[n-1].End = b.End
			}
			continue
		}
		merged = append(merged, b)
	}
	return merged
}
