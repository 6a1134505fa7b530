package practice

import (
	"fmt"
	"math"
	"sort"
)

// ContiguityTolerance is how far apart, in seconds, two item boundaries may
// be and still count as shared. It absorbs float representation of time,
// not real gaps.
const ContiguityTolerance = 1e-6

// Extract orders the selected items into segments. The items must sit on a
// single track and butt up against each other; boundaries that agree within
// ContiguityTolerance are snapped so seg[i].End == seg[i+1].Start exactly.
func Extract(items []Item) ([]Segment, error) {
	if len(items) == 0 {
		return nil, ErrEmptySelection
	}

	sorted := make([]Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Start < sorted[j].Start })

	track := sorted[0].Track
	segments := make([]Segment, 0, len(sorted))
	for i, it := range sorted {
		if it.Track != track {
			return nil, fmt.Errorf("%w: found %q and %q", ErrMultipleTracks, track, it.Track)
		}
		if math.IsNaN(it.Start) || math.IsNaN(it.End) || !(it.Start < it.End) {
			return nil, fmt.Errorf("%w: item %q spans [%v, %v)", ErrInvalidItem, it.ID, it.Start, it.End)
		}

		seg := Segment{Index: i, Start: it.Start, End: it.End, Item: it.Clone()}
		if i > 0 {
			prev := segments[i-1]
			gap := it.Start - prev.End
			if math.Abs(gap) > ContiguityTolerance {
				kind := "gap"
				if gap < 0 {
					kind = "overlap"
				}
				return nil, fmt.Errorf("%w: %s of %.6fs between items %q and %q",
					ErrNonContiguousSelection, kind, math.Abs(gap), prev.Item.ID, it.ID)
			}
			seg.Start = prev.End
		}
		segments = append(segments, seg)
	}
	return segments, nil
}

// checkContiguous verifies segments handed straight to the planner
func checkContiguous(segments []Segment) error {
	for i, seg := range segments {
		if !(seg.Start < seg.End) {
			return fmt.Errorf("%w: segment %d spans [%v, %v)", ErrInvalidItem, i, seg.Start, seg.End)
		}
		if i > 0 && math.Abs(seg.Start-segments[i-1].End) > ContiguityTolerance {
			return fmt.Errorf("%w: segment %d starts at %.6fs, previous ends at %.6fs",
				ErrNonContiguousSelection, i, seg.Start, segments[i-1].End)
		}
	}
	return nil
}
