package practice

import (
	"fmt"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// Planner computes expansion plans against a fixed tempo map. It holds no
// state between calls; the same inputs always give the same plan.
type Planner struct {
	tm *timemap.TimeMap
}

// NewPlanner creates a planner for the given tempo map snapshot
func NewPlanner(tm *timemap.TimeMap) *Planner {
	return &Planner{tm: tm}
}

// TimeMap returns the tempo map the planner reads
func (p *Planner) TimeMap() *timemap.TimeMap {
	return p.tm
}

// Plan lays out the copies and gaps for every segment, left to right,
// carrying the cumulative delta, and finishes with one ShiftTail.
//
// Silence for a segment is sized once from the bar starting at the
// segment's original start and reused for every gap of that segment.
func (p *Planner) Plan(segments []Segment, opts Options) (*Plan, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if p.tm.Len() == 0 {
		return nil, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	if len(segments) == 0 {
		return nil, ErrEmptySelection
	}
	if err := checkContiguous(segments); err != nil {
		return nil, err
	}

	policy := opts.policy()
	n := opts.DuplicateCount
	plan := &Plan{
		Options:     Options{DuplicateCount: n, SilenceBars: opts.SilenceBars, Gaps: policy},
		Segments:    append([]Segment(nil), segments...),
		RegionStart: segments[0].Start,
		RegionEnd:   segments[len(segments)-1].End,
	}

	var cumulative float64
	for _, seg := range segments {
		s, e := seg.Start, seg.End
		d := e - s

		startTempo, err := p.tm.TempoAt(s)
		if err != nil {
			return nil, err
		}
		var gap float64
		if opts.SilenceBars > 0 {
			bar, err := p.tm.BarDuration(s)
			if err != nil {
				return nil, err
			}
			gap = bar * float64(opts.SilenceBars)
		}
		inner := p.tm.PointsIn(s, e)
		anchored := !p.tm.HasPointAt(s)

		stride := d
		if policy.spacesCopies() {
			stride += gap
		}
		blockStart := s + cumulative

		for c := 0; c < n; c++ {
			newStart := blockStart + float64(c)*stride
			shift := newStart - s

			dup := DuplicateSegment{
				SegmentIndex: seg.Index,
				CopyIndex:    c,
				NewStart:     newStart,
				Shift:        shift,
				Duration:     d,
				Item:         seg.Item.Clone(),
				TempoPoints:  make([]timemap.TempoPoint, 0, len(inner)),
			}
			if anchored {
				a := startTempo.At(newStart)
				dup.Anchor = &a
			}
			for _, tp := range inner {
				dup.TempoPoints = append(dup.TempoPoints, tp.At(tp.Time+shift))
			}
			plan.Ops = append(plan.Ops, dup)

			if gap > 0 && (policy == GapEvery || (policy == GapBetween && c < n-1)) {
				plan.Ops = append(plan.Ops, p.silence(seg, c, newStart+d, gap, opts.SilenceBars, startTempo))
			}
		}
		if gap > 0 && n > 0 && policy == GapTrailing {
			plan.Ops = append(plan.Ops, p.silence(seg, n-1, blockStart+float64(n)*d, gap, opts.SilenceBars, startTempo))
		}

		block := float64(n)*d + float64(policy.gapCount(n))*gap
		cumulative += block - d
	}

	tail := ShiftTail{AfterTime: plan.RegionEnd, Delta: cumulative}
	if !p.tm.HasPointAt(plan.RegionEnd) {
		governing, err := p.tm.TempoAt(plan.RegionEnd)
		if err != nil {
			return nil, err
		}
		a := governing.At(plan.RegionEnd + cumulative)
		tail.Anchor = &a
	}
	plan.Ops = append(plan.Ops, tail)

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return plan, nil
}

func (p *Planner) silence(seg Segment, copyIndex int, start, duration float64, bars int, tempo timemap.TempoPoint) SilenceGap {
	return SilenceGap{
		AfterSegmentIndex: seg.Index,
		CopyIndex:         copyIndex,
		Start:             start,
		Duration:          duration,
		Bars:              bars,
		Tempo:             tempo.At(start),
	}
}
