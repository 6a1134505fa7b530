package practice

import (
	"fmt"
	"math"
	"sort"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// planTolerance bounds float drift when checking plan arithmetic
const planTolerance = 1e-6

// Plan is the complete, validated list of edits for one invocation
type Plan struct {
	Options     Options   `json:"options"`
	Segments    []Segment `json:"segments"`
	RegionStart float64   `json:"region_start"`
	RegionEnd   float64   `json:"region_end"`
	Ops         []Op      `json:"-"`
}

// Duplicates returns the copy operations in plan order
func (p *Plan) Duplicates() []DuplicateSegment {
	var out []DuplicateSegment
	for _, op := range p.Ops {
		if d, ok := op.(DuplicateSegment); ok {
			out = append(out, d)
		}
	}
	return out
}

// Gaps returns the silence operations in plan order
func (p *Plan) Gaps() []SilenceGap {
	var out []SilenceGap
	for _, op := range p.Ops {
		if g, ok := op.(SilenceGap); ok {
			out = append(out, g)
		}
	}
	return out
}

// Tail returns the final shift; ok is false for a malformed plan
func (p *Plan) Tail() (ShiftTail, bool) {
	if len(p.Ops) == 0 {
		return ShiftTail{}, false
	}
	t, ok := p.Ops[len(p.Ops)-1].(ShiftTail)
	return t, ok
}

// Delta is the amount everything after the region moves
func (p *Plan) Delta() float64 {
	t, _ := p.Tail()
	return t.Delta
}

// OriginalLength is the length of the selected region before expansion
func (p *Plan) OriginalLength() float64 {
	return p.RegionEnd - p.RegionStart
}

// Length sums the durations of every copy and gap
func (p *Plan) Length() float64 {
	var total float64
	for _, op := range p.Ops {
		switch o := op.(type) {
		case DuplicateSegment:
			total += o.Duration
		case SilenceGap:
			total += o.Duration
		}
	}
	return total
}

// NewRegionEnd is where the expanded region stops
func (p *Plan) NewRegionEnd() float64 {
	return p.RegionEnd + p.Delta()
}

// IsNoop reports whether applying the plan would leave the timeline as it is
func (p *Plan) IsNoop() bool {
	if math.Abs(p.Delta()) > planTolerance || len(p.Gaps()) > 0 {
		return false
	}
	dups := p.Duplicates()
	if len(dups) != len(p.Segments) {
		return false
	}
	for _, d := range dups {
		if math.Abs(d.Shift) > planTolerance {
			return false
		}
	}
	return true
}

// Validate checks the structural invariants: a single trailing ShiftTail,
// copies and gaps tiling the new region without holes or overlaps, and a
// delta equal to the added length.
func (p *Plan) Validate() error {
	tail, ok := p.Tail()
	if !ok {
		return fmt.Errorf("%w: plan does not end with a tail shift", ErrInvalidPlan)
	}

	cursor := p.RegionStart
	for i, op := range p.Ops[:len(p.Ops)-1] {
		var start, dur float64
		switch o := op.(type) {
		case DuplicateSegment:
			start, dur = o.NewStart, o.Duration
		case SilenceGap:
			start, dur = o.Start, o.Duration
		case ShiftTail:
			return fmt.Errorf("%w: tail shift at position %d is not last", ErrInvalidPlan, i)
		default:
			return fmt.Errorf("%w: unknown operation %T", ErrInvalidPlan, op)
		}
		if !(dur > 0) {
			return fmt.Errorf("%w: operation %d has length %v", ErrInvalidPlan, i, dur)
		}
		if math.Abs(start-cursor) > planTolerance {
			return fmt.Errorf("%w: operation %d starts at %.6fs, expected %.6fs", ErrInvalidPlan, i, start, cursor)
		}
		cursor = start + dur
	}

	want := p.Length() - p.OriginalLength()
	if math.Abs(tail.Delta-want) > planTolerance {
		return fmt.Errorf("%w: tail delta %.6fs does not match added length %.6fs", ErrInvalidPlan, tail.Delta, want)
	}
	if math.Abs(tail.AfterTime-p.RegionEnd) > planTolerance {
		return fmt.Errorf("%w: tail shift starts at %.6fs, region ends at %.6fs", ErrInvalidPlan, tail.AfterTime, p.RegionEnd)
	}
	return nil
}

// plannedPoint is a tempo point to write plus whether it may be pruned
type plannedPoint struct {
	point     timemap.TempoPoint
	synthetic bool
}

// TempoPoints returns the breakpoints to write into the expanded region, in
// time order. Cloned points are always kept; synthesized anchors are dropped
// when they repeat the tempo already in effect.
func (p *Plan) TempoPoints(tm *timemap.TimeMap) []timemap.TempoPoint {
	var planned []plannedPoint
	for _, op := range p.Ops {
		switch o := op.(type) {
		case DuplicateSegment:
			if o.Anchor != nil {
				planned = append(planned, plannedPoint{point: *o.Anchor, synthetic: true})
			}
			for _, tp := range o.TempoPoints {
				planned = append(planned, plannedPoint{point: tp})
			}
		case SilenceGap:
			planned = append(planned, plannedPoint{point: o.Tempo, synthetic: true})
		case ShiftTail:
			if o.Anchor != nil {
				planned = append(planned, plannedPoint{point: *o.Anchor, synthetic: true})
			}
		}
	}
	sort.SliceStable(planned, func(i, j int) bool { return planned[i].point.Time < planned[j].point.Time })

	// tempo in effect just before the region
	var current *timemap.TempoPoint
	for _, tp := range tm.Points() {
		if tp.Time < p.RegionStart-timemap.Epsilon {
			tp := tp
			current = &tp
		}
	}

	var out []timemap.TempoPoint
	for _, pp := range planned {
		if n := len(out); n > 0 && math.Abs(out[n-1].Time-pp.point.Time) <= timemap.Epsilon {
			if pp.synthetic {
				continue
			}
			out = out[:n-1]
		} else if pp.synthetic && current != nil && current.Equivalent(pp.point) {
			continue
		}
		pt := pp.point
		out = append(out, pt)
		current = &pt
	}
	return out
}
