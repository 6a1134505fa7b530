// Package timemap converts between absolute time and musical position using
// a project's tempo and meter breakpoints.
package timemap

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// ErrInvalidTimeMap is returned for an empty or malformed tempo map
var ErrInvalidTimeMap = errors.New("invalid time map")

// Epsilon is the tolerance used when comparing breakpoint times
const Epsilon = 1e-9

// TempoPoint is a single tempo/meter breakpoint
type TempoPoint struct {
	Time        float64 `json:"time" toml:"time"`               // absolute seconds
	BPM         float64 `json:"bpm" toml:"bpm"`                 // beats of the denominator per minute
	Numerator   int     `json:"numerator" toml:"numerator"`     // beats per bar
	Denominator int     `json:"denominator" toml:"denominator"` // beat unit
	Linear      bool    `json:"linear,omitempty" toml:"linear,omitempty"`
}

// Validate checks a single breakpoint
func (p TempoPoint) Validate() error {
	switch {
	case math.IsNaN(p.Time) || math.IsInf(p.Time, 0) || p.Time < 0:
		return fmt.Errorf("%w: time %v out of range", ErrInvalidTimeMap, p.Time)
	case !(p.BPM > 0) || math.IsInf(p.BPM, 0):
		return fmt.Errorf("%w: bpm %v at %.6fs must be positive", ErrInvalidTimeMap, p.BPM, p.Time)
	case p.Numerator < 1:
		return fmt.Errorf("%w: meter numerator %d at %.6fs", ErrInvalidTimeMap, p.Numerator, p.Time)
	case p.Denominator < 1 || p.Denominator&(p.Denominator-1) != 0:
		return fmt.Errorf("%w: meter denominator %d at %.6fs is not a power of two", ErrInvalidTimeMap, p.Denominator, p.Time)
	}
	return nil
}

// SecondsPerBeat returns the length of one beat at this breakpoint
func (p TempoPoint) SecondsPerBeat() float64 {
	return 60.0 / p.BPM
}

// NominalBarDuration is the bar length assuming no breakpoint interrupts it
func (p TempoPoint) NominalBarDuration() float64 {
	return float64(p.Numerator) * p.SecondsPerBeat()
}

// At returns a copy of the breakpoint moved to t
func (p TempoPoint) At(t float64) TempoPoint {
	p.Time = t
	return p
}

// Equivalent reports whether two breakpoints set the same tempo and meter
func (p TempoPoint) Equivalent(o TempoPoint) bool {
	return p.BPM == o.BPM &&
		p.Numerator == o.Numerator &&
		p.Denominator == o.Denominator &&
		p.Linear == o.Linear
}

// SameMeter reports whether two breakpoints share a time signature
func (p TempoPoint) SameMeter(o TempoPoint) bool {
	return p.Numerator == o.Numerator && p.Denominator == o.Denominator
}

// String formats the breakpoint for logs and CLI output
func (p TempoPoint) String() string {
	return fmt.Sprintf("%.6fs %g bpm %d/%d", p.Time, p.BPM, p.Numerator, p.Denominator)
}

// TimeMap is an immutable snapshot of tempo/meter breakpoints
type TimeMap struct {
	points []TempoPoint
}

// New validates and snapshots the breakpoints. Points must be strictly
// increasing in time.
func New(points []TempoPoint) (*TimeMap, error) {
	if len(points) == 0 {
		return nil, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	pts := make([]TempoPoint, len(points))
	copy(pts, points)
	for i, p := range pts {
		if err := p.Validate(); err != nil {
			return nil, err
		}
		if i > 0 && p.Time <= pts[i-1].Time {
			return nil, fmt.Errorf("%w: point %d at %.6fs does not follow %.6fs",
				ErrInvalidTimeMap, i, p.Time, pts[i-1].Time)
		}
	}
	return &TimeMap{points: pts}, nil
}

// Constant builds a map with a single breakpoint at the origin
func Constant(bpm float64, numerator, denominator int) (*TimeMap, error) {
	return New([]TempoPoint{{BPM: bpm, Numerator: numerator, Denominator: denominator}})
}

// Points returns a copy of the breakpoints
func (m *TimeMap) Points() []TempoPoint {
	if m == nil {
		return nil
	}
	out := make([]TempoPoint, len(m.points))
	copy(out, m.points)
	return out
}

// Len returns the number of breakpoints
func (m *TimeMap) Len() int {
	if m == nil {
		return 0
	}
	return len(m.points)
}

// Origin is the time of the first breakpoint
func (m *TimeMap) Origin() float64 {
	if m.Len() == 0 {
		return 0
	}
	return m.points[0].Time
}

// index returns the breakpoint governing t, or 0 when t precedes all points
func (m *TimeMap) index(t float64) int {
	i := sort.Search(len(m.points), func(i int) bool {
		return m.points[i].Time > t+Epsilon
	})
	if i == 0 {
		return 0
	}
	return i - 1
}

// TempoAt returns the breakpoint governing t: the latest one at or before t,
// or the first breakpoint if t precedes them all.
func (m *TimeMap) TempoAt(t float64) (TempoPoint, error) {
	if m.Len() == 0 {
		return TempoPoint{}, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	return m.points[m.index(t)], nil
}

// HasPointAt reports whether a breakpoint sits exactly at t
func (m *TimeMap) HasPointAt(t float64) bool {
	if m.Len() == 0 {
		return false
	}
	return math.Abs(m.points[m.index(t)].Time-t) <= Epsilon
}

// PointsIn returns the breakpoints with start <= Time < end
func (m *TimeMap) PointsIn(start, end float64) []TempoPoint {
	var out []TempoPoint
	for _, p := range m.Points() {
		if p.Time >= start-Epsilon && p.Time < end-Epsilon {
			out = append(out, p)
		}
	}
	return out
}

// BarDuration returns the length in seconds of one bar beginning at start.
// The beat count comes from the meter active at start; when breakpoints fall
// strictly inside the bar the remaining beats are timed at each new tempo.
func (m *TimeMap) BarDuration(start float64) (float64, error) {
	if m.Len() == 0 {
		return 0, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	i := m.index(start)
	beats := float64(m.points[i].Numerator)
	t := start
	for {
		spb := m.points[i].SecondsPerBeat()
		end := t + beats*spb
		if i+1 < len(m.points) {
			next := m.points[i+1].Time
			if next > t+Epsilon && next < end-Epsilon {
				beats -= (next - t) / spb
				t = next
				i++
				continue
			}
		}
		return end - start, nil
	}
}

// Bars returns the duration of n consecutive bars starting at start
func (m *TimeMap) Bars(start float64, n int) (float64, error) {
	t := start
	for k := 0; k < n; k++ {
		d, err := m.BarDuration(t)
		if err != nil {
			return 0, err
		}
		t += d
	}
	return t - start, nil
}
