package timemap

import (
	"fmt"
	"math"
)

// beatEpsilon absorbs float noise when snapping beat counts to bar lines
const beatEpsilon = 1e-6

// Position is a musical location: zero-based bar index and beats into it
type Position struct {
	Bar  int     `json:"bar"`
	Beat float64 `json:"beat"`
}

// String renders the position one-based, the way DAW rulers show it (1.1.00)
func (p Position) String() string {
	whole := math.Floor(p.Beat)
	frac := int(math.Round((p.Beat - whole) * 100))
	if frac == 100 {
		whole++
		frac = 0
	}
	return fmt.Sprintf("%d.%d.%02d", p.Bar+1, int(whole)+1, frac)
}

// carry folds a running beat count into whole bars
func carry(bar int, beats float64, perBar float64) (int, float64) {
	whole := math.Floor(beats / perBar)
	bar += int(whole)
	beats -= whole * perBar
	if perBar-beats < beatEpsilon {
		bar++
		beats = 0
	}
	if math.Abs(beats) < beatEpsilon {
		beats = 0
	}
	return bar, beats
}

// PositionAt converts an absolute time into a bar/beat position. A meter
// change always starts a new bar, even when the previous bar is incomplete.
func (m *TimeMap) PositionAt(t float64) (Position, error) {
	if m.Len() == 0 {
		return Position{}, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	bar, beat := 0, 0.0
	for i, p := range m.points {
		if i > 0 && !p.SameMeter(m.points[i-1]) && beat > beatEpsilon {
			bar++
			beat = 0
		}
		last := i == len(m.points)-1 || t < m.points[i+1].Time-Epsilon
		end := t
		if !last {
			end = m.points[i+1].Time
		}
		bar, beat = carry(bar, beat+(end-p.Time)/p.SecondsPerBeat(), float64(p.Numerator))
		if last {
			return Position{Bar: bar, Beat: beat}, nil
		}
	}
	return Position{Bar: bar, Beat: beat}, nil
}

// TimeAt converts a bar/beat position back into absolute time
func (m *TimeMap) TimeAt(pos Position) (float64, error) {
	if m.Len() == 0 {
		return 0, fmt.Errorf("%w: no tempo points", ErrInvalidTimeMap)
	}
	bar, beat := 0, 0.0
	for i, p := range m.points {
		if i > 0 && !p.SameMeter(m.points[i-1]) && beat > beatEpsilon {
			bar++
			beat = 0
		}
		perBar := float64(p.Numerator)
		need := float64(pos.Bar-bar)*perBar + pos.Beat - beat
		if i == len(m.points)-1 {
			return p.Time + need*p.SecondsPerBeat(), nil
		}
		avail := (m.points[i+1].Time - p.Time) / p.SecondsPerBeat()
		if need <= avail+beatEpsilon {
			return p.Time + need*p.SecondsPerBeat(), nil
		}
		bar, beat = carry(bar, beat+avail, perBar)
	}
	return 0, nil
}

// BarStart returns the time of the bar line at or before t
func (m *TimeMap) BarStart(t float64) (float64, error) {
	pos, err := m.PositionAt(t)
	if err != nil {
		return 0, err
	}
	return m.TimeAt(Position{Bar: pos.Bar})
}
