// Package practice turns a run of selected timeline items into a practice
// track: each item is repeated, separated by bars of silence, and everything
// after the edit is shifted so it keeps its musical alignment.
package practice

import (
	"fmt"
	"strings"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// UndoLabel names the single undo step created by the action
const UndoLabel = "Create practice track"

// Defaults match the values the parameter dialog starts with
const (
	DefaultDuplicateCount = 1
	DefaultSilenceBars    = 1
)

// EnvelopePoint is one item-level envelope node, relative to the item start
type EnvelopePoint struct {
	Time  float64 `json:"time" toml:"time"`
	Value float64 `json:"value" toml:"value"`
}

// Item is a media item on a host track
type Item struct {
	ID           string          `json:"id" toml:"id"`
	Track        string          `json:"track" toml:"track"`
	Start        float64         `json:"start" toml:"start"`
	End          float64         `json:"end" toml:"end"`
	Media        string          `json:"media" toml:"media"`
	SourceOffset float64         `json:"source_offset,omitempty" toml:"source-offset,omitempty"`
	Envelope     []EnvelopePoint `json:"envelope,omitempty" toml:"envelope,omitempty"`
}

// Duration returns the item length in seconds
func (i Item) Duration() float64 {
	return i.End - i.Start
}

// Clone returns a deep copy of the item
func (i Item) Clone() Item {
	if i.Envelope != nil {
		env := make([]EnvelopePoint, len(i.Envelope))
		copy(env, i.Envelope)
		i.Envelope = env
	}
	return i
}

// Segment is one source item of the selection, in timeline order
type Segment struct {
	Index int     `json:"index"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Item  Item    `json:"item"`
}

// Duration returns the segment length in seconds
func (s Segment) Duration() float64 {
	return s.End - s.Start
}

// GapPolicy decides where silence is placed around the copies of a segment
type GapPolicy string

const (
	// GapTrailing puts one gap after the last copy of each segment
	GapTrailing GapPolicy = "trailing"
	// GapBetween puts a gap between consecutive copies of the same segment
	GapBetween GapPolicy = "between"
	// GapEvery puts a gap after every copy, so silence also separates
	// one segment's copies from the next segment's
	GapEvery GapPolicy = "every"
)

// GapPolicies lists the recognised policies
func GapPolicies() []GapPolicy {
	return []GapPolicy{GapTrailing, GapBetween, GapEvery}
}

// ParseGapPolicy parses a policy name; an empty name means GapTrailing
func ParseGapPolicy(s string) (GapPolicy, error) {
	switch GapPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", GapTrailing:
		return GapTrailing, nil
	case GapBetween:
		return GapBetween, nil
	case GapEvery:
		return GapEvery, nil
	}
	return "", fmt.Errorf("%w: unknown gap policy %q", ErrInvalidParameter, s)
}

// gapCount returns how many gaps a block of n copies gets
func (g GapPolicy) gapCount(n int) int {
	if n <= 0 {
		return 0
	}
	switch g {
	case GapBetween:
		return n - 1
	case GapEvery:
		return n
	default:
		return 1
	}
}

// spacesCopies reports whether gaps sit between copies
func (g GapPolicy) spacesCopies() bool {
	return g == GapBetween || g == GapEvery
}

// Options are the two user parameters plus the gap placement policy
type Options struct {
	DuplicateCount int       `json:"duplicate_count"`
	SilenceBars    int       `json:"silence_bars"`
	Gaps           GapPolicy `json:"gap_policy,omitempty"`
}

// DefaultOptions returns the dialog defaults
func DefaultOptions() Options {
	return Options{
		DuplicateCount: DefaultDuplicateCount,
		SilenceBars:    DefaultSilenceBars,
		Gaps:           GapTrailing,
	}
}

// Validate rejects negative counts and unknown policies
func (o Options) Validate() error {
	if o.DuplicateCount < 0 {
		return fmt.Errorf("%w: duplicate count %d is negative", ErrInvalidParameter, o.DuplicateCount)
	}
	if o.SilenceBars < 0 {
		return fmt.Errorf("%w: silence bars %d is negative", ErrInvalidParameter, o.SilenceBars)
	}
	if _, err := ParseGapPolicy(string(o.Gaps)); err != nil {
		return err
	}
	return nil
}

func (o Options) policy() GapPolicy {
	g, err := ParseGapPolicy(string(o.Gaps))
	if err != nil {
		return GapTrailing
	}
	return g
}

// OpKind identifies a plan operation
type OpKind int

const (
	OpDuplicate OpKind = iota
	OpSilence
	OpShiftTail
)

func (k OpKind) String() string {
	switch k {
	case OpDuplicate:
		return "duplicate"
	case OpSilence:
		return "silence"
	case OpShiftTail:
		return "shift-tail"
	}
	return "unknown"
}

// Op is one step of an expansion plan
type Op interface {
	Kind() OpKind
}

// DuplicateSegment places one copy of a segment
type DuplicateSegment struct {
	SegmentIndex int     `json:"segment_index"`
	CopyIndex    int     `json:"copy_index"`
	NewStart     float64 `json:"new_start"`
	Shift        float64 `json:"shift"` // NewStart minus the segment's original start
	Duration     float64 `json:"duration"`
	Item         Item    `json:"item"`
	// Anchor restates the tempo in effect at the segment start, at NewStart.
	// Nil when an original point already sits on the segment start.
	Anchor *timemap.TempoPoint `json:"anchor,omitempty"`
	// TempoPoints are the breakpoints inside the segment, remapped by Shift
	TempoPoints []timemap.TempoPoint `json:"tempo_points,omitempty"`
}

// Kind implements Op
func (DuplicateSegment) Kind() OpKind { return OpDuplicate }

// End returns the end time of the copy
func (d DuplicateSegment) End() float64 { return d.NewStart + d.Duration }

// SilenceGap leaves an empty span after a copy
type SilenceGap struct {
	AfterSegmentIndex int     `json:"after_segment_index"`
	CopyIndex         int     `json:"copy_index"`
	Start             float64 `json:"start"`
	Duration          float64 `json:"duration"`
	Bars              int     `json:"bars"`
	// Tempo is the segment start's tempo, placed at Start so the silent bars
	// are counted in it
	Tempo timemap.TempoPoint `json:"tempo"`
}

// Kind implements Op
func (SilenceGap) Kind() OpKind { return OpSilence }

// End returns the end time of the gap
func (g SilenceGap) End() float64 { return g.Start + g.Duration }

// ShiftTail moves everything at or after AfterTime by Delta
type ShiftTail struct {
	AfterTime float64 `json:"after_time"`
	Delta     float64 `json:"delta"`
	// Anchor restores the tempo in effect at AfterTime once the tail has
	// moved. Nil when an original point sits on AfterTime and moves with it.
	Anchor *timemap.TempoPoint `json:"anchor,omitempty"`
}

// Kind implements Op
func (ShiftTail) Kind() OpKind { return OpShiftTail }
