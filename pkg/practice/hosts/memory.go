// Package hosts provides timeline hosts the practice track action can edit
package hosts

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/google/uuid"
	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/timemap"
)

// timeTolerance decides whether a time lies "at" a boundary
const timeTolerance = 1e-9

// Host errors
var (
	ErrBlockOpen     = errors.New("undo block already open")
	ErrNoBlock       = errors.New("no undo block open")
	ErrNothingToUndo = errors.New("nothing to undo")
	ErrItemNotFound  = errors.New("item not found")
)

// ItemRecord is an item as stored in a project, with its selection state
type ItemRecord struct {
	ID           string                   `json:"id" toml:"id"`
	Track        string                   `json:"track" toml:"track"`
	Start        float64                  `json:"start" toml:"start"`
	End          float64                  `json:"end" toml:"end"`
	Media        string                   `json:"media" toml:"media"`
	SourceOffset float64                  `json:"source_offset,omitempty" toml:"source-offset,omitempty"`
	Envelope     []practice.EnvelopePoint `json:"envelope,omitempty" toml:"envelope,omitempty"`
	Selected     bool                     `json:"selected,omitempty" toml:"selected,omitempty"`
}

// Item converts the record into the action's item type
func (r ItemRecord) Item() practice.Item {
	return practice.Item{
		ID:           r.ID,
		Track:        r.Track,
		Start:        r.Start,
		End:          r.End,
		Media:        r.Media,
		SourceOffset: r.SourceOffset,
		Envelope:     r.Envelope,
	}.Clone()
}

// Marker is a named point on the project timeline
type Marker struct {
	Name string  `json:"name" toml:"name"`
	Time float64 `json:"time" toml:"time"`
}

// Project is a host project: items, markers and the tempo map
type Project struct {
	Name    string               `json:"name" toml:"name"`
	Tempo   []timemap.TempoPoint `json:"tempo" toml:"tempo"`
	Items   []ItemRecord         `json:"items" toml:"items"`
	Markers []Marker             `json:"markers,omitempty" toml:"markers,omitempty"`
}

// Clone returns a deep copy of the project
func (p *Project) Clone() *Project {
	out := &Project{
		Name:    p.Name,
		Tempo:   append([]timemap.TempoPoint(nil), p.Tempo...),
		Items:   make([]ItemRecord, len(p.Items)),
		Markers: append([]Marker(nil), p.Markers...),
	}
	for i, it := range p.Items {
		it.Envelope = append([]practice.EnvelopePoint(nil), it.Envelope...)
		out.Items[i] = it
	}
	return out
}

// Normalize sorts items, markers and tempo points by time
func (p *Project) Normalize() {
	sort.SliceStable(p.Items, func(i, j int) bool {
		if p.Items[i].Track != p.Items[j].Track {
			return p.Items[i].Track < p.Items[j].Track
		}
		return p.Items[i].Start < p.Items[j].Start
	})
	sort.SliceStable(p.Markers, func(i, j int) bool { return p.Markers[i].Time < p.Markers[j].Time })
	sort.SliceStable(p.Tempo, func(i, j int) bool { return p.Tempo[i].Time < p.Tempo[j].Time })
}

// Select marks the given item IDs selected and clears every other selection
func (p *Project) Select(ids ...string) {
	want := make(map[string]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}
	for i := range p.Items {
		p.Items[i].Selected = want[p.Items[i].ID]
	}
}

// TrackItems returns the items on one track in time order
func (p *Project) TrackItems(track string) []ItemRecord {
	var out []ItemRecord
	for _, it := range p.Items {
		if it.Track == track {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out
}

// undoStep is a committed block and the state it replaced
type undoStep struct {
	label  string
	before *Project
}

// Memory is an in-memory host. An undo block snapshots the project; Abort
// restores the snapshot and Undo reverts the last committed block.
type Memory struct {
	project *Project
	pending *Project
	history []undoStep
}

// NewMemory wraps a project. The project is edited in place.
func NewMemory(p *Project) *Memory {
	if p == nil {
		p = &Project{}
	}
	return &Memory{project: p}
}

// Project returns the live project
func (m *Memory) Project() *Project {
	return m.project
}

// History returns the labels of committed undo steps, oldest first
func (m *Memory) History() []string {
	out := make([]string, len(m.history))
	for i, h := range m.history {
		out[i] = h.label
	}
	return out
}

// Undo reverts the most recent committed block
func (m *Memory) Undo() (string, error) {
	if m.pending != nil {
		return "", ErrBlockOpen
	}
	if len(m.history) == 0 {
		return "", ErrNothingToUndo
	}
	last := m.history[len(m.history)-1]
	m.history = m.history[:len(m.history)-1]
	*m.project = *last.before
	return last.label, nil
}

// SelectedItems implements practice.Reader
func (m *Memory) SelectedItems(_ context.Context) ([]practice.Item, error) {
	var out []practice.Item
	for _, it := range m.project.Items {
		if it.Selected {
			out = append(out, it.Item())
		}
	}
	return out, nil
}

// TempoMap implements practice.Reader
func (m *Memory) TempoMap(_ context.Context) ([]timemap.TempoPoint, error) {
	out := append([]timemap.TempoPoint(nil), m.project.Tempo...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time < out[j].Time })
	return out, nil
}

// InsertItemCopy implements practice.Writer
func (m *Memory) InsertItemCopy(_ context.Context, track string, item practice.Item, start, duration float64) error {
	if !(duration > 0) {
		return fmt.Errorf("copy of %q has length %v", item.ID, duration)
	}
	m.project.Items = append(m.project.Items, ItemRecord{
		ID:           uuid.NewString(),
		Track:        track,
		Start:        start,
		End:          start + duration,
		Media:        item.Media,
		SourceOffset: item.SourceOffset,
		Envelope:     append([]practice.EnvelopePoint(nil), item.Envelope...),
	})
	m.project.Normalize()
	return nil
}

// RemoveItem implements practice.Writer
func (m *Memory) RemoveItem(_ context.Context, id string) error {
	for i, it := range m.project.Items {
		if it.ID == id {
			m.project.Items = append(m.project.Items[:i], m.project.Items[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrItemNotFound, id)
}

// RemoveTempoPoints implements practice.Writer
func (m *Memory) RemoveTempoPoints(_ context.Context, start, end float64) error {
	kept := m.project.Tempo[:0]
	for _, tp := range m.project.Tempo {
		if tp.Time >= start-timeTolerance && tp.Time < end-timeTolerance {
			continue
		}
		kept = append(kept, tp)
	}
	m.project.Tempo = kept
	return nil
}

// ShiftItemsAndMarkersAfter implements practice.Writer
func (m *Memory) ShiftItemsAndMarkersAfter(_ context.Context, t, delta float64) error {
	for i := range m.project.Items {
		if m.project.Items[i].Start >= t-timeTolerance {
			m.project.Items[i].Start += delta
			m.project.Items[i].End += delta
		}
	}
	for i := range m.project.Markers {
		if m.project.Markers[i].Time >= t-timeTolerance {
			m.project.Markers[i].Time += delta
		}
	}
	for i := range m.project.Tempo {
		if m.project.Tempo[i].Time >= t-timeTolerance {
			m.project.Tempo[i].Time += delta
		}
	}
	m.project.Normalize()
	return nil
}

// InsertTempoPoint implements practice.Writer. A point already at the same
// time is replaced.
func (m *Memory) InsertTempoPoint(_ context.Context, p timemap.TempoPoint) error {
	if err := p.Validate(); err != nil {
		return err
	}
	for i, tp := range m.project.Tempo {
		if math.Abs(tp.Time-p.Time) <= timeTolerance {
			m.project.Tempo[i] = p
			return nil
		}
	}
	m.project.Tempo = append(m.project.Tempo, p)
	m.project.Normalize()
	return nil
}

// BeginUndoBlock implements practice.Undoer
func (m *Memory) BeginUndoBlock(_ context.Context) error {
	if m.pending != nil {
		return ErrBlockOpen
	}
	m.pending = m.project.Clone()
	return nil
}

// EndUndoBlock implements practice.Undoer
func (m *Memory) EndUndoBlock(_ context.Context, label string) error {
	if m.pending == nil {
		return ErrNoBlock
	}
	m.history = append(m.history, undoStep{label: label, before: m.pending})
	m.pending = nil
	return nil
}

// AbortUndoBlock implements practice.Undoer
func (m *Memory) AbortUndoBlock(_ context.Context) error {
	if m.pending == nil {
		return nil
	}
	*m.project = *m.pending
	m.pending = nil
	return nil
}

var _ practice.Timeline = (*Memory)(nil)
