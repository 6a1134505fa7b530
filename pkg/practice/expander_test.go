package practice_test

import (
	"context"
	"errors"
	"testing"

	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/practice/hosts"
	"github.com/james-see/practicetrack/pkg/timemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func song(tempo ...timemap.TempoPoint) *hosts.Project {
	if len(tempo) == 0 {
		tempo = []timemap.TempoPoint{{Time: 0, BPM: 120, Numerator: 4, Denominator: 4}}
	}
	return &hosts.Project{
		Name:  "song",
		Tempo: tempo,
		Items: []hosts.ItemRecord{
			{ID: "a", Track: "guitar", Start: 0, End: 4, Media: "a.wav", Selected: true},
			{ID: "b", Track: "guitar", Start: 4, End: 9, Media: "b.wav", Selected: true},
			{ID: "c", Track: "guitar", Start: 9, End: 12, Media: "c.wav"},
		},
		Markers: []hosts.Marker{{Name: "outro", Time: 10}},
	}
}

type span struct {
	media      string
	start, end float64
}

func spans(p *hosts.Project, track string) []span {
	var out []span
	for _, it := range p.TrackItems(track) {
		out = append(out, span{it.Media, it.Start, it.End})
	}
	return out
}

func TestExpanderTwoCopiesOneBar(t *testing.T) {
	m := hosts.NewMemory(song())
	res, err := practice.NewExpander(m).Run(context.Background(), practice.Options{DuplicateCount: 2, SilenceBars: 1})
	require.NoError(t, err)
	require.False(t, res.Empty)
	assert.InDelta(t, 13.0, res.Plan.Delta(), 1e-9)

	assert.Equal(t, []span{
		{"a.wav", 0, 4},
		{"a.wav", 4, 8},
		{"b.wav", 10, 15},
		{"b.wav", 15, 20},
		{"c.wav", 22, 25},
	}, spans(m.Project(), "guitar"))
	assert.Equal(t, 23.0, m.Project().Markers[0].Time)
	assert.Equal(t, []string{practice.UndoLabel}, m.History())
}

func TestExpanderUndoRestoresProject(t *testing.T) {
	m := hosts.NewMemory(song())
	before := m.Project().Clone()

	_, err := practice.NewExpander(m).Run(context.Background(), practice.Options{DuplicateCount: 3, SilenceBars: 2, Gaps: practice.GapEvery})
	require.NoError(t, err)

	label, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, practice.UndoLabel, label)
	assert.Equal(t, before, m.Project())
}

func TestExpanderSingleCopyLeavesTimelineUnchanged(t *testing.T) {
	tempo := []timemap.TempoPoint{
		{Time: 0, BPM: 120, Numerator: 4, Denominator: 4},
		{Time: 2, BPM: 90, Numerator: 4, Denominator: 4},
	}
	m := hosts.NewMemory(song(tempo...))
	before := m.Project().Clone()

	_, err := practice.NewExpander(m).Run(context.Background(), practice.Options{DuplicateCount: 1, SilenceBars: 0})
	require.NoError(t, err)

	assert.Equal(t, spans(before, "guitar"), spans(m.Project(), "guitar"))
	assert.Equal(t, before.Tempo, m.Project().Tempo)
	assert.Equal(t, before.Markers, m.Project().Markers)
}

func TestExpanderZeroCopiesShrinks(t *testing.T) {
	m := hosts.NewMemory(song())
	res, err := practice.NewExpander(m).Run(context.Background(), practice.Options{DuplicateCount: 0, SilenceBars: 1})
	require.NoError(t, err)
	assert.InDelta(t, -9.0, res.Plan.Delta(), 1e-9)

	assert.Equal(t, []span{{"c.wav", 0, 3}}, spans(m.Project(), "guitar"))
	assert.Equal(t, 1.0, m.Project().Markers[0].Time)
}

func TestExpanderEmptySelection(t *testing.T) {
	p := song()
	p.Select()
	m := hosts.NewMemory(p)
	before := p.Clone()

	res, err := practice.NewExpander(m).Run(context.Background(), practice.DefaultOptions())
	require.NoError(t, err)
	assert.True(t, res.Empty)
	assert.Nil(t, res.Plan)
	assert.Equal(t, before, m.Project())
	assert.Empty(t, m.History())
}

func TestExpanderRejectsBeforeEditing(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(p *hosts.Project)
		opts    practice.Options
		wantErr error
	}{
		{
			name:    "negative count",
			opts:    practice.Options{DuplicateCount: -1},
			wantErr: practice.ErrInvalidParameter,
		},
		{
			name:    "gap in selection",
			mutate:  func(p *hosts.Project) { p.Items[1].Start = 4.5 },
			opts:    practice.DefaultOptions(),
			wantErr: practice.ErrNonContiguousSelection,
		},
		{
			name: "two tracks",
			mutate: func(p *hosts.Project) {
				p.Items[1].Track = "bass"
			},
			opts:    practice.DefaultOptions(),
			wantErr: practice.ErrMultipleTracks,
		},
		{
			name:    "no tempo",
			mutate:  func(p *hosts.Project) { p.Tempo = nil },
			opts:    practice.DefaultOptions(),
			wantErr: practice.ErrInvalidTimeMap,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := song()
			if tt.mutate != nil {
				tt.mutate(p)
			}
			m := hosts.NewMemory(p)
			before := p.Clone()

			_, err := practice.NewExpander(m).Run(context.Background(), tt.opts)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Equal(t, before, m.Project())
			assert.Empty(t, m.History())
		})
	}
}

// flakyHost fails the first copy insert, after the source items are gone
type flakyHost struct {
	*hosts.Memory
}

var errDiskFull = errors.New("disk full")

func (flakyHost) InsertItemCopy(context.Context, string, practice.Item, float64, float64) error {
	return errDiskFull
}

func TestExpanderRollsBackPartialWrites(t *testing.T) {
	m := hosts.NewMemory(song())
	before := m.Project().Clone()

	_, err := practice.NewExpander(flakyHost{m}).Run(context.Background(), practice.Options{DuplicateCount: 2, SilenceBars: 1})
	assert.ErrorIs(t, err, errDiskFull)
	assert.Equal(t, before, m.Project())
	assert.Empty(t, m.History())
}

func TestExpanderCustomUndoLabel(t *testing.T) {
	m := hosts.NewMemory(song())
	x := practice.NewExpander(m)
	x.SetUndoLabel("Loop verse")

	_, err := x.Run(context.Background(), practice.DefaultOptions())
	require.NoError(t, err)
	assert.Equal(t, []string{"Loop verse"}, m.History())
}

func TestPreviewDoesNotEdit(t *testing.T) {
	m := hosts.NewMemory(song())
	before := m.Project().Clone()

	plan, tm, err := practice.Preview(context.Background(), m, practice.Options{DuplicateCount: 2, SilenceBars: 1})
	require.NoError(t, err)
	require.NotNil(t, tm)
	assert.InDelta(t, 13.0, plan.Delta(), 1e-9)
	assert.NotEmpty(t, plan.Ops)

	assert.Equal(t, before, m.Project())
	assert.Empty(t, m.History())
}

func TestPreviewEmptySelection(t *testing.T) {
	p := song()
	p.Select()

	_, _, err := practice.Preview(context.Background(), hosts.NewMemory(p), practice.DefaultOptions())
	assert.ErrorIs(t, err, practice.ErrEmptySelection)
}
