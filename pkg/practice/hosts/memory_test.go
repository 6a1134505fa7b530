package hosts

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/james-see/practicetrack/pkg/practice"
	"github.com/james-see/practicetrack/pkg/timemap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleProject() *Project {
	return &Project{
		Name:  "song",
		Tempo: []timemap.TempoPoint{{Time: 0, BPM: 120, Numerator: 4, Denominator: 4}},
		Items: []ItemRecord{
			{ID: "a", Track: "guitar", Start: 0, End: 4, Media: "a.wav", Selected: true},
			{ID: "b", Track: "guitar", Start: 4, End: 9, Media: "b.wav", Selected: true,
				Envelope: []practice.EnvelopePoint{{Time: 0, Value: 1}, {Time: 5, Value: 0}}},
			{ID: "c", Track: "guitar", Start: 9, End: 12, Media: "c.wav"},
			{ID: "d", Track: "drums", Start: 0, End: 12, Media: "d.wav"},
		},
		Markers: []Marker{{Name: "verse", Time: 0}, {Name: "chorus", Time: 9}},
	}
}

func TestMemorySelectedItems(t *testing.T) {
	m := NewMemory(sampleProject())
	items, err := m.SelectedItems(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "a", items[0].ID)
	assert.Len(t, items[1].Envelope, 2)
}

func TestMemoryShift(t *testing.T) {
	m := NewMemory(sampleProject())
	require.NoError(t, m.ShiftItemsAndMarkersAfter(context.Background(), 9, 3))

	p := m.Project()
	var c ItemRecord
	for _, it := range p.Items {
		if it.ID == "c" {
			c = it
		}
	}
	assert.Equal(t, 12.0, c.Start)
	assert.Equal(t, 15.0, c.End)
	assert.Equal(t, 12.0, p.Markers[1].Time)
	assert.Equal(t, 0.0, p.Markers[0].Time)
}

func TestMemoryTempoEdits(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(sampleProject())

	require.NoError(t, m.InsertTempoPoint(ctx, timemap.TempoPoint{Time: 4, BPM: 90, Numerator: 4, Denominator: 4}))
	require.NoError(t, m.InsertTempoPoint(ctx, timemap.TempoPoint{Time: 4, BPM: 100, Numerator: 4, Denominator: 4}))
	require.Len(t, m.Project().Tempo, 2)
	assert.Equal(t, 100.0, m.Project().Tempo[1].BPM)

	require.NoError(t, m.RemoveTempoPoints(ctx, 0, 4))
	require.Len(t, m.Project().Tempo, 1)
	assert.Equal(t, 4.0, m.Project().Tempo[0].Time)

	assert.Error(t, m.InsertTempoPoint(ctx, timemap.TempoPoint{Time: 1, BPM: 0, Numerator: 4, Denominator: 4}))
}

func TestMemoryUndoBlocks(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(sampleProject())
	before := m.Project().Clone()

	require.NoError(t, m.BeginUndoBlock(ctx))
	assert.ErrorIs(t, m.BeginUndoBlock(ctx), ErrBlockOpen)
	require.NoError(t, m.RemoveItem(ctx, "a"))
	require.NoError(t, m.AbortUndoBlock(ctx))
	assert.Equal(t, before, m.Project())
	assert.Empty(t, m.History())

	require.NoError(t, m.BeginUndoBlock(ctx))
	require.NoError(t, m.RemoveItem(ctx, "a"))
	require.NoError(t, m.EndUndoBlock(ctx, "remove"))
	assert.Equal(t, []string{"remove"}, m.History())
	assert.Len(t, m.Project().Items, 3)

	label, err := m.Undo()
	require.NoError(t, err)
	assert.Equal(t, "remove", label)
	assert.Equal(t, before, m.Project())

	_, err = m.Undo()
	assert.ErrorIs(t, err, ErrNothingToUndo)
	assert.ErrorIs(t, m.EndUndoBlock(ctx, "x"), ErrNoBlock)
}

func TestMemoryRemoveMissingItem(t *testing.T) {
	m := NewMemory(sampleProject())
	assert.ErrorIs(t, m.RemoveItem(context.Background(), "nope"), ErrItemNotFound)
}

func TestProjectFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "song.toml")
	p := sampleProject()
	p.Normalize()
	require.NoError(t, SaveProject(path, p))

	loaded, err := LoadProject(path)
	require.NoError(t, err)
	assert.Equal(t, p, loaded)
}

func TestLoadProjectDefaultsTempo(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bare.toml")
	require.NoError(t, SaveProject(path, &Project{Name: "bare"}))

	loaded, err := LoadProject(path)
	require.NoError(t, err)
	require.Len(t, loaded.Tempo, 1)
	assert.Equal(t, 120.0, loaded.Tempo[0].BPM)
}
