package practice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func item(id string, start, end float64) Item {
	return Item{ID: id, Track: "guitar", Start: start, End: end, Media: id + ".wav"}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		items   []Item
		wantErr error
		starts  []float64
	}{
		{
			name:   "single item",
			items:  []Item{item("a", 0, 4)},
			starts: []float64{0},
		},
		{
			name:   "sorted by start",
			items:  []Item{item("b", 4, 9), item("a", 0, 4)},
			starts: []float64{0, 4},
		},
		{
			name:   "float noise is snapped",
			items:  []Item{item("a", 0, 4), item("b", 4+1e-9, 9)},
			starts: []float64{0, 4},
		},
		{
			name:    "empty",
			wantErr: ErrEmptySelection,
		},
		{
			name:    "real gap",
			items:   []Item{item("a", 0, 4), item("b", 4.1, 9)},
			wantErr: ErrNonContiguousSelection,
		},
		{
			name:    "overlap",
			items:   []Item{item("a", 0, 4), item("b", 3.5, 9)},
			wantErr: ErrNonContiguousSelection,
		},
		{
			name:    "zero length",
			items:   []Item{item("a", 2, 2)},
			wantErr: ErrInvalidItem,
		},
		{
			name: "two tracks",
			items: []Item{
				item("a", 0, 4),
				{ID: "b", Track: "bass", Start: 4, End: 9},
			},
			wantErr: ErrMultipleTracks,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			segments, err := Extract(tt.items)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Len(t, segments, len(tt.starts))
			for i, seg := range segments {
				assert.Equal(t, i, seg.Index)
				assert.Equal(t, tt.starts[i], seg.Start)
				if i > 0 {
					assert.Equal(t, segments[i-1].End, seg.Start, "boundaries must be shared exactly")
				}
			}
		})
	}
}

func TestExtractDoesNotAliasInput(t *testing.T) {
	items := []Item{{ID: "a", Track: "t", Start: 0, End: 1, Envelope: []EnvelopePoint{{Time: 0, Value: 1}}}}
	segments, err := Extract(items)
	require.NoError(t, err)

	items[0].Envelope[0].Value = 0.5
	assert.Equal(t, 1.0, segments[0].Item.Envelope[0].Value)
}
