package practice

import (
	"context"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// Reader exposes the host state the action reads once per invocation
type Reader interface {
	SelectedItems(ctx context.Context) ([]Item, error)
	TempoMap(ctx context.Context) ([]timemap.TempoPoint, error)
}

// Writer exposes the host edits the mutator performs
type Writer interface {
	InsertItemCopy(ctx context.Context, track string, item Item, start, duration float64) error
	RemoveItem(ctx context.Context, id string) error
	// RemoveTempoPoints deletes the breakpoints with start <= Time < end
	RemoveTempoPoints(ctx context.Context, start, end float64) error
	// ShiftItemsAndMarkersAfter moves every item, marker and tempo point
	// at or after t by delta
	ShiftItemsAndMarkersAfter(ctx context.Context, t, delta float64) error
	InsertTempoPoint(ctx context.Context, p timemap.TempoPoint) error
}

// Undoer brackets a set of edits into one undo step
type Undoer interface {
	BeginUndoBlock(ctx context.Context) error
	EndUndoBlock(ctx context.Context, label string) error
	// AbortUndoBlock discards every edit made since BeginUndoBlock
	AbortUndoBlock(ctx context.Context) error
}

// Timeline is everything the action needs from a host
type Timeline interface {
	Reader
	Writer
	Undoer
}
