package practice

import (
	"context"
	"fmt"

	"github.com/james-see/practicetrack/pkg/logger"
	"github.com/james-see/practicetrack/pkg/timemap"
)

// Mutator writes a plan into a host timeline
type Mutator struct {
	w Writer
}

// NewMutator creates a mutator for the given host
func NewMutator(w Writer) *Mutator {
	return &Mutator{w: w}
}

// placement is a resolved copy waiting to be written
type placement struct {
	track    string
	item     Item
	start    float64
	duration float64
}

// Apply consumes a plan. Every op is resolved in plan order first; the tail
// shift then runs exactly once, before any copy is written, so no copy can
// be caught by it. tm must be the map the plan was built from.
func (m *Mutator) Apply(ctx context.Context, plan *Plan, tm *timemap.TimeMap) error {
	if plan == nil {
		return fmt.Errorf("%w: nil plan", ErrInvalidPlan)
	}
	if err := plan.Validate(); err != nil {
		return err
	}

	var (
		placements []placement
		tail       ShiftTail
	)
	for _, op := range plan.Ops {
		switch o := op.(type) {
		case DuplicateSegment:
			placements = append(placements, placement{
				track:    o.Item.Track,
				item:     o.Item,
				start:    o.NewStart,
				duration: o.Duration,
			})
		case SilenceGap:
			logger.Debug("Silence gap", logger.Fields{
				"segment": o.AfterSegmentIndex,
				"copy":    o.CopyIndex,
				"start":   o.Start,
				"bars":    o.Bars,
			})
		case ShiftTail:
			tail = o
		}
	}
	tempo := plan.TempoPoints(tm)

	for _, seg := range plan.Segments {
		if err := m.w.RemoveItem(ctx, seg.Item.ID); err != nil {
			return fmt.Errorf("failed to remove source item %q: %w", seg.Item.ID, err)
		}
	}
	if err := m.w.RemoveTempoPoints(ctx, plan.RegionStart, plan.RegionEnd); err != nil {
		return fmt.Errorf("failed to clear tempo points: %w", err)
	}
	if tail.Delta != 0 {
		if err := m.w.ShiftItemsAndMarkersAfter(ctx, tail.AfterTime, tail.Delta); err != nil {
			return fmt.Errorf("failed to shift tail: %w", err)
		}
	}
	for _, pl := range placements {
		if err := m.w.InsertItemCopy(ctx, pl.track, pl.item, pl.start, pl.duration); err != nil {
			return fmt.Errorf("failed to insert copy at %.6fs: %w", pl.start, err)
		}
	}
	for _, tp := range tempo {
		if err := m.w.InsertTempoPoint(ctx, tp); err != nil {
			return fmt.Errorf("failed to insert tempo point at %.6fs: %w", tp.Time, err)
		}
	}

	logger.Info("Plan applied", logger.Fields{
		"copies":       len(placements),
		"tempo_points": len(tempo),
		"delta":        tail.Delta,
	})
	return nil
}
