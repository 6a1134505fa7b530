package practice

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/james-see/practicetrack/pkg/logger"
	"github.com/james-see/practicetrack/pkg/timemap"
)

// Result describes a finished invocation
type Result struct {
	Plan    *Plan
	Empty   bool // nothing was selected; the timeline is untouched
	Elapsed time.Duration
}

// Expander runs the whole action against a host: read the selection and
// tempo map, plan, apply, all inside one undo block.
type Expander struct {
	host  Timeline
	label string
}

// NewExpander creates an expander for the given host
func NewExpander(host Timeline) *Expander {
	return &Expander{host: host, label: UndoLabel}
}

// SetUndoLabel overrides the name of the undo step
func (x *Expander) SetUndoLabel(label string) {
	x.label = label
}

// Run validates opts, then performs the expansion as a single undo step.
// An empty selection is not an error: the result has Empty set.
func (x *Expander) Run(ctx context.Context, opts Options) (*Result, error) {
	started := time.Now()
	elapsed := func() logger.Fields {
		return logger.Fields{"elapsed_ms": time.Since(started).Milliseconds()}
	}

	if err := opts.Validate(); err != nil {
		return nil, err
	}

	res := &Result{}
	err := WithUndo(ctx, x.host, x.label, func() error {
		plan, tm, err := prepare(ctx, x.host, opts, elapsed)
		if err != nil {
			return err
		}
		res.Plan = plan
		logger.Info("Plan built", elapsed().With("ops", len(plan.Ops)).With("delta", plan.Delta()))

		if err := NewMutator(x.host).Apply(ctx, plan, tm); err != nil {
			return err
		}
		logger.Info("Timeline updated", elapsed())
		return nil
	})
	res.Elapsed = time.Since(started)

	if errors.Is(err, ErrEmptySelection) {
		logger.Info("Nothing selected, practice track not created", elapsed())
		return &Result{Empty: true, Elapsed: res.Elapsed}, nil
	}
	if err != nil {
		logger.Error("Practice track failed", err, elapsed())
		return nil, err
	}
	return res, nil
}

// Preview builds the plan Run would apply, without opening an undo block or
// editing anything. It also returns the tempo map the plan was built from.
func Preview(ctx context.Context, r Reader, opts Options) (*Plan, *timemap.TimeMap, error) {
	if err := opts.Validate(); err != nil {
		return nil, nil, err
	}
	return prepare(ctx, r, opts, nil)
}

// prepare reads the selection and tempo map and plans the expansion
func prepare(ctx context.Context, r Reader, opts Options, elapsed func() logger.Fields) (*Plan, *timemap.TimeMap, error) {
	items, err := r.SelectedItems(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read selection: %w", err)
	}
	segments, err := Extract(items)
	if err != nil {
		return nil, nil, err
	}
	if elapsed != nil {
		logger.Info("Selection read", elapsed().With("segments", len(segments)))
	}

	points, err := r.TempoMap(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read tempo map: %w", err)
	}
	tm, err := timemap.New(points)
	if err != nil {
		return nil, nil, err
	}

	plan, err := NewPlanner(tm).Plan(segments, opts)
	if err != nil {
		return nil, nil, err
	}
	return plan, tm, nil
}
