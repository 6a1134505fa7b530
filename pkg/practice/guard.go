package practice

import (
	"context"
	"errors"
	"fmt"
)

// Guard holds an open undo block. Exactly one of Commit or Rollback takes
// effect; later calls are no-ops, so deferring Rollback is always safe.
type Guard struct {
	u     Undoer
	label string
	done  bool
}

// BeginGuard opens an undo block on the host
func BeginGuard(ctx context.Context, u Undoer, label string) (*Guard, error) {
	if err := u.BeginUndoBlock(ctx); err != nil {
		return nil, fmt.Errorf("failed to begin undo block: %w", err)
	}
	return &Guard{u: u, label: label}, nil
}

// Commit closes the block as a single undo step
func (g *Guard) Commit(ctx context.Context) error {
	if g.done {
		return nil
	}
	g.done = true
	if err := g.u.EndUndoBlock(ctx, g.label); err != nil {
		if aerr := g.u.AbortUndoBlock(ctx); aerr != nil {
			return errors.Join(fmt.Errorf("failed to end undo block: %w", err), aerr)
		}
		return fmt.Errorf("failed to end undo block: %w", err)
	}
	return nil
}

// Rollback discards every edit made since the block opened
func (g *Guard) Rollback(ctx context.Context) error {
	if g.done {
		return nil
	}
	g.done = true
	if err := g.u.AbortUndoBlock(ctx); err != nil {
		return fmt.Errorf("failed to abort undo block: %w", err)
	}
	return nil
}

// WithUndo runs fn inside an undo block, committing on success and rolling
// back on error or panic.
func WithUndo(ctx context.Context, u Undoer, label string, fn func() error) (err error) {
	g, err := BeginGuard(ctx, u, label)
	if err != nil {
		return err
	}
	defer func() {
		if r := recover(); r != nil {
			_ = g.Rollback(ctx)
			panic(r)
		}
	}()

	if err := fn(); err != nil {
		if rerr := g.Rollback(ctx); rerr != nil {
			return errors.Join(err, rerr)
		}
		return err
	}
	return g.Commit(ctx)
}
