package practice

import (
	"context"
	"fmt"
	"strings"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// recorder is a Timeline that logs every call and can fail on demand
type recorder struct {
	items  []Item
	points []timemap.TempoPoint
	calls  []string
	failOn string
}

func (r *recorder) record(call string) error {
	r.calls = append(r.calls, call)
	if r.failOn != "" && strings.HasPrefix(call, r.failOn) {
		return fmt.Errorf("forced failure in %s", call)
	}
	return nil
}

func (r *recorder) SelectedItems(context.Context) ([]Item, error) {
	return r.items, nil
}

func (r *recorder) TempoMap(context.Context) ([]timemap.TempoPoint, error) {
	return r.points, nil
}

func (r *recorder) InsertItemCopy(_ context.Context, track string, it Item, start, duration float64) error {
	return r.record(fmt.Sprintf("insert %s %s %g+%g", track, it.ID, start, duration))
}

func (r *recorder) RemoveItem(_ context.Context, id string) error {
	return r.record("remove " + id)
}

func (r *recorder) RemoveTempoPoints(_ context.Context, start, end float64) error {
	return r.record(fmt.Sprintf("clear-tempo %g-%g", start, end))
}

func (r *recorder) ShiftItemsAndMarkersAfter(_ context.Context, t, delta float64) error {
	return r.record(fmt.Sprintf("shift %g by %g", t, delta))
}

func (r *recorder) InsertTempoPoint(_ context.Context, p timemap.TempoPoint) error {
	return r.record(fmt.Sprintf("tempo %g@%g", p.BPM, p.Time))
}

func (r *recorder) BeginUndoBlock(context.Context) error {
	return r.record("begin")
}

func (r *recorder) EndUndoBlock(_ context.Context, label string) error {
	return r.record("end " + label)
}

func (r *recorder) AbortUndoBlock(context.Context) error {
	return r.record("abort")
}
