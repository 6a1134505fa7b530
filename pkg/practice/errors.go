package practice

import (
	"errors"

	"github.com/james-see/practicetrack/pkg/timemap"
)

// Errors reported by the practice track action. Everything except
// ErrEmptySelection aborts the operation before the timeline is touched.
var (
	ErrInvalidTimeMap         = timemap.ErrInvalidTimeMap
	ErrNonContiguousSelection = errors.New("selected items are not contiguous")
	ErrMultipleTracks         = errors.New("selected items must be on a single track")
	ErrInvalidItem            = errors.New("invalid item")
	ErrEmptySelection         = errors.New("no items selected")
	ErrInvalidParameter       = errors.New("invalid parameter")
	ErrInvalidPlan            = errors.New("invalid expansion plan")
)

// IsRecoverable reports whether err should be shown as information rather
// than as a failure.
func IsRecoverable(err error) bool {
	return errors.Is(err, ErrEmptySelection)
}
