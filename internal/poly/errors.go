package poly

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownPreset = errors.New("unknown preset")
	ErrNotInPlace    = errors.New("fixed-arity solve requires an in-place problem")
)

// CursorError reports an orchestration step requested while the cursor is
// outside the candidate list. It is raised with panic, never returned.
type CursorError struct {
	Current int
	Len     int
}

func (e *CursorError) Error() string {
	return fmt.Sprintf("cursor %d outside candidate range [0, %d)", e.Current, e.Len)
}
