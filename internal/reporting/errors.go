// internal/reporting/errors.go
package reporting

import (
	"errors"
	"fmt"
)

// ErrReporting is matched by every *Error.
var ErrReporting = errors.New("reporting failure")

// Error is a non-fatal failure while producing report data or artifacts.
// It is logged and never turned into a test failure.
type Error struct {
	Op   string
	Path string
	Err  error
}

func (e *Error) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("report %s (%s): %v", e.Op, e.Path, e.Err)
	}
	return fmt.Sprintf("report %s: %v", e.Op, e.Err)
}

func (e *Error) Is(target error) bool { return target == ErrReporting }

func (e *Error) Unwrap() error { return e.Err }
