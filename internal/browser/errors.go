// internal/browser/errors.go
package browser

import (
	"errors"
	"fmt"
)

var (
	// ErrElementNotFound is matched by every *ElementNotFoundError.
	ErrElementNotFound = errors.New("element not found")
	// ErrDriverFailure is matched by every *DriverError.
	ErrDriverFailure = errors.New("browser driver failure")
)

// ElementNotFoundError names the semantic role that could not be located.
type ElementNotFoundError struct {
	Locator Locator
}

func (e *ElementNotFoundError) Error() string {
	return fmt.Sprintf("element not found: %s", e.Locator)
}

func (e *ElementNotFoundError) Is(target error) bool { return target == ErrElementNotFound }

// DriverError wraps a failure of the browser itself (navigation, crashed
// target, protocol errors) with the operation that hit it.
type DriverError struct {
	Op  string
	Err error
}

func (e *DriverError) Error() string {
	return fmt.Sprintf("browser %s failed: %v", e.Op, e.Err)
}

func (e *DriverError) Is(target error) bool { return target == ErrDriverFailure }

func (e *DriverError) Unwrap() error { return e.Err }

// wrapDriverErr returns nil for nil and passes through taxonomy errors untouched.
func wrapDriverErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrElementNotFound) || errors.Is(err, ErrDriverFailure) {
		return err
	}
	return &DriverError{Op: op, Err: err}
}
