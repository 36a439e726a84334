// Package errs holds the error kinds shared by the fiber, scheduler and
// channel packages. Errors are values: no operation in this module panics
// on a recoverable condition.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrClosed is returned when an operation would complete against a
	// closed channel end.
	ErrClosed = errors.New("blazert: channel closed")

	// ErrWouldBlock is returned by non-blocking operations that could not
	// make progress.
	ErrWouldBlock = errors.New("blazert: operation would block")

	// ErrTimeout is returned when a deadline elapsed before progress.
	ErrTimeout = errors.New("blazert: deadline exceeded")

	// ErrCancelled is returned when the current deadline scope was
	// cancelled.
	ErrCancelled = errors.New("blazert: operation cancelled")

	// ErrInvalidArgument reports an element size mismatch, a nil
	// out-parameter or an operation the channel was not created for.
	ErrInvalidArgument = errors.New("blazert: invalid argument")

	// ErrOutOfMemory reports that a buffer or auxiliary allocation failed.
	ErrOutOfMemory = errors.New("blazert: out of memory")
)

// Side identifies which end of a channel was closed.
type Side uint8

const (
	// Producer is the sending end.
	Producer Side = iota
	// Consumer is the receiving end.
	Consumer
)

func (s Side) String() string {
	if s == Consumer {
		return "consumer"
	}
	return "producer"
}

// ClosedError is a Closed result carrying the code supplied by whoever
// closed the channel.
type ClosedError struct {
	Side  Side
	Cause error
}

func (e *ClosedError) Error() string {
	return fmt.Sprintf("blazert: channel closed by %s: %v", e.Side, e.Cause)
}

// Is reports ErrClosed as a match so callers can test any closed result
// with errors.Is(err, errs.ErrClosed).
func (e *ClosedError) Is(target error) bool { return target == ErrClosed }

func (e *ClosedError) Unwrap() error { return e.Cause }

// Closed builds the Closed result for side. A nil cause yields the generic
// ErrClosed.
func Closed(side Side, cause error) error {
	if cause == nil {
		return ErrClosed
	}
	return &ClosedError{Side: side, Cause: cause}
}
