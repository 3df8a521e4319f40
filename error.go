package chainz

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Sentinel errors.
var (
	ErrNilMessage       = errors.New("nil message")
	ErrCanceled         = errors.New("run canceled")
	ErrMissingInput     = errors.New("missing input")
	ErrIndexOutOfBounds = errors.New("index out of bounds")
	ErrEmptyPipeline    = errors.New("pipeline is empty")
	ErrNotFound         = errors.New("operation not found")
)

// Error provides rich context about an unexpected failure that escaped a
// run, either because the pipeline propagates errors or because a typed
// pipeline returned a failed Result.
//
// Path lists the pipeline, scope and operation names from the outermost
// component to the one that failed.
type Error struct {
	Timestamp time.Time
	Err       error
	Rollback  error
	Path      []Name
	Duration  time.Duration
	Timeout   bool
	Canceled  bool
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	location := strings.Join(e.Path, " -> ")
	switch {
	case e.Timeout:
		return fmt.Sprintf("%s timed out after %v: %v", location, e.Duration, e.Err)
	case e.Canceled:
		return fmt.Sprintf("%s canceled after %v: %v", location, e.Duration, e.Err)
	default:
		return fmt.Sprintf("%s failed after %v: %v", location, e.Duration, e.Err)
	}
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsTimeout reports whether the failure was a deadline.
func (e *Error) IsTimeout() bool {
	if e == nil {
		return false
	}
	return e.Timeout || errors.Is(e.Err, context.DeadlineExceeded)
}

// IsCanceled reports whether the failure was a cancellation.
func (e *Error) IsCanceled() bool {
	if e == nil {
		return false
	}
	return e.Canceled || errors.Is(e.Err, context.Canceled)
}

func newError(path []Name, err error, started, now time.Time) *Error {
	return &Error{
		Path:      path,
		Err:       err,
		Timestamp: now,
		Duration:  now.Sub(started),
		Timeout:   errors.Is(err, context.DeadlineExceeded),
		Canceled:  errors.Is(err, context.Canceled),
	}
}

// prefixPath returns err as an *Error whose path starts with name.
func prefixPath(name Name, err error, started, now time.Time) *Error {
	var chainErr *Error
	if errors.As(err, &chainErr) {
		chainErr.Path = append([]Name{name}, chainErr.Path...)
		return chainErr
	}
	return newError([]Name{name}, err, started, now)
}

// PanicError is the error produced when an operation panics.
type PanicError struct {
	Value     any
	Operation Name
	sanitized string
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic in operation %q: %s", e.Operation, e.sanitized)
}

// recoverFromPanic turns a panic in the deferring function into a
// *PanicError assigned to err.
func recoverFromPanic(err *error, name Name) {
	if r := recover(); r != nil {
		*err = &PanicError{
			Operation: name,
			Value:     r,
			sanitized: sanitizePanicMessage(r),
		}
	}
}

var (
	memoryAddress = regexp.MustCompile(`0x[0-9a-fA-F]+`)
	filePath      = regexp.MustCompile(`([a-zA-Z]:\\|/)[^\s]*\.go:\d+`)
)

// sanitizePanicMessage keeps panic text fit for notices and logs.
func sanitizePanicMessage(r any) string {
	if r == nil {
		return "unknown panic (nil value)"
	}
	msg := fmt.Sprintf("%v", r)
	switch {
	case strings.Contains(msg, "goroutine ") || strings.Contains(msg, "runtime."):
		return "panic occurred (stack trace sanitized)"
	case filePath.MatchString(msg):
		return "panic occurred (file path sanitized)"
	case len(msg) > 200:
		return "panic occurred (message truncated for security)"
	}
	return "panic occurred: " + memoryAddress.ReplaceAllString(msg, "0x***")
}

// typeName names T, including interface types whose zero value is nil.
func typeName[T any]() string {
	return strings.TrimPrefix(fmt.Sprintf("%T", (*T)(nil)), "*")
}
