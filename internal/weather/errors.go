package weather

import (
	"errors"
	"fmt"
)

// Failure kinds. Match them with errors.Is.
var (
	ErrTransport        = errors.New("transport failure")
	ErrDecode           = errors.New("decode failure")
	ErrNoResult         = errors.New("no result")
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidInput     = errors.New("invalid input")
)

// Error carries the failure kind, the operation that failed and the cause.
type Error struct {
	Kind error
	Op   string
	Err  error
}

// NewError wraps err as a failure of the given kind.
func NewError(kind error, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Kind)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the failure kind so callers can test errors.Is(err, ErrDecode).
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// KindOf returns the failure kind of err, or nil if err is not a classified failure.
func KindOf(err error) error {
	for _, kind := range []error{ErrInvalidInput, ErrPermissionDenied, ErrNoResult, ErrDecode, ErrTransport} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}
