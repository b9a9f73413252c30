package store

import "github.com/cockroachdb/errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrStoreFailure      = errors.New("store failure")
	ErrInvalidInput      = errors.New("invalid input")
	ErrUnsupportedOp     = errors.New("unsupported filter operator")
)

// Failure wraps a driver error and marks it as ErrStoreFailure.
func Failure(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrapf(err, format, args...), ErrStoreFailure)
}
