package util

import "github.com/pkg/errors"

// Unwrap strips stackerr wrapping and pkg/errors causes,
// so returned error can be compared with sentinel errors.
func Unwrap(err error) error {
	type hasUnderlying interface {
		Underlying() error
	}
	for {
		if eh, ok := err.(hasUnderlying); ok {
			err = eh.Underlying()
			continue
		}
		cause := errors.Cause(err)
		if cause == err {
			return err
		}
		err = cause
	}
}
