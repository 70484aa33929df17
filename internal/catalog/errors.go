package catalog

import (
	"errors"
	"fmt"
)

// LookupError reports a failed catalog or IAM call. It is recoverable for the
// member being resolved and never aborts a run.
type LookupError struct {
	Op  string
	Err error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

func wrapLookup(op string, err error) error {
	if err == nil {
		return nil
	}
	var lookupErr *LookupError
	if errors.As(err, &lookupErr) {
		return err
	}
	return &LookupError{Op: op, Err: err}
}
