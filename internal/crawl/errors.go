package crawl

import (
	"errors"
	"fmt"
)

// SkipError terminates processing of a single record. The record still gets
// its output row, with the discovery columns left blank; the run carries on
// with the next record.
type SkipError struct {
	Reason string
	Err    error
}

func (e *SkipError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("skip record: %s: %v", e.Reason, e.Err)
	}
	return "skip record: " + e.Reason
}

func (e *SkipError) Unwrap() error { return e.Err }

// IsSkip reports whether err is, or wraps, a SkipError.
func IsSkip(err error) bool {
	var se *SkipError
	return errors.As(err, &se)
}
