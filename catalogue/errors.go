package catalogue

import "fmt"

// BugError reports an internal invariant violated while dumping or
// parsing a catalogue. It mirrors the root package's KindBug errors,
// but is defined locally since this package cannot import the root
// one (the root package imports catalogue).
type BugError struct {
	Invariant string
	Err       error
}

func (e *BugError) Error() string {
	return fmt.Sprintf("catalogue: bug: invariant %s violated: %v", e.Invariant, e.Err)
}

func (e *BugError) Unwrap() error { return e.Err }

func bug(invariant string, err error) *BugError {
	return &BugError{Invariant: invariant, Err: err}
}
