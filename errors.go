// Package dar implements the core engine of a full/differential
// filesystem archiver: a typed directory catalogue, a layered
// byte-stream stack (slicing, escaping, block encryption, compression,
// caching), and the glue that assembles them into a single archive.
package dar

import "fmt"

// Kind classifies an Error the way spec section 7 of the archiver
// design classifies failures, so a driver can branch on kind instead
// of parsing strings.
type Kind int

const (
	// KindRange: an input is out of range or malformed, but neither
	// the process nor the archive is in an unrecoverable state.
	KindRange Kind = iota
	// KindMemory: allocation failed.
	KindMemory
	// KindFeature: the operation needs a build-time feature that is
	// absent (e.g. bzip2 compression without an encoder linked in).
	KindFeature
	// KindData: on-disk data is corrupted (bad magic, bad CRC, bad tag).
	KindData
	// KindLimit: an implementation integer limit was hit.
	KindLimit
	// KindUserAbort: the operator declined at a prompt.
	KindUserAbort
	// KindBug: an internal invariant was violated.
	KindBug
)

func (k Kind) String() string {
	switch k {
	case KindRange:
		return "range"
	case KindMemory:
		return "memory"
	case KindFeature:
		return "feature"
	case KindData:
		return "data"
	case KindLimit:
		return "limit"
	case KindUserAbort:
		return "user-abort"
	case KindBug:
		return "bug"
	default:
		return "unknown"
	}
}

// Error is the error type returned by every package in this module.
// It carries a Kind so callers can use errors.As and branch on
// recoverability per spec section 7, and optionally an invariant name
// for KindBug errors.
type Error struct {
	Kind      Kind
	Op        string
	Invariant string
	Err       error
}

func (e *Error) Error() string {
	if e.Invariant != "" {
		return fmt.Sprintf("%s: %s: invariant %s violated: %v", e.Op, e.Kind, e.Invariant, e.Err)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an *Error for the given operation and kind.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

// Bug builds a KindBug error naming the violated invariant, mirroring
// spec section 7's requirement that Bug errors carry the symbolic
// invariant name in their diagnostic.
func Bug(op, invariant string, err error) *Error {
	return &Error{Op: op, Kind: KindBug, Invariant: invariant, Err: err}
}
