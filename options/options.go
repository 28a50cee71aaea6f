// Package options collects the archiver's configuration records,
// replacing the long positional parameter lists of spec section 9's
// Design Notes with named-field structs shared by create, extract,
// restore, diff, and compare operations.
package options

import (
	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/tronc"
)

// Create configures archive creation.
type Create struct {
	// AllowOverwrite permits writing over an existing slice on disk;
	// WarnOverwrite asks the operator for confirmation first when both
	// are set.
	AllowOverwrite bool
	WarnOverwrite  bool

	CompressionAlgo  compressor.Algo
	CompressionLevel int

	// FirstSliceSize and SliceSize bound each slice file; FirstSliceSize
	// zero means "use SliceSize for the first slice too".
	FirstSliceSize int64
	SliceSize      int64

	// PauseBetweenSlices stops for operator confirmation after closing
	// every slice, not only on error.
	PauseBetweenSlices bool
	BeepOnPrompt       bool

	// SequentialRead sets the sequential-read flag in the archive
	// header. Create writes no escape marks into the archive whether
	// or not it is set.
	SequentialRead bool

	// RetryOnChange re-reads a file whose mtime changed during its own
	// capture, rather than archiving a torn read.
	RetryOnChange bool

	// HashAlgorithmForSlices names a digest (e.g. "sha256") computed
	// per slice and stored alongside it for later integrity checks; empty
	// disables slice hashing.
	HashAlgorithmForSlices string

	EncryptionAlgo tronc.Algo
	EncryptionKey  string

	// SameFS restricts capture to the filesystem the root path is on.
	SameFS bool

	// OnlyMoreRecent, set for a differential backup, skips any entry
	// whose mtime is not after the reference catalogue's.
	OnlyMoreRecent bool

	IgnoreOwner bool

	Filter Filter
}

// Filter is the set of inclusion/exclusion rules spec section 9 groups
// under "masks": glob patterns matched against a bare filename
// (include/exclude masks) or a full relative path (path include/exclude
// masks).
type Filter struct {
	IncludeMasks     []string
	ExcludeMasks     []string
	PathIncludeMasks []string
	PathExcludeMasks []string

	// EmptyDirForExcluded keeps an excluded directory's entry as an
	// empty placeholder instead of omitting it entirely, so a restore
	// recreates the mount point even though nothing under it was saved.
	EmptyDirForExcluded bool
}

// Extract configures reading an archive's catalogue and payload back
// out without touching a live filesystem (used by listing and by
// diff/compare).
type Extract struct {
	EncryptionAlgo tronc.Algo
	EncryptionKey  string
	Filter         Filter
}

// Restore configures writing an archive's content back onto a live
// filesystem.
type Restore struct {
	Extract

	AllowOverwrite bool
	WarnOverwrite  bool

	// OnlyMoreRecent skips restoring a path whose on-disk mtime is
	// already at least as new as the archived one.
	OnlyMoreRecent bool

	IgnoreOwner bool
	RestoreEA   bool
	RestoreFSA  bool
}

// Diff configures comparing an archive's catalogue against another
// archive's or a live filesystem's, producing destroyed/changed
// entries without writing anything.
type Diff struct {
	Extract
	IgnoreOwner bool
}

// Compare configures a byte-for-byte verification pass of an archive
// against the filesystem it was taken from.
type Compare struct {
	Extract
	IgnoreOwner bool
}
