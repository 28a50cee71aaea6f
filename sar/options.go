package sar

// WriteOptions configures slice creation, per spec section 4.3.
type WriteOptions struct {
	// FirstSliceSize is the total size (header + content) of slice 1.
	// Zero means trivial single-file mode: no slicing at all.
	FirstSliceSize int64
	// SliceSize is the total size of every slice after the first. If
	// zero, it defaults to FirstSliceSize.
	SliceSize int64
	// WarnOverwrite asks the operator before overwriting an existing
	// slice file.
	WarnOverwrite bool
	// DontErase fails instead of overwriting an existing slice file.
	DontErase bool
	// PauseBeforeNext asks the operator to confirm before starting
	// each new slice after the first, e.g. to let removable media be
	// swapped.
	PauseBeforeNext bool
}

// trivial reports whether this is the unsplit single-file mode of
// spec section 4.3.
func (o WriteOptions) trivial() bool { return o.FirstSliceSize == 0 }

func (o WriteOptions) sliceSize() int64 {
	if o.SliceSize == 0 {
		return o.FirstSliceSize
	}
	return o.SliceSize
}
