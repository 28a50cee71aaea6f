package dar

import "io"

// Mode describes which directions a ByteStream supports, mirroring
// the three modes spec section 4.1 requires every layer to expose.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
	ModeReadWrite
)

// Direction is used by Skippable to ask whether a cheap skip is
// possible without actually performing it.
type Direction int

const (
	DirectionForward Direction = iota
	DirectionBackward
)

// ByteStream is the uniform interface every layer of the archive
// pipeline (cache, sar, escape, tronc, compressor) implements and
// consumes, per spec section 4.1. Every layer wraps exactly one
// underlying ByteStream (except sar, which wraps a slice file set,
// and fsys sources, which wrap the local filesystem).
type ByteStream interface {
	// Read behaves like io.Reader: a short read is only permitted at EOF.
	Read(buf []byte) (int, error)
	// Write behaves like io.Writer: it must either write len(buf)
	// bytes or return an error.
	Write(buf []byte) (int, error)

	// Skip moves the logical position to an absolute offset. It
	// returns false if the position could not be reached (e.g. past
	// a hard EOF on a read-only stream).
	Skip(absOffset int64) (bool, error)
	// SkipRelative moves the logical position by delta, which may be
	// negative.
	SkipRelative(delta int64) (bool, error)
	// SkipToEOF positions at the current logical end of the stream.
	SkipToEOF() (bool, error)

	// Skippable reports whether a Skip of amount in the given
	// direction would be cheap, without performing it. Used by
	// upstream layers (e.g. escape) to decide whether to special-case
	// a seek.
	Skippable(dir Direction, amount int64) bool

	// ReadAhead is advisory: implementations that can benefit from it
	// (sar, tronc) may start prefetching; all others may ignore it.
	ReadAhead(amount int64)

	// Truncate cuts the stream at absOffset. Returns an error if the
	// layer cannot truncate (e.g. sar's reader and writer, or a
	// read-only FileStream).
	Truncate(absOffset int64) error

	// GetPosition returns the current logical offset.
	GetPosition() (int64, error)

	// Terminate flushes buffers, joins any background workers, and
	// releases OS resources. It is idempotent and must be called
	// explicitly: relying on garbage collection to clean up would
	// leak the threads the parallel cipher and sar's prompting loop
	// own.
	Terminate() error
}

// ReadWriteSeekStream adapts a ByteStream to the standard library's
// io.Reader/io.Writer/io.Seeker interfaces, for interop with code
// (compress/*, hash.Hash via io.Copy, …) that only knows stdlib
// interfaces.
type ReadWriteSeekStream struct {
	S ByteStream
}

func (r ReadWriteSeekStream) Read(p []byte) (int, error)  { return r.S.Read(p) }
func (r ReadWriteSeekStream) Write(p []byte) (int, error) { return r.S.Write(p) }

func (r ReadWriteSeekStream) Seek(offset int64, whence int) (int64, error) {
	switch whence {
	case io.SeekStart:
		if ok, err := r.S.Skip(offset); err != nil {
			return 0, err
		} else if !ok {
			return 0, NewError("Seek", KindRange, io.ErrUnexpectedEOF)
		}
	case io.SeekCurrent:
		if ok, err := r.S.SkipRelative(offset); err != nil {
			return 0, err
		} else if !ok {
			return 0, NewError("Seek", KindRange, io.ErrUnexpectedEOF)
		}
	case io.SeekEnd:
		if ok, err := r.S.SkipToEOF(); err != nil {
			return 0, err
		} else if !ok {
			return 0, NewError("Seek", KindRange, io.ErrUnexpectedEOF)
		}
		if offset != 0 {
			if ok, err := r.S.SkipRelative(offset); err != nil {
				return 0, err
			} else if !ok {
				return 0, NewError("Seek", KindRange, io.ErrUnexpectedEOF)
			}
		}
	}
	return r.S.GetPosition()
}
