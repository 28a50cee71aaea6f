// Package escape implements the typed escape-mark layer of spec
// section 4.4: it lets a producer interleave typed markers into an
// otherwise arbitrary byte stream, and lets a consumer find those
// markers from a forward read without ever needing to parse the user
// data, by escaping any accidental occurrence of the marker's magic
// bytes in that data.
package escape

import (
	"bytes"
	"errors"
	"io"

	"github.com/dargo-project/dargo"
)

// Magic is the five fixed bytes that introduce every mark. It is the
// one truly global constant of the archiver core (spec section 9,
// Design Notes: "the only truly static datum that remains").
var Magic = [5]byte{0xAD, 0xFD, 0xEA, 0x77, 0x21}

// Type identifies what a mark means. Values are stable across archive
// format versions: new types are appended, never renumbered.
type Type byte

const (
	NotASequence Type = iota // escapes an accidental magic-byte run in user data
	FileData
	EA
	CatalogueStart
	DataName
	FileCRC
	EACRC
	Changed
	Dirty
	FailedBackup
	FSA
	FSACRC
	DeltaSignature
)

// ErrUnjumpable is returned by SkipToNextMark when an unrelated mark
// that was registered as unjumpable is encountered before the
// requested type, per spec section 4.4's "unjumpable set".
var ErrUnjumpable = errors.New("escape: unjumpable mark encountered before requested mark")

// Writer inserts marks into a stream written to an underlying
// dar.ByteStream, escaping accidental magic sequences in the data it
// is given.
type Writer struct {
	under dar.ByteStream
	// pending holds up to len(Magic)-1 bytes that might be the
	// prefix of a magic sequence split across two Write calls.
	pending []byte
}

// NewWriter wraps under for mark-aware writing.
func NewWriter(under dar.ByteStream) *Writer {
	return &Writer{under: under}
}

// Write scans b for accidental occurrences of Magic and escapes each
// one with a NotASequence mark, per spec section 4.4.
func (w *Writer) Write(b []byte) (int, error) {
	data := append(w.pending, b...)
	w.pending = nil

	i := 0
	for {
		idx := bytes.Index(data[i:], Magic[:])
		if idx < 0 {
			break
		}
		idx += i
		if _, err := w.under.Write(data[i:idx]); err != nil {
			return 0, err
		}
		if _, err := w.under.Write(Magic[:]); err != nil {
			return 0, err
		}
		if _, err := w.under.Write([]byte{byte(NotASequence)}); err != nil {
			return 0, err
		}
		i = idx + len(Magic)
	}

	// Keep a potential partial match for the next call.
	keep := len(Magic) - 1
	if len(data)-i < keep {
		keep = len(data) - i
	}
	safe := len(data) - keep
	if safe > i {
		if _, err := w.under.Write(data[i:safe]); err != nil {
			return 0, err
		}
	}
	w.pending = append(w.pending, data[safe:]...)
	return len(b), nil
}

// AddMark writes a typed mark immediately, first flushing any
// withheld partial-magic bytes as literal data (they did not, after
// all, turn out to be the start of a real mark).
func (w *Writer) AddMark(t Type) error {
	if len(w.pending) > 0 {
		if _, err := w.under.Write(w.pending); err != nil {
			return err
		}
		w.pending = nil
	}
	if _, err := w.under.Write(Magic[:]); err != nil {
		return err
	}
	_, err := w.under.Write([]byte{byte(t)})
	return err
}

// Flush writes out any withheld partial-magic bytes as literal data.
// Call before Terminate or before switching to reading the same
// stream back.
func (w *Writer) Flush() error {
	if len(w.pending) == 0 {
		return nil
	}
	_, err := w.under.Write(w.pending)
	w.pending = nil
	return err
}

// Skip, SkipRelative, SkipToEOF, Skippable and ReadAhead delegate
// straight to under: a mark-aware writer never seeks mid-stream itself
// (it only ever appends), so these exist solely so Writer satisfies
// dar.ByteStream and can sit under tronc in the create pipeline.
func (w *Writer) Skip(absOffset int64) (bool, error) { return w.under.Skip(absOffset) }

func (w *Writer) SkipRelative(delta int64) (bool, error) { return w.under.SkipRelative(delta) }

func (w *Writer) SkipToEOF() (bool, error) { return w.under.SkipToEOF() }

func (w *Writer) Skippable(dir dar.Direction, amount int64) bool { return w.under.Skippable(dir, amount) }

func (w *Writer) ReadAhead(amount int64) { w.under.ReadAhead(amount) }

func (w *Writer) Truncate(absOffset int64) error { return w.under.Truncate(absOffset) }

func (w *Writer) GetPosition() (int64, error) { return w.under.GetPosition() }

// Terminate flushes any withheld partial-magic bytes, then terminates
// under.
func (w *Writer) Terminate() error {
	if err := w.Flush(); err != nil {
		return err
	}
	return w.under.Terminate()
}

func (w *Writer) Read(_ []byte) (int, error) {
	return 0, dar.NewError("escape.Writer.Read", dar.KindBug, dar.ErrReadOnly)
}

var _ dar.ByteStream = (*Writer)(nil)

// Reader reads data from an underlying dar.ByteStream, transparently
// consuming NotASequence escapes and surfacing real marks to the
// caller via NextMark / SkipToNextMark.
type Reader struct {
	under       dar.ByteStream
	unjumpable  map[Type]bool
	hasStashed  bool
	stashedType Type
}

// NewReader wraps under for mark-aware reading.
func NewReader(under dar.ByteStream) *Reader {
	return &Reader{under: under, unjumpable: make(map[Type]bool)}
}

// RemoveUnjumpableMark clears a mark type from the unjumpable set
// previously built up by SkipToNextMark(..., allowJump=false) calls
// internally; exposed so a caller can explicitly re-allow jumping over
// a type it no longer cares about, per spec section 4.4.
func (r *Reader) RemoveUnjumpableMark(t Type) {
	delete(r.unjumpable, t)
}

// Read delivers data to the caller, transparently resolving
// NotASequence escapes back into the literal magic bytes they stand
// for. At any other mark it stops, returning the bytes delivered so
// far with a nil error, and records the mark's type: NextMark reports
// it and SkipToNextMark consumes it. A later Read call goes on with
// the data after the mark.
func (r *Reader) Read(p []byte) (int, error) {
	total := 0
	for total < len(p) {
		b := make([]byte, 1)
		n, err := r.under.Read(b)
		if n == 0 {
			return total, err
		}
		if b[0] != Magic[0] {
			p[total] = b[0]
			total++
			continue
		}
		// Possible start of a mark: read the remaining magic bytes.
		rest := make([]byte, len(Magic)-1)
		if _, err := io.ReadFull(dar.ReadWriteSeekStream{S: r.under}, rest); err != nil {
			return total, err
		}
		if !bytes.Equal(rest, Magic[1:]) {
			// Not actually a mark: not reachable in a correctly
			// produced stream, since the writer escapes every
			// accidental occurrence, but handled defensively.
			p[total] = b[0]
			total++
			continue
		}
		tb := make([]byte, 1)
		if _, err := io.ReadFull(dar.ReadWriteSeekStream{S: r.under}, tb); err != nil {
			return total, err
		}
		if Type(tb[0]) == NotASequence {
			if total+len(Magic) <= len(p) {
				copy(p[total:], Magic[:])
				total += len(Magic)
				continue
			}
			// Not enough room left in caller's buffer: return what
			// we have and let the next Read consume the mark again.
			// Practically this only matters for 1-byte reads, which
			// the internal helpers above already handle byte at a
			// time, so this path is unreachable in this package but
			// kept for robustness against a tiny caller buffer.
			return total, nil
		}
		// A real mark: stop here, do not consume it, so NextMark can
		// report it. We cannot un-read from under, so stash it.
		r.stashedType = Type(tb[0])
		r.hasStashed = true
		return total, nil
	}
	return total, nil
}

// NextMark reports the type of the next mark if the reader is
// currently positioned exactly at one (i.e. the previous Read
// returned because it found one), and whether one is pending.
func (r *Reader) NextMark() (Type, bool) {
	if r.hasStashed {
		return r.stashedType, true
	}
	return 0, false
}

// SkipToNextMark advances past data (and past other, non-unjumpable
// marks, if allowJump is true) until it reaches a mark of type t. If
// allowJump is false, or the mark encountered was previously added to
// the unjumpable set, SkipToNextMark fails with ErrUnjumpable instead
// of silently crossing it, and remembers that type as unjumpable for
// future calls, matching spec section 4.4's description of an
// accreting unjumpable set.
func (r *Reader) SkipToNextMark(t Type, allowJump bool) error {
	for {
		if r.hasStashed {
			found := r.stashedType
			if found == t {
				r.hasStashed = false
				return nil
			}
			if !allowJump || r.unjumpable[found] {
				r.unjumpable[found] = true
				return ErrUnjumpable
			}
			r.hasStashed = false
			continue
		}
		var discard [4096]byte
		n, err := r.Read(discard[:])
		if n == 0 {
			if err != nil {
				return err
			}
			if !r.hasStashed {
				return io.EOF
			}
		}
	}
}

// Skip, SkipRelative, SkipToEOF, Skippable and ReadAhead delegate to
// under so Reader satisfies dar.ByteStream and can sit under tronc in
// the read pipeline. Skipping mid-stream drops any stashed mark: the
// caller is expected to re-discover marks by reading forward from the
// new position, matching sar's own re-synchronisation behaviour.
func (r *Reader) Skip(absOffset int64) (bool, error) {
	r.hasStashed = false
	return r.under.Skip(absOffset)
}

func (r *Reader) SkipRelative(delta int64) (bool, error) {
	r.hasStashed = false
	return r.under.SkipRelative(delta)
}

func (r *Reader) SkipToEOF() (bool, error) {
	r.hasStashed = false
	return r.under.SkipToEOF()
}

func (r *Reader) Skippable(dir dar.Direction, amount int64) bool {
	return r.under.Skippable(dir, amount)
}

func (r *Reader) ReadAhead(amount int64) { r.under.ReadAhead(amount) }

func (r *Reader) Truncate(absOffset int64) error { return r.under.Truncate(absOffset) }

func (r *Reader) GetPosition() (int64, error) { return r.under.GetPosition() }

func (r *Reader) Terminate() error { return r.under.Terminate() }

func (r *Reader) Write(_ []byte) (int, error) {
	return 0, dar.NewError("escape.Reader.Write", dar.KindBug, dar.ErrReadOnly)
}

var _ dar.ByteStream = (*Reader)(nil)
