// Package ipc implements the typed-message framing of spec section
// 4.12, used by the parallel cipher's feedback channel and by
// slave-mode archive reading, where one process drives another over a
// pair of pipes.
package ipc

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Kind identifies a message type. Values map directly onto the wire
// byte, so they must never be renumbered once an archive format
// version has shipped with them.
type Kind byte

const (
	Read Kind = iota
	ReadBegin
	ReadAhead
	ReadEOF
	SyncWrite
	SyncWriteBegin
	Skip
	SkipToEOF
	SkipForward
	SkipBackward
	SkipDone
	Skippable
	SkippableAck
	GetPosition
	PositionAck
	Exception
	EndOfXmit
	StopReadahead
	ReadaheadStopped
)

// beginVariant reports which Kind a "-begin" continuation frame
// precedes, per spec section 4.12: a body too large for one frame is
// split, with the first frame using the -begin Kind and the rest using
// the plain Kind.
var beginVariant = map[Kind]Kind{
	Read:      ReadBegin,
	SyncWrite: SyncWriteBegin,
}

// Message is one framed unit: a Kind byte followed by a body whose
// shape depends on Kind.
type Message struct {
	Kind Kind
	Body []byte
}

// MaxFrameBody bounds a single frame's body so a corrupt length field
// cannot force an unbounded allocation; bodies larger than this are
// split across continuation frames using the -begin convention.
const MaxFrameBody = 1 << 20

// WriteMessage frames and writes m to w, automatically splitting a
// body larger than MaxFrameBody into a -begin frame followed by plain
// continuation frames.
func WriteMessage(w io.Writer, m Message) error {
	if len(m.Body) <= MaxFrameBody {
		return writeFrame(w, m.Kind, m.Body)
	}
	begin, ok := beginVariant[m.Kind]
	if !ok {
		return fmt.Errorf("ipc: kind %d has no -begin continuation form, body too large (%d bytes)", m.Kind, len(m.Body))
	}
	rest := m.Body
	first := true
	for {
		chunk := rest
		more := len(chunk) > MaxFrameBody
		if more {
			chunk = chunk[:MaxFrameBody]
		}
		kind := m.Kind
		if first {
			kind = begin
			first = false
		}
		if err := writeFrame(w, kind, chunk); err != nil {
			return err
		}
		rest = rest[len(chunk):]
		// A frame exactly MaxFrameBody long is itself ambiguous with
		// "more data follows", so a short (possibly empty) frame
		// always closes the sequence.
		if !more {
			if len(chunk) == MaxFrameBody {
				return writeFrame(w, m.Kind, nil)
			}
			return nil
		}
	}
}

func writeFrame(w io.Writer, kind Kind, body []byte) error {
	var hdr [5]byte
	hdr[0] = byte(kind)
	binary.BigEndian.PutUint32(hdr[1:], uint32(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return err
	}
	_, err := w.Write(body)
	return err
}

// beginToPlain is the inverse of beginVariant, used by ReadMessage to
// fold a -begin frame's continuation frames back into the base Kind.
var beginToPlain = map[Kind]Kind{
	ReadBegin:      Read,
	SyncWriteBegin: SyncWrite,
}

// ReadMessage reads one logical message from r, transparently
// reassembling a -begin frame and its continuation frames (all framed
// under the same plain Kind) into a single Message.
func ReadMessage(r io.Reader) (Message, error) {
	kind, body, err := readFrame(r)
	if err != nil {
		return Message{}, err
	}
	plain, isBegin := beginToPlain[kind]
	if !isBegin {
		return Message{Kind: kind, Body: body}, nil
	}
	full := body
	for {
		nextKind, nextBody, err := readFrame(r)
		if err != nil {
			return Message{}, err
		}
		if nextKind != plain {
			return Message{}, fmt.Errorf("ipc: expected continuation frame of kind %d, got %d", plain, nextKind)
		}
		full = append(full, nextBody...)
		if len(nextBody) < MaxFrameBody {
			break
		}
	}
	return Message{Kind: plain, Body: full}, nil
}

func readFrame(r io.Reader) (Kind, []byte, error) {
	var hdr [5]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, err
	}
	n := binary.BigEndian.Uint32(hdr[1:])
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return Kind(hdr[0]), body, nil
}

// SkipBody is the body of a Skip message: an absolute byte offset.
func SkipBody(offset int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(offset))
	return b[:]
}

func ParseSkipBody(body []byte) (int64, error) {
	if len(body) != 8 {
		return 0, fmt.Errorf("ipc: malformed skip body: %d bytes", len(body))
	}
	return int64(binary.BigEndian.Uint64(body)), nil
}

// SkippableBody is the body of a Skippable/SkippableAck message: a
// direction (true = forward) and an amount.
func SkippableBody(forward bool, amount int64) []byte {
	var b [9]byte
	if forward {
		b[0] = 1
	}
	binary.BigEndian.PutUint64(b[1:], uint64(amount))
	return b[:]
}

func ParseSkippableBody(body []byte) (forward bool, amount int64, err error) {
	if len(body) != 9 {
		return false, 0, fmt.Errorf("ipc: malformed skippable body: %d bytes", len(body))
	}
	return body[0] != 0, int64(binary.BigEndian.Uint64(body[1:])), nil
}

// PositionBody is the body of a PositionAck message.
func PositionBody(pos int64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(pos))
	return b[:]
}

func ParsePositionBody(body []byte) (int64, error) {
	if len(body) != 8 {
		return 0, fmt.Errorf("ipc: malformed position body: %d bytes", len(body))
	}
	return int64(binary.BigEndian.Uint64(body)), nil
}

// ExceptionBody carries a failure's text across the pipe, since an
// error value itself cannot cross a process boundary.
func ExceptionBody(msg string) []byte { return []byte(msg) }
