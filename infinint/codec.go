package infinint

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// extendedLengthMarker is the one-byte length prefix reserved to mean
// "the real length follows as an 8-byte big-endian count", so values
// up to 254 bytes of magnitude cost only a single extra byte.
const extendedLengthMarker = 0xFF

// maxShortLen is the largest magnitude length the single-byte prefix
// can express directly.
const maxShortLen = 0xFE

// ErrTooLarge is returned by WriteTo when an Int's encoded length would
// not fit even the extended form (practically unreachable, included
// for completeness of the self-delimiting contract).
var ErrTooLarge = errors.New("infinint: value too large to encode")

// WriteTo encodes i onto w using the module-wide self-delimiting form
// and returns the number of bytes written.
func (i Int) WriteTo(w io.Writer) (int64, error) {
	b := i.Bytes()
	if len(b) <= maxShortLen {
		if _, err := w.Write([]byte{byte(len(b))}); err != nil {
			return 0, err
		}
		n, err := w.Write(b)
		return int64(n) + 1, err
	}
	if len(b) > (1<<63)-1 {
		return 0, ErrTooLarge
	}
	var hdr [9]byte
	hdr[0] = extendedLengthMarker
	binary.BigEndian.PutUint64(hdr[1:], uint64(len(b)))
	if _, err := w.Write(hdr[:]); err != nil {
		return 0, err
	}
	n, err := w.Write(b)
	return int64(n) + 9, err
}

// ReadFrom decodes an Int previously written by WriteTo.
func ReadFrom(r io.Reader) (Int, int64, error) {
	var lenByte [1]byte
	if _, err := io.ReadFull(r, lenByte[:]); err != nil {
		return Zero, 0, fmt.Errorf("infinint: reading length prefix: %w", err)
	}
	length := int(lenByte[0])
	consumed := int64(1)
	if lenByte[0] == extendedLengthMarker {
		var extLen [8]byte
		if _, err := io.ReadFull(r, extLen[:]); err != nil {
			return Zero, 0, fmt.Errorf("infinint: reading extended length: %w", err)
		}
		length = int(binary.BigEndian.Uint64(extLen[:]))
		consumed += 8
	}
	b := make([]byte, length)
	if length > 0 {
		if _, err := io.ReadFull(r, b); err != nil {
			return Zero, 0, fmt.Errorf("infinint: reading magnitude: %w", err)
		}
	}
	consumed += int64(length)
	return FromBytes(b), consumed, nil
}
