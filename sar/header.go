// Package sar implements the slice container layer of spec section
// 4.3: it maps one logical byte stream onto a sequence of numbered
// slice files, each carrying a small header, with an operator-assisted
// recovery loop when a slice is missing or corrupt.
package sar

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dargo-project/dargo/infinint"
	"github.com/google/uuid"
)

// Magic identifies a dargo slice file, per spec section 6.2.
var Magic = [4]byte{'D', 'A', 'R', 'S'}

// Flag is the one-byte terminal/non-terminal marker of spec section 6.2.
type Flag byte

const (
	NonTerminal Flag = 'N'
	Terminal    Flag = 'T'
)

// extension identifies whether a header carries the size-extension field.
type extension byte

const (
	extensionNone extension = '0'
	extensionSize extension = 'S'
)

// HeaderSize is the fixed-size portion of a slice header (magic +
// internal name + flag + extension id), before the optional
// infinint-encoded size field.
const HeaderSize = len(Magic) + 16 + 1 + 1

// Header is the bit-exact layout of spec section 6.2.
type Header struct {
	InternalName uuid.UUID
	Flag         Flag
	// SliceSize, if non-nil, is present only in slice 1 and only when
	// the remaining slices' size differs from slice 1's.
	SliceSize *infinint.Int
}

// Encode writes h in the wire format of spec section 6.2.
func (h Header) Encode() ([]byte, error) {
	var buf bytes.Buffer
	buf.Write(Magic[:])
	buf.Write(h.InternalName[:])
	buf.WriteByte(byte(h.Flag))
	if h.SliceSize != nil {
		buf.WriteByte(byte(extensionSize))
		if _, err := h.SliceSize.WriteTo(&buf); err != nil {
			return nil, fmt.Errorf("sar: encoding slice size extension: %w", err)
		}
	} else {
		buf.WriteByte(byte(extensionNone))
	}
	return buf.Bytes(), nil
}

// DecodeHeader reads a Header from r.
func DecodeHeader(r io.Reader) (Header, error) {
	var fixed [HeaderSize]byte
	if _, err := io.ReadFull(r, fixed[:]); err != nil {
		return Header{}, fmt.Errorf("sar: reading slice header: %w", err)
	}
	if !bytes.Equal(fixed[:len(Magic)], Magic[:]) {
		return Header{}, fmt.Errorf("sar: bad magic %x", fixed[:len(Magic)])
	}
	var h Header
	copy(h.InternalName[:], fixed[len(Magic):len(Magic)+16])
	h.Flag = Flag(fixed[len(Magic)+16])
	ext := extension(fixed[len(Magic)+17])
	if ext == extensionSize {
		size, _, err := infinint.ReadFrom(r)
		if err != nil {
			return Header{}, fmt.Errorf("sar: reading slice size extension: %w", err)
		}
		h.SliceSize = &size
	}
	return h, nil
}
