// Package dartest provides test doubles for the layered byte-stream
// stack, the same role github.com/diskfs/go-diskfs/testhelper plays
// for that library's backend.Storage: an in-memory stream so tests of
// sar, escape, tronc, compressor and cache never need a real file.
package dartest

import (
	"io"

	"github.com/dargo-project/dargo"
)

// MemStream is an in-memory dar.ByteStream backed by a growable byte
// slice, for unit tests of the layers above it.
type MemStream struct {
	buf []byte
	pos int64
}

// NewMemStream returns an empty in-memory stream open for read and write.
func NewMemStream() *MemStream { return &MemStream{} }

// Rewind resets the position to zero without discarding content,
// useful for writing then reading back the same buffer in one test.
func (m *MemStream) Rewind() { m.pos = 0 }

// Bytes returns the full content written so far.
func (m *MemStream) Bytes() []byte { return m.buf }

func (m *MemStream) Read(p []byte) (int, error) {
	if m.pos >= int64(len(m.buf)) {
		return 0, io.EOF
	}
	n := copy(p, m.buf[m.pos:])
	m.pos += int64(n)
	return n, nil
}

func (m *MemStream) Write(p []byte) (int, error) {
	end := m.pos + int64(len(p))
	if end > int64(len(m.buf)) {
		grown := make([]byte, end)
		copy(grown, m.buf)
		m.buf = grown
	}
	copy(m.buf[m.pos:end], p)
	m.pos = end
	return len(p), nil
}

func (m *MemStream) Skip(absOffset int64) (bool, error) {
	if absOffset < 0 {
		return false, nil
	}
	m.pos = absOffset
	return true, nil
}

func (m *MemStream) SkipRelative(delta int64) (bool, error) { return m.Skip(m.pos + delta) }

func (m *MemStream) SkipToEOF() (bool, error) {
	m.pos = int64(len(m.buf))
	return true, nil
}

func (m *MemStream) Skippable(_ dar.Direction, _ int64) bool { return true }

func (m *MemStream) ReadAhead(_ int64) {}

func (m *MemStream) Truncate(absOffset int64) error {
	if absOffset < int64(len(m.buf)) {
		m.buf = m.buf[:absOffset]
	}
	return nil
}

func (m *MemStream) GetPosition() (int64, error) { return m.pos, nil }

func (m *MemStream) Terminate() error { return nil }

var _ dar.ByteStream = (*MemStream)(nil)
