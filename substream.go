package dar

// SubStream restricts a ByteStream to the window [offset, offset+size),
// translating every absolute position by offset before delegating to
// the underlying stream. This is the same idea as go-diskfs's
// backend.SubStorage windowing a partition out of a whole disk; here
// it windows one file's data out of an archive's payload stream
// (archiveFileSource in archive.go).
type SubStream struct {
	under  ByteStream
	offset int64
	size   int64
}

// NewSubStream returns a ByteStream over [offset, offset+size) of under.
// size may be -1 to mean "unbounded" (used while a slice is still
// being appended to).
func NewSubStream(under ByteStream, offset, size int64) *SubStream {
	return &SubStream{under: under, offset: offset, size: size}
}

func (s *SubStream) Read(buf []byte) (int, error) {
	if s.size >= 0 {
		pos, err := s.under.GetPosition()
		if err != nil {
			return 0, err
		}
		remaining := s.offset + s.size - pos
		if remaining <= 0 {
			return 0, nil
		}
		if int64(len(buf)) > remaining {
			buf = buf[:remaining]
		}
	}
	return s.under.Read(buf)
}

func (s *SubStream) Write(buf []byte) (int, error) {
	return s.under.Write(buf)
}

func (s *SubStream) Skip(absOffset int64) (bool, error) {
	if absOffset < 0 {
		return false, nil
	}
	return s.under.Skip(s.offset + absOffset)
}

func (s *SubStream) SkipRelative(delta int64) (bool, error) {
	return s.under.SkipRelative(delta)
}

func (s *SubStream) SkipToEOF() (bool, error) {
	if s.size < 0 {
		return s.under.SkipToEOF()
	}
	return s.under.Skip(s.offset + s.size)
}

func (s *SubStream) Skippable(dir Direction, amount int64) bool {
	return s.under.Skippable(dir, amount)
}

func (s *SubStream) ReadAhead(amount int64) { s.under.ReadAhead(amount) }

func (s *SubStream) Truncate(absOffset int64) error {
	return s.under.Truncate(s.offset + absOffset)
}

func (s *SubStream) GetPosition() (int64, error) {
	pos, err := s.under.GetPosition()
	if err != nil {
		return 0, err
	}
	return pos - s.offset, nil
}

// Terminate on a SubStream does not terminate the underlying stream:
// a SubStream never owns it (several SubStreams may alias the same
// underlying stream, as the per-file readers over one archive payload
// do).
func (s *SubStream) Terminate() error { return nil }

var _ ByteStream = (*SubStream)(nil)
