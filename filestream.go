package dar

import (
	"errors"
	"io"
	"os"

	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "dar")

// ErrReadOnly is returned by Write on a stream opened read-only.
var ErrReadOnly = errors.New("stream is not open for write")

// FileStream is the bottom of every pipeline: a ByteStream backed
// directly by an *os.File. It plays the role backend.Storage plays in
// a disk-image library, adapted to the richer operation set
// (SkipRelative, Skippable, ReadAhead, Truncate) the archive layers
// need.
type FileStream struct {
	f        *os.File
	readOnly bool
	size     int64
}

// NewFileStream wraps an already-open file. If readOnly is true,
// Write and Truncate fail with ErrReadOnly.
func NewFileStream(f *os.File, readOnly bool) (*FileStream, error) {
	fi, err := f.Stat()
	if err != nil {
		return nil, NewError("NewFileStream", KindRange, err)
	}
	return &FileStream{f: f, readOnly: readOnly, size: fi.Size()}, nil
}

// OpenFileStream opens pathName for read or read-write.
func OpenFileStream(pathName string, readOnly bool) (*FileStream, error) {
	flag := os.O_RDONLY
	if !readOnly {
		flag = os.O_RDWR | os.O_CREATE
	}
	f, err := os.OpenFile(pathName, flag, 0o644)
	if err != nil {
		return nil, NewError("OpenFileStream", KindRange, err)
	}
	return NewFileStream(f, readOnly)
}

func (s *FileStream) Read(buf []byte) (int, error) {
	n, err := s.f.Read(buf)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, NewError("Read", KindData, err)
	}
	return n, err
}

func (s *FileStream) Write(buf []byte) (int, error) {
	if s.readOnly {
		return 0, NewError("Write", KindRange, ErrReadOnly)
	}
	n, err := s.f.Write(buf)
	if err != nil {
		return n, NewError("Write", KindRange, err)
	}
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err == nil && pos > s.size {
		s.size = pos
	}
	return n, nil
}

func (s *FileStream) Skip(absOffset int64) (bool, error) {
	if absOffset < 0 {
		return false, nil
	}
	if _, err := s.f.Seek(absOffset, io.SeekStart); err != nil {
		return false, NewError("Skip", KindRange, err)
	}
	return true, nil
}

func (s *FileStream) SkipRelative(delta int64) (bool, error) {
	pos, err := s.f.Seek(delta, io.SeekCurrent)
	if err != nil {
		return false, NewError("SkipRelative", KindRange, err)
	}
	return pos >= 0, nil
}

func (s *FileStream) SkipToEOF() (bool, error) {
	if _, err := s.f.Seek(0, io.SeekEnd); err != nil {
		return false, NewError("SkipToEOF", KindRange, err)
	}
	return true, nil
}

// Skippable is always true for a regular file: random access is free.
func (s *FileStream) Skippable(_ Direction, _ int64) bool { return true }

// ReadAhead is a no-op: the OS page cache already does this for a
// plain file; sar and tronc are the layers that make it meaningful.
func (s *FileStream) ReadAhead(_ int64) {}

func (s *FileStream) Truncate(absOffset int64) error {
	if s.readOnly {
		return NewError("Truncate", KindRange, ErrReadOnly)
	}
	if err := s.f.Truncate(absOffset); err != nil {
		return NewError("Truncate", KindRange, err)
	}
	s.size = absOffset
	return nil
}

func (s *FileStream) GetPosition() (int64, error) {
	pos, err := s.f.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, NewError("GetPosition", KindRange, err)
	}
	return pos, nil
}

// Terminate flushes and closes the underlying file. Idempotent.
func (s *FileStream) Terminate() error {
	if s.f == nil {
		return nil
	}
	err := s.f.Close()
	s.f = nil
	if err != nil {
		return NewError("Terminate", KindRange, err)
	}
	return nil
}

var _ ByteStream = (*FileStream)(nil)
