package catalogue

import (
	"io"
	"os"
)

// openLocalFile opens a creation-side SourcePath for GetData. A plain
// *os.File already satisfies ReadSeekCloser.
func openLocalFile(path string) (ReadSeekCloser, error) {
	return os.Open(path)
}

// ArchiveRange is a DataSource over a byte range of an already-open
// archive payload stream, the read-side counterpart of SourcePath.
type ArchiveRange struct {
	Under  ReadSeekCloser
	Offset int64
	Size   int64
}

func (a ArchiveRange) Open() (ReadSeekCloser, error) {
	if _, err := a.Under.Seek(a.Offset, 0); err != nil {
		return nil, err
	}
	return &boundedReadSeekCloser{ReadSeekCloser: a.Under, start: a.Offset, size: a.Size, pos: 0}, nil
}

// boundedReadSeekCloser restricts reads/seeks to [start, start+size)
// of an underlying stream shared by many File entries' ArchiveData.
type boundedReadSeekCloser struct {
	ReadSeekCloser
	start, size, pos int64
}

func (b *boundedReadSeekCloser) Read(p []byte) (int, error) {
	remaining := b.size - b.pos
	if remaining <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > remaining {
		p = p[:remaining]
	}
	n, err := b.ReadSeekCloser.Read(p)
	b.pos += int64(n)
	return n, err
}

func (b *boundedReadSeekCloser) Seek(offset int64, whence int) (int64, error) {
	var target int64
	switch whence {
	case 0:
		target = offset
	case 1:
		target = b.pos + offset
	case 2:
		target = b.size + offset
	}
	if _, err := b.ReadSeekCloser.Seek(b.start+target, 0); err != nil {
		return 0, err
	}
	b.pos = target
	return target, nil
}

// Close is a no-op: the underlying archive stream is owned and closed
// by whoever opened the archive, not by an individual File entry.
func (b *boundedReadSeekCloser) Close() error { return nil }
