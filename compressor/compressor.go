// Package compressor wraps a dar.ByteStream with streaming
// compression, per spec section 4.7. It supports a pass-through mode
// and five real algorithms (bzip2 for decoding only), plus a
// suspend/resume pair that lets a
// caller interleave uncompressed regions (the catalogue's EA/FSA
// blocks, which spec section 4.8 stores raw) without losing
// compression context for the data before and after.
package compressor

import (
	"compress/bzip2"
	"errors"
	"fmt"
	"io"

	"github.com/dargo-project/dargo"
	"github.com/klauspost/compress/zstd"
	"github.com/klauspost/pgzip"
	"github.com/pierrec/lz4/v4"
	"github.com/sirupsen/logrus"
	"github.com/ulikunitz/xz"
)

var log = logrus.WithField("component", "compressor")

// Algo identifies a compression algorithm, per spec section 4.7.
type Algo int

const (
	AlgoNone Algo = iota
	AlgoGzip
	AlgoBzip2
	AlgoLZ4
	AlgoXZ
	AlgoZstd
)

func (a Algo) String() string {
	switch a {
	case AlgoNone:
		return "none"
	case AlgoGzip:
		return "gzip"
	case AlgoBzip2:
		return "bzip2"
	case AlgoLZ4:
		return "lz4"
	case AlgoXZ:
		return "xz"
	case AlgoZstd:
		return "zstd"
	default:
		return "unknown"
	}
}

// ErrNoEncoder is returned by NewWriter for an algorithm that only
// implements decoding in this module (bzip2), matching spec.md
// section 7's "build-time feature absent" Feature kind.
var ErrNoEncoder = errors.New("compressor: no encoder available for this algorithm")

// Writer implements dar.ByteStream, compressing everything written to
// it before passing it to the underlying stream.
type Writer struct {
	under dar.ByteStream
	algo  Algo
	level int
	enc   io.WriteCloser // nil when AlgoNone or suspended
	pos   int64
}

// NewWriter opens a compressing writer over under.
func NewWriter(under dar.ByteStream, algo Algo, level int) (*Writer, error) {
	w := &Writer{under: under, algo: algo, level: level}
	enc, err := newEncoder(under, algo, level)
	if err != nil {
		return nil, err
	}
	w.enc = enc
	log.WithFields(logrus.Fields{"algo": algo, "level": level}).Debug("opened compressing writer")
	return w, nil
}

// underWriter adapts dar.ByteStream to io.Writer for the compression
// libraries, which only know stdlib interfaces.
func underWriter(under dar.ByteStream) io.Writer { return dar.ReadWriteSeekStream{S: under} }
func underReader(under dar.ByteStream) io.Reader { return dar.ReadWriteSeekStream{S: under} }

func newEncoder(under dar.ByteStream, algo Algo, level int) (io.WriteCloser, error) {
	switch algo {
	case AlgoNone:
		return nil, nil
	case AlgoGzip:
		w, err := pgzip.NewWriterLevel(underWriter(under), level)
		if err != nil {
			return nil, dar.NewError("compressor.newEncoder", dar.KindRange, err)
		}
		return w, nil
	case AlgoBzip2:
		return nil, dar.NewError("compressor.newEncoder", dar.KindFeature, ErrNoEncoder)
	case AlgoLZ4:
		w := lz4.NewWriter(underWriter(under))
		if err := w.Apply(lz4.CompressionLevelOption(lz4.CompressionLevel(level))); err != nil {
			return nil, dar.NewError("compressor.newEncoder", dar.KindRange, err)
		}
		return w, nil
	case AlgoXZ:
		cfg := xz.WriterConfig{}
		w, err := cfg.NewWriter(underWriter(under))
		if err != nil {
			return nil, dar.NewError("compressor.newEncoder", dar.KindRange, err)
		}
		return w, nil
	case AlgoZstd:
		w, err := zstd.NewWriter(underWriter(under), zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)))
		if err != nil {
			return nil, dar.NewError("compressor.newEncoder", dar.KindRange, err)
		}
		return w, nil
	default:
		return nil, dar.Bug("compressor.newEncoder", "known-algo", fmt.Errorf("unknown algorithm %d", algo))
	}
}

func (w *Writer) Write(buf []byte) (int, error) {
	var n int
	var err error
	if w.enc != nil {
		n, err = w.enc.Write(buf)
	} else {
		n, err = w.under.Write(buf)
	}
	w.pos += int64(n)
	if err != nil {
		return n, dar.NewError("compressor.Write", dar.KindRange, err)
	}
	return n, nil
}

// SuspendCompression finalizes the current compressed block (flushing
// its trailer) so that what follows can be written raw, per spec
// section 4.7. Call ResumeCompression to start a fresh block.
func (w *Writer) SuspendCompression() error {
	if w.enc == nil {
		return nil
	}
	if err := w.enc.Close(); err != nil {
		return dar.NewError("compressor.SuspendCompression", dar.KindRange, err)
	}
	w.enc = nil
	return nil
}

// ResumeCompression opens a new compressed block with a freshly
// initialized dictionary, per spec section 4.7's reset-point rule.
func (w *Writer) ResumeCompression() error {
	enc, err := newEncoder(w.under, w.algo, w.level)
	if err != nil {
		return err
	}
	w.enc = enc
	return nil
}

func (w *Writer) Skip(_ int64) (bool, error) {
	return false, dar.NewError("compressor.Skip", dar.KindRange, errors.New("compressor.Writer is append-only"))
}

func (w *Writer) SkipRelative(delta int64) (bool, error) {
	if delta == 0 {
		return true, nil
	}
	return false, dar.NewError("compressor.SkipRelative", dar.KindRange, errors.New("compressor.Writer is append-only"))
}

func (w *Writer) SkipToEOF() (bool, error) { return true, nil }

func (w *Writer) Skippable(_ dar.Direction, amount int64) bool { return amount == 0 }

func (w *Writer) ReadAhead(_ int64) {}

func (w *Writer) Truncate(_ int64) error {
	return dar.NewError("compressor.Truncate", dar.KindRange, errors.New("compressor.Writer does not support truncate"))
}

func (w *Writer) GetPosition() (int64, error) { return w.pos, nil }

// Terminate closes the current compressed block, if any, and
// terminates the underlying stream.
func (w *Writer) Terminate() error {
	if err := w.SuspendCompression(); err != nil {
		return err
	}
	return w.under.Terminate()
}

func (w *Writer) Read(_ []byte) (int, error) {
	return 0, dar.NewError("compressor.Read", dar.KindRange, errors.New("compressor.Writer does not support Read"))
}

var _ dar.ByteStream = (*Writer)(nil)

// closerFunc adapts a plain func() to io.Closer.
type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// decoder bundles a reader with how to close it, since several of the
// wrapped libraries have no Close method at all (compress/bzip2) or a
// void one (klauspost/compress/zstd).
type decoder struct {
	io.Reader
	io.Closer
}

func newDecoder(under dar.ByteStream, algo Algo) (*decoder, error) {
	switch algo {
	case AlgoNone:
		return nil, nil
	case AlgoGzip:
		r, err := pgzip.NewReader(underReader(under))
		if err != nil {
			return nil, dar.NewError("compressor.newDecoder", dar.KindData, err)
		}
		return &decoder{Reader: r, Closer: r}, nil
	case AlgoBzip2:
		r := bzip2.NewReader(underReader(under))
		return &decoder{Reader: r, Closer: closerFunc(func() error { return nil })}, nil
	case AlgoLZ4:
		r := lz4.NewReader(underReader(under))
		return &decoder{Reader: r, Closer: closerFunc(func() error { return nil })}, nil
	case AlgoXZ:
		r, err := xz.NewReader(underReader(under))
		if err != nil {
			return nil, dar.NewError("compressor.newDecoder", dar.KindData, err)
		}
		return &decoder{Reader: r, Closer: closerFunc(func() error { return nil })}, nil
	case AlgoZstd:
		r, err := zstd.NewReader(underReader(under))
		if err != nil {
			return nil, dar.NewError("compressor.newDecoder", dar.KindData, err)
		}
		return &decoder{Reader: r, Closer: closerFunc(func() error { r.Close(); return nil })}, nil
	default:
		return nil, dar.Bug("compressor.newDecoder", "known-algo", fmt.Errorf("unknown algorithm %d", algo))
	}
}

// Reader implements dar.ByteStream, decompressing everything read
// from under.
type Reader struct {
	under dar.ByteStream
	algo  Algo
	dec   *decoder // nil when AlgoNone or suspended
	pos   int64
}

// NewReader opens a decompressing reader over under.
func NewReader(under dar.ByteStream, algo Algo) (*Reader, error) {
	dec, err := newDecoder(under, algo)
	if err != nil {
		return nil, err
	}
	return &Reader{under: under, algo: algo, dec: dec}, nil
}

func (r *Reader) Read(buf []byte) (int, error) {
	var n int
	var err error
	if r.dec != nil {
		n, err = r.dec.Read(buf)
	} else {
		n, err = r.under.Read(buf)
	}
	r.pos += int64(n)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, dar.NewError("compressor.Read", dar.KindData, err)
	}
	return n, err
}

// SuspendDecompression stops decoding and delivers subsequent Read
// calls straight from the underlying stream, per spec section 4.7
// (used to read a raw EA/FSA block that was never compressed).
func (r *Reader) SuspendDecompression() error {
	if r.dec == nil {
		return nil
	}
	err := r.dec.Close()
	r.dec = nil
	if err != nil {
		return dar.NewError("compressor.SuspendDecompression", dar.KindRange, err)
	}
	return nil
}

// ResumeDecompression opens a fresh decoder at the underlying stream's
// current position, with a freshly initialized dictionary.
func (r *Reader) ResumeDecompression() error {
	dec, err := newDecoder(r.under, r.algo)
	if err != nil {
		return err
	}
	r.dec = dec
	return nil
}

func (r *Reader) Skip(_ int64) (bool, error) {
	return false, dar.NewError("compressor.Skip", dar.KindRange, errors.New("compressor.Reader cannot seek a compressed stream"))
}

func (r *Reader) SkipRelative(delta int64) (bool, error) {
	if delta == 0 {
		return true, nil
	}
	return false, dar.NewError("compressor.SkipRelative", dar.KindRange, errors.New("compressor.Reader cannot seek a compressed stream"))
}

func (r *Reader) SkipToEOF() (bool, error) {
	var discard [4096]byte
	for {
		_, err := r.Read(discard[:])
		if err != nil {
			if errors.Is(err, io.EOF) {
				return true, nil
			}
			return false, err
		}
	}
}

func (r *Reader) Skippable(_ dar.Direction, amount int64) bool { return amount == 0 }

func (r *Reader) ReadAhead(_ int64) {}

func (r *Reader) Truncate(_ int64) error {
	return dar.NewError("compressor.Truncate", dar.KindRange, errors.New("compressor.Reader does not support truncate"))
}

func (r *Reader) GetPosition() (int64, error) { return r.pos, nil }

func (r *Reader) Terminate() error {
	if err := r.SuspendDecompression(); err != nil {
		return err
	}
	return r.under.Terminate()
}

func (r *Reader) Write(_ []byte) (int, error) {
	return 0, dar.NewError("compressor.Write", dar.KindRange, errors.New("compressor.Reader does not support Write"))
}

var _ dar.ByteStream = (*Reader)(nil)
