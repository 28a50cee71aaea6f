package sar

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/dargo-project/dargo"
	"github.com/dargo-project/dargo/infinint"
	"github.com/dargo-project/dargo/operator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "sar")

// ErrSliceExists is returned when DontErase is set and a slice file
// already exists.
var ErrSliceExists = errors.New("sar: slice file already exists")

// Writer implements dar.ByteStream, splitting everything written to
// it across numbered slice files per spec section 4.3.
type Writer struct {
	nm   Naming
	op   operator.Interaction
	opts WriteOptions
	name uuid.UUID

	f        *os.File
	index    int
	capacity int64 // content bytes this slice can still hold in total
	written  int64 // content bytes written to the current slice so far
	pos      int64 // logical position across the whole archive
}

// NewWriter begins writing a new slice set. name is the archive's
// internal name, repeated in every slice header.
func NewWriter(nm Naming, name uuid.UUID, opts WriteOptions, op operator.Interaction) (*Writer, error) {
	if op == nil {
		op = operator.Silent{}
	}
	w := &Writer{nm: nm, op: op, opts: opts, name: name, index: 0}
	if err := w.openNextSlice(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Writer) targetSize() int64 {
	if w.index == 1 {
		return w.opts.FirstSliceSize
	}
	return w.opts.sliceSize()
}

func (w *Writer) openNextSlice() error {
	if w.f != nil {
		if err := w.closeCurrent(NonTerminal); err != nil {
			return err
		}
		if w.opts.PauseBeforeNext {
			if !w.op.Pause(fmt.Sprintf("please make slice %d available, then confirm", w.index+1)) {
				return dar.NewError("sar.openNextSlice", dar.KindUserAbort, nil)
			}
		}
	}
	w.index++
	path := w.nm.SlicePath(w.index)

	if _, err := os.Stat(path); err == nil {
		switch {
		case w.opts.DontErase:
			return dar.NewError("sar.openNextSlice", dar.KindRange, fmt.Errorf("%w: %s", ErrSliceExists, path))
		case w.opts.WarnOverwrite:
			if !w.op.Pause(fmt.Sprintf("slice %s already exists, overwrite it?", path)) {
				return dar.NewError("sar.openNextSlice", dar.KindUserAbort, nil)
			}
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return dar.NewError("sar.openNextSlice", dar.KindRange, err)
	}
	w.f = f

	hdr := Header{InternalName: w.name, Flag: NonTerminal}
	if w.index == 1 && w.opts.SliceSize != 0 && w.opts.SliceSize != w.opts.FirstSliceSize {
		sz := infinint.FromUint64(uint64(w.opts.sliceSize()))
		hdr.SliceSize = &sz
	}
	enc, err := hdr.Encode()
	if err != nil {
		return dar.NewError("sar.openNextSlice", dar.KindRange, err)
	}
	if !w.opts.trivial() && int64(len(enc)) >= w.targetSize() {
		return dar.Bug("sar.openNextSlice", "slice-size-ge-header", fmt.Errorf("slice size %d too small for header of %d bytes", w.targetSize(), len(enc)))
	}
	if _, err := f.Write(enc); err != nil {
		return dar.NewError("sar.openNextSlice", dar.KindRange, err)
	}

	if w.opts.trivial() {
		w.capacity = -1 // unbounded
	} else {
		w.capacity = w.targetSize() - int64(len(enc))
	}
	w.written = 0
	log.WithFields(logrus.Fields{"slice": w.index, "path": path}).Debug("opened slice for writing")
	return nil
}

// closeCurrent rewrites the flag of the currently open slice (it is
// only ever Terminal when Terminate is called) and closes the file.
func (w *Writer) closeCurrent(flag Flag) error {
	if w.f == nil {
		return nil
	}
	if flag == Terminal {
		if _, err := w.f.WriteAt([]byte{byte(Terminal)}, int64(len(Magic)+16)); err != nil {
			return dar.NewError("sar.closeCurrent", dar.KindRange, err)
		}
	}
	err := w.f.Close()
	w.f = nil
	if err != nil {
		return dar.NewError("sar.closeCurrent", dar.KindRange, err)
	}
	return nil
}

func (w *Writer) Write(buf []byte) (int, error) {
	total := 0
	for len(buf) > 0 {
		if w.capacity >= 0 && w.written >= w.capacity {
			if err := w.openNextSlice(); err != nil {
				return total, err
			}
		}
		chunk := buf
		if w.capacity >= 0 {
			remaining := w.capacity - w.written
			if int64(len(chunk)) > remaining {
				chunk = chunk[:remaining]
			}
		}
		n, err := w.writeWithRetry(chunk)
		total += n
		w.written += int64(n)
		w.pos += int64(n)
		buf = buf[n:]
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// writeWithRetry implements spec section 4.3's failure semantics:
// write errors surface immediately except ENOSPC, which is retried
// with progressively smaller chunks before prompting the operator.
func (w *Writer) writeWithRetry(b []byte) (int, error) {
	for {
		n, err := w.f.Write(b)
		if err == nil {
			return n, nil
		}
		if !errors.Is(err, syscall.ENOSPC) {
			return n, dar.NewError("sar.Write", dar.KindRange, err)
		}
		b = b[n:]
		if len(b) > 1 {
			b = b[:len(b)/2]
			continue
		}
		if !w.op.Pause("disk full writing slice, free space or change media then confirm") {
			return n, dar.NewError("sar.Write", dar.KindUserAbort, err)
		}
	}
}

func (w *Writer) Skip(absOffset int64) (bool, error) {
	return false, dar.NewError("sar.Skip", dar.KindRange, errors.New("sar.Writer is append-only"))
}

func (w *Writer) SkipRelative(delta int64) (bool, error) {
	if delta == 0 {
		return true, nil
	}
	return false, dar.NewError("sar.SkipRelative", dar.KindRange, errors.New("sar.Writer is append-only"))
}

func (w *Writer) SkipToEOF() (bool, error) { return true, nil }

func (w *Writer) Skippable(_ dar.Direction, amount int64) bool { return amount == 0 }

func (w *Writer) ReadAhead(_ int64) {}

func (w *Writer) Truncate(_ int64) error {
	return dar.NewError("sar.Truncate", dar.KindRange, errors.New("sar.Writer does not support truncate"))
}

func (w *Writer) GetPosition() (int64, error) { return w.pos, nil }

// Terminate marks the currently open slice Terminal and closes it.
func (w *Writer) Terminate() error {
	return w.closeCurrent(Terminal)
}

func (w *Writer) Read(_ []byte) (int, error) {
	return 0, dar.NewError("sar.Read", dar.KindRange, errors.New("sar.Writer does not support Read"))
}

var _ dar.ByteStream = (*Writer)(nil)
