package sar

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/dargo-project/dargo"
	"github.com/dargo-project/dargo/infinint"
	"github.com/dargo-project/dargo/operator"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Reader implements dar.ByteStream over a slice set, opening the next
// slice transparently at a boundary and prompting the operator when a
// slice is missing or corrupt, per spec section 4.3.
type Reader struct {
	nm Naming
	op operator.Interaction

	name      uuid.UUID
	haveName  bool
	firstHeaderLen int64
	firstContent   int64
	otherContent   int64

	f        *os.File
	index    int
	flag     Flag
	headerLen int64 // length of the header just read by openSlice
	contentN int64  // bytes of content in the current slice
	offset   int64  // read offset within the current slice's content
	pos      int64  // logical position across the whole archive
}

// OpenReader opens slice 1 and validates the header, caching slice
// sizing for later Skip calls per spec section 4.3.
func OpenReader(nm Naming, op operator.Interaction) (*Reader, error) {
	if op == nil {
		op = operator.Silent{}
	}
	r := &Reader{nm: nm, op: op}
	var sliceSizeExt *infinint.Int
	if err := r.openSlice(1, &sliceSizeExt); err != nil {
		return nil, err
	}
	r.haveName = true
	r.firstHeaderLen = r.headerLen
	fi, err := r.f.Stat()
	if err != nil {
		return nil, dar.NewError("sar.OpenReader", dar.KindRange, err)
	}
	r.firstContent = fi.Size() - r.firstHeaderLen
	if sliceSizeExt != nil {
		if !sliceSizeExt.Fits64() {
			return nil, dar.NewError("sar.OpenReader", dar.KindLimit, errors.New("slice size extension overflows a machine integer"))
		}
		r.otherContent = int64(sliceSizeExt.Uint64()) - int64(HeaderSize)
	} else {
		r.otherContent = r.firstContent
	}
	r.contentN = r.firstContent
	return r, nil
}

// openSlice opens slice index n for reading, prompting the operator in
// a loop until a valid slice is available or the operator aborts. On
// success it fills r.index/r.flag/r.headerLen/r.offset and, if
// sliceSize is non-nil, stores slice 1's optional size extension there.
func (r *Reader) openSlice(n int, sliceSize **infinint.Int) error {
	if r.f != nil {
		_ = r.f.Close()
		r.f = nil
	}
	path := r.nm.SlicePath(n)
	for {
		f, err := os.Open(path)
		if err == nil {
			hdr, herr := DecodeHeader(f)
			if herr == nil && (!r.haveName || hdr.InternalName == r.name) {
				r.f = f
				r.index = n
				r.flag = hdr.Flag
				r.name = hdr.InternalName
				pos, _ := f.Seek(0, io.SeekCurrent)
				r.headerLen = pos
				if sliceSize != nil {
					*sliceSize = hdr.SliceSize
				}
				r.offset = 0
				log.WithFields(logrus.Fields{"slice": n, "flag": string(hdr.Flag)}).Debug("opened slice for reading")
				return nil
			}
			_ = f.Close()
			if herr != nil {
				log.WithField("slice", n).WithError(herr).Warn("slice failed to decode")
			} else {
				log.WithField("slice", n).Warn("slice internal name mismatch")
			}
		}
		if !r.op.Pause(fmt.Sprintf("slice %d (%s) is missing or corrupt, please supply it then confirm", n, path)) {
			return dar.NewError("sar.openSlice", dar.KindUserAbort, err)
		}
	}
}

func (r *Reader) Read(buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		if r.offset >= r.contentN {
			if r.flag == Terminal {
				if total == 0 {
					return 0, io.EOF
				}
				return total, nil
			}
			if err := r.rollToNextSlice(); err != nil {
				if total > 0 {
					return total, nil
				}
				return 0, err
			}
		}
		remaining := r.contentN - r.offset
		want := int64(len(buf) - total)
		if want > remaining {
			want = remaining
		}
		n, err := r.f.Read(buf[total : int64(total)+want])
		r.offset += int64(n)
		r.pos += int64(n)
		total += n
		if err != nil && !errors.Is(err, io.EOF) {
			return total, dar.NewError("sar.Read", dar.KindData, err)
		}
		if n == 0 && err != nil {
			if r.flag == Terminal {
				// The terminal slice ends where its file ends, which may
				// be short of a full slice: that is the end of the archive.
				r.contentN = r.offset
				continue
			}
			return total, dar.NewError("sar.Read", dar.KindData, fmt.Errorf("slice %d shorter than its recorded content size", r.index))
		}
	}
	return total, nil
}

func (r *Reader) rollToNextSlice() error {
	if err := r.openSlice(r.index+1, nil); err != nil {
		return err
	}
	r.contentN = r.otherContent
	return nil
}

func (r *Reader) Skip(absOffset int64) (bool, error) {
	if absOffset < 0 {
		return false, nil
	}
	var targetIndex int
	var targetOffset int64
	if absOffset < r.firstContent {
		targetIndex = 1
		targetOffset = absOffset
	} else {
		rem := absOffset - r.firstContent
		targetIndex = 2 + int(rem/r.otherContent)
		targetOffset = rem % r.otherContent
	}
	if targetIndex != r.index {
		if err := r.openSlice(targetIndex, nil); err != nil {
			return false, err
		}
		if targetIndex == 1 {
			r.contentN = r.firstContent
		} else {
			r.contentN = r.otherContent
		}
	}
	headerLen := int64(HeaderSize)
	if targetIndex == 1 {
		headerLen = r.firstHeaderLen
	}
	if _, err := r.f.Seek(headerLen+targetOffset, io.SeekStart); err != nil {
		return false, dar.NewError("sar.Skip", dar.KindRange, err)
	}
	r.offset = targetOffset
	r.pos = absOffset
	return true, nil
}

func (r *Reader) SkipRelative(delta int64) (bool, error) { return r.Skip(r.pos + delta) }

// SkipToEOF opens the terminal slice, scanning forward if necessary,
// per spec section 4.3.
func (r *Reader) SkipToEOF() (bool, error) {
	n, err := r.nm.HighestExisting()
	if err != nil || n == 0 {
		n = r.index
	}
	if err := r.openSlice(n, nil); err != nil {
		return false, err
	}
	for r.flag != Terminal {
		if err := r.openSlice(r.index+1, nil); err != nil {
			return false, err
		}
	}
	fi, err := r.f.Stat()
	if err != nil {
		return false, dar.NewError("sar.SkipToEOF", dar.KindRange, err)
	}
	headerLen := int64(HeaderSize)
	if r.index == 1 {
		headerLen = r.firstHeaderLen
	}
	r.contentN = fi.Size() - headerLen
	if _, err := r.f.Seek(0, io.SeekEnd); err != nil {
		return false, dar.NewError("sar.SkipToEOF", dar.KindRange, err)
	}
	r.offset = r.contentN
	if r.index == 1 {
		r.pos = r.contentN
	} else {
		r.pos = r.firstContent + int64(r.index-2)*r.otherContent + r.contentN
	}
	return true, nil
}

func (r *Reader) Skippable(_ dar.Direction, _ int64) bool { return true }

func (r *Reader) ReadAhead(_ int64) {}

func (r *Reader) Truncate(_ int64) error {
	return dar.NewError("sar.Truncate", dar.KindRange, errors.New("sar.Reader does not support truncate"))
}

func (r *Reader) GetPosition() (int64, error) { return r.pos, nil }

func (r *Reader) Terminate() error {
	if r.f == nil {
		return nil
	}
	err := r.f.Close()
	r.f = nil
	if err != nil {
		return dar.NewError("sar.Terminate", dar.KindRange, err)
	}
	return nil
}

func (r *Reader) Write(_ []byte) (int, error) {
	return 0, dar.NewError("sar.Write", dar.KindRange, errors.New("sar.Reader does not support Write"))
}

var _ dar.ByteStream = (*Reader)(nil)
