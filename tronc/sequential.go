package tronc

import (
	"crypto/aes"
	"errors"
	"fmt"
	"io"

	"github.com/dargo-project/dargo"
)

// Config parameterizes a Tronc stream, per spec section 4.5.
type Config struct {
	Key    []byte         // AES-256 key, e.g. from DeriveKey.
	IVSeed [aes.BlockSize]byte
	// ClearBlockSize is the fixed partition size of the clear stream.
	// Must be a multiple of aes.BlockSize.
	ClearBlockSize int64
	// InitialShift is the count of non-encrypted bytes preceding the
	// ciphered area (e.g. an unencrypted archive header).
	InitialShift int64
	// TrailingClear locates the end of the ciphered area. Defaults to
	// NoTrailingClear if nil.
	TrailingClear TrailingClearFunc
}

// Tronc implements dar.ByteStream, presenting random access by
// clear-text offset over an AES-CBC-encrypted underlying stream, per
// spec section 4.5.
type Tronc struct {
	under dar.ByteStream
	bc    *blockCipher
	cfg   Config

	mode dar.Mode

	curBlock    int64
	clear       []byte // decoded content of curBlock, valid curLen bytes
	curLen      int
	posInBlock  int64
	haveBlock   bool
	clearEnd    int64 // logical end of the clear stream once known, else -1
	ciphEnd     int64 // byte offset in under where ciphertext ends, else -1

	// write state
	pending    []byte
	writeBlock int64
	pos        int64
}

// NewReader opens under for random-access decrypted reading.
func NewReader(under dar.ByteStream, cfg Config) (*Tronc, error) {
	t, err := newTronc(under, cfg)
	if err != nil {
		return nil, err
	}
	t.mode = dar.ModeRead
	t.clearEnd = -1
	t.ciphEnd = -1
	return t, nil
}

// NewWriter opens under for sequential encrypted writing.
func NewWriter(under dar.ByteStream, cfg Config) (*Tronc, error) {
	t, err := newTronc(under, cfg)
	if err != nil {
		return nil, err
	}
	t.mode = dar.ModeWrite
	return t, nil
}

func newTronc(under dar.ByteStream, cfg Config) (*Tronc, error) {
	if cfg.ClearBlockSize <= 0 || cfg.ClearBlockSize%int64(aes.BlockSize) != 0 {
		return nil, dar.Bug("tronc.newTronc", "clear-block-size-aligned", fmt.Errorf("clear block size %d is not a positive multiple of %d", cfg.ClearBlockSize, aes.BlockSize))
	}
	bc, err := newBlockCipher(cfg.Key, cfg.IVSeed)
	if err != nil {
		return nil, dar.NewError("tronc.newTronc", dar.KindRange, err)
	}
	if cfg.TrailingClear == nil {
		cfg.TrailingClear = NoTrailingClear
	}
	return &Tronc{under: under, bc: bc, cfg: cfg}, nil
}

func (t *Tronc) blockOffset(blockIndex int64) int64 {
	return t.cfg.InitialShift + blockIndex*EncryptedBlockSizeFor(t.cfg.ClearBlockSize)
}

// loadBlock decrypts block index n into t.clear, handling the last
// block (short read) and the trailing-clear-data fallback of spec
// section 4.5.
func (t *Tronc) loadBlock(n int64) error {
	if t.haveBlock && t.curBlock == n {
		return nil
	}
	encSize := EncryptedBlockSizeFor(t.cfg.ClearBlockSize)
	if _, err := t.under.Skip(t.blockOffset(n)); err != nil {
		return dar.NewError("tronc.loadBlock", dar.KindRange, err)
	}
	enc := make([]byte, encSize)
	got, err := io.ReadFull(dar.ReadWriteSeekStream{S: t.under}, enc)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return dar.NewError("tronc.loadBlock", dar.KindRange, err)
	}
	if got == 0 {
		t.clearEnd = n * t.cfg.ClearBlockSize
		return io.EOF
	}
	clear, derr := t.bc.decryptBlock(n, enc[:got])
	if derr != nil {
		clearEnd, cerr := t.cfg.TrailingClear(t.under)
		if cerr != nil {
			return dar.NewError("tronc.loadBlock", dar.KindData, cerr)
		}
		if clearEnd < 0 {
			return dar.NewError("tronc.loadBlock", dar.KindData, fmt.Errorf("%w at block %d", derr, n))
		}
		// The failing block lies (at least partly) in the trailing
		// clear-data region: the stream simply ends at the last whole
		// block before it.
		t.clearEnd = n * t.cfg.ClearBlockSize
		t.ciphEnd = clearEnd
		return io.EOF
	}
	t.clear = clear
	t.curLen = len(clear)
	t.curBlock = n
	t.haveBlock = true
	if int64(len(clear)) < t.cfg.ClearBlockSize {
		t.clearEnd = n*t.cfg.ClearBlockSize + int64(len(clear))
	}
	return nil
}

func (t *Tronc) Read(buf []byte) (int, error) {
	if t.mode != dar.ModeRead {
		return 0, dar.NewError("tronc.Read", dar.KindRange, errors.New("stream opened for writing"))
	}
	total := 0
	for total < len(buf) {
		block := t.pos / t.cfg.ClearBlockSize
		inBlock := t.pos % t.cfg.ClearBlockSize
		if err := t.loadBlock(block); err != nil {
			if total > 0 {
				return total, nil
			}
			if err == io.EOF {
				return 0, io.EOF
			}
			return 0, err
		}
		if inBlock >= int64(t.curLen) {
			return total, io.EOF
		}
		n := copy(buf[total:], t.clear[inBlock:t.curLen])
		total += n
		t.pos += int64(n)
	}
	return total, nil
}

func (t *Tronc) Write(buf []byte) (int, error) {
	if t.mode != dar.ModeWrite {
		return 0, dar.NewError("tronc.Write", dar.KindRange, errors.New("stream opened for reading"))
	}
	total := 0
	for len(buf) > 0 {
		room := int(t.cfg.ClearBlockSize) - len(t.pending)
		n := room
		if n > len(buf) {
			n = len(buf)
		}
		t.pending = append(t.pending, buf[:n]...)
		buf = buf[n:]
		total += n
		t.pos += int64(n)
		if int64(len(t.pending)) == t.cfg.ClearBlockSize {
			if err := t.flushBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (t *Tronc) flushBlock() error {
	if len(t.pending) == 0 {
		return nil
	}
	enc := t.bc.encryptBlock(t.writeBlock, t.pending)
	if _, err := t.under.Write(enc); err != nil {
		return dar.NewError("tronc.flushBlock", dar.KindRange, err)
	}
	t.writeBlock++
	t.pending = t.pending[:0]
	return nil
}

func (t *Tronc) Skip(absOffset int64) (bool, error) {
	if t.mode != dar.ModeRead {
		return false, dar.NewError("tronc.Skip", dar.KindRange, errors.New("tronc.Tronc is append-only in write mode"))
	}
	if absOffset < 0 {
		return false, nil
	}
	t.pos = absOffset
	return true, nil
}

func (t *Tronc) SkipRelative(delta int64) (bool, error) { return t.Skip(t.pos + delta) }

func (t *Tronc) SkipToEOF() (bool, error) {
	if t.mode != dar.ModeRead {
		return true, nil
	}
	n := int64(0)
	for {
		if err := t.loadBlock(n); err != nil {
			if err == io.EOF {
				break
			}
			return false, err
		}
		if int64(t.curLen) < t.cfg.ClearBlockSize {
			break
		}
		n++
	}
	return t.Skip(t.clearEnd)
}

func (t *Tronc) Skippable(_ dar.Direction, _ int64) bool { return t.mode == dar.ModeRead }

func (t *Tronc) ReadAhead(_ int64) {}

func (t *Tronc) Truncate(_ int64) error {
	return dar.NewError("tronc.Truncate", dar.KindRange, errors.New("tronc.Tronc does not support truncate"))
}

func (t *Tronc) GetPosition() (int64, error) { return t.pos, nil }

func (t *Tronc) Terminate() error {
	if t.mode == dar.ModeWrite {
		if err := t.flushBlock(); err != nil {
			return err
		}
	}
	return t.under.Terminate()
}

var _ dar.ByteStream = (*Tronc)(nil)
