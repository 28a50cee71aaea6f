// Package header implements the archive header, flags bitfield, and
// trailer of spec sections 3.3 and 4.13: the fixed preamble and
// postamble that bracket an archive body between the sar slicing layer
// and the catalogue/payload stream.
package header

import (
	"encoding/binary"
	"fmt"
	"hash"
	"hash/crc32"
	"io"

	"github.com/google/uuid"

	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/tronc"
)

// Magic introduces an archive body, distinct from sar's per-slice
// Magic: this one identifies the logical archive format, not a slice.
var Magic = [4]byte{'D', 'A', 'R', 'C'}

// TrailerMagic terminates the archive body.
var TrailerMagic = [4]byte{'D', 'A', 'R', 'E'}

// Version is the archive body format this package reads and writes.
const Version = 1

// LegacyVersion identifies archives predating the explicit two-byte
// tag encoding: their catalogue tags use the historical single-byte
// case+high-bit form and must be parsed with catalogue's legacy
// decoder. This package never writes LegacyVersion; it is a read-side
// compatibility target only.
const LegacyVersion = 0

// Flag is one bit of the header's variable-length flags field.
type Flag uint

const (
	FlagSequentialRead Flag = 1 << iota
	FlagHasCrypto
	FlagHasSlicing
	FlagHasEA
	FlagHasFSA
)

// Flags is a growable bitfield encoded per spec section 4.13: each
// byte's high bit (0x80) signals "another byte follows" and its low 7
// bits carry payload, least significant group first; the low bit is
// payload, not a continuation flag. New flags can be appended without
// breaking readers built against an older, narrower set.
type Flags uint64

func (f Flags) Has(flag Flag) bool { return uint64(f)&uint64(flag) != 0 }

func (f *Flags) Set(flag Flag) { *f |= Flags(flag) }

// WriteTo encodes f as a chain of continuation bytes.
func (f Flags) WriteTo(w io.Writer) (int64, error) {
	v := uint64(f)
	var out []byte
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			b |= 0x80
			out = append(out, b)
			continue
		}
		out = append(out, b)
		break
	}
	n, err := w.Write(out)
	return int64(n), err
}

// ReadFlags decodes a Flags value previously written by WriteTo. A
// reader that does not recognise a high bit simply ignores it, per
// spec section 4.13's forward-compatibility guarantee.
func ReadFlags(r io.Reader) (Flags, int64, error) {
	var v uint64
	var shift uint
	var n int64
	for {
		var b [1]byte
		if _, err := io.ReadFull(r, b[:]); err != nil {
			return 0, n, err
		}
		n++
		v |= uint64(b[0]&0x7f) << shift
		if b[0]&0x80 == 0 {
			break
		}
		shift += 7
	}
	return Flags(v), n, nil
}

// Header is the fixed preamble of an archive body, per spec section
// 3.3.
type Header struct {
	Version         uint16
	CompressionAlgo compressor.Algo
	CipherAlgo      tronc.Algo
	InternalName    uuid.UUID
	DataName        uuid.UUID
	Flags           Flags

	// CipherSalt and CipherIVSeed are only meaningful when CipherAlgo
	// is not AlgoNone: the pbkdf2 salt and the deterministic per-block
	// IV seed, both generated once at creation and stored here so a
	// later Open can rederive the same key and IV schedule from the
	// same passphrase.
	CipherSalt   [tronc.SaltSize]byte
	CipherIVSeed [16]byte
}

// Encode writes h.
func (h Header) Encode(w io.Writer) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return err
	}
	var vb [2]byte
	binary.BigEndian.PutUint16(vb[:], h.Version)
	if _, err := w.Write(vb[:]); err != nil {
		return err
	}
	if _, err := w.Write([]byte{byte(h.CompressionAlgo), byte(h.CipherAlgo)}); err != nil {
		return err
	}
	if _, err := w.Write(h.InternalName[:]); err != nil {
		return err
	}
	if _, err := w.Write(h.DataName[:]); err != nil {
		return err
	}
	if h.CipherAlgo != tronc.AlgoNone {
		if _, err := w.Write(h.CipherSalt[:]); err != nil {
			return err
		}
		if _, err := w.Write(h.CipherIVSeed[:]); err != nil {
			return err
		}
	}
	_, err := h.Flags.WriteTo(w)
	return err
}

// Decode reads a Header previously written by Encode.
func Decode(r io.Reader) (Header, error) {
	var h Header
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return h, err
	}
	if magic != Magic {
		return h, fmt.Errorf("header: bad magic %x", magic)
	}
	var vb [2]byte
	if _, err := io.ReadFull(r, vb[:]); err != nil {
		return h, err
	}
	h.Version = binary.BigEndian.Uint16(vb[:])
	var algos [2]byte
	if _, err := io.ReadFull(r, algos[:]); err != nil {
		return h, err
	}
	h.CompressionAlgo = compressor.Algo(algos[0])
	h.CipherAlgo = tronc.Algo(algos[1])
	if _, err := io.ReadFull(r, h.InternalName[:]); err != nil {
		return h, err
	}
	if _, err := io.ReadFull(r, h.DataName[:]); err != nil {
		return h, err
	}
	if h.CipherAlgo != tronc.AlgoNone {
		if _, err := io.ReadFull(r, h.CipherSalt[:]); err != nil {
			return h, err
		}
		if _, err := io.ReadFull(r, h.CipherIVSeed[:]); err != nil {
			return h, err
		}
	}
	flags, _, err := ReadFlags(r)
	if err != nil {
		return h, err
	}
	h.Flags = flags
	return h, nil
}

// Trailer is the archive body's postamble, per spec section 6.3 item 4:
// the catalogue's absolute offset, a CRC of the body, and a terminator
// magic a reader can scan backward for when slices have been
// concatenated without a separate index.
type Trailer struct {
	CatalogueOffset uint64
	BodyCRC         uint32
}

func (t Trailer) Encode(w io.Writer) error {
	var b [12]byte
	binary.BigEndian.PutUint64(b[0:8], t.CatalogueOffset)
	binary.BigEndian.PutUint32(b[8:12], t.BodyCRC)
	if _, err := w.Write(b[:]); err != nil {
		return err
	}
	_, err := w.Write(TrailerMagic[:])
	return err
}

func DecodeTrailer(r io.Reader) (Trailer, error) {
	var t Trailer
	var b [12]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return t, err
	}
	t.CatalogueOffset = binary.BigEndian.Uint64(b[0:8])
	t.BodyCRC = binary.BigEndian.Uint32(b[8:12])
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return t, err
	}
	if magic != TrailerMagic {
		return t, fmt.Errorf("header: bad trailer magic %x", magic)
	}
	return t, nil
}

// NewCRC32 returns a fresh IEEE CRC accumulator, used while writing
// the body so BodyCRC can be filled into the trailer once the
// catalogue dump has been written.
func NewCRC32() hash.Hash32 { return crc32.NewIEEE() }
