package catalogue

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dargo-project/dargo/infinint"
)

// Codec controls dump/parse behaviour: the Lax flag and the Etoile
// registry shared across an entire catalogue dump/parse pass, per spec
// section 4.8 and section 3.2's mirage/etoile handling. Lax is only
// consulted for a tag that readTag or decodeLegacyTag has accepted;
// both refuse a kind letter they do not know, so an unknown tag is an
// error whether Lax is set or not.
type Codec struct {
	Lax      bool
	Registry *EtoileRegistry

	// LegacyTags makes Parse read the historical single-byte tag form
	// instead of the modern two-byte one. A caller holding an archive
	// header sets this from h.Version == header.LegacyVersion before
	// parsing; Dump never consults it, since this package always
	// writes the modern form.
	LegacyTags bool
}

// NewCodec returns a strict codec with a fresh etoile registry.
func NewCodec() *Codec {
	return &Codec{Registry: NewEtoileRegistry()}
}

func writeInfinint(w io.Writer, n infinint.Int) error {
	_, err := n.WriteTo(w)
	return err
}

func readInfinint(r io.Reader) (infinint.Int, error) {
	n, _, err := infinint.ReadFrom(r)
	return n, err
}

func writeString(w io.Writer, s string) error {
	if err := writeInfinint(w, infinint.FromUint64(uint64(len(s)))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readString(r io.Reader) (string, error) {
	n, err := readInfinint(r)
	if err != nil {
		return "", err
	}
	if !n.Fits64() {
		return "", fmt.Errorf("catalogue: name length out of range")
	}
	buf := make([]byte, n.Uint64())
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}

func writeU16(w io.Writer, v uint16) error {
	var b [2]byte
	binary.BigEndian.PutUint16(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU16(r io.Reader) (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func writeU32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func readU32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}

func writeBool(w io.Writer, v bool) error {
	var b byte
	if v {
		b = 1
	}
	_, err := w.Write([]byte{b})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return false, err
	}
	return b[0] != 0, nil
}

func writeCommon(w io.Writer, c InodeCommon) error {
	if err := writeInfinint(w, c.UID); err != nil {
		return err
	}
	if err := writeInfinint(w, c.GID); err != nil {
		return err
	}
	if err := writeU16(w, c.Perm); err != nil {
		return err
	}
	if err := c.Atime.Dump(w); err != nil {
		return err
	}
	if err := c.Mtime.Dump(w); err != nil {
		return err
	}
	return c.Ctime.Dump(w)
}

func readCommon(r io.Reader) (InodeCommon, error) {
	var c InodeCommon
	var err error
	if c.UID, err = readInfinint(r); err != nil {
		return c, err
	}
	if c.GID, err = readInfinint(r); err != nil {
		return c, err
	}
	if c.Perm, err = readU16(r); err != nil {
		return c, err
	}
	if c.Atime, err = ReadDateTime(r); err != nil {
		return c, err
	}
	if c.Mtime, err = ReadDateTime(r); err != nil {
		return c, err
	}
	if c.Ctime, err = ReadDateTime(r); err != nil {
		return c, err
	}
	return c, nil
}

func writeEA(w io.Writer, ea *EAInfo) error {
	status := EANone
	if ea != nil {
		status = ea.Status
	}
	if _, err := w.Write([]byte{byte(status)}); err != nil {
		return err
	}
	if status != EAFull {
		return nil
	}
	if err := writeInfinint(w, ea.Size); err != nil {
		return err
	}
	if err := writeInfinint(w, ea.Offset); err != nil {
		return err
	}
	return writeU32(w, ea.CRC)
}

func readEA(r io.Reader) (*EAInfo, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	status := EAStatus(b[0])
	if status == EANone {
		return nil, nil
	}
	ea := &EAInfo{Status: status}
	if status != EAFull {
		return ea, nil
	}
	var err error
	if ea.Size, err = readInfinint(r); err != nil {
		return nil, err
	}
	if ea.Offset, err = readInfinint(r); err != nil {
		return nil, err
	}
	if ea.CRC, err = readU32(r); err != nil {
		return nil, err
	}
	return ea, nil
}

func writeFSA(w io.Writer, fsa *FSAInfo) error {
	status := FSANone
	if fsa != nil {
		status = fsa.Status
	}
	if _, err := w.Write([]byte{byte(status)}); err != nil {
		return err
	}
	if status == FSANone {
		return nil
	}
	families := fsa.Families
	if families == nil {
		families = NewFamilyBitmap(0)
	}
	fam := families.Bytes()
	if err := writeInfinint(w, infinint.FromUint64(uint64(len(fam)))); err != nil {
		return err
	}
	if _, err := w.Write(fam); err != nil {
		return err
	}
	if status != FSAFull {
		return nil
	}
	if err := writeInfinint(w, fsa.Size); err != nil {
		return err
	}
	if err := writeInfinint(w, fsa.Offset); err != nil {
		return err
	}
	return writeU32(w, fsa.CRC)
}

func readFSA(r io.Reader) (*FSAInfo, error) {
	var b [1]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return nil, err
	}
	status := FSAStatus(b[0])
	if status == FSANone {
		return nil, nil
	}
	fsa := &FSAInfo{Status: status}
	famLen, err := readInfinint(r)
	if err != nil {
		return nil, err
	}
	fam := make([]byte, famLen.Uint64())
	if _, err := io.ReadFull(r, fam); err != nil {
		return nil, err
	}
	fsa.Families = FamilyBitmapFromBytes(fam)
	if status != FSAFull {
		return fsa, nil
	}
	if fsa.Size, err = readInfinint(r); err != nil {
		return nil, err
	}
	if fsa.Offset, err = readInfinint(r); err != nil {
		return nil, err
	}
	if fsa.CRC, err = readU32(r); err != nil {
		return nil, err
	}
	return fsa, nil
}

// Dump writes e, per spec section 4.8's sequence: tag, name (for named
// entries), common inode fields, per-kind fields, then EA and FSA
// blocks.
func (c *Codec) Dump(w io.Writer, e Entry) error {
	switch v := e.(type) {
	case *File:
		if err := (tag{kind: KindFile, status: v.Status}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeCommon(w, v.InodeCommon); err != nil {
			return err
		}
		if v.Status != StatusSaved && v.Status != StatusDelta {
			return c.writeAttrs(w, v.InodeCommon)
		}
		if err := writeInfinint(w, v.Size); err != nil {
			return err
		}
		if err := writeInfinint(w, v.StoredSize); err != nil {
			return err
		}
		if err := writeBool(w, v.Sparse); err != nil {
			return err
		}
		if err := writeInfinint(w, v.Offset); err != nil {
			return err
		}
		if err := writeU32(w, v.CRC); err != nil {
			return err
		}
		hasDelta := v.Delta != nil
		if err := writeBool(w, hasDelta); err != nil {
			return err
		}
		if hasDelta {
			if err := writeInfinint(w, v.Delta.Offset); err != nil {
				return err
			}
			if err := writeInfinint(w, v.Delta.Size); err != nil {
				return err
			}
			if err := writeU32(w, v.Delta.CRC); err != nil {
				return err
			}
		}
		return c.writeAttrs(w, v.InodeCommon)

	case *Symlink:
		if err := (tag{kind: KindSymlink, status: v.Status}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeCommon(w, v.InodeCommon); err != nil {
			return err
		}
		if v.Status == StatusSaved {
			if err := writeString(w, v.Target); err != nil {
				return err
			}
		}
		return c.writeAttrs(w, v.InodeCommon)

	case *Device:
		k := KindCharDevice
		if v.Block {
			k = KindBlockDevice
		}
		if err := (tag{kind: k, status: v.Status}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeCommon(w, v.InodeCommon); err != nil {
			return err
		}
		if v.Status == StatusSaved {
			if err := writeU32(w, v.Major); err != nil {
				return err
			}
			if err := writeU32(w, v.Minor); err != nil {
				return err
			}
		}
		return c.writeAttrs(w, v.InodeCommon)

	case *Special:
		if err := (tag{kind: v.K, status: v.Status}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeCommon(w, v.InodeCommon); err != nil {
			return err
		}
		return c.writeAttrs(w, v.InodeCommon)

	case *Directory:
		if err := (tag{kind: KindDirectory, status: v.Status}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeCommon(w, v.InodeCommon); err != nil {
			return err
		}
		for _, child := range v.Children {
			if err := c.Dump(w, child); err != nil {
				return err
			}
		}
		if err := (tag{kind: kindEndOfDir}).writeTo(w); err != nil {
			return err
		}
		return c.writeAttrs(w, v.InodeCommon)

	case *Destroyed:
		if err := (tag{kind: KindDestroyed, status: StatusSaved}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if _, err := w.Write([]byte{byte(v.OriginalKind)}); err != nil {
			return err
		}
		return v.At.Dump(w)

	case *Mirage:
		if err := (tag{kind: KindMirage, status: StatusSaved}).writeTo(w); err != nil {
			return err
		}
		if err := writeString(w, v.name); err != nil {
			return err
		}
		if err := writeInfinint(w, infinint.FromUint64(uint64(v.LinkID))); err != nil {
			return err
		}
		if v.Star.written {
			return writeBool(w, false)
		}
		if err := writeBool(w, true); err != nil {
			return err
		}
		v.Star.written = true
		return c.Dump(w, v.Star.Inode)

	default:
		return bug("I-CAT-DUMP-KIND", fmt.Errorf("unhandled entry type %T reached dump", e))
	}
}

// writeAttrs writes the EA then FSA blocks shared by every inode, per
// spec section 4.8 steps 5-6.
func (c *Codec) writeAttrs(w io.Writer, common InodeCommon) error {
	if err := writeEA(w, common.EA); err != nil {
		return err
	}
	return writeFSA(w, common.FSA)
}

// Parse reads one entry, dispatching on the tag byte, per spec section
// 4.8. It returns (nil, nil) on an end-of-directory marker.
func (c *Codec) Parse(r io.Reader) (Entry, error) {
	t, err := c.readTagFor(r)
	if err != nil {
		return nil, err
	}
	if t.kind == kindEndOfDir {
		return nil, nil
	}

	switch t.kind {
	case KindFile:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		common, err := readCommon(r)
		if err != nil {
			return nil, err
		}
		f := &File{InodeCommon: common, Status: t.status}
		f.name = name
		if t.status == StatusSaved || t.status == StatusDelta {
			if f.Size, err = readInfinint(r); err != nil {
				return nil, err
			}
			if f.StoredSize, err = readInfinint(r); err != nil {
				return nil, err
			}
			if f.Sparse, err = readBool(r); err != nil {
				return nil, err
			}
			if f.Offset, err = readInfinint(r); err != nil {
				return nil, err
			}
			if f.CRC, err = readU32(r); err != nil {
				return nil, err
			}
			hasDelta, err := readBool(r)
			if err != nil {
				return nil, err
			}
			if hasDelta {
				f.Delta = &DeltaSig{}
				if f.Delta.Offset, err = readInfinint(r); err != nil {
					return nil, err
				}
				if f.Delta.Size, err = readInfinint(r); err != nil {
					return nil, err
				}
				if f.Delta.CRC, err = readU32(r); err != nil {
					return nil, err
				}
			}
		}
		if err := c.readAttrs(r, &f.InodeCommon); err != nil {
			return nil, err
		}
		return f, nil

	case KindSymlink:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		common, err := readCommon(r)
		if err != nil {
			return nil, err
		}
		s := &Symlink{InodeCommon: common, Status: t.status}
		s.name = name
		if t.status == StatusSaved {
			if s.Target, err = readString(r); err != nil {
				return nil, err
			}
		}
		if err := c.readAttrs(r, &s.InodeCommon); err != nil {
			return nil, err
		}
		return s, nil

	case KindCharDevice, KindBlockDevice:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		common, err := readCommon(r)
		if err != nil {
			return nil, err
		}
		d := &Device{InodeCommon: common, Status: t.status, Block: t.kind == KindBlockDevice}
		d.name = name
		if t.status == StatusSaved {
			if d.Major, err = readU32(r); err != nil {
				return nil, err
			}
			if d.Minor, err = readU32(r); err != nil {
				return nil, err
			}
		}
		if err := c.readAttrs(r, &d.InodeCommon); err != nil {
			return nil, err
		}
		return d, nil

	case KindFifo, KindSocket, KindDoor:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		common, err := readCommon(r)
		if err != nil {
			return nil, err
		}
		sp := &Special{InodeCommon: common, Status: t.status, K: t.kind}
		sp.name = name
		if err := c.readAttrs(r, &sp.InodeCommon); err != nil {
			return nil, err
		}
		return sp, nil

	case KindDirectory:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		common, err := readCommon(r)
		if err != nil {
			return nil, err
		}
		d := &Directory{InodeCommon: common, Status: t.status}
		d.name = name
		for {
			child, err := c.Parse(r)
			if err != nil {
				return nil, err
			}
			if child == nil {
				break
			}
			d.AddChild(child)
		}
		if err := c.readAttrs(r, &d.InodeCommon); err != nil {
			return nil, err
		}
		return d, nil

	case KindDestroyed:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		var kb [1]byte
		if _, err := io.ReadFull(r, kb[:]); err != nil {
			return nil, err
		}
		at, err := ReadDateTime(r)
		if err != nil {
			return nil, err
		}
		return &Destroyed{name: name, OriginalKind: Kind(kb[0]), At: at}, nil

	case KindMirage:
		name, err := readString(r)
		if err != nil {
			return nil, err
		}
		linkIDn, err := readInfinint(r)
		if err != nil {
			return nil, err
		}
		linkID := int64(linkIDn.Uint64())
		carries, err := readBool(r)
		if err != nil {
			return nil, err
		}
		var star *Etoile
		if carries {
			inode, err := c.Parse(r)
			if err != nil {
				return nil, err
			}
			star = &Etoile{LinkID: linkID, Inode: inode, written: true}
			c.Registry.Register(star)
		} else {
			existing, ok := c.Registry.Lookup(linkID)
			if !ok {
				return nil, fmt.Errorf("catalogue: mirage %q references unknown link id %d", name, linkID)
			}
			star = existing
		}
		return NewMirage(name, star), nil

	default:
		if c.Lax {
			return nil, nil
		}
		return nil, fmt.Errorf("catalogue: parse: unknown tag kind %q", byte(t.kind))
	}
}

func (c *Codec) readAttrs(r io.Reader, common *InodeCommon) error {
	ea, err := readEA(r)
	if err != nil {
		return err
	}
	common.EA = ea
	fsa, err := readFSA(r)
	if err != nil {
		return err
	}
	common.FSA = fsa
	return nil
}
