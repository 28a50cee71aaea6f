package catalogue

import (
	"github.com/dargo-project/dargo/infinint"
)

// Entry is any node in a catalogue tree. Concrete types are File,
// Symlink, Directory, Special (fifo/socket/door), Device, Destroyed
// and Mirage, per spec section 3.2.
type Entry interface {
	Name() string
}

// EntryKind reports the base kind letter of e, dispatching on its
// concrete type, for callers (the codec, the walk cursors) that need
// to branch without a type switch of their own.
func EntryKind(e Entry) Kind {
	switch v := e.(type) {
	case *File:
		return KindFile
	case *Symlink:
		return KindSymlink
	case *Directory:
		return KindDirectory
	case *Device:
		if v.Block {
			return KindBlockDevice
		}
		return KindCharDevice
	case *Special:
		return v.K
	case *Destroyed:
		return KindDestroyed
	case *Mirage:
		return KindMirage
	case *Ignored:
		return KindIgnored
	default:
		return 0
	}
}

// Ignored is the creation filter's decision that a path should be
// dropped entirely (spec section 3.2's plain "ignored", as opposed to
// "ignored_dir"). It exists only long enough for the add cursor to see
// it and omit it from the parent's child list: Catalogue.Add never
// lets one reach the tree, and the codec never dumps one — Dump
// rejects it with a BugError if that invariant is ever broken.
type Ignored struct {
	name string
}

// NewIgnored returns the filter's placeholder decision for name.
func NewIgnored(name string) *Ignored { return &Ignored{name: name} }

func (i *Ignored) Name() string { return i.name }

// InodeCommon holds the fields every non-mirage, non-destroyed entry
// carries, per spec section 3.2's "Inode" base.
type InodeCommon struct {
	name string

	UID, GID infinint.Int
	Perm     uint16 // low 12 bits: permission + setuid/setgid/sticky

	Atime, Mtime, Ctime DateTime

	// FSDeviceID identifies the filesystem the entry was captured
	// from, used only at capture time to honour a same-filesystem
	// filter; never meaningful once read back from an archive.
	FSDeviceID uint64

	EA  *EAInfo
	FSA *FSAInfo
}

// Name returns the entry's name within its parent directory.
func (c *InodeCommon) Name() string { return c.name }

// EAInfo describes an inode's Extended-Attribute set, per spec section 3.2.
type EAInfo struct {
	Status EAStatus
	Size   infinint.Int
	Offset infinint.Int
	CRC    uint32
}

// FSAInfo describes an inode's Filesystem-Specific-Attribute set.
type FSAInfo struct {
	Status   FSAStatus
	Families *FamilyBitmap
	Size     infinint.Int
	Offset   infinint.Int
	CRC      uint32
}

// DeltaSig locates a binary-patch signature block, used when Status is
// StatusDelta: Offset and Size bound the patch blob within the
// archive's payload stream the same way File.Offset/StoredSize bound a
// regular file's data, and CRC checks it once read back.
type DeltaSig struct {
	Offset infinint.Int
	Size   infinint.Int
	CRC    uint32
}

// File is a regular file entry, per spec section 3.2.
type File struct {
	InodeCommon
	Status SavedStatus

	Size       infinint.Int
	StoredSize infinint.Int
	Sparse     bool
	Offset     infinint.Int
	CRC        uint32
	Delta      *DeltaSig

	// SourcePath is set on the creation side: a live filesystem path
	// to read the data from. ArchiveData is set on the read side: a
	// byte-range reader into the open archive. Exactly one is
	// non-nil for a Status == StatusSaved file (spec invariant 3).
	SourcePath  string
	ArchiveData DataSource
}

// DataSource is implemented by whatever can hand back a file's
// payload bytes, whether that is a live filesystem path or a byte
// range inside an already-open archive.
type DataSource interface {
	Open() (ReadSeekCloser, error)
}

// ReadSeekCloser is the minimal capability GetData's result needs.
type ReadSeekCloser interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
	Close() error
}

// GetData opens the file's payload, per spec section 3.2's get_data().
func (f *File) GetData() (ReadSeekCloser, error) {
	if f.ArchiveData != nil {
		return f.ArchiveData.Open()
	}
	return openLocalFile(f.SourcePath)
}

// NewFile builds a File with the given name and common inode fields.
func NewFile(name string, common InodeCommon, status SavedStatus) *File {
	common.name = name
	return &File{InodeCommon: common, Status: status}
}

// Symlink is a symbolic link entry.
type Symlink struct {
	InodeCommon
	Status SavedStatus
	Target string // only meaningful if Status == StatusSaved
}

func NewSymlink(name string, common InodeCommon, status SavedStatus, target string) *Symlink {
	common.name = name
	return &Symlink{InodeCommon: common, Status: status, Target: target}
}

// Device is a character or block device entry.
type Device struct {
	InodeCommon
	Status       SavedStatus
	Block        bool
	Major, Minor uint32
}

func NewDevice(name string, common InodeCommon, status SavedStatus, block bool, major, minor uint32) *Device {
	common.name = name
	return &Device{InodeCommon: common, Status: status, Block: block, Major: major, Minor: minor}
}

// Special is a fifo, socket, or door entry: these carry no fields
// beyond the common inode, per spec section 3.2.
type Special struct {
	InodeCommon
	Status SavedStatus
	K      Kind // KindFifo, KindSocket, or KindDoor
}

func NewSpecial(name string, common InodeCommon, status SavedStatus, k Kind) *Special {
	common.name = name
	return &Special{InodeCommon: common, Status: status, K: k}
}

// Directory is an ordered sequence of children, per spec section 3.2.
type Directory struct {
	InodeCommon
	Status   SavedStatus
	Children []Entry
	Parent   *Directory
}

func NewDirectory(name string, common InodeCommon, status SavedStatus) *Directory {
	common.name = name
	return &Directory{InodeCommon: common, Status: status}
}

// AddChild appends e to d.Children, wiring the parent pointer if e is
// itself a Directory.
func (d *Directory) AddChild(e Entry) {
	if sub, ok := e.(*Directory); ok {
		sub.Parent = d
	}
	d.Children = append(d.Children, e)
}

// Find returns the child named name, or nil.
func (d *Directory) Find(name string) Entry {
	for _, c := range d.Children {
		if c.Name() == name {
			return c
		}
	}
	return nil
}

// Destroyed marks a name present in a reference catalogue but absent
// now, per spec section 3.2.
type Destroyed struct {
	name         string
	OriginalKind Kind
	At           DateTime
}

func (d *Destroyed) Name() string { return d.name }

func NewDestroyed(name string, originalKind Kind, at DateTime) *Destroyed {
	return &Destroyed{name: name, OriginalKind: originalKind, At: at}
}

// Mirage is a hard-link alias: a name that shares an Etoile with one
// or more other names, per spec section 3.2.
type Mirage struct {
	name   string
	LinkID int64
	Star   *Etoile
}

func (m *Mirage) Name() string { return m.name }

func NewMirage(name string, star *Etoile) *Mirage {
	star.RefCount++
	return &Mirage{name: name, LinkID: star.LinkID, Star: star}
}
