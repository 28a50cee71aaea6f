// Package darmanager implements the dar_manager database of spec
// section 4.11: a tree of records, one per captured path, mapping
// archive numbers in a differential backup chain to the timestamp at
// which that path last changed, so a restore can find the most recent
// archive holding any given file without re-reading every slice.
package darmanager

import (
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dargo-project/dargo/catalogue"
	"github.com/dargo-project/dargo/infinint"
)

// DarVersion and DBVersion are written into the database header so a
// future format revision can refuse to misinterpret an older file.
const (
	DarVersion = 1
	DBVersion  = 1
)

// stamp is one archive's timestamp for a path's data or its EA.
type stamp struct {
	archiveNum int
	at         catalogue.DateTime
}

// record is one path's entry: either a leaf (a single file/inode) or a
// directory, per spec section 4.11's "auto-upgrade from leaf to dir".
type record struct {
	name     string
	isDir    bool
	data     map[int]catalogue.DateTime
	ea       map[int]catalogue.DateTime
	children map[string]*record
}

func newRecord(name string) *record {
	return &record{name: name, data: map[int]catalogue.DateTime{}, ea: map[int]catalogue.DateTime{}}
}

func (r *record) upgradeToDir() {
	if r.isDir {
		return
	}
	r.isDir = true
	r.children = map[string]*record{}
}

// DB is one dar_manager database, rooted at an anonymous top record.
type DB struct {
	// ArchiveNames maps an archive number to its base name and
	// containing directory, the header information spec section 4.11
	// says is stored alongside the root record.
	ArchiveNames map[int]ArchiveRef
	root         *record
}

// ArchiveRef names one archive slot in the chain.
type ArchiveRef struct {
	BaseName  string
	Directory string
}

// New returns an empty database.
func New() *DB {
	return &DB{ArchiveNames: map[int]ArchiveRef{}, root: newRecord("")}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func (db *DB) walkTo(components []string, create bool) *record {
	cur := db.root
	for _, name := range components {
		if cur.children == nil {
			if !create {
				return nil
			}
			cur.upgradeToDir()
		}
		next, ok := cur.children[name]
		if !ok {
			if !create {
				return nil
			}
			next = newRecord(name)
			cur.children[name] = next
		}
		cur = next
	}
	return cur
}

// Add walks root, and for every file or inode beneath it records
// archiveNum against that path's mtime (and, separately, ctime for its
// EA), per spec section 4.11's add operation. A path that was
// previously a leaf and is now found to be a directory (or vice versa)
// upgrades in place without losing its existing archive records.
func (db *DB) Add(archiveNum int, rootPath string, root *catalogue.Directory) {
	db.addEntry(archiveNum, splitPath(rootPath), root)
}

func (db *DB) addEntry(archiveNum int, prefix []string, e catalogue.Entry) {
	rec := db.walkTo(prefix, true)
	switch v := e.(type) {
	case *catalogue.Directory:
		rec.upgradeToDir()
		rec.data[archiveNum] = v.Mtime
		if v.EA != nil {
			rec.ea[archiveNum] = v.Ctime
		}
		for _, child := range v.Children {
			db.addEntry(archiveNum, append(append([]string{}, prefix...), child.Name()), child)
		}
	case *catalogue.File:
		rec.data[archiveNum] = v.Mtime
		if v.EA != nil {
			rec.ea[archiveNum] = v.Ctime
		}
	case *catalogue.Symlink:
		rec.data[archiveNum] = v.Mtime
	case *catalogue.Device:
		rec.data[archiveNum] = v.Mtime
	case *catalogue.Special:
		rec.data[archiveNum] = v.Mtime
	}
}

// Remove deletes archiveNum's entry from every record, then compacts:
// any record left with no data and no EA entries (and, for a
// directory, no surviving children) is pruned, and every archive
// number greater than archiveNum is decremented by one so the chain
// stays contiguous, per spec section 4.11.
func (db *DB) Remove(archiveNum int) {
	removeFrom(db.root, archiveNum)
	next := map[int]ArchiveRef{}
	for n, ref := range db.ArchiveNames {
		switch {
		case n == archiveNum:
			// dropped
		case n > archiveNum:
			next[n-1] = ref
		default:
			next[n] = ref
		}
	}
	db.ArchiveNames = next
}

func removeFrom(r *record, archiveNum int) (empty bool) {
	delete(r.data, archiveNum)
	delete(r.ea, archiveNum)
	data := make(map[int]catalogue.DateTime, len(r.data))
	for n, at := range r.data {
		if n > archiveNum {
			n--
		}
		data[n] = at
	}
	r.data = data
	ea := make(map[int]catalogue.DateTime, len(r.ea))
	for n, at := range r.ea {
		if n > archiveNum {
			n--
		}
		ea[n] = at
	}
	r.ea = ea
	if r.isDir {
		for name, child := range r.children {
			if removeFrom(child, archiveNum) {
				delete(r.children, name)
			}
		}
	}
	return len(r.data) == 0 && len(r.ea) == 0 && (!r.isDir || len(r.children) == 0)
}

// Permute renumbers archive src to dst and dst to src throughout the
// database, preserving every record, per spec section 4.11.
func (db *DB) Permute(src, dst int) {
	permuteIn(db.root, src, dst)
	srcRef, hasSrc := db.ArchiveNames[src]
	dstRef, hasDst := db.ArchiveNames[dst]
	if hasSrc {
		db.ArchiveNames[dst] = srcRef
	} else {
		delete(db.ArchiveNames, dst)
	}
	if hasDst {
		db.ArchiveNames[src] = dstRef
	} else {
		delete(db.ArchiveNames, src)
	}
}

func permuteIn(r *record, src, dst int) {
	permuteMap(r.data, src, dst)
	permuteMap(r.ea, src, dst)
	if r.isDir {
		for _, child := range r.children {
			permuteIn(child, src, dst)
		}
	}
}

func permuteMap(m map[int]catalogue.DateTime, src, dst int) {
	s, hasS := m[src]
	d, hasD := m[dst]
	if hasS {
		m[dst] = s
	} else {
		delete(m, dst)
	}
	if hasD {
		m[src] = d
	} else {
		delete(m, src)
	}
}

// GetMostRecent walks path component by component and returns the
// archive number holding the most recent mtime recorded for it, per
// spec section 4.11.
func (db *DB) GetMostRecent(path string) (archiveNum int, found bool) {
	rec := db.walkTo(splitPath(path), false)
	if rec == nil {
		return 0, false
	}
	var best catalogue.DateTime
	first := true
	for n, at := range rec.data {
		if first || at.Cmp(best) > 0 {
			best, archiveNum, first = at, n, false
		}
	}
	return archiveNum, !first
}

// Entry is one row of Listing's output: a path and the sorted archive
// numbers in which it appears.
type Entry struct {
	Path     string
	Archives []int
}

// Listing dumps every record with the set of archives each path
// appeared in, per spec section 4.11.
func (db *DB) Listing() []Entry {
	var out []Entry
	listIn(db.root, "", &out)
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func listIn(r *record, path string, out *[]Entry) {
	if path != "" {
		archives := make([]int, 0, len(r.data))
		for n := range r.data {
			archives = append(archives, n)
		}
		sort.Ints(archives)
		*out = append(*out, Entry{Path: path, Archives: archives})
	}
	if !r.isDir {
		return
	}
	names := make([]string, 0, len(r.children))
	for name := range r.children {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		child := path + "/" + name
		if path == "" {
			child = name
		}
		listIn(r.children[name], child, out)
	}
}

// Encode writes the binary form of spec section 4.11: a header (dar
// version, db version, archive-number → {base_name, directory} map)
// followed by the recursive root record.
func (db *DB) Encode(w io.Writer) error {
	if err := writeU32(w, DarVersion); err != nil {
		return err
	}
	if err := writeU32(w, DBVersion); err != nil {
		return err
	}
	if err := writeInfinint(w, uint64(len(db.ArchiveNames))); err != nil {
		return err
	}
	nums := make([]int, 0, len(db.ArchiveNames))
	for n := range db.ArchiveNames {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	for _, n := range nums {
		ref := db.ArchiveNames[n]
		if err := writeU32(w, uint32(n)); err != nil {
			return err
		}
		if err := writeString(w, ref.BaseName); err != nil {
			return err
		}
		if err := writeString(w, ref.Directory); err != nil {
			return err
		}
	}
	return encodeRecord(w, db.root)
}

func encodeRecord(w io.Writer, r *record) error {
	if err := writeString(w, r.name); err != nil {
		return err
	}
	if err := writeBool(w, r.isDir); err != nil {
		return err
	}
	if err := encodeStamps(w, r.data); err != nil {
		return err
	}
	if err := encodeStamps(w, r.ea); err != nil {
		return err
	}
	if !r.isDir {
		return nil
	}
	names := make([]string, 0, len(r.children))
	for name := range r.children {
		names = append(names, name)
	}
	sort.Strings(names)
	if err := writeInfinint(w, uint64(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		if err := encodeRecord(w, r.children[name]); err != nil {
			return err
		}
	}
	return nil
}

func encodeStamps(w io.Writer, m map[int]catalogue.DateTime) error {
	nums := make([]int, 0, len(m))
	for n := range m {
		nums = append(nums, n)
	}
	sort.Ints(nums)
	if err := writeInfinint(w, uint64(len(nums))); err != nil {
		return err
	}
	for _, n := range nums {
		if err := writeU32(w, uint32(n)); err != nil {
			return err
		}
		if err := m[n].Dump(w); err != nil {
			return err
		}
	}
	return nil
}

// Decode reads a database previously written by Encode.
func Decode(r io.Reader) (*DB, error) {
	darVer, err := readU32(r)
	if err != nil {
		return nil, err
	}
	dbVer, err := readU32(r)
	if err != nil {
		return nil, err
	}
	if darVer != DarVersion || dbVer != DBVersion {
		return nil, fmt.Errorf("darmanager: unsupported version dar=%d db=%d", darVer, dbVer)
	}
	db := New()
	nArchives, err := readInfinint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nArchives; i++ {
		n, err := readU32(r)
		if err != nil {
			return nil, err
		}
		base, err := readString(r)
		if err != nil {
			return nil, err
		}
		dir, err := readString(r)
		if err != nil {
			return nil, err
		}
		db.ArchiveNames[int(n)] = ArchiveRef{BaseName: base, Directory: dir}
	}
	root, err := decodeRecord(r)
	if err != nil {
		return nil, err
	}
	db.root = root
	return db, nil
}

func decodeRecord(r io.Reader) (*record, error) {
	name, err := readString(r)
	if err != nil {
		return nil, err
	}
	rec := newRecord(name)
	isDir, err := readBool(r)
	if err != nil {
		return nil, err
	}
	if rec.data, err = decodeStamps(r); err != nil {
		return nil, err
	}
	if rec.ea, err = decodeStamps(r); err != nil {
		return nil, err
	}
	if !isDir {
		return rec, nil
	}
	rec.upgradeToDir()
	nChildren, err := readInfinint(r)
	if err != nil {
		return nil, err
	}
	for i := uint64(0); i < nChildren; i++ {
		child, err := decodeRecord(r)
		if err != nil {
			return nil, err
		}
		rec.children[child.name] = child
	}
	return rec, nil
}

func decodeStamps(r io.Reader) (map[int]catalogue.DateTime, error) {
	n, err := readInfinint(r)
	if err != nil {
		return nil, err
	}
	m := make(map[int]catalogue.DateTime, n)
	for i := uint64(0); i < n; i++ {
		num, err := readU32(r)
		if err != nil {
			return nil, err
		}
		at, err := catalogue.ReadDateTime(r)
		if err != nil {
			return nil, err
		}
		m[int(num)] = at
	}
	return m, nil
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

func writeInfinint(w io.Writer, n uint64) error {
	_, err := infinint.FromUint64(n).WriteTo(w)
	return err
}

func readInfinint(r io.Reader) (uint64, error) {
	n, _, err := infinint.ReadFrom(r)
	if err != nil {
		return 0, err
	}
	return n.Uint64(), nil
}

func writeString(w io.Writer, s string) error {
	if err := writeInfinint(w, uint64(len(s))); err != nil {
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
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
