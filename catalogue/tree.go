package catalogue

import (
	"fmt"
	"strings"
)

// Catalogue owns a tree of entries and the cursors spec section 4.9
// defines over it. Build one with NewCatalogue: the zero value has no
// root directory and its cursors cannot be used.
type Catalogue struct {
	Root *Directory

	addCur  *Directory   // current directory for the add cursor
	readCur []readFrame  // DFS stack for the read cursor
	cmpCur  []readFrame  // DFS stack for the compare cursor
	outCmp  string       // out_compare path, set while descending a branch missing on this side
}

type readFrame struct {
	dir *Directory
	idx int
}

// NewCatalogue returns an empty catalogue with root as its top directory.
func NewCatalogue(root *Directory) *Catalogue {
	return &Catalogue{Root: root, addCur: root}
}

// Add appends e under the add cursor's current directory, per spec
// section 4.9. Passing nil is the end-of-directory marker: it pops the
// cursor back to the parent.
func (c *Catalogue) Add(e Entry) error {
	if e == nil {
		if c.addCur.Parent == nil {
			return fmt.Errorf("catalogue: add: end-of-directory with no parent")
		}
		c.addCur = c.addCur.Parent
		return nil
	}
	if _, ignored := e.(*Ignored); ignored {
		// Plain "ignored" (spec section 3.2): the filter's placeholder
		// never becomes a child, so it never reaches the codec.
		return nil
	}
	mergeChild(c.addCur, e)
	if _, ok := e.(*Directory); ok {
		// After a merge the directory in the tree is the existing one,
		// not e, so descend into whatever now holds e's name.
		if sub, ok := c.addCur.Find(e.Name()).(*Directory); ok {
			c.addCur = sub
		}
	}
	return nil
}

// mergeChild adds e to dir.Children, applying spec section 4.9's
// directory-merge-on-duplicate-name rule: if a child with the same
// name already exists and both it and e are directories, e's children
// are appended to the existing directory instead of replacing it;
// otherwise the existing entry is replaced.
func mergeChild(dir *Directory, e Entry) {
	for i, existing := range dir.Children {
		if existing.Name() != e.Name() {
			continue
		}
		existingDir, existingIsDir := existing.(*Directory)
		newDir, newIsDir := e.(*Directory)
		if existingIsDir && newIsDir {
			existingDir.Children = append(existingDir.Children, newDir.Children...)
			for _, child := range newDir.Children {
				if sub, ok := child.(*Directory); ok {
					sub.Parent = existingDir
				}
			}
			return
		}
		dir.Children[i] = e
		if sub, ok := e.(*Directory); ok {
			sub.Parent = dir
		}
		return
	}
	dir.AddChild(e)
}

// ResetRead rewinds the flat read cursor to the start of the tree.
func (c *Catalogue) ResetRead() {
	c.readCur = []readFrame{{dir: c.Root, idx: 0}}
}

// Read returns the next entry in flat depth-first order, or (nil, true)
// at an end-of-directory boundary, or (nil, false) once the whole tree
// has been consumed.
func (c *Catalogue) Read() (entry Entry, ok bool) {
	if c.readCur == nil {
		c.ResetRead()
	}
	for len(c.readCur) > 0 {
		top := &c.readCur[len(c.readCur)-1]
		if top.idx >= len(top.dir.Children) {
			c.readCur = c.readCur[:len(c.readCur)-1]
			return nil, true // end-of-directory marker
		}
		child := top.dir.Children[top.idx]
		top.idx++
		if sub, isDir := child.(*Directory); isDir {
			c.readCur = append(c.readCur, readFrame{dir: sub, idx: 0})
		}
		return child, true
	}
	return nil, false
}

// SkipReadToParentDir discards the rest of the innermost directory the
// read cursor is inside, per spec section 4.9's skip_read_to_parent_dir.
func (c *Catalogue) SkipReadToParentDir() {
	if len(c.readCur) == 0 {
		return
	}
	c.readCur = c.readCur[:len(c.readCur)-1]
}

// SubRead walks the subtree rooted at the directory named by path
// (slash-separated), per spec section 4.9's sub_read cursor: it first
// emits a synthetic directory for each path component, then the
// subtree, then enough end-of-directory markers to return to root.
// fn is called once per emitted entry; a nil entry means
// end-of-directory.
func (c *Catalogue) SubRead(path string, fn func(Entry) error) error {
	components := strings.Split(strings.Trim(path, "/"), "/")
	dir := c.Root
	for _, name := range components {
		if name == "" {
			continue
		}
		next := dir.Find(name)
		sub, ok := next.(*Directory)
		if !ok {
			return fmt.Errorf("catalogue: sub_read: %q is not a directory under %q", name, path)
		}
		if err := fn(sub); err != nil {
			return err
		}
		dir = sub
	}
	if err := subReadWalk(dir, fn); err != nil {
		return err
	}
	for range components {
		if err := fn(nil); err != nil {
			return err
		}
	}
	return nil
}

func subReadWalk(dir *Directory, fn func(Entry) error) error {
	for _, child := range dir.Children {
		if err := fn(child); err != nil {
			return err
		}
		if sub, ok := child.(*Directory); ok {
			if err := subReadWalk(sub, fn); err != nil {
				return err
			}
			if err := fn(nil); err != nil {
				return err
			}
		}
	}
	return nil
}

// ResetCompare rewinds the compare cursor to the start of the tree.
func (c *Catalogue) ResetCompare() {
	c.cmpCur = []readFrame{{dir: c.Root, idx: 0}}
	c.outCmp = ""
}

// Compare advances the compare cursor against a name produced by
// another entry stream (another catalogue's read cursor, or live
// filesystem capture), per spec section 4.9's compare cursor. It
// returns the matching existing entry and true, or (nil, false) if no
// entry of that name exists at the current position.
func (c *Catalogue) Compare(target Entry) (Entry, bool) {
	if c.cmpCur == nil {
		c.ResetCompare()
	}
	if c.outCmp != "" {
		return nil, false
	}
	if len(c.cmpCur) == 0 {
		return nil, false
	}
	top := &c.cmpCur[len(c.cmpCur)-1]
	for _, child := range top.dir.Children {
		if child.Name() != target.Name() {
			continue
		}
		if sub, ok := child.(*Directory); ok {
			c.cmpCur = append(c.cmpCur, readFrame{dir: sub, idx: 0})
		}
		return child, true
	}
	// Name absent on this side: track the out_compare path so nested
	// descents into this branch stay cheap no-ops until the caller
	// pops back out via CompareEndDir.
	c.outCmp = target.Name()
	return nil, false
}

// CompareEndDir pops the compare cursor back to the parent directory,
// mirroring an end-of-directory entry in the other stream.
func (c *Catalogue) CompareEndDir() {
	if c.outCmp != "" {
		c.outCmp = ""
		return
	}
	if len(c.cmpCur) > 0 {
		c.cmpCur = c.cmpCur[:len(c.cmpCur)-1]
	}
}

// UpdateDestroyedWith scans reference and, for every name present
// there but missing in c, appends a Destroyed entry carrying the
// reference entry's kind and now, per spec section 4.9. A reference
// directory whose name matches a non-directory in c is not descended:
// a single Destroyed is emitted for it instead.
func UpdateDestroyedWith(dst *Directory, reference *Directory, now DateTime) {
	for _, refChild := range reference.Children {
		existing := dst.Find(refChild.Name())
		if existing == nil {
			dst.AddChild(NewDestroyed(refChild.Name(), EntryKind(refChild), now))
			continue
		}
		refDir, refIsDir := refChild.(*Directory)
		existingDir, existingIsDir := existing.(*Directory)
		if refIsDir && existingIsDir {
			UpdateDestroyedWith(existingDir, refDir, now)
		}
		// Non-directory on one side and directory on the other: the
		// type changed, so the reference subtree is not descended;
		// the entry already exists under c with its new kind, which is
		// the correct outcome, so nothing further is emitted.
	}
}
