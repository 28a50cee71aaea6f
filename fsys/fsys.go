// Package fsys bridges the catalogue to a live POSIX filesystem: it
// walks a directory tree into inode records for capture, and recreates
// inode records back onto disk for restore, per spec section 6.5.
package fsys

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"

	"github.com/pkg/xattr"
	times "gopkg.in/djherbis/times.v1"
	"golang.org/x/sys/unix"

	"github.com/dargo-project/dargo/catalogue"
	"github.com/dargo-project/dargo/infinint"
)

// Node is one (path, inode-fields) pair produced while walking a
// filesystem tree for capture.
type Node struct {
	// Path is relative to the walk root; "" denotes the root itself.
	Path    string
	Info    fs.FileInfo
	Common  catalogue.InodeCommon
	Kind    catalogue.Kind
	Target  string // symlink target, when Kind == KindSymlink
	Major   uint32
	Minor   uint32
	XAttrs  map[string][]byte
}

// Walk visits every entry under root in lexical order, calling fn with
// each one. It follows no symlinks: a symlink is reported as itself,
// never descended into, per spec section 6.5's capture semantics.
func Walk(root string, fn func(Node) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			rel = ""
		}
		node, err := statNode(path, rel)
		if err != nil {
			return fmt.Errorf("fsys: stat %q: %w", path, err)
		}
		if err := fn(node); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		return nil
	})
}

func statNode(path, rel string) (Node, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return Node{}, err
	}
	n := Node{Path: rel, Info: info}
	n.Common, n.Kind, err = commonFromInfo(path, info)
	if err != nil {
		return Node{}, err
	}
	if info.Mode()&os.ModeSymlink != 0 {
		target, err := os.Readlink(path)
		if err != nil {
			return Node{}, err
		}
		n.Target = target
	}
	if info.Mode()&os.ModeDevice != 0 {
		if stat, ok := info.Sys().(*unix.Stat_t); ok {
			rdev := stat.Rdev
			n.Major = unix.Major(rdev)
			n.Minor = unix.Minor(rdev)
		}
	}
	if names, err := xattr.LList(path); err == nil && len(names) > 0 {
		n.XAttrs = make(map[string][]byte, len(names))
		sort.Strings(names)
		for _, name := range names {
			v, err := xattr.LGet(path, name)
			if err != nil {
				continue
			}
			n.XAttrs[name] = v
		}
	}
	return n, nil
}

// commonFromInfo fills in the inode fields shared by every entry kind
// and classifies the kind, using times.v1 for the access and change
// times the standard library's os.FileInfo does not expose (no birth
// time is captured) and golang.org/x/sys for the raw stat structure.
func commonFromInfo(path string, info fs.FileInfo) (catalogue.InodeCommon, catalogue.Kind, error) {
	c := catalogue.InodeCommon{
		Perm:  uint16(info.Mode().Perm()),
		Mtime: catalogue.FromTime(info.ModTime()),
	}

	t, err := times.Lstat(path)
	if err == nil {
		c.Atime = catalogue.FromTime(t.AccessTime())
		if t.HasChangeTime() {
			c.Ctime = catalogue.FromTime(t.ChangeTime())
		} else {
			c.Ctime = c.Mtime
		}
	} else {
		c.Atime = c.Mtime
		c.Ctime = c.Mtime
	}

	if stat, ok := info.Sys().(*unix.Stat_t); ok {
		c.UID = infinint.FromUint64(uint64(stat.Uid))
		c.GID = infinint.FromUint64(uint64(stat.Gid))
		c.FSDeviceID = uint64(stat.Dev)
	}

	var kind catalogue.Kind
	switch mode := info.Mode(); {
	case mode.IsRegular():
		kind = catalogue.KindFile
	case mode.IsDir():
		kind = catalogue.KindDirectory
	case mode&os.ModeSymlink != 0:
		kind = catalogue.KindSymlink
	case mode&os.ModeNamedPipe != 0:
		kind = catalogue.KindFifo
	case mode&os.ModeSocket != 0:
		kind = catalogue.KindSocket
	case mode&os.ModeDevice != 0 && mode&os.ModeCharDevice != 0:
		kind = catalogue.KindCharDevice
	case mode&os.ModeDevice != 0:
		kind = catalogue.KindBlockDevice
	default:
		kind = catalogue.KindFile
	}
	return c, kind, nil
}

// Restore recreates one node on disk under destRoot, per spec section
// 6.5's restore path: mknod/mkdir/symlink first, then chown/chmod/
// utimes/xattr so permission bits and timestamps survive creation.
func Restore(destRoot string, n Node, openData func() (fs.File, error)) error {
	full := filepath.Join(destRoot, n.Path)

	switch n.Kind {
	case catalogue.KindDirectory:
		if err := os.MkdirAll(full, 0o700); err != nil {
			return err
		}
	case catalogue.KindSymlink:
		if err := os.Symlink(n.Target, full); err != nil {
			return err
		}
	case catalogue.KindFifo:
		if err := unix.Mkfifo(full, uint32(n.Common.Perm)); err != nil {
			return err
		}
	case catalogue.KindCharDevice, catalogue.KindBlockDevice:
		mode := uint32(n.Common.Perm) | unix.S_IFCHR
		if n.Kind == catalogue.KindBlockDevice {
			mode = uint32(n.Common.Perm) | unix.S_IFBLK
		}
		dev := unix.Mkdev(n.Major, n.Minor)
		if err := unix.Mknod(full, mode, int(dev)); err != nil {
			return err
		}
	case catalogue.KindFile:
		if err := restoreFile(full, n, openData); err != nil {
			return err
		}
	default:
		return fmt.Errorf("fsys: restore: unsupported kind %q", byte(n.Kind))
	}

	for name, v := range n.XAttrs {
		if err := xattr.LSet(full, name, v); err != nil {
			return fmt.Errorf("fsys: restoring xattr %q on %q: %w", name, full, err)
		}
	}

	if n.Kind != catalogue.KindSymlink {
		if err := os.Chmod(full, os.FileMode(n.Common.Perm)); err != nil {
			return err
		}
	}
	if n.Common.UID.Fits64() && n.Common.GID.Fits64() {
		_ = unix.Lchown(full, int(n.Common.UID.Uint64()), int(n.Common.GID.Uint64()))
	}

	at := n.Common.Atime.Time()
	mt := n.Common.Mtime.Time()
	return unix.Lutimes(full, []unix.Timeval{
		unix.NsecToTimeval(at.UnixNano()),
		unix.NsecToTimeval(mt.UnixNano()),
	})
}

func restoreFile(full string, n Node, openData func() (fs.File, error)) error {
	out, err := os.OpenFile(full, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, os.FileMode(n.Common.Perm))
	if err != nil {
		return err
	}
	defer out.Close()
	if openData == nil {
		return nil
	}
	src, err := openData()
	if err != nil {
		return err
	}
	defer src.Close()
	buf := make([]byte, 64*1024)
	for {
		k, rerr := src.Read(buf)
		if k > 0 {
			if _, werr := out.Write(buf[:k]); werr != nil {
				return werr
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return rerr
		}
	}
}
