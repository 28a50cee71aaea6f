package catalogue_test

import (
	"testing"

	"github.com/dargo-project/dargo/catalogue"
)

func buildWalkTree() *catalogue.Directory {
	root := catalogue.NewDirectory("", catalogue.InodeCommon{}, catalogue.StatusSaved)
	root.AddChild(catalogue.NewFile("a.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	sub := catalogue.NewDirectory("sub", catalogue.InodeCommon{}, catalogue.StatusSaved)
	sub.AddChild(catalogue.NewFile("b.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	sub.AddChild(catalogue.NewFile("c.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	root.AddChild(sub)
	root.AddChild(catalogue.NewFile("d.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	return root
}

// name returns "" for the nil entry end-of-directory marker, so test
// tables can compare a flat list of names without special-casing nil.
func name(e catalogue.Entry) string {
	if e == nil {
		return ""
	}
	return e.Name()
}

func TestReadResetReadFlatWalk(t *testing.T) {
	cat := catalogue.NewCatalogue(buildWalkTree())
	cat.ResetRead()

	want := []string{"a.txt", "sub", "b.txt", "c.txt", "", "d.txt", ""}
	for i, w := range want {
		e, ok := cat.Read()
		if !ok {
			t.Fatalf("step %d: Read returned ok=false early", i)
		}
		if name(e) != w {
			t.Fatalf("step %d: got %q, want %q", i, name(e), w)
		}
	}
	if _, ok := cat.Read(); ok {
		t.Fatal("expected Read to report exhaustion after the full walk")
	}

	// ResetRead rewinds the cursor: the same sequence replays.
	cat.ResetRead()
	e, ok := cat.Read()
	if !ok || name(e) != "a.txt" {
		t.Fatalf("after ResetRead, got %q, ok=%v", name(e), ok)
	}
}

func TestSkipReadToParentDir(t *testing.T) {
	cat := catalogue.NewCatalogue(buildWalkTree())
	cat.ResetRead()

	if e, ok := cat.Read(); !ok || name(e) != "a.txt" {
		t.Fatalf("expected a.txt, got %q ok=%v", name(e), ok)
	}
	e, ok := cat.Read()
	if !ok || name(e) != "sub" {
		t.Fatalf("expected sub, got %q ok=%v", name(e), ok)
	}

	// Skip the rest of sub's contents (b.txt, c.txt, its end marker)
	// without visiting them.
	cat.SkipReadToParentDir()

	e, ok = cat.Read()
	if !ok || name(e) != "d.txt" {
		t.Fatalf("expected d.txt after skip, got %q ok=%v", name(e), ok)
	}
}

func TestSubRead(t *testing.T) {
	cat := catalogue.NewCatalogue(buildWalkTree())

	var got []string
	err := cat.SubRead("sub", func(e catalogue.Entry) error {
		got = append(got, name(e))
		return nil
	})
	if err != nil {
		t.Fatalf("SubRead: %v", err)
	}
	want := []string{"sub", "b.txt", "c.txt", ""}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("step %d: got %q, want %q", i, got[i], want[i])
		}
	}
}

func TestSubReadRejectsNonDirectory(t *testing.T) {
	cat := catalogue.NewCatalogue(buildWalkTree())
	if err := cat.SubRead("a.txt", func(catalogue.Entry) error { return nil }); err == nil {
		t.Fatal("expected an error sub-reading a non-directory path")
	}
}

func buildCompareTree() *catalogue.Directory {
	root := catalogue.NewDirectory("", catalogue.InodeCommon{}, catalogue.StatusSaved)
	root.AddChild(catalogue.NewFile("a.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	sub := catalogue.NewDirectory("sub", catalogue.InodeCommon{}, catalogue.StatusSaved)
	sub.AddChild(catalogue.NewFile("x.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	root.AddChild(sub)
	root.AddChild(catalogue.NewFile("e.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))
	return root
}

func TestCompareResetCompareCompareEndDir(t *testing.T) {
	cat := catalogue.NewCatalogue(buildCompareTree())
	cat.ResetCompare()

	if _, ok := cat.Compare(catalogue.NewFile("a.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)); !ok {
		t.Fatal("expected a.txt to be found at root level")
	}

	subTarget := catalogue.NewDirectory("sub", catalogue.InodeCommon{}, catalogue.StatusSaved)
	got, ok := cat.Compare(subTarget)
	if !ok {
		t.Fatal("expected sub to be found at root level")
	}
	if _, isDir := got.(*catalogue.Directory); !isDir {
		t.Fatalf("expected *Directory, got %T", got)
	}

	// Descended into sub: x.txt should be visible now, a.txt/e.txt not.
	if _, ok := cat.Compare(catalogue.NewFile("x.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)); !ok {
		t.Fatal("expected x.txt to be found inside sub")
	}

	cat.CompareEndDir()

	// Back at root level: a name absent here sets the out_compare path.
	if _, ok := cat.Compare(catalogue.NewFile("missing.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)); ok {
		t.Fatal("expected missing.txt not to be found")
	}

	// While out_compare is set, further Compare calls are cheap no-ops.
	if _, ok := cat.Compare(catalogue.NewFile("e.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)); ok {
		t.Fatal("expected Compare to short-circuit while out_compare is set")
	}

	// Clearing out_compare restores normal lookups at the same level.
	cat.CompareEndDir()
	if _, ok := cat.Compare(catalogue.NewFile("e.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)); !ok {
		t.Fatal("expected e.txt to be found after out_compare cleared")
	}
}
