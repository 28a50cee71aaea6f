package catalogue_test

import (
	"errors"
	"testing"

	"github.com/dargo-project/dargo/catalogue"
)

func TestApplyPathFilterNotExcluded(t *testing.T) {
	f := catalogue.NewFile("keep.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)
	got := catalogue.ApplyPathFilter(f, false, false)
	if got != Entry(f) {
		t.Fatalf("expected unchanged entry, got %v", got)
	}
}

func TestApplyPathFilterIgnoredDir(t *testing.T) {
	dir := catalogue.NewDirectory("sub", catalogue.InodeCommon{}, catalogue.StatusSaved)
	dir.AddChild(catalogue.NewFile("inside.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))

	got := catalogue.ApplyPathFilter(dir, true, true)
	gotDir, ok := got.(*catalogue.Directory)
	if !ok {
		t.Fatalf("expected *Directory, got %T", got)
	}
	if len(gotDir.Children) != 0 {
		t.Fatalf("expected empty placeholder directory, got %d children", len(gotDir.Children))
	}
}

func TestApplyPathFilterIgnoredPlain(t *testing.T) {
	f := catalogue.NewFile("skip.txt", catalogue.InodeCommon{}, catalogue.StatusSaved)
	got := catalogue.ApplyPathFilter(f, true, false)
	ignored, ok := got.(*catalogue.Ignored)
	if !ok {
		t.Fatalf("expected *Ignored, got %T", got)
	}
	if ignored.Name() != "skip.txt" {
		t.Fatalf("unexpected name %q", ignored.Name())
	}
}

func TestCatalogueAddDropsIgnored(t *testing.T) {
	cat := catalogue.NewCatalogue(catalogue.NewDirectory("", catalogue.InodeCommon{}, catalogue.StatusSaved))
	if err := cat.Add(catalogue.NewIgnored("skip.txt")); err != nil {
		t.Fatalf("Add: %v", err)
	}
	if len(cat.Root.Children) != 0 {
		t.Fatalf("expected ignored entry to be dropped, got %d children", len(cat.Root.Children))
	}
}

func TestDumpRejectsIgnoredWithBugError(t *testing.T) {
	codec := catalogue.NewCodec()
	err := codec.Dump(discard{}, catalogue.NewIgnored("slipped-through.txt"))
	if err == nil {
		t.Fatal("expected an error dumping an Ignored entry")
	}
	var bugErr *catalogue.BugError
	if !errors.As(err, &bugErr) {
		t.Fatalf("expected *catalogue.BugError, got %T: %v", err, err)
	}
}

// Entry is an alias for catalogue.Entry, just to keep the comparison
// in TestApplyPathFilterNotExcluded free of an import-only reference.
type Entry = catalogue.Entry

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }
