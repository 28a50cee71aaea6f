package darmanager_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/dargo-project/dargo/catalogue"
	"github.com/dargo-project/dargo/darmanager"
)

func dirWithFile(name string, mtime time.Time) *catalogue.Directory {
	root := catalogue.NewDirectory("", catalogue.InodeCommon{Mtime: catalogue.FromTime(mtime)}, catalogue.StatusSaved)
	f := catalogue.NewFile(name, catalogue.InodeCommon{Mtime: catalogue.FromTime(mtime)}, catalogue.StatusSaved)
	root.AddChild(f)
	return root
}

func TestAddAndGetMostRecent(t *testing.T) {
	db := darmanager.New()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	t2 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	db.Add(1, "", dirWithFile("a.txt", t1))
	db.Add(2, "", dirWithFile("a.txt", t2))

	n, found := db.GetMostRecent("a.txt")
	if !found {
		t.Fatalf("expected a.txt to be found")
	}
	if n != 2 {
		t.Fatalf("expected archive 2 to be most recent, got %d", n)
	}
}

func TestRemoveCompactsArchiveNumbers(t *testing.T) {
	db := darmanager.New()
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.Add(1, "", dirWithFile("a.txt", t1))
	db.Add(2, "", dirWithFile("a.txt", t1))
	db.Add(3, "", dirWithFile("a.txt", t1))

	db.Remove(2)

	listing := db.Listing()
	found := false
	for _, e := range listing {
		if e.Path == "a.txt" {
			found = true
			for _, n := range e.Archives {
				if n == 3 {
					t.Fatalf("expected archive 3 to be renumbered to 2 after removing 2, got archives %v", e.Archives)
				}
			}
		}
	}
	if !found {
		t.Fatalf("expected a.txt to survive removal of one archive")
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	db := darmanager.New()
	db.ArchiveNames[1] = darmanager.ArchiveRef{BaseName: "backup", Directory: "/mnt/backups"}
	t1 := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	db.Add(1, "", dirWithFile("a.txt", t1))

	var buf bytes.Buffer
	if err := db.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := darmanager.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	n, found := got.GetMostRecent("a.txt")
	if !found || n != 1 {
		t.Fatalf("round trip lost record: found=%v n=%d", found, n)
	}
	if got.ArchiveNames[1].BaseName != "backup" {
		t.Fatalf("round trip lost archive name: %+v", got.ArchiveNames[1])
	}
}
