package sar_test

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargo-project/dargo/operator"
	"github.com/dargo-project/dargo/sar"
	"github.com/google/uuid"
)

func TestWriteReadRoundTripMultiSlice(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	opts := sar.WriteOptions{FirstSliceSize: 128, SliceSize: 96}
	w, err := sar.NewWriter(nm, name, opts, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}

	payload := bytes.Repeat([]byte("0123456789"), 40) // 400 bytes, several slices
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	idxs, err := nm.ExistingIndexes()
	if err != nil {
		t.Fatalf("ExistingIndexes: %v", err)
	}
	if len(idxs) < 2 {
		t.Fatalf("expected at least 2 slices, got %v", idxs)
	}

	r, err := sar.OpenReader(nm, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Terminate()

	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes, want %d", len(got), len(payload))
	}
}

func TestWriteReadTrivialSingleFile(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	w, err := sar.NewWriter(nm, name, sar.WriteOptions{}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payload := []byte("small archive, never splits")
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	idxs, err := nm.ExistingIndexes()
	if err != nil {
		t.Fatalf("ExistingIndexes: %v", err)
	}
	if len(idxs) != 1 {
		t.Fatalf("expected exactly 1 slice in trivial mode, got %v", idxs)
	}

	r, err := sar.OpenReader(nm, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Terminate()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestSkipAcrossSlices(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	w, err := sar.NewWriter(nm, name, sar.WriteOptions{FirstSliceSize: 64, SliceSize: 64}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payload := make([]byte, 300)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	r, err := sar.OpenReader(nm, nil)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Terminate()

	if ok, err := r.Skip(250); err != nil || !ok {
		t.Fatalf("Skip(250): ok=%v err=%v", ok, err)
	}
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll after Skip: %v", err)
	}
	want := payload[250:]
	if !bytes.Equal(got, want) {
		t.Fatalf("post-skip mismatch: got %d bytes, want %d", len(got), len(want))
	}
}

// recoveringOperator answers the first Pause per missing slice by
// copying a substitute file into place, simulating an operator who
// swapped removable media in after being asked.
type recoveringOperator struct {
	operator.Silent
	supply map[string]string // destination path -> source path
	Pauses []string          // every prompt received, in order
}

func (o *recoveringOperator) Pause(text string) bool {
	o.Pauses = append(o.Pauses, text)
	for dst, src := range o.supply {
		if _, err := os.Stat(dst); err == nil {
			continue
		}
		data, err := os.ReadFile(src)
		if err != nil {
			continue
		}
		if err := os.WriteFile(dst, data, 0o644); err == nil {
			delete(o.supply, dst)
			return true
		}
	}
	return false
}

func TestReadRecoversMissingSlice(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	w, err := sar.NewWriter(nm, name, sar.WriteOptions{FirstSliceSize: 64, SliceSize: 64}, nil)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payload := bytes.Repeat([]byte("x"), 200)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	missing := nm.SlicePath(2)
	stash := filepath.Join(dir, "stashed-slice-2")
	if err := os.Rename(missing, stash); err != nil {
		t.Fatalf("rename: %v", err)
	}

	op := &recoveringOperator{supply: map[string]string{missing: stash}}
	r, err := sar.OpenReader(nm, op)
	if err != nil {
		t.Fatalf("OpenReader: %v", err)
	}
	defer r.Terminate()
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("recovered round trip mismatch: got %d bytes want %d", len(got), len(payload))
	}
	if len(op.Pauses) == 0 {
		t.Fatalf("expected at least one Pause prompt for the missing slice")
	}
}

func TestWriterDontEraseRefusesExistingSlice(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	if err := os.WriteFile(nm.SlicePath(1), []byte("preexisting"), 0o644); err != nil {
		t.Fatalf("seed file: %v", err)
	}

	_, err := sar.NewWriter(nm, name, sar.WriteOptions{FirstSliceSize: 64, DontErase: true}, nil)
	if err == nil {
		t.Fatalf("expected an error, got nil")
	}
}

func TestWriterAbortsOnPromptDecline(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	name := uuid.New()

	w, err := sar.NewWriter(nm, name, sar.WriteOptions{FirstSliceSize: 32, SliceSize: 32, PauseBeforeNext: true}, &operator.Silent{Always: false})
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	_, err = w.Write(bytes.Repeat([]byte("y"), 100))
	if err == nil {
		t.Fatalf("expected abort error when operator declines to continue")
	}
}

func ExampleNaming_SlicePath() {
	nm := sar.Naming{Dir: "/tmp/arch", Base: "backup", Ext: "dar"}
	fmt.Println(nm.SlicePath(3))
	// Output: /tmp/arch/backup.3.dar
}
