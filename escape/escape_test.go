package escape

import (
	"bytes"
	"io"
	"testing"

	"github.com/dargo-project/dargo/dartest"
)

func TestWriteReadDataRoundTrip(t *testing.T) {
	back := dartest.NewMemStream()
	w := NewWriter(back)
	payload := []byte("hello, archive world")
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	back.Rewind()
	r := NewReader(back)
	got := make([]byte, len(payload))
	if _, err := io.ReadFull(ioReaderFunc(r.Read), got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Errorf("round trip mismatch: got %q want %q", got, payload)
	}
}

func TestMagicInDataIsEscaped(t *testing.T) {
	back := dartest.NewMemStream()
	w := NewWriter(back)
	data := append(append([]byte{0x01, 0x02}, Magic[:]...), 0xFF)
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	back.Rewind()
	r := NewReader(back)
	got := make([]byte, len(data))
	if _, err := io.ReadFull(ioReaderFunc(r.Read), got); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("escaped round trip mismatch: got %v want %v", got, data)
	}
	if _, ok := r.NextMark(); ok {
		t.Errorf("no real mark should be observed for escaped magic")
	}
}

func TestAddMarkAndSkipToNextMark(t *testing.T) {
	back := dartest.NewMemStream()
	w := NewWriter(back)
	if _, err := w.Write([]byte("prefix")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.AddMark(CatalogueStart); err != nil {
		t.Fatalf("AddMark: %v", err)
	}
	if _, err := w.Write([]byte("suffix")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	back.Rewind()
	r := NewReader(back)
	if err := r.SkipToNextMark(CatalogueStart, true); err != nil {
		t.Fatalf("SkipToNextMark: %v", err)
	}
	rest := make([]byte, 6)
	if _, err := io.ReadFull(ioReaderFunc(r.Read), rest); err != nil {
		t.Fatalf("Read after mark: %v", err)
	}
	if string(rest) != "suffix" {
		t.Errorf("got %q, want suffix", rest)
	}
}

type ioReaderFunc func([]byte) (int, error)

func (f ioReaderFunc) Read(p []byte) (int, error) { return f(p) }
