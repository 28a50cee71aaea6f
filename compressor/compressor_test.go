package compressor_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/dartest"
)

func roundTrip(t *testing.T, algo compressor.Algo) {
	t.Helper()
	under := dartest.NewMemStream()
	w, err := compressor.NewWriter(under, algo, 6)
	if err != nil {
		t.Fatalf("NewWriter(%s): %v", algo, err)
	}
	payload := bytes.Repeat([]byte("dar archive payload data, highly compressible. "), 50)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write(%s): %v", algo, err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate(%s): %v", algo, err)
	}

	under.Rewind()
	r, err := compressor.NewReader(under, algo)
	if err != nil {
		t.Fatalf("NewReader(%s): %v", algo, err)
	}
	got, err := io.ReadAll(readerAdapter{r})
	if err != nil {
		t.Fatalf("ReadAll(%s): %v", algo, err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("%s round trip mismatch: got %d bytes want %d", algo, len(got), len(payload))
	}
}

func TestRoundTripNone(t *testing.T) { roundTrip(t, compressor.AlgoNone) }
func TestRoundTripGzip(t *testing.T) { roundTrip(t, compressor.AlgoGzip) }
func TestRoundTripLZ4(t *testing.T)  { roundTrip(t, compressor.AlgoLZ4) }
func TestRoundTripXZ(t *testing.T)   { roundTrip(t, compressor.AlgoXZ) }
func TestRoundTripZstd(t *testing.T) { roundTrip(t, compressor.AlgoZstd) }

func TestBzip2EncodeReturnsFeatureError(t *testing.T) {
	under := dartest.NewMemStream()
	_, err := compressor.NewWriter(under, compressor.AlgoBzip2, 6)
	if err == nil {
		t.Fatalf("expected a Feature error encoding bzip2, got nil")
	}
}

func TestSuspendResumeAroundRawBlock(t *testing.T) {
	under := dartest.NewMemStream()
	w, err := compressor.NewWriter(under, compressor.AlgoGzip, 6)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	first := bytes.Repeat([]byte("compressed-before "), 20)
	if _, err := w.Write(first); err != nil {
		t.Fatalf("Write first: %v", err)
	}
	if err := w.SuspendCompression(); err != nil {
		t.Fatalf("SuspendCompression: %v", err)
	}
	raw := []byte("raw-ea-block-not-compressed")
	if _, err := w.Write(raw); err != nil {
		t.Fatalf("Write raw: %v", err)
	}
	if err := w.ResumeCompression(); err != nil {
		t.Fatalf("ResumeCompression: %v", err)
	}
	second := bytes.Repeat([]byte("compressed-after "), 20)
	if _, err := w.Write(second); err != nil {
		t.Fatalf("Write second: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	under.Rewind()
	r, err := compressor.NewReader(under, compressor.AlgoGzip)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got1 := make([]byte, len(first))
	if _, err := io.ReadFull(readerAdapter{r}, got1); err != nil {
		t.Fatalf("read first: %v", err)
	}
	if !bytes.Equal(got1, first) {
		t.Fatalf("first segment mismatch")
	}
	if err := r.SuspendDecompression(); err != nil {
		t.Fatalf("SuspendDecompression: %v", err)
	}
	gotRaw := make([]byte, len(raw))
	if _, err := io.ReadFull(readerAdapter{r}, gotRaw); err != nil {
		t.Fatalf("read raw: %v", err)
	}
	if !bytes.Equal(gotRaw, raw) {
		t.Fatalf("raw segment mismatch: got %q want %q", gotRaw, raw)
	}
	if err := r.ResumeDecompression(); err != nil {
		t.Fatalf("ResumeDecompression: %v", err)
	}
	got2, err := io.ReadAll(readerAdapter{r})
	if err != nil {
		t.Fatalf("read second: %v", err)
	}
	if !bytes.Equal(got2, second) {
		t.Fatalf("second segment mismatch")
	}
}

type readerAdapter struct {
	r interface {
		Read([]byte) (int, error)
	}
}

func (a readerAdapter) Read(p []byte) (int, error) { return a.r.Read(p) }
