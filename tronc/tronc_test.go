package tronc_test

import (
	"bytes"
	"crypto/aes"
	"io"
	"testing"

	"github.com/dargo-project/dargo/dartest"
	"github.com/dargo-project/dargo/tronc"
)

func testConfig(t *testing.T) tronc.Config {
	t.Helper()
	salt, err := tronc.RandomSalt()
	if err != nil {
		t.Fatalf("RandomSalt: %v", err)
	}
	key := tronc.DeriveKey("correct horse battery staple", salt)
	var ivSeed [aes.BlockSize]byte
	copy(ivSeed[:], "0123456789abcdef")
	return tronc.Config{
		Key:            key,
		IVSeed:         ivSeed,
		ClearBlockSize: 64,
	}
}

func TestSequentialRoundTrip(t *testing.T) {
	under := dartest.NewMemStream()
	cfg := testConfig(t)

	w, err := tronc.NewWriter(under, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payload := bytes.Repeat([]byte("the quick brown fox jumps over the lazy dog. "), 10)
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	under.Rewind()
	r, err := tronc.NewReader(under, cfg)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	got, err := io.ReadAll(dartestReader{r})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("round trip mismatch: got %d bytes want %d", len(got), len(payload))
	}
}

func TestSequentialRandomAccess(t *testing.T) {
	under := dartest.NewMemStream()
	cfg := testConfig(t)

	w, err := tronc.NewWriter(under, cfg)
	if err != nil {
		t.Fatalf("NewWriter: %v", err)
	}
	payload := make([]byte, 500)
	for i := range payload {
		payload[i] = byte(i)
	}
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	under.Rewind()
	r, err := tronc.NewReader(under, cfg)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	if ok, err := r.Skip(130); err != nil || !ok {
		t.Fatalf("Skip(130): ok=%v err=%v", ok, err)
	}
	buf := make([]byte, 50)
	n, err := r.Read(buf)
	if err != nil && err != io.EOF {
		t.Fatalf("Read after skip: %v", err)
	}
	if !bytes.Equal(buf[:n], payload[130:130+n]) {
		t.Fatalf("post-skip mismatch at offset 130")
	}
}

func TestEncryptedBlockSizeForDeterministic(t *testing.T) {
	a := tronc.EncryptedBlockSizeFor(64)
	b := tronc.EncryptedBlockSizeFor(64)
	if a != b {
		t.Fatalf("EncryptedBlockSizeFor not deterministic: %d vs %d", a, b)
	}
	if a <= 64 {
		t.Fatalf("expected padded size to grow past clear size, got %d", a)
	}
}

func TestParallelRoundTrip(t *testing.T) {
	under := dartest.NewMemStream()
	cfg := tronc.ParallelConfig{Config: testConfig(t), Workers: 4, Ratelier: 8}

	w, err := tronc.NewParallelWriter(under, cfg)
	if err != nil {
		t.Fatalf("NewParallelWriter: %v", err)
	}
	payload := bytes.Repeat([]byte("0123456789"), 200) // spans many 64-byte blocks
	if _, err := w.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}
	if err := w.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}

	under.Rewind()
	r, err := tronc.NewParallelReader(under, cfg)
	if err != nil {
		t.Fatalf("NewParallelReader: %v", err)
	}
	got, err := io.ReadAll(dartestReader{r})
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if !bytes.Equal(got, payload) {
		t.Fatalf("parallel round trip mismatch: got %d bytes want %d", len(got), len(payload))
	}
	if err := r.Terminate(); err != nil {
		t.Fatalf("Terminate: %v", err)
	}
}

func TestHeapSizeFormula(t *testing.T) {
	got := tronc.HeapSize(4, 8)
	want := 2*8 + 4 + 8 + tronc.DefaultHeapMargin
	if got != want {
		t.Fatalf("HeapSize(4, 8) = %d, want %d", got, want)
	}
}

// dartestReader adapts any of this package's dar.ByteStream
// implementations to io.Reader for io.ReadAll in these tests.
type dartestReader struct {
	r interface {
		Read([]byte) (int, error)
	}
}

func (d dartestReader) Read(p []byte) (int, error) { return d.r.Read(p) }
