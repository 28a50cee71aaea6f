package header_test

import (
	"bytes"
	"testing"

	"github.com/google/uuid"

	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/header"
	"github.com/dargo-project/dargo/tronc"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := header.Header{
		Version:         header.Version,
		CompressionAlgo: compressor.AlgoZstd,
		CipherAlgo:      tronc.AlgoAES256,
		InternalName:    uuid.New(),
		DataName:        uuid.New(),
	}
	h.Flags.Set(header.FlagSequentialRead)
	h.Flags.Set(header.FlagHasCrypto)

	var buf bytes.Buffer
	if err := h.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := header.Decode(&buf)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.InternalName != h.InternalName || got.DataName != h.DataName {
		t.Fatalf("uuid mismatch: %+v vs %+v", got, h)
	}
	if !got.Flags.Has(header.FlagSequentialRead) || !got.Flags.Has(header.FlagHasCrypto) {
		t.Fatalf("flags lost: %v", got.Flags)
	}
	if got.Flags.Has(header.FlagHasFSA) {
		t.Fatalf("unexpected flag set")
	}
}

func TestTrailerRoundTrip(t *testing.T) {
	tr := header.Trailer{CatalogueOffset: 123456, BodyCRC: 0xabcdef01}
	var buf bytes.Buffer
	if err := tr.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := header.DecodeTrailer(&buf)
	if err != nil {
		t.Fatalf("DecodeTrailer: %v", err)
	}
	if got != tr {
		t.Fatalf("trailer mismatch: %+v vs %+v", got, tr)
	}
}

func TestFlagsManyBits(t *testing.T) {
	var f header.Flags
	f.Set(header.Flag(1 << 20))
	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		t.Fatalf("WriteTo: %v", err)
	}
	if buf.Len() < 3 {
		t.Fatalf("expected continuation bytes for a high bit, got %d bytes", buf.Len())
	}
	got, _, err := header.ReadFlags(&buf)
	if err != nil {
		t.Fatalf("ReadFlags: %v", err)
	}
	if got != f {
		t.Fatalf("flags mismatch: %v vs %v", got, f)
	}
}
