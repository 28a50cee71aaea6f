package catalogue

import (
	"bytes"
	"testing"

	"github.com/dargo-project/dargo/infinint"
)

// TestDecodeLegacyTagDispatch exercises the single-byte legacy tag
// form through Codec.Parse with LegacyTags set, the path a caller
// reaches when an archive's header reports header.LegacyVersion.
func TestDecodeLegacyTagDispatch(t *testing.T) {
	var buf bytes.Buffer

	// A legacy-encoded saved file: lowercase letter, no high bit.
	buf.WriteByte(byte(KindFile))
	if err := writeString(&buf, "legacy.txt"); err != nil {
		t.Fatal(err)
	}
	if err := writeCommon(&buf, InodeCommon{Perm: 0o600}); err != nil {
		t.Fatal(err)
	}
	if err := writeInfinint(&buf, infinint.FromUint64(4)); err != nil { // Size
		t.Fatal(err)
	}
	if err := writeInfinint(&buf, infinint.FromUint64(4)); err != nil { // StoredSize
		t.Fatal(err)
	}
	if err := writeBool(&buf, false); err != nil { // Sparse
		t.Fatal(err)
	}
	if err := writeInfinint(&buf, infinint.FromUint64(0)); err != nil { // Offset
		t.Fatal(err)
	}
	if err := writeU32(&buf, 0xcafef00d); err != nil { // CRC
		t.Fatal(err)
	}
	if err := writeBool(&buf, false); err != nil { // hasDelta
		t.Fatal(err)
	}
	if err := writeEA(&buf, nil); err != nil {
		t.Fatal(err)
	}
	if err := writeFSA(&buf, nil); err != nil {
		t.Fatal(err)
	}

	c := NewCodec()
	c.LegacyTags = true
	e, err := c.Parse(&buf)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	f, ok := e.(*File)
	if !ok {
		t.Fatalf("expected *File, got %T", e)
	}
	if f.Name() != "legacy.txt" || f.Status != StatusSaved || f.CRC != 0xcafef00d {
		t.Fatalf("legacy tag decoded wrong: %+v", f)
	}
}

// TestDecodeLegacyTagNotSaved confirms the historical uppercase-letter
// convention (not_saved) decodes correctly in isolation from Parse.
func TestDecodeLegacyTagNotSaved(t *testing.T) {
	tg, err := decodeLegacyTag('F')
	if err != nil {
		t.Fatalf("decodeLegacyTag: %v", err)
	}
	if tg.kind != KindFile || tg.status != StatusNotSaved {
		t.Fatalf("unexpected decode: %+v", tg)
	}
}
