package dar_test

import (
	"bytes"
	"io"
	"testing"

	dar "github.com/dargo-project/dargo"
	"github.com/dargo-project/dargo/catalogue"
	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/infinint"
	"github.com/dargo-project/dargo/operator"
	"github.com/dargo-project/dargo/options"
	"github.com/dargo-project/dargo/sar"
	"github.com/dargo-project/dargo/tronc"
)

func TestCreateWriteCatalogueOpenReadCatalogue(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	op := operator.Silent{}

	createOpts := options.Create{
		CompressionAlgo: compressor.AlgoGzip,
		EncryptionAlgo:  tronc.AlgoAES256,
		EncryptionKey:   "correct horse battery staple",
	}

	a, err := dar.Create(nm, sar.WriteOptions{FirstSliceSize: 0}, op, createOpts)
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	f := catalogue.NewFile("hello.txt", catalogue.InodeCommon{
		UID: infinint.FromUint64(0), GID: infinint.FromUint64(0), Perm: 0o644,
	}, catalogue.StatusSaved)
	f.Size = infinint.FromUint64(5)
	f.StoredSize = infinint.FromUint64(5)
	f.CRC = 0x12345678
	a.Catalogue.Root.AddChild(f)

	codec := catalogue.NewCodec()
	trailer, err := a.WriteCatalogue(codec)
	if err != nil {
		t.Fatalf("WriteCatalogue: %v", err)
	}
	if err := a.Close(trailer); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := dar.Open(nm, op, options.Extract{EncryptionKey: "correct horse battery staple"})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	readCodec := catalogue.NewCodec()
	if err := reopened.ReadCatalogue(readCodec); err != nil {
		t.Fatalf("ReadCatalogue: %v", err)
	}
	if len(reopened.Catalogue.Root.Children) != 1 {
		t.Fatalf("expected 1 child, got %d", len(reopened.Catalogue.Root.Children))
	}
	if reopened.Catalogue.Root.Children[0].Name() != "hello.txt" {
		t.Fatalf("unexpected child name %q", reopened.Catalogue.Root.Children[0].Name())
	}

	readTrailer, err := reopened.ReadTrailer()
	if err != nil {
		t.Fatalf("ReadTrailer: %v", err)
	}
	if readTrailer.CatalogueOffset != trailer.CatalogueOffset {
		t.Fatalf("catalogue offset mismatch: got %d, want %d", readTrailer.CatalogueOffset, trailer.CatalogueOffset)
	}
}

func TestFileDataSourceReadsWindowedPayload(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	op := operator.Silent{}

	a, err := dar.Create(nm, sar.WriteOptions{}, op, options.Create{CompressionAlgo: compressor.AlgoNone})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	want := []byte("hello file data")
	offset, err := a.Payload().GetPosition()
	if err != nil {
		t.Fatalf("GetPosition: %v", err)
	}
	if _, err := a.Payload().Write(want); err != nil {
		t.Fatalf("Write: %v", err)
	}

	codec := catalogue.NewCodec()
	trailer, err := a.WriteCatalogue(codec)
	if err != nil {
		t.Fatalf("WriteCatalogue: %v", err)
	}
	if err := a.Close(trailer); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened, err := dar.Open(nm, op, options.Extract{})
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	src := reopened.FileDataSource(offset, int64(len(want)))
	rc, err := src.Open()
	if err != nil {
		t.Fatalf("FileDataSource.Open: %v", err)
	}
	got := make([]byte, len(want))
	if _, err := io.ReadFull(rc, got); err != nil {
		t.Fatalf("reading file data: %v", err)
	}
	if !bytes.Equal(got, want) {
		t.Fatalf("got %q, want %q", got, want)
	}
	if err := rc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	readCodec := catalogue.NewCodec()
	if err := reopened.ReadCatalogue(readCodec); err != nil {
		t.Fatalf("ReadCatalogue after reading file data: %v", err)
	}
}

func TestIsolate(t *testing.T) {
	dir := t.TempDir()
	nm := sar.Naming{Dir: dir, Base: "archive", Ext: "dar"}
	op := operator.Silent{}

	a, err := dar.Create(nm, sar.WriteOptions{}, op, options.Create{CompressionAlgo: compressor.AlgoNone})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	a.Catalogue.Root.AddChild(catalogue.NewFile("a.txt", catalogue.InodeCommon{}, catalogue.StatusSaved))

	codec := catalogue.NewCodec()
	trailer, err := a.WriteCatalogue(codec)
	if err != nil {
		t.Fatalf("WriteCatalogue: %v", err)
	}
	if err := a.Close(trailer); err != nil {
		t.Fatalf("Close: %v", err)
	}

	var buf bytes.Buffer
	if err := dar.Isolate(a, &buf); err != nil {
		t.Fatalf("Isolate: %v", err)
	}
	if buf.Len() == 0 {
		t.Fatalf("expected isolate to write a non-empty body")
	}
}
