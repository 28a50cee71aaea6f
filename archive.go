package dar

import (
	"fmt"
	"hash"
	"io"

	"github.com/google/uuid"

	"github.com/dargo-project/dargo/catalogue"
	"github.com/dargo-project/dargo/compressor"
	"github.com/dargo-project/dargo/escape"
	"github.com/dargo-project/dargo/header"
	"github.com/dargo-project/dargo/operator"
	"github.com/dargo-project/dargo/options"
	"github.com/dargo-project/dargo/sar"
	"github.com/dargo-project/dargo/tronc"
)

// Archive is one open archive: the assembled pipeline (sar → escape →
// cipher → compressor) plus the parsed header and catalogue, per spec
// section 3.3's layering and section 6.3's body layout.
type Archive struct {
	Header    header.Header
	Catalogue *catalogue.Catalogue

	payload     ByteStream // compressor.Writer or compressor.Reader: top of the pipeline
	sarStream   ByteStream
	bodyCRC     hash.Hash32 // accumulates the bytes actually stored in the slice set
	internalKey []byte
}

// crcTeeStream wraps a ByteStream, feeding every byte that crosses its
// Read or Write into crc, so the layer sitting directly above sar can
// compute the trailer's BodyCRC without re-reading the archive.
type crcTeeStream struct {
	ByteStream
	crc hash.Hash32
}

func (t *crcTeeStream) Write(p []byte) (int, error) {
	n, err := t.ByteStream.Write(p)
	if n > 0 {
		t.crc.Write(p[:n])
	}
	return n, err
}

func (t *crcTeeStream) Read(p []byte) (int, error) {
	n, err := t.ByteStream.Read(p)
	if n > 0 {
		t.crc.Write(p[:n])
	}
	return n, err
}

// buildPipelineWriter and buildPipelineReader wire sar → escape →
// cipher → compressor around under
// (a sar.Writer or sar.Reader, both of which already implement
// ByteStream), per spec section 3.1's "catalogue builder → compressor
// → cipher → escape → sar" data flow.
func buildPipelineWriter(under ByteStream, cipherAlgo tronc.Algo, key []byte, ivSeed [16]byte, compAlgo compressor.Algo, compLevel int) (ByteStream, error) {
	escaped := escape.NewWriter(under)

	var ciphered ByteStream = escaped
	if cipherAlgo != tronc.AlgoNone {
		tr, err := tronc.NewWriter(escaped, tronc.Config{
			Key:            key,
			IVSeed:         ivSeed,
			ClearBlockSize: 4096,
		})
		if err != nil {
			return nil, err
		}
		ciphered = tr
	}

	return compressor.NewWriter(ciphered, compAlgo, compLevel)
}

func buildPipelineReader(under ByteStream, cipherAlgo tronc.Algo, key []byte, ivSeed [16]byte, compAlgo compressor.Algo) (ByteStream, error) {
	escaped := escape.NewReader(under)

	var ciphered ByteStream = escaped
	if cipherAlgo != tronc.AlgoNone {
		tr, err := tronc.NewReader(escaped, tronc.Config{
			Key:            key,
			IVSeed:         ivSeed,
			ClearBlockSize: 4096,
		})
		if err != nil {
			return nil, err
		}
		ciphered = tr
	}

	return compressor.NewReader(ciphered, compAlgo)
}

// Create begins a new archive rooted at nm, per spec section 3.3: it
// opens the sar slice writer, writes the archive header, and prepares
// the payload pipeline for the caller to stream catalogue data into.
func Create(nm sar.Naming, sliceOpts sar.WriteOptions, op operator.Interaction, opts options.Create) (*Archive, error) {
	internalName := uuid.New()
	dataName := uuid.New()

	w, err := sar.NewWriter(nm, internalName, sliceOpts, op)
	if err != nil {
		return nil, fmt.Errorf("dar: creating archive: %w", err)
	}

	h := header.Header{
		Version:         header.Version,
		CompressionAlgo: opts.CompressionAlgo,
		CipherAlgo:      opts.EncryptionAlgo,
		InternalName:    internalName,
		DataName:        dataName,
	}
	if opts.SequentialRead {
		h.Flags.Set(header.FlagSequentialRead)
	}

	var key []byte
	if opts.EncryptionAlgo != tronc.AlgoNone {
		h.Flags.Set(header.FlagHasCrypto)
		salt, err := tronc.RandomSalt()
		if err != nil {
			return nil, err
		}
		ivSeed, err := tronc.RandomSalt()
		if err != nil {
			return nil, err
		}
		h.CipherSalt = salt
		h.CipherIVSeed = ivSeed
		passphrase := opts.EncryptionKey
		if passphrase == "" {
			passphrase, err = op.GetSecret("archive passphrase")
			if err != nil {
				return nil, err
			}
		}
		key = tronc.DeriveKey(passphrase, salt)
	}

	if err := h.Encode(w); err != nil {
		return nil, fmt.Errorf("dar: writing header: %w", err)
	}

	crc := header.NewCRC32()
	teed := &crcTeeStream{ByteStream: w, crc: crc}

	payload, err := buildPipelineWriter(teed, opts.EncryptionAlgo, key, h.CipherIVSeed, opts.CompressionAlgo, opts.CompressionLevel)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Header:      h,
		Catalogue:   catalogue.NewCatalogue(catalogue.NewDirectory("", catalogue.InodeCommon{}, catalogue.StatusSaved)),
		payload:     payload,
		sarStream:   w,
		bodyCRC:     crc,
		internalKey: key,
	}, nil
}

// WriteCatalogue dumps the archive's catalogue to the payload stream
// at its current position and returns a trailer carrying that
// position as CatalogueOffset, for the caller to pass to Close. No
// escape mark is written around the dump, whether or not the header's
// sequential-read flag is set, and nothing is flushed here: Close
// writes the trailer and terminates the pipeline.
func (a *Archive) WriteCatalogue(codec *catalogue.Codec) (header.Trailer, error) {
	offset, err := a.payload.GetPosition()
	if err != nil {
		return header.Trailer{}, err
	}
	if err := codec.Dump(ReadWriteSeekStream{S: a.payload}, a.Catalogue.Root); err != nil {
		return header.Trailer{}, err
	}
	return header.Trailer{CatalogueOffset: uint64(offset)}, nil
}

// Close fills in tr.BodyCRC from everything written to the slice set
// so far, appends tr to the payload pipeline, then terminates it,
// flushing compression and cipher state down to the underlying sar
// writer and closing its current slice as Terminal. The trailer must
// be written before Terminate runs: sar.Writer closes its file handle
// as part of terminating, so anything written afterward through the
// same sar stream would hit a slice that is no longer open. The CRC
// is captured before the trailer itself is written, so the trailer's
// own bytes are not folded into the checksum it carries.
func (a *Archive) Close(tr header.Trailer) error {
	tr.BodyCRC = a.bodyCRC.Sum32()
	if err := tr.Encode(ReadWriteSeekStream{S: a.payload}); err != nil {
		return err
	}
	return a.payload.Terminate()
}

// VerifyBodyCRC reports whether everything read from the archive body
// so far matches tr.BodyCRC. Call it after ReadCatalogue and before
// ReadTrailer, mirroring the point at which Close captured the sum.
func (a *Archive) VerifyBodyCRC(tr header.Trailer) bool {
	return a.bodyCRC.Sum32() == tr.BodyCRC
}

// ReadTrailer reads back a Trailer written by Close. Call it right
// after ReadCatalogue, since the trailer immediately follows the
// catalogue in the payload stream.
func (a *Archive) ReadTrailer() (header.Trailer, error) {
	return header.DecodeTrailer(ReadWriteSeekStream{S: a.payload})
}

// Open reads back an archive written by Create, per spec section
// 6.3: it opens the sar reader, decodes the header, and prepares the
// payload pipeline for catalogue parsing.
func Open(nm sar.Naming, op operator.Interaction, opts options.Extract) (*Archive, error) {
	r, err := sar.OpenReader(nm, op)
	if err != nil {
		return nil, fmt.Errorf("dar: opening archive: %w", err)
	}
	h, err := header.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("dar: reading header: %w", err)
	}

	var key []byte
	if h.CipherAlgo != tronc.AlgoNone {
		passphrase := opts.EncryptionKey
		if passphrase == "" {
			passphrase, err = op.GetSecret("archive passphrase")
			if err != nil {
				return nil, err
			}
		}
		key = tronc.DeriveKey(passphrase, h.CipherSalt)
	}

	crc := header.NewCRC32()
	teed := &crcTeeStream{ByteStream: r, crc: crc}

	payload, err := buildPipelineReader(teed, h.CipherAlgo, key, h.CipherIVSeed, h.CompressionAlgo)
	if err != nil {
		return nil, err
	}

	return &Archive{
		Header:      h,
		Catalogue:   catalogue.NewCatalogue(catalogue.NewDirectory("", catalogue.InodeCommon{}, catalogue.StatusSaved)),
		payload:     payload,
		sarStream:   r,
		bodyCRC:     crc,
		internalKey: key,
	}, nil
}

// ReadCatalogue parses the catalogue dump starting at the payload
// stream's current position, per spec section 6.3 item 3.
func (a *Archive) ReadCatalogue(codec *catalogue.Codec) error {
	codec.LegacyTags = a.Header.Version == header.LegacyVersion
	root, err := codec.Parse(ReadWriteSeekStream{S: a.payload})
	if err != nil {
		return err
	}
	dir, ok := root.(*catalogue.Directory)
	if !ok {
		return Bug("ReadCatalogue", "I-CAT-ROOT", fmt.Errorf("catalogue root dumped as %T, not a directory", root))
	}
	a.Catalogue = catalogue.NewCatalogue(dir)
	return nil
}

// Payload exposes the top of the pipeline for streaming file data in
// or out, used by the capture/restore drivers.
func (a *Archive) Payload() ByteStream { return a.payload }

// archiveFileSource is a catalogue.DataSource windowing one file's
// data out of the archive's payload stream, per spec section 6.3's
// sequential-read layout: file data precedes the catalogue dump, so a
// restore driver reads each file's bytes as it streams past, the same
// order Offset/StoredSize were recorded in during capture.
type archiveFileSource struct {
	payload ByteStream
	offset  int64
	size    int64
}

func (s *archiveFileSource) Open() (catalogue.ReadSeekCloser, error) {
	return &fileDataReadCloser{sub: NewSubStream(s.payload, s.offset, s.size)}, nil
}

// fileDataReadCloser adapts a SubStream to catalogue.ReadSeekCloser.
// It only supports reading forward from wherever the payload stream
// currently sits: compressor.Reader cannot seek a compressed stream,
// so unlike catalogue.ArchiveRange (which windows an uncompressed,
// independently seekable stream) this type cannot honor an arbitrary
// Seek. A no-op SeekCurrent(0), used by callers that just want the
// current offset, is the only Seek this type accepts.
type fileDataReadCloser struct {
	sub *SubStream
}

func (f *fileDataReadCloser) Read(p []byte) (int, error) { return f.sub.Read(p) }

func (f *fileDataReadCloser) Seek(offset int64, whence int) (int64, error) {
	if whence == io.SeekCurrent && offset == 0 {
		return f.sub.GetPosition()
	}
	return 0, NewError("Archive.FileDataSource.Seek", KindRange,
		fmt.Errorf("archive payload data is read forward-only once compressed"))
}

func (f *fileDataReadCloser) Close() error { return nil }

// FileDataSource returns a catalogue.DataSource windowing [offset,
// offset+size) of the archive's payload stream, for wiring into a
// File entry's ArchiveData on the read side.
func (a *Archive) FileDataSource(offset, size int64) catalogue.DataSource {
	return &archiveFileSource{payload: a.payload, offset: offset, size: size}
}

// Isolate writes a standalone catalogue-only archive body to dst: src's
// header (with no encryption or compression, since an isolated
// catalogue is meant to be cheaply greppable), src's catalogue dump,
// and a fresh trailer with no payload section, per the isolate
// operation named in spec.md's PURPOSE.
func Isolate(src *Archive, dst io.Writer) error {
	h := src.Header
	h.CipherAlgo = tronc.AlgoNone
	h.CompressionAlgo = compressor.AlgoNone
	h.Flags = 0
	if err := h.Encode(dst); err != nil {
		return fmt.Errorf("dar: isolating header: %w", err)
	}

	crc := header.NewCRC32()
	tee := io.MultiWriter(dst, crc)
	codec := catalogue.NewCodec()
	if err := codec.Dump(tee, src.Catalogue.Root); err != nil {
		return fmt.Errorf("dar: isolating catalogue: %w", err)
	}

	trailer := header.Trailer{CatalogueOffset: 0, BodyCRC: crc.Sum32()}
	return trailer.Encode(dst)
}
