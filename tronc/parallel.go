package tronc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dargo-project/dargo"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.WithField("component", "tronc")

// DefaultHeapMargin is the constant term of the crypto_segment heap
// size formula of spec section 4.6.
const DefaultHeapMargin = 2

// HeapSize returns the crypto_segment heap size of spec section 4.6's
// formula "2·ratelier + N + ratelier + 2", with DefaultHeapMargin as
// the constant term. The parallel cipher only logs this value: no
// pool of that size is allocated, each block's buffer is allocated on
// its own, and nothing caps the blocks in flight at HeapSize.
func HeapSize(workers, ratelier int) int {
	return 2*ratelier + workers + ratelier + DefaultHeapMargin
}

// controlFlag is exchanged on the scatter/gather queues alongside (or
// instead of) data, per spec section 4.6.
type controlFlag int

const (
	flagNormal controlFlag = iota
	flagStop
	flagEOF
	flagDie
	flagDataError
	flagExceptionBelow
	flagExceptionWorker
)

// segment is one crypto_segment: a block in flight through the
// scatter queue, a worker, or the gather queue.
type segment struct {
	index int64
	flag  controlFlag
	data  []byte
	err   error
}

// ParallelConfig extends Config with the worker pool's shape.
type ParallelConfig struct {
	Config
	Workers  int // N in spec section 4.6
	Ratelier int // queue capacity
}

func (c ParallelConfig) normalized() ParallelConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.Ratelier <= 0 {
		c.Ratelier = 2 * c.Workers
	}
	return c
}

// ParallelTronc implements dar.ByteStream like Tronc, but decrypts (or
// encrypts) with a feeder/worker-pool/drainer pipeline, per spec
// section 4.6.
type ParallelTronc struct {
	under dar.ByteStream
	bc    *blockCipher
	cfg   ParallelConfig
	mode  dar.Mode

	ctx    context.Context
	cancel context.CancelFunc
	grp    *errgroup.Group

	scatter chan segment
	gather  chan segment

	mu       sync.Mutex
	pos      int64
	clearEnd int64 // -1 until known

	pending  map[int64]segment // out-of-order arrivals at the drainer, read side
	nextWant int64

	writeBlock int64
	writeBuf   []byte

	started bool
}

// NewParallelReader starts a decrypting pipeline over under, per spec
// section 4.6.
func NewParallelReader(under dar.ByteStream, cfg ParallelConfig) (*ParallelTronc, error) {
	pt, err := newParallelTronc(under, cfg)
	if err != nil {
		return nil, err
	}
	pt.mode = dar.ModeRead
	pt.clearEnd = -1
	pt.pending = make(map[int64]segment)
	pt.startReadPipeline(0)
	return pt, nil
}

// NewParallelWriter starts an encrypting pipeline over under.
func NewParallelWriter(under dar.ByteStream, cfg ParallelConfig) (*ParallelTronc, error) {
	pt, err := newParallelTronc(under, cfg)
	if err != nil {
		return nil, err
	}
	pt.mode = dar.ModeWrite
	pt.startWritePipeline()
	return pt, nil
}

func newParallelTronc(under dar.ByteStream, cfg ParallelConfig) (*ParallelTronc, error) {
	cfg = cfg.normalized()
	bc, err := newBlockCipher(cfg.Key, cfg.IVSeed)
	if err != nil {
		return nil, dar.NewError("tronc.newParallelTronc", dar.KindRange, err)
	}
	if cfg.TrailingClear == nil {
		cfg.TrailingClear = NoTrailingClear
	}
	heap := HeapSize(cfg.Workers, cfg.Ratelier)
	pt := &ParallelTronc{
		under:   under,
		bc:      bc,
		cfg:     cfg,
		scatter: make(chan segment, cfg.Ratelier),
		gather:  make(chan segment, cfg.Ratelier),
	}
	log.WithFields(logrus.Fields{"workers": cfg.Workers, "ratelier": cfg.Ratelier, "heap": heap}).Debug("sizing parallel tronconneuse pipeline")
	return pt, nil
}

// startReadPipeline launches the feeder and worker goroutines reading
// blocks starting at fromBlock. Called at construction time and again
// by Skip when the target offset falls outside the queued region.
func (pt *ParallelTronc) startReadPipeline(fromBlock int64) {
	ctx, cancel := context.WithCancel(context.Background())
	grp, gctx := errgroup.WithContext(ctx)
	pt.ctx, pt.cancel, pt.grp = ctx, cancel, grp
	pt.nextWant = fromBlock

	grp.Go(func() error { return pt.feedDecrypt(gctx, fromBlock) })
	for i := 0; i < pt.cfg.Workers; i++ {
		grp.Go(func() error { return pt.decryptWorker(gctx) })
	}
	pt.started = true
}

func (pt *ParallelTronc) startWritePipeline() {
	ctx, cancel := context.WithCancel(context.Background())
	grp, gctx := errgroup.WithContext(ctx)
	pt.ctx, pt.cancel, pt.grp = ctx, cancel, grp
	for i := 0; i < pt.cfg.Workers; i++ {
		grp.Go(func() error { return pt.encryptWorker(gctx) })
	}
	pt.started = true
}

// feedDecrypt is the feeder of spec section 4.6's decrypt side: it
// reads encrypted blocks sequentially from under and hands them to
// workers via the scatter queue.
func (pt *ParallelTronc) feedDecrypt(ctx context.Context, fromBlock int64) error {
	encSize := EncryptedBlockSizeFor(pt.cfg.ClearBlockSize)
	if _, err := pt.under.Skip(pt.cfg.InitialShift + fromBlock*encSize); err != nil {
		pt.sendGather(segment{flag: flagExceptionBelow, err: err})
		return err
	}
	n := fromBlock
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		buf := make([]byte, encSize)
		got, err := io.ReadFull(dar.ReadWriteSeekStream{S: pt.under}, buf)
		if got == 0 {
			select {
			case pt.scatter <- segment{index: n, flag: flagEOF}:
			case <-ctx.Done():
			}
			return nil
		}
		select {
		case pt.scatter <- segment{index: n, flag: flagNormal, data: buf[:got]}:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err != nil { // short final block, EOF follows on next loop
			select {
			case pt.scatter <- segment{index: n + 1, flag: flagEOF}:
			case <-ctx.Done():
			}
			return nil
		}
		n++
	}
}

// decryptWorker is one of N workers of spec section 4.6's decrypt side.
func (pt *ParallelTronc) decryptWorker(ctx context.Context) error {
	for {
		select {
		case s, ok := <-pt.scatter:
			if !ok {
				return nil
			}
			if s.flag != flagNormal {
				pt.sendGather(s)
				if s.flag == flagEOF {
					return nil
				}
				continue
			}
			clear, err := pt.bc.decryptBlock(s.index, s.data)
			if err != nil {
				clearEnd, cerr := pt.cfg.TrailingClear(pt.under)
				if cerr == nil && clearEnd >= 0 {
					pt.sendGather(segment{index: s.index, flag: flagEOF})
					return nil
				}
				pt.sendGather(segment{index: s.index, flag: flagDataError, err: err})
				return err
			}
			pt.sendGather(segment{index: s.index, flag: flagNormal, data: clear})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (pt *ParallelTronc) sendGather(s segment) {
	select {
	case pt.gather <- s:
	case <-pt.ctx.Done():
	}
}

// encryptWorker is a write-side worker: it pulls clear blocks queued
// by Write and pushes each encrypted block to the gather queue as soon
// as it is done, tagged with the block index assigned at submission;
// drainWrites uses that index to write the blocks to under in order.
func (pt *ParallelTronc) encryptWorker(ctx context.Context) error {
	for {
		select {
		case s, ok := <-pt.scatter:
			if !ok {
				return nil
			}
			if s.flag == flagDie {
				return nil
			}
			enc := pt.bc.encryptBlock(s.index, s.data)
			pt.sendGather(segment{index: s.index, flag: flagNormal, data: enc})
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Read drains the gather queue in block order, buffering out-of-order
// arrivals in pt.pending, per spec section 4.6's ordering guarantee.
func (pt *ParallelTronc) Read(buf []byte) (int, error) {
	if pt.mode != dar.ModeRead {
		return 0, dar.NewError("tronc.Read", dar.KindRange, errors.New("stream opened for writing"))
	}
	total := 0
	for total < len(buf) {
		block := pt.pos / pt.cfg.ClearBlockSize
		inBlock := pt.pos % pt.cfg.ClearBlockSize
		data, eof, err := pt.fetchBlock(block)
		if err != nil {
			if total > 0 {
				return total, nil
			}
			return 0, err
		}
		if eof || inBlock >= int64(len(data)) {
			if total > 0 {
				return total, nil
			}
			return 0, io.EOF
		}
		n := copy(buf[total:], data[inBlock:])
		total += n
		pt.pos += int64(n)
	}
	return total, nil
}

// fetchBlock returns the decrypted content of block n, pulling from
// the gather queue (and buffering arrivals that outran it) until n is
// found.
func (pt *ParallelTronc) fetchBlock(n int64) (data []byte, eof bool, err error) {
	pt.mu.Lock()
	if s, ok := pt.pending[n]; ok {
		delete(pt.pending, n)
		pt.mu.Unlock()
		return pt.interpret(s)
	}
	pt.mu.Unlock()

	for {
		select {
		case s, ok := <-pt.gather:
			if !ok {
				return nil, true, nil
			}
			if s.index == n {
				return pt.interpret(s)
			}
			pt.mu.Lock()
			pt.pending[s.index] = s
			pt.mu.Unlock()
		case <-pt.ctx.Done():
			return nil, false, pt.ctx.Err()
		}
	}
}

func (pt *ParallelTronc) interpret(s segment) ([]byte, bool, error) {
	switch s.flag {
	case flagNormal:
		if int64(len(s.data)) < pt.cfg.ClearBlockSize {
			pt.clearEnd = s.index*pt.cfg.ClearBlockSize + int64(len(s.data))
		}
		return s.data, false, nil
	case flagEOF:
		pt.clearEnd = s.index * pt.cfg.ClearBlockSize
		return nil, true, nil
	case flagDataError:
		return nil, false, dar.NewError("tronc.fetchBlock", dar.KindData, fmt.Errorf("%w at block %d", s.err, s.index))
	default:
		return nil, false, dar.NewError("tronc.fetchBlock", dar.KindBug, fmt.Errorf("unexpected control flag %d from pipeline", s.flag))
	}
}

func (pt *ParallelTronc) Write(buf []byte) (int, error) {
	if pt.mode != dar.ModeWrite {
		return 0, dar.NewError("tronc.Write", dar.KindRange, errors.New("stream opened for reading"))
	}
	total := 0
	for len(buf) > 0 {
		room := int(pt.cfg.ClearBlockSize) - len(pt.writeBuf)
		n := room
		if n > len(buf) {
			n = len(buf)
		}
		pt.writeBuf = append(pt.writeBuf, buf[:n]...)
		buf = buf[n:]
		total += n
		pt.pos += int64(n)
		if int64(len(pt.writeBuf)) == pt.cfg.ClearBlockSize {
			if err := pt.submitWriteBlock(); err != nil {
				return total, err
			}
		}
	}
	return total, nil
}

func (pt *ParallelTronc) submitWriteBlock() error {
	if len(pt.writeBuf) == 0 {
		return nil
	}
	data := append([]byte(nil), pt.writeBuf...)
	select {
	case pt.scatter <- segment{index: pt.writeBlock, flag: flagNormal, data: data}:
	case <-pt.ctx.Done():
		return pt.ctx.Err()
	}
	pt.writeBlock++
	pt.writeBuf = pt.writeBuf[:0]
	return nil
}

// drainWrites collects every outstanding encrypted block from the
// gather queue, writing them to under in index order, and is called
// from Terminate once no more blocks will be submitted.
func (pt *ParallelTronc) drainWrites(expect int64) error {
	pending := make(map[int64]segment)
	var next int64
	for next < expect {
		if s, ok := pending[next]; ok {
			if _, err := pt.under.Write(s.data); err != nil {
				return dar.NewError("tronc.drainWrites", dar.KindRange, err)
			}
			delete(pending, next)
			next++
			continue
		}
		select {
		case s, ok := <-pt.gather:
			if !ok {
				return dar.NewError("tronc.drainWrites", dar.KindBug, errors.New("gather queue closed before all blocks drained"))
			}
			pending[s.index] = s
		case <-pt.ctx.Done():
			return pt.ctx.Err()
		}
	}
	return nil
}

// Skip implements the seek semantics of spec section 4.6: a target
// outside the queued region issues stop, drains, and restarts the
// feeder at the new block.
func (pt *ParallelTronc) Skip(absOffset int64) (bool, error) {
	if pt.mode != dar.ModeRead {
		return false, dar.NewError("tronc.Skip", dar.KindRange, errors.New("ParallelTronc is append-only in write mode"))
	}
	if absOffset < 0 {
		return false, nil
	}
	block := absOffset / pt.cfg.ClearBlockSize
	pt.mu.Lock()
	if s, ok := pt.pending[block]; ok {
		pt.mu.Unlock()
		_, _, err := pt.interpret(s)
		if err != nil {
			return false, err
		}
		pt.pos = absOffset
		return true, nil
	}
	pt.mu.Unlock()

	pt.cancel()
	_ = pt.grp.Wait()
	for k := range pt.pending {
		delete(pt.pending, k)
	}
	pt.scatter = make(chan segment, pt.cfg.Ratelier)
	pt.gather = make(chan segment, pt.cfg.Ratelier)
	pt.startReadPipeline(block)
	pt.pos = absOffset
	return true, nil
}

func (pt *ParallelTronc) SkipRelative(delta int64) (bool, error) { return pt.Skip(pt.pos + delta) }

func (pt *ParallelTronc) SkipToEOF() (bool, error) {
	if pt.mode != dar.ModeRead {
		return true, nil
	}
	for {
		block := pt.pos / pt.cfg.ClearBlockSize
		data, eof, err := pt.fetchBlock(block)
		if err != nil {
			return false, err
		}
		if eof {
			break
		}
		pt.pos = block*pt.cfg.ClearBlockSize + int64(len(data))
		if int64(len(data)) < pt.cfg.ClearBlockSize {
			break
		}
		pt.pos = (block + 1) * pt.cfg.ClearBlockSize
	}
	if pt.clearEnd >= 0 {
		pt.pos = pt.clearEnd
	}
	return true, nil
}

func (pt *ParallelTronc) Skippable(_ dar.Direction, _ int64) bool { return pt.mode == dar.ModeRead }

func (pt *ParallelTronc) ReadAhead(_ int64) {}

func (pt *ParallelTronc) Truncate(_ int64) error {
	return dar.NewError("tronc.Truncate", dar.KindRange, errors.New("ParallelTronc does not support truncate"))
}

func (pt *ParallelTronc) GetPosition() (int64, error) { return pt.pos, nil }

// Terminate stops every worker and joins them: on the write side it
// first submits any partial final block, closes the scatter queue so
// the workers return, and then drains the gather queue to under in
// order; on the read side it cancels the pipeline's context.
func (pt *ParallelTronc) Terminate() error {
	if !pt.started {
		return pt.under.Terminate()
	}
	if pt.mode == dar.ModeWrite {
		if err := pt.submitWriteBlock(); err != nil {
			return err
		}
		expect := pt.writeBlock
		close(pt.scatter)
		if err := pt.grp.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return dar.NewError("tronc.Terminate", dar.KindBug, err)
		}
		close(pt.gather)
		if err := pt.drainWrites(expect); err != nil {
			return err
		}
	} else {
		pt.cancel()
		_ = pt.grp.Wait()
	}
	return pt.under.Terminate()
}

var _ dar.ByteStream = (*ParallelTronc)(nil)
