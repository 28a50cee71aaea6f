// Package cache implements the adaptive read-or-write buffer of spec
// section 4.2: a ByteStream that sits in front of any other ByteStream
// and grows or shrinks its buffer based on its own observed hit rate.
package cache

import (
	"github.com/dargo-project/dargo"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "cache")

const (
	defaultSize = 4 * 1024
	minSize     = 512
	maxSize     = 1 << 20 // 1 MiB cap, per spec "up to a cap"
)

// mode tracks which side of the cache currently holds buffered state;
// a cache never holds both at once, per spec section 4.2.
type mode int

const (
	modeIdle mode = iota
	modeRead
	modeWrite
)

// Cache wraps a dar.ByteStream, buffering reads or writes depending on
// access pattern. It is not safe for concurrent use, matching spec
// section 4.2's "no concurrency".
type Cache struct {
	under dar.ByteStream

	buf     []byte
	bufBase int64 // absolute offset the buffer starts at
	bufLen  int   // valid bytes in buf (read mode) or pending bytes (write mode)
	m       mode

	pos int64 // current logical position

	hits   int
	misses int
}

// New wraps under in an adaptively sized cache.
func New(under dar.ByteStream) *Cache {
	return &Cache{under: under, buf: make([]byte, defaultSize)}
}

func (c *Cache) Read(p []byte) (int, error) {
	if c.m == modeWrite {
		if err := c.flushWrite(); err != nil {
			return 0, err
		}
	}
	c.m = modeRead

	// Serve from buffer if the current position falls inside it.
	if c.pos >= c.bufBase && c.pos < c.bufBase+int64(c.bufLen) {
		off := int(c.pos - c.bufBase)
		n := copy(p, c.buf[off:c.bufLen])
		c.pos += int64(n)
		c.hits++
		c.maybeResize()
		return n, nil
	}

	c.misses++
	c.maybeResize()

	// Refill: read up to len(c.buf) bytes starting at c.pos.
	if ok, err := c.under.Skip(c.pos); err != nil {
		return 0, err
	} else if !ok {
		return 0, nil
	}
	n, err := c.under.Read(c.buf)
	if n > 0 {
		c.bufBase = c.pos
		c.bufLen = n
		served := copy(p, c.buf[:n])
		c.pos += int64(served)
		return served, err
	}
	return 0, err
}

func (c *Cache) Write(p []byte) (int, error) {
	if c.m == modeRead {
		c.discardRead()
	}
	c.m = modeWrite

	total := 0
	for len(p) > 0 {
		if c.bufLen == len(c.buf) {
			if err := c.flushWrite(); err != nil {
				return total, err
			}
		}
		n := copy(c.buf[c.bufLen:], p)
		c.bufLen += n
		c.pos += int64(n)
		total += n
		p = p[n:]
	}
	return total, nil
}

func (c *Cache) flushWrite() error {
	if c.bufLen == 0 {
		c.m = modeIdle
		return nil
	}
	target := c.pos - int64(c.bufLen)
	if ok, err := c.under.Skip(target); err != nil {
		return err
	} else if !ok {
		return dar.NewError("cache.flushWrite", dar.KindRange, nil)
	}
	if _, err := c.under.Write(c.buf[:c.bufLen]); err != nil {
		return err
	}
	c.bufLen = 0
	c.m = modeIdle
	return nil
}

func (c *Cache) discardRead() {
	c.bufLen = 0
	c.m = modeIdle
}

// maybeResize grows the buffer on a run of hits (spatial locality is
// paying off; bigger reads amortize better) and shrinks it back down
// after a run of misses (the access pattern is not sequential, so a
// large buffer just wastes memory and read-ahead cost).
func (c *Cache) maybeResize() {
	const sampleWindow = 64
	if (c.hits+c.misses)%sampleWindow != 0 {
		return
	}
	rate := float64(c.hits) / float64(c.hits+c.misses)
	switch {
	case rate > 0.8 && len(c.buf) < maxSize:
		newSize := len(c.buf) * 2
		if newSize > maxSize {
			newSize = maxSize
		}
		log.WithFields(logrus.Fields{"old": len(c.buf), "new": newSize, "hitrate": rate}).Debug("growing cache buffer")
		c.resize(newSize)
	case rate < 0.2 && len(c.buf) > minSize:
		newSize := len(c.buf) / 2
		if newSize < minSize {
			newSize = minSize
		}
		log.WithFields(logrus.Fields{"old": len(c.buf), "new": newSize, "hitrate": rate}).Debug("shrinking cache buffer")
		c.resize(newSize)
	}
	c.hits, c.misses = 0, 0
}

func (c *Cache) resize(n int) {
	nb := make([]byte, n)
	keep := c.bufLen
	if keep > n {
		keep = n
	}
	copy(nb, c.buf[:keep])
	c.buf = nb
	if c.bufLen > keep {
		c.bufLen = keep
	}
}

// Skip moves the logical position. Within the current buffer it is
// free; outside it the buffer is flushed (write mode) or discarded
// (read mode), per spec section 4.2.
func (c *Cache) Skip(absOffset int64) (bool, error) {
	if c.m == modeWrite {
		inBuffer := absOffset >= c.bufBase && absOffset <= c.pos
		if !inBuffer {
			if err := c.flushWrite(); err != nil {
				return false, err
			}
			if ok, err := c.under.Skip(absOffset); err != nil || !ok {
				return ok, err
			}
		}
	} else {
		inBuffer := absOffset >= c.bufBase && absOffset < c.bufBase+int64(c.bufLen)
		if !inBuffer {
			c.discardRead()
			if ok, err := c.under.Skip(absOffset); err != nil || !ok {
				return ok, err
			}
		}
	}
	c.pos = absOffset
	return true, nil
}

func (c *Cache) SkipRelative(delta int64) (bool, error) { return c.Skip(c.pos + delta) }

func (c *Cache) SkipToEOF() (bool, error) {
	if c.m == modeWrite {
		if err := c.flushWrite(); err != nil {
			return false, err
		}
	} else {
		c.discardRead()
	}
	ok, err := c.under.SkipToEOF()
	if err != nil || !ok {
		return ok, err
	}
	pos, err := c.under.GetPosition()
	if err != nil {
		return false, err
	}
	c.pos = pos
	return true, nil
}

func (c *Cache) Skippable(dir dar.Direction, amount int64) bool {
	return c.under.Skippable(dir, amount)
}

func (c *Cache) ReadAhead(amount int64) { c.under.ReadAhead(amount) }

func (c *Cache) Truncate(absOffset int64) error {
	if err := c.flushWrite(); err != nil {
		return err
	}
	c.discardRead()
	return c.under.Truncate(absOffset)
}

func (c *Cache) GetPosition() (int64, error) { return c.pos, nil }

// Terminate flushes any pending write and terminates the underlying
// stream.
func (c *Cache) Terminate() error {
	if err := c.flushWrite(); err != nil {
		return err
	}
	return c.under.Terminate()
}

var _ dar.ByteStream = (*Cache)(nil)
