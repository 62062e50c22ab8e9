package engine

import (
	"errors"
	"fmt"
	"hash"
	"hash/crc64"
	"io"
	"sync"
)

// ErrChecksumMismatch is returned by Verify when a copy does not read back
// the way it was written.
var ErrChecksumMismatch = errors.New("checksum mismatch")

var crcTable = crc64.MakeTable(crc64.ISO)

// Digest accumulates the CRC64 and length of the bytes written to it.
type Digest struct {
	h hash.Hash64
	n int64
}

// NewDigest returns an empty Digest.
func NewDigest() *Digest {
	return &Digest{h: crc64.New(crcTable)}
}

// Write feeds p into the digest. It never fails.
func (d *Digest) Write(p []byte) (int, error) {
	d.n += int64(len(p))
	return d.h.Write(p)
}

// Sum64 returns the checksum of everything written so far.
func (d *Digest) Sum64() uint64 {
	return d.h.Sum64()
}

// Len returns the number of bytes written so far.
func (d *Digest) Len() int64 {
	return d.n
}

// Reset clears the digest.
func (d *Digest) Reset() {
	d.h.Reset()
	d.n = 0
}

// Tee returns a reader that passes every byte read from r through d.
func (d *Digest) Tee(r io.Reader) io.Reader {
	return io.TeeReader(r, d)
}

// DigestPool recycles digests between the files of a transfer.
type DigestPool struct {
	pool sync.Pool
}

// NewDigestPool creates an empty DigestPool.
func NewDigestPool() *DigestPool {
	return &DigestPool{
		pool: sync.Pool{
			New: func() any { return NewDigest() },
		},
	}
}

// Get returns an empty digest.
func (p *DigestPool) Get() *Digest {
	return p.pool.Get().(*Digest)
}

// Put resets d and returns it to the pool.
func (p *DigestPool) Put(d *Digest) {
	d.Reset()
	p.pool.Put(d)
}

// Sum reads r to EOF through buf and returns its checksum and length.
func (p *DigestPool) Sum(r io.Reader, buf []byte) (uint64, int64, error) {
	d := p.Get()
	defer p.Put(d)

	// struct wrapper hides any WriterTo on r so buf is used
	if _, err := io.CopyBuffer(d, struct{ io.Reader }{r}, buf); err != nil {
		return 0, d.Len(), err
	}
	return d.Sum64(), d.Len(), nil
}

// Verify returns an error wrapping ErrChecksumMismatch when got != want.
func Verify(got, want uint64) error {
	if got != want {
		return fmt.Errorf("%w: got %016x, want %016x", ErrChecksumMismatch, got, want)
	}
	return nil
}
