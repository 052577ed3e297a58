package testutil

import (
	"sync"

	"github.com/cfu-project/cfu/pkg/cfu"
)

// FakeAuthenticator implements target.Authenticator for tests that need to
// control pass/fail behavior per component without a real signature scheme.
type FakeAuthenticator struct {
	mu         sync.Mutex
	failFor    map[uint8]bool
	calls      []uint8
}

// NewFakeAuthenticator creates an authenticator that passes every component
// until told otherwise via FailFor.
func NewFakeAuthenticator() *FakeAuthenticator {
	return &FakeAuthenticator{failFor: make(map[uint8]bool)}
}

// FailFor makes Authenticate return an error for componentID.
func (f *FakeAuthenticator) FailFor(componentID uint8) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failFor[componentID] = true
}

func (f *FakeAuthenticator) Authenticate(componentID uint8) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, componentID)
	if f.failFor[componentID] {
		return cfu.NewError(cfu.CodeSignatureFailure, "fake authenticator configured to fail")
	}
	return nil
}

// Calls returns the component IDs Authenticate was invoked with, in order.
func (f *FakeAuthenticator) Calls() []uint8 {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]uint8, len(f.calls))
	copy(out, f.calls)
	return out
}

// FakeBufferPool is a minimal fixed-size buffer pool used by content-loop
// tests that want to exercise backpressure without allocating per block.
type FakeBufferPool struct {
	mu        sync.Mutex
	buffers   [][]byte
	available []int
}

// NewFakeBufferPool creates a pool of count buffers of bufferSize bytes.
func NewFakeBufferPool(bufferSize, count int) *FakeBufferPool {
	pool := &FakeBufferPool{
		buffers:   make([][]byte, count),
		available: make([]int, 0, count),
	}
	for i := 0; i < count; i++ {
		pool.buffers[i] = make([]byte, bufferSize)
		pool.available = append(pool.available, i)
	}
	return pool
}

// Acquire gets a buffer from the pool.
func (p *FakeBufferPool) Acquire() ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.available) == 0 {
		return nil, cfu.NewError(cfu.CodeBusy, "buffer pool exhausted")
	}

	idx := p.available[len(p.available)-1]
	p.available = p.available[:len(p.available)-1]
	return p.buffers[idx], nil
}

// Release returns a buffer to the pool.
func (p *FakeBufferPool) Release(buf []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for i, b := range p.buffers {
		if &b[0] == &buf[0] {
			p.available = append(p.available, i)
			return
		}
	}
}

// Available returns the number of free buffers.
func (p *FakeBufferPool) Available() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.available)
}

// MakeFirmwareImage builds a deterministic firmware payload of size bytes,
// useful for content-loop and CRC tests that need reproducible content.
func MakeFirmwareImage(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte((i*17 + 11) % 256)
	}
	return data
}
