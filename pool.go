// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package uxio

import "sync"

// Copy stages through chunks of this size when the kernel transfer path is
// unavailable; the default pool keeps a bounded number of them warm.
const (
	DefaultChunkSize  = 64 << 10
	DefaultPoolChunks = 32
)

// Chunk is a staging buffer borrowed from a ChunkPool.
type Chunk struct {
	buf      []byte
	pool     *ChunkPool
	pooled   bool
	released bool
}

// Bytes returns the chunk's backing buffer.
func (c *Chunk) Bytes() []byte { return c.buf }

// Release returns the chunk to its pool. Releasing twice is a no-op, and
// releasing an overflow chunk just drops it for the garbage collector.
func (c *Chunk) Release() {
	if c.released {
		return
	}
	c.released = true
	if c.pooled && c.pool != nil {
		c.pool.put(c)
	}
}

// ChunkPool hands out fixed-size staging buffers carved from one contiguous
// arena. Acquire never blocks: when the freelist is empty it degrades to a
// fresh heap allocation so transfers keep moving under pressure.
type ChunkPool struct {
	size int
	free chan *Chunk
}

// NewChunkPool builds a pool of count chunks of size bytes each, all backed
// by a single arena allocation. Non-positive arguments select the defaults.
func NewChunkPool(size, count int) *ChunkPool {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if count <= 0 {
		count = DefaultPoolChunks
	}
	p := &ChunkPool{size: size, free: make(chan *Chunk, count)}
	arena := make([]byte, size*count)
	for i := 0; i < count; i++ {
		p.free <- &Chunk{buf: arena[i*size : (i+1)*size : (i+1)*size], pool: p, pooled: true}
	}
	return p
}

// Acquire borrows a chunk, falling back to a heap allocation when the pool
// is exhausted.
func (p *ChunkPool) Acquire() *Chunk {
	select {
	case c := <-p.free:
		c.released = false
		return c
	default:
		return &Chunk{buf: make([]byte, p.size)}
	}
}

// ChunkSize returns the size of each staging chunk.
func (p *ChunkPool) ChunkSize() int { return p.size }

// Idle reports how many pooled chunks sit on the freelist right now.
func (p *ChunkPool) Idle() int { return len(p.free) }

func (p *ChunkPool) put(c *Chunk) {
	select {
	case p.free <- c:
	default:
	}
}

var (
	transferPoolOnce sync.Once
	transferPool     *ChunkPool
)

// defaultTransferPool is allocated lazily; programs that never leave the
// kernel transfer path pay nothing for it.
func defaultTransferPool() *ChunkPool {
	transferPoolOnce.Do(func() { transferPool = NewChunkPool(DefaultChunkSize, DefaultPoolChunks) })
	return transferPool
}
