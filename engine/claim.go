package engine

import (
	"sync/atomic"
	"time"
)

// Chunk is a contiguous group of operation indices owned by one worker.
type Chunk struct {
	Start uint64
	Len   uint64
}

// Index returns the i-th operation index of the chunk in a list of n
// operations. Duration runs replay the list, so indices wrap.
func (c Chunk) Index(i, n uint64) uint64 {
	return (c.Start + i) % n
}

// WorkQueue hands out chunks of a pre-generated operation list through a
// single atomic cursor.
type WorkQueue struct {
	cursor atomic.Uint64
	size   uint64
	chunk  uint64
}

// NewWorkQueue returns a queue over size operations claimed chunk at a time.
func NewWorkQueue(size, chunk uint64) *WorkQueue {
	return &WorkQueue{size: size, chunk: max(chunk, 1)}
}

// Claim reserves the next chunk for a fixed-size run. It fails once the
// cursor has passed the end of the list; the final chunk is clamped to the
// remaining operations.
func (q *WorkQueue) Claim() (Chunk, bool) {
	start := q.cursor.Add(q.chunk) - q.chunk
	if start >= q.size {
		return Chunk{}, false
	}

	return Chunk{Start: start, Len: min(q.chunk, q.size-start)}, true
}

// ClaimUntil reserves the next chunk for a duration run. It fails once
// deadline has passed; otherwise it always succeeds and the returned chunk
// wraps around the operation list.
func (q *WorkQueue) ClaimUntil(deadline time.Time) (Chunk, bool) {
	if q.size == 0 || !time.Now().Before(deadline) {
		return Chunk{}, false
	}

	start := q.cursor.Add(q.chunk) - q.chunk

	return Chunk{Start: start % q.size, Len: q.chunk}, true
}

// Size returns the number of operations behind the queue.
func (q *WorkQueue) Size() uint64 { return q.size }

// ChunkCounter counts down virtual chunks of custom-operation workloads.
// Concurrent claims may drive it below zero; a claim only succeeds while the
// value after its own decrement is not negative, so no more than the initial
// total is ever granted.
type ChunkCounter struct {
	remaining atomic.Int64
}

// NewChunkCounter returns a counter granting total claims.
func NewChunkCounter(total uint64) *ChunkCounter {
	c := &ChunkCounter{}
	c.remaining.Store(int64(total))

	return c
}

// Claim takes one chunk.
func (c *ChunkCounter) Claim() bool {
	return c.remaining.Add(-1) >= 0
}

// Remaining returns the raw counter value, negative after overshoot.
func (c *ChunkCounter) Remaining() int64 {
	return c.remaining.Load()
}
