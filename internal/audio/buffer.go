package audio

import (
	"sync"
	"time"
)

// ChunkBuffer accumulates raw PCM chunks read from a capture stream.
// It is written by the capture goroutine and drained by the recorder.
type ChunkBuffer struct {
	chunks    [][]byte
	size      int
	startedAt time.Time
	lastChunk time.Time

	mu sync.RWMutex
}

// BufferStats represents buffer statistics for monitoring
type BufferStats struct {
	Chunks    int       `json:"chunks"`
	Bytes     int       `json:"bytes"`
	StartedAt time.Time `json:"started_at"`
	LastChunk time.Time `json:"last_chunk"`
}

// NewChunkBuffer creates an empty chunk buffer
func NewChunkBuffer() *ChunkBuffer {
	return &ChunkBuffer{}
}

// Append stores a copy of chunk. Empty chunks are ignored.
func (b *ChunkBuffer) Append(chunk []byte) {
	if len(chunk) == 0 {
		return
	}
	c := make([]byte, len(chunk))
	copy(c, chunk)

	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	if len(b.chunks) == 0 {
		b.startedAt = now
	}
	b.chunks = append(b.chunks, c)
	b.size += len(c)
	b.lastChunk = now
}

// Bytes concatenates all buffered chunks in arrival order
func (b *ChunkBuffer) Bytes() []byte {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]byte, 0, b.size)
	for _, c := range b.chunks {
		out = append(out, c...)
	}
	return out
}

// Len returns the number of buffered chunks
func (b *ChunkBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.chunks)
}

// Size returns the number of buffered bytes
func (b *ChunkBuffer) Size() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.size
}

// Reset drops all buffered chunks
func (b *ChunkBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.chunks = nil
	b.size = 0
	b.startedAt = time.Time{}
	b.lastChunk = time.Time{}
}

// GetStats returns current buffer statistics
func (b *ChunkBuffer) GetStats() BufferStats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return BufferStats{
		Chunks:    len(b.chunks),
		Bytes:     b.size,
		StartedAt: b.startedAt,
		LastChunk: b.lastChunk,
	}
}
