package capture

import (
	"sync"
	"time"

	"github.com/duocaplab/duocap/internal/pcm"
)

// Buffer is a bounded single-producer/single-consumer block queue that
// absorbs jitter between the audio callback and its consumer. When full it
// drops the oldest unread block so the producer, which runs in the audio
// context, never stalls. The critical section is a few index updates and a
// slice assignment.
type Buffer struct {
	mu     sync.Mutex
	blocks []pcm.Block
	start  int // index of oldest block
	count  int
	drops  uint64
	closed bool

	notify chan struct{} // pulsed on push
	done   chan struct{} // closed on Close
}

// NewBuffer creates a buffer holding up to capacity blocks. Panics if
// capacity is not positive; the capacity is validated at config load time.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		panic("capture: buffer capacity must be positive")
	}
	return &Buffer{
		blocks: make([]pcm.Block, capacity),
		notify: make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
}

// Push enqueues a block without ever blocking. It returns false when the
// buffer was full and the oldest unread block was dropped to make room.
// Pushes after Close are discarded.
func (b *Buffer) Push(blk pcm.Block) bool {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return true
	}

	dropped := false
	if b.count == len(b.blocks) {
		// Overwrite the oldest block.
		b.start = (b.start + 1) % len(b.blocks)
		b.count--
		b.drops++
		dropped = true
	}
	b.blocks[(b.start+b.count)%len(b.blocks)] = blk
	b.count++
	b.mu.Unlock()

	select {
	case b.notify <- struct{}{}:
	default:
	}
	return !dropped
}

// Pop removes and returns the oldest block. It never blocks; the second
// return value is false when the buffer is empty.
func (b *Buffer) Pop() (pcm.Block, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.popLocked()
}

func (b *Buffer) popLocked() (pcm.Block, bool) {
	if b.count == 0 {
		return pcm.Block{}, false
	}
	blk := b.blocks[b.start]
	b.blocks[b.start] = pcm.Block{}
	b.start = (b.start + 1) % len(b.blocks)
	b.count--
	return blk, true
}

// PopWait behaves like Pop but waits up to timeout for a block to arrive.
// It returns early when the buffer is closed and empty.
func (b *Buffer) PopWait(timeout time.Duration) (pcm.Block, bool) {
	deadline := time.Now().Add(timeout)
	for {
		b.mu.Lock()
		if blk, ok := b.popLocked(); ok {
			b.mu.Unlock()
			return blk, true
		}
		closed := b.closed
		b.mu.Unlock()

		if closed {
			return pcm.Block{}, false
		}
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return pcm.Block{}, false
		}

		timer := time.NewTimer(remaining)
		select {
		case <-b.notify:
			timer.Stop()
		case <-b.done:
			timer.Stop()
		case <-timer.C:
		}
	}
}

// Close marks the buffer as closed. Blocks already enqueued remain
// available to the consumer; further pushes are discarded. Idempotent.
func (b *Buffer) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	b.mu.Unlock()
	close(b.done)
}

// Closed reports whether Close has been called.
func (b *Buffer) Closed() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closed
}

// Len returns the number of blocks currently buffered.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Drops returns how many blocks were discarded due to overflow.
func (b *Buffer) Drops() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.drops
}
