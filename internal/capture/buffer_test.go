package capture

import (
	"testing"
	"time"

	"github.com/duocaplab/duocap/internal/pcm"
)

func makeBlock(seq uint64) pcm.Block {
	return pcm.Block{Seq: seq, SampleRate: 48000, Channels: 1, Samples: make([]float32, 480)}
}

func TestBuffer_PushPop_Order(t *testing.T) {
	buf := NewBuffer(10)

	for seq := uint64(1); seq <= 5; seq++ {
		if !buf.Push(makeBlock(seq)) {
			t.Fatalf("Unexpected drop pushing block %d", seq)
		}
	}
	if buf.Len() != 5 {
		t.Errorf("Expected 5 buffered blocks, got %d", buf.Len())
	}

	for seq := uint64(1); seq <= 5; seq++ {
		blk, ok := buf.Pop()
		if !ok {
			t.Fatalf("Expected block %d, buffer empty", seq)
		}
		if blk.Seq != seq {
			t.Errorf("Expected seq %d, got %d", seq, blk.Seq)
		}
	}

	if _, ok := buf.Pop(); ok {
		t.Error("Expected empty buffer after draining")
	}
}

func TestBuffer_Overflow_DropsOldest(t *testing.T) {
	const capacity = 5
	const extra = 3
	buf := NewBuffer(capacity)

	// Push capacity+extra blocks without draining.
	for seq := uint64(1); seq <= capacity+extra; seq++ {
		stored := buf.Push(makeBlock(seq))
		if seq <= capacity && !stored {
			t.Errorf("Unexpected drop while under capacity at seq %d", seq)
		}
		if seq > capacity && stored {
			t.Errorf("Expected drop at seq %d", seq)
		}
	}

	if buf.Drops() != extra {
		t.Errorf("Expected %d drops, got %d", extra, buf.Drops())
	}
	if buf.Len() != capacity {
		t.Errorf("Expected %d retained blocks, got %d", capacity, buf.Len())
	}

	// The newest `capacity` blocks must remain, oldest first.
	for seq := uint64(extra + 1); seq <= capacity+extra; seq++ {
		blk, ok := buf.Pop()
		if !ok {
			t.Fatalf("Expected block %d, buffer empty", seq)
		}
		if blk.Seq != seq {
			t.Errorf("Expected seq %d, got %d", seq, blk.Seq)
		}
	}
}

func TestBuffer_PopWait_Timeout(t *testing.T) {
	buf := NewBuffer(4)

	start := time.Now()
	_, ok := buf.PopWait(20 * time.Millisecond)
	elapsed := time.Since(start)

	if ok {
		t.Error("Expected timeout on empty buffer")
	}
	if elapsed < 15*time.Millisecond {
		t.Errorf("PopWait returned too early: %v", elapsed)
	}
}

func TestBuffer_PopWait_WakesOnPush(t *testing.T) {
	buf := NewBuffer(4)

	go func() {
		time.Sleep(10 * time.Millisecond)
		buf.Push(makeBlock(42))
	}()

	blk, ok := buf.PopWait(time.Second)
	if !ok {
		t.Fatal("Expected block from concurrent push")
	}
	if blk.Seq != 42 {
		t.Errorf("Expected seq 42, got %d", blk.Seq)
	}
}

func TestBuffer_Close_DrainsRemaining(t *testing.T) {
	buf := NewBuffer(4)
	buf.Push(makeBlock(1))
	buf.Push(makeBlock(2))
	buf.Close()

	// Pushes after close are discarded, not counted as drops.
	buf.Push(makeBlock(3))
	if buf.Drops() != 0 {
		t.Errorf("Expected 0 drops after post-close push, got %d", buf.Drops())
	}

	for seq := uint64(1); seq <= 2; seq++ {
		blk, ok := buf.PopWait(time.Second)
		if !ok {
			t.Fatalf("Expected buffered block %d after close", seq)
		}
		if blk.Seq != seq {
			t.Errorf("Expected seq %d, got %d", seq, blk.Seq)
		}
	}

	// Closed and empty: PopWait returns immediately.
	start := time.Now()
	if _, ok := buf.PopWait(time.Second); ok {
		t.Error("Expected no block from closed empty buffer")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Error("PopWait on closed empty buffer should return without waiting")
	}

	// Close is idempotent.
	buf.Close()
	if !buf.Closed() {
		t.Error("Expected buffer to report closed")
	}
}
