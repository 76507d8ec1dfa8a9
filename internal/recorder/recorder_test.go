package recorder

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/duocaplab/duocap/internal/capture"
	"github.com/duocaplab/duocap/internal/pcm"
)

func constantBlock(seq uint64, frames int, value float32) pcm.Block {
	samples := make([]float32, frames)
	for i := range samples {
		samples[i] = value
	}
	return pcm.Block{Seq: seq, SampleRate: 48000, Channels: 1, Samples: samples}
}

// failingSink fails every write after the first n.
type failingSink struct {
	mu       sync.Mutex
	writes   int
	failFrom int
}

func (f *failingSink) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes++
	if f.writes > f.failFrom {
		return 0, errors.New("disk full")
	}
	return len(p), nil
}

func TestRecorder_WritesWholeBlocksInOrder(t *testing.T) {
	buf := capture.NewBuffer(16)
	var sink bytes.Buffer

	const frames = 480
	for seq := uint64(1); seq <= 10; seq++ {
		buf.Push(constantBlock(seq, frames, 0.25))
	}
	buf.Close()

	rec := New("mic", 5*time.Millisecond)
	if err := rec.Run(buf, &sink); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	if rec.BlocksWritten() != 10 {
		t.Errorf("Expected 10 blocks written, got %d", rec.BlocksWritten())
	}
	if rec.LastSeq() != 10 {
		t.Errorf("Expected last seq 10, got %d", rec.LastSeq())
	}

	// Sink holds only whole blocks: 10 blocks of 480 int16 samples.
	expected := 10 * frames * 2
	if sink.Len() != expected {
		t.Errorf("Expected %d sink bytes, got %d", expected, sink.Len())
	}
}

func TestRecorder_FlushOnClose(t *testing.T) {
	buf := capture.NewBuffer(16)
	var sink bytes.Buffer
	rec := New("system", 5*time.Millisecond)

	done := make(chan error, 1)
	go func() { done <- rec.Run(buf, &sink) }()

	for seq := uint64(1); seq <= 4; seq++ {
		buf.Push(constantBlock(seq, 128, 0.5))
	}
	buf.Close()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Recorder did not return after buffer close")
	}

	if rec.BlocksWritten() != 4 {
		t.Errorf("Expected all 4 pending blocks flushed, got %d", rec.BlocksWritten())
	}
}

func TestRecorder_SinkFailureHaltsOnlyItself(t *testing.T) {
	buf := capture.NewBuffer(16)
	sink := &failingSink{failFrom: 2}
	rec := New("mic", 5*time.Millisecond)

	for seq := uint64(1); seq <= 5; seq++ {
		buf.Push(constantBlock(seq, 64, 0.1))
	}
	buf.Close()

	err := rec.Run(buf, sink)
	if err == nil {
		t.Fatal("Expected error from failing sink")
	}
	if !errors.Is(err, ErrSinkWrite) {
		t.Errorf("Expected ErrSinkWrite, got: %v", err)
	}
	if rec.WriteFailures() != 1 {
		t.Errorf("Expected 1 write failure, got %d", rec.WriteFailures())
	}
	if rec.BlocksWritten() != 2 {
		t.Errorf("Expected 2 successful writes before halt, got %d", rec.BlocksWritten())
	}
}
