// Package recorder drains one capture buffer and appends its blocks to a
// byte sink as raw interleaved 16-bit PCM.
package recorder

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/duocaplab/duocap/internal/capture"
	"github.com/duocaplab/duocap/internal/pcm"
)

// ErrSinkWrite marks a failed append to the output sink. The recorder halts
// its own stream on the first write failure; the sibling stream and the
// mixer are unaffected.
var ErrSinkWrite = errors.New("sink write failed")

// Recorder writes blocks from a single buffer to a single sink in arrival
// order. One recorder per stream; never share a buffer between recorders.
type Recorder struct {
	name         string
	pollInterval time.Duration

	blocksWritten atomic.Uint64
	writeFailures atomic.Uint64
	lastSeq       atomic.Uint64
}

// New creates a recorder. The name labels log lines and counter output;
// pollInterval bounds how long a single empty-buffer wait may last.
func New(name string, pollInterval time.Duration) *Recorder {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &Recorder{name: name, pollInterval: pollInterval}
}

// Run drains buf into sink until buf is closed and empty. Blocks are
// written whole, in strictly increasing sequence order. On a write error
// the recorder stops consuming and returns; remaining blocks stay in the
// buffer until the session closes it.
func (r *Recorder) Run(buf *capture.Buffer, sink io.Writer) error {
	var scratch []byte

	for {
		blk, ok := buf.PopWait(r.pollInterval)
		if !ok {
			if buf.Closed() && buf.Len() == 0 {
				slog.Debug("recorder drained", "stream", r.name, "blocks", r.blocksWritten.Load())
				return nil
			}
			continue
		}

		scratch = pcm.AppendPCM16(scratch[:0], blk.Samples)
		if _, err := sink.Write(scratch); err != nil {
			r.writeFailures.Add(1)
			slog.Error("recorder halted on sink failure",
				"stream", r.name, "seq", blk.Seq, "error", err)
			return fmt.Errorf("%w: stream %s block %d: %v", ErrSinkWrite, r.name, blk.Seq, err)
		}

		r.blocksWritten.Add(1)
		r.lastSeq.Store(blk.Seq)
		slog.Debug("block written", "stream", r.name, "seq", blk.Seq)
	}
}

// BlocksWritten returns the number of blocks appended to the sink.
func (r *Recorder) BlocksWritten() uint64 { return r.blocksWritten.Load() }

// WriteFailures returns the number of failed sink appends.
func (r *Recorder) WriteFailures() uint64 { return r.writeFailures.Load() }

// LastSeq returns the sequence number of the last block written.
func (r *Recorder) LastSeq() uint64 { return r.lastSeq.Load() }
