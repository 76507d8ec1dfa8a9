// Package mix combines two independently clocked capture streams into one
// stereo stream. Alignment is by arrival order only: sequence numbers of the
// two inputs are never compared, so long sessions accumulate drift between
// the sources. Correcting that would require resampling, which this engine
// does not do.
package mix

import (
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/duocaplab/duocap/internal/capture"
	"github.com/duocaplab/duocap/internal/pcm"
)

// Mode selects how the two sources map onto the stereo output.
type Mode string

const (
	// ModeChannelPerSource puts source A's first channel on the left and
	// source B's first channel on the right.
	ModeChannelPerSource Mode = "channel-per-source"

	// ModeSummedStereo carries the arithmetic mean of both sources on both
	// output channels.
	ModeSummedStereo Mode = "summed-stereo"
)

// ParseMode validates a configuration string. An empty string selects
// summed stereo, matching the combined output of classic dual recorders.
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeChannelPerSource, ModeSummedStereo:
		return Mode(s), nil
	case "":
		return ModeSummedStereo, nil
	default:
		return "", fmt.Errorf("unknown mix mode %q", s)
	}
}

// Mixer consumes matched blocks from two buffers and writes stereo PCM16 to
// a combined sink. It reads both buffers but never writes to them.
type Mixer struct {
	mode         Mode
	pollInterval time.Duration

	seq          uint64
	blocksMixed  atomic.Uint64
	silenceA     atomic.Uint64
	silenceB     atomic.Uint64
	writeFailure atomic.Uint64
}

// New creates a mixer. pollInterval bounds the wait when both buffers are
// empty.
func New(mode Mode, pollInterval time.Duration) *Mixer {
	if pollInterval <= 0 {
		pollInterval = 10 * time.Millisecond
	}
	return &Mixer{mode: mode, pollInterval: pollInterval}
}

// Run combines blocks from bufA and bufB until both buffers are closed and
// drained. Each iteration takes at most one block per side:
//
//   - both sides ready: mix them sample-by-sample;
//   - exactly one side ready: wait up to one block period for the sibling,
//     since two live devices are never phase-aligned, then substitute
//     silence if it still has nothing. The wait is bounded, so drift stays
//     within one block period and the combined stream stays as long as the
//     wall-clock session;
//   - neither ready: wait with a bounded poll, producing nothing.
func (m *Mixer) Run(bufA, bufB *capture.Buffer, sink io.Writer) error {
	var scratch []byte

	for {
		blkA, okA := bufA.Pop()
		blkB, okB := bufB.Pop()

		if !okA && !okB {
			if bufA.Closed() && bufB.Closed() && bufA.Len() == 0 && bufB.Len() == 0 {
				slog.Debug("mixer drained", "blocks", m.blocksMixed.Load(),
					"silence_substitutions", m.SilenceSubstitutions())
				return nil
			}
			// Wait on A; B is rechecked at the top of the loop.
			blkA, okA = bufA.PopWait(m.pollInterval)
			if !okA {
				continue
			}
			blkB, okB = bufB.Pop()
		}

		// Grace wait for the lagging side. PopWait returns immediately once
		// that buffer is closed and drained, so a stopped source does not
		// slow the survivor down.
		if okA && !okB {
			blkB, okB = bufB.PopWait(m.graceFor(blkA))
		} else if okB && !okA {
			blkA, okA = bufA.PopWait(m.graceFor(blkB))
		}

		frames := 0
		if okA {
			frames = blkA.Frames()
		}
		if okB && (frames == 0 || blkB.Frames() < frames) {
			frames = blkB.Frames()
		}

		var chA, chB []float32
		if okA {
			chA = blkA.Channel(0)
		} else {
			chA = make([]float32, frames)
			m.silenceA.Add(1)
		}
		if okB {
			chB = blkB.Channel(0)
		} else {
			chB = make([]float32, frames)
			m.silenceB.Add(1)
		}

		m.seq++
		mixed := m.combine(m.seq, frames, chA, chB)

		scratch = pcm.AppendPCM16(scratch[:0], mixed.Samples)
		if _, err := sink.Write(scratch); err != nil {
			m.writeFailure.Add(1)
			slog.Error("mixer halted on sink failure", "seq", mixed.Seq, "error", err)
			return fmt.Errorf("combined sink write failed at block %d: %w", mixed.Seq, err)
		}
		m.blocksMixed.Add(1)
	}
}

// graceFor bounds the wait for a lagging sibling: one period of the block
// already in hand, or the poll interval when that is longer.
func (m *Mixer) graceFor(blk pcm.Block) time.Duration {
	grace := m.pollInterval
	if blk.SampleRate > 0 {
		if d := time.Duration(blk.Frames()) * time.Second / time.Duration(blk.SampleRate); d > grace {
			grace = d
		}
	}
	return grace
}

// combine builds one stereo block from one channel of each source.
func (m *Mixer) combine(seq uint64, frames int, chA, chB []float32) pcm.Block {
	out := make([]float32, frames*2)
	switch m.mode {
	case ModeChannelPerSource:
		for i := 0; i < frames; i++ {
			out[2*i] = clip(chA[i])
			out[2*i+1] = clip(chB[i])
		}
	default: // ModeSummedStereo
		for i := 0; i < frames; i++ {
			v := clip((chA[i] + chB[i]) / 2)
			out[2*i] = v
			out[2*i+1] = v
		}
	}
	return pcm.Block{Seq: seq, Channels: 2, Samples: out}
}

func clip(v float32) float32 {
	if v > 1.0 {
		return 1.0
	}
	if v < -1.0 {
		return -1.0
	}
	return v
}

// BlocksMixed returns the number of combined blocks written.
func (m *Mixer) BlocksMixed() uint64 { return m.blocksMixed.Load() }

// SilenceSubstitutions returns how many times a missing side was replaced
// with silence.
func (m *Mixer) SilenceSubstitutions() uint64 { return m.silenceA.Load() + m.silenceB.Load() }

// SilenceA returns silence substitutions where source A had no block ready.
func (m *Mixer) SilenceA() uint64 { return m.silenceA.Load() }

// SilenceB returns silence substitutions where source B had no block ready.
func (m *Mixer) SilenceB() uint64 { return m.silenceB.Load() }

// WriteFailures returns the number of failed combined-sink appends.
func (m *Mixer) WriteFailures() uint64 { return m.writeFailure.Load() }
