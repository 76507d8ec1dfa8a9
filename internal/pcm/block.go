package pcm

import (
	"encoding/binary"
	"math"
)

// Block is one fixed-size chunk of interleaved float32 samples captured from
// a single stream. Blocks are immutable once published: producers hand them
// off and never touch the sample slice again.
type Block struct {
	Seq        uint64
	SampleRate int
	Channels   int
	Samples    []float32
}

// Frames returns the number of sample frames in the block.
func (b Block) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Channel extracts one channel from the interleaved samples.
func (b Block) Channel(ch int) []float32 {
	frames := b.Frames()
	out := make([]float32, frames)
	for i := 0; i < frames; i++ {
		out[i] = b.Samples[i*b.Channels+ch]
	}
	return out
}

// Silence returns a zero-filled block of the given shape.
func Silence(seq uint64, sampleRate, channels, frames int) Block {
	return Block{
		Seq:        seq,
		SampleRate: sampleRate,
		Channels:   channels,
		Samples:    make([]float32, frames*channels),
	}
}

// AppendPCM16 encodes samples as little-endian signed 16-bit PCM and appends
// them to dst. Values outside [-1, 1] are clipped.
func AppendPCM16(dst []byte, samples []float32) []byte {
	for _, s := range samples {
		if s > 1.0 {
			s = 1.0
		} else if s < -1.0 {
			s = -1.0
		}
		v := int16(math.Round(float64(s) * math.MaxInt16))
		dst = binary.LittleEndian.AppendUint16(dst, uint16(v))
	}
	return dst
}

// DecodePCM16 converts little-endian signed 16-bit PCM bytes back to float32
// samples. Used by tests and diagnostics, not by the capture path.
func DecodePCM16(data []byte) []float32 {
	out := make([]float32, len(data)/2)
	for i := range out {
		v := int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
		out[i] = float32(v) / math.MaxInt16
	}
	return out
}
