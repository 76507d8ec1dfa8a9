package capture

import (
	"errors"
	"fmt"

	"github.com/duocaplab/duocap/internal/pcm"
)

// Role identifies which side of the session a stream captures.
type Role string

const (
	RoleMicrophone   Role = "microphone"
	RoleSystemOutput Role = "system_output"
)

var (
	// ErrDeviceUnavailable is returned when a device identifier does not
	// resolve to an active capture endpoint. For system-output capture the
	// monitor/loopback endpoint must already exist; the engine never
	// attempts to create one.
	ErrDeviceUnavailable = errors.New("device unavailable")

	// ErrFormatUnsupported is returned when the endpoint rejects the
	// requested sample rate / channel / block size combination.
	ErrFormatUnsupported = errors.New("format unsupported")
)

// StreamParams describes the fixed format a stream is opened with. The
// format cannot change for the lifetime of the stream.
type StreamParams struct {
	Role       Role
	DeviceID   string
	SampleRate int
	Channels   int
	BlockSize  int // frames per delivered block
}

// StreamHandle is the read-only identity of an open stream, shared with the
// recorder and mixer for diagnostics.
type StreamHandle struct {
	Role       Role
	DeviceID   string
	DeviceName string
	SampleRate int
	Channels   int
	BlockSize  int
}

// DeliverFunc receives one completed block from the audio context. It must
// not block: a buffer push is the only permitted operation.
type DeliverFunc func(blk pcm.Block)

// Stream is one open capture endpoint delivering fixed-size blocks.
type Stream interface {
	// Start begins block delivery.
	Start() error

	// Stop ends delivery and releases the device. Idempotent.
	Stop() error

	// Handle returns the stream's identity.
	Handle() StreamHandle

	// Overruns reports how many times the driver signalled that the
	// callback fell behind.
	Overruns() uint64
}

func pcmBlock(seq uint64, h StreamHandle, samples []float32) pcm.Block {
	return pcm.Block{
		Seq:        seq,
		SampleRate: h.SampleRate,
		Channels:   h.Channels,
		Samples:    samples,
	}
}

func (p StreamParams) validate() error {
	if p.DeviceID == "" {
		return fmt.Errorf("%w: no device identifier for %s", ErrDeviceUnavailable, p.Role)
	}
	if p.SampleRate <= 0 {
		return fmt.Errorf("%w: sample rate %d", ErrFormatUnsupported, p.SampleRate)
	}
	if p.Channels <= 0 {
		return fmt.Errorf("%w: channel count %d", ErrFormatUnsupported, p.Channels)
	}
	if p.BlockSize <= 0 {
		return fmt.Errorf("%w: block size %d", ErrFormatUnsupported, p.BlockSize)
	}
	return nil
}
