// Package session owns the lifecycle of one recording: two capture streams,
// their buffers, two stream recorders and the mixer.
package session

import (
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/duocaplab/duocap/internal/capture"
	"github.com/duocaplab/duocap/internal/config"
	"github.com/duocaplab/duocap/internal/mix"
	"github.com/duocaplab/duocap/internal/pcm"
	"github.com/duocaplab/duocap/internal/recorder"
	"github.com/duocaplab/duocap/internal/stats"
)

// State is the controller's lifecycle state. Transitions are strictly
// forward: Idle → Running → Stopping → Stopped. A stopped controller cannot
// be restarted; a new session requires a new Controller.
type State string

const (
	StateIdle     State = "IDLE"
	StateRunning  State = "RUNNING"
	StateStopping State = "STOPPING"
	StateStopped  State = "STOPPED"
)

// StartupError reports a failed session start. No stream stays open and no
// partial recording is left behind when Start returns one.
type StartupError struct {
	Reason string
	Err    error
}

func (e *StartupError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("session startup failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("session startup failed: %s", e.Reason)
}

func (e *StartupError) Unwrap() error { return e.Err }

// Sinks are the three byte sinks the caller opens before Start. The
// controller closes all of them during Stop, after every buffered block has
// been flushed.
type Sinks struct {
	Microphone io.WriteCloser
	System     io.WriteCloser
	Combined   io.WriteCloser
}

// Info describes a running or finished session.
type Info struct {
	ID         string
	StartTime  time.Time
	Microphone capture.StreamHandle
	System     capture.StreamHandle
}

// Controller coordinates one recording session. Single-use: construct,
// Start, Stop, discard.
type Controller struct {
	cfg     *config.Config
	backend capture.Backend
	sinks   Sinks

	mu    sync.Mutex
	state State
	info  *Info

	micStream capture.Stream
	sysStream capture.Stream

	micRecBuf *capture.Buffer
	micMixBuf *capture.Buffer
	sysRecBuf *capture.Buffer
	sysMixBuf *capture.Buffer

	micRecorder *recorder.Recorder
	sysRecorder *recorder.Recorder
	mixer       *mix.Mixer

	group     *errgroup.Group
	publisher *stats.Publisher

	stopOnce sync.Once
	stopErr  error
}

// New creates an idle controller. The sinks must already be open.
func New(cfg *config.Config, backend capture.Backend, sinks Sinks) *Controller {
	return &Controller{
		cfg:     cfg,
		backend: backend,
		sinks:   sinks,
		state:   StateIdle,
	}
}

// Start opens both device streams, allocates the capture buffers, launches
// the two recorders and the mixer, and transitions to Running. If either
// stream fails to open, the already-opened stream is closed and a
// StartupError is returned; no partial session is left running.
func (c *Controller) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return fmt.Errorf("can only start from idle state, current: %s", c.state)
	}

	mode, err := mix.ParseMode(c.cfg.Mix.Mode)
	if err != nil {
		c.state = StateStopped
		return &StartupError{Reason: "mix configuration", Err: err}
	}
	poll := c.cfg.Capture.PollInterval
	c.micRecorder = recorder.New("microphone", poll)
	c.sysRecorder = recorder.New("system", poll)
	c.mixer = mix.New(mode, poll)

	capacity := c.cfg.Capture.BufferCapacity
	c.micRecBuf = capture.NewBuffer(capacity)
	c.micMixBuf = capture.NewBuffer(capacity)
	c.sysRecBuf = capture.NewBuffer(capacity)
	c.sysMixBuf = capture.NewBuffer(capacity)

	// Each delivery fans one block out to the stream's recorder buffer and
	// its mixer tap. Blocks are immutable, so both consumers share the
	// sample slice.
	micDeliver := func(blk pcm.Block) {
		c.micRecBuf.Push(blk)
		c.micMixBuf.Push(blk)
	}
	sysDeliver := func(blk pcm.Block) {
		c.sysRecBuf.Push(blk)
		c.sysMixBuf.Push(blk)
	}

	micStream, err := c.backend.Open(capture.StreamParams{
		Role:       capture.RoleMicrophone,
		DeviceID:   c.cfg.Audio.MicDevice,
		SampleRate: c.cfg.Audio.SampleRate,
		Channels:   c.cfg.Audio.MicChannels,
		BlockSize:  c.cfg.Capture.BlockSize,
	}, micDeliver)
	if err != nil {
		c.state = StateStopped
		return &StartupError{Reason: "microphone stream", Err: err}
	}

	sysStream, err := c.backend.Open(capture.StreamParams{
		Role:       capture.RoleSystemOutput,
		DeviceID:   c.cfg.Audio.SystemDevice,
		SampleRate: c.cfg.Audio.SampleRate,
		Channels:   c.cfg.Audio.SystemChannels,
		BlockSize:  c.cfg.Capture.BlockSize,
	}, sysDeliver)
	if err != nil {
		micStream.Stop()
		c.state = StateStopped
		return &StartupError{Reason: "system output stream", Err: err}
	}

	c.micStream = micStream
	c.sysStream = sysStream

	if pub, err := stats.NewPublisher(c.snapshot); err != nil {
		slog.Warn("metrics publisher unavailable", "error", err)
	} else {
		c.publisher = pub
	}

	// A recorder failing its sink must not cancel the sibling or the
	// mixer, so the group carries no shared context.
	c.group = &errgroup.Group{}
	c.group.Go(func() error { return c.micRecorder.Run(c.micRecBuf, c.sinks.Microphone) })
	c.group.Go(func() error { return c.sysRecorder.Run(c.sysRecBuf, c.sinks.System) })
	c.group.Go(func() error { return c.mixer.Run(c.micMixBuf, c.sysMixBuf, c.sinks.Combined) })

	if err := micStream.Start(); err != nil {
		sysStream.Stop()
		c.abortStartup()
		return &StartupError{Reason: "microphone stream start", Err: err}
	}
	if err := sysStream.Start(); err != nil {
		micStream.Stop()
		c.abortStartup()
		return &StartupError{Reason: "system output stream start", Err: err}
	}

	c.info = &Info{
		ID:         uuid.NewString(),
		StartTime:  time.Now(),
		Microphone: micStream.Handle(),
		System:     sysStream.Handle(),
	}
	c.state = StateRunning

	slog.Info("session started",
		"session", c.info.ID,
		"microphone", c.info.Microphone.DeviceName,
		"system", c.info.System.DeviceName,
		"sample_rate", c.cfg.Audio.SampleRate,
		"block_size", c.cfg.Capture.BlockSize)
	return nil
}

// Stop closes both streams, drains all buffers through the recorders and
// the mixer, closes the sinks, and transitions to Stopped. Safe to call
// from any goroutine and idempotent: repeated calls return the first
// result without repeating the flush.
func (c *Controller) Stop() error {
	c.stopOnce.Do(func() {
		c.mu.Lock()
		if c.state == StateIdle || c.state == StateStopped {
			c.state = StateStopped
			c.mu.Unlock()
			return
		}
		c.state = StateStopping
		info := c.info
		c.mu.Unlock()

		slog.Info("session stopping", "session", info.ID)

		// No further blocks are delivered once the streams stop.
		if err := c.micStream.Stop(); err != nil {
			slog.Warn("microphone stream stop failed", "error", err)
		}
		if err := c.sysStream.Stop(); err != nil {
			slog.Warn("system stream stop failed", "error", err)
		}

		// Closing the buffers lets the recorders and mixer drain what is
		// left and return.
		c.closeBuffers()

		if err := c.group.Wait(); err != nil {
			// A halted recorder or mixer: the session is degraded, not
			// failed. Counters carry the details.
			slog.Warn("session degraded", "session", info.ID, "error", err)
		}

		for name, sink := range map[string]io.Closer{
			"microphone": c.sinks.Microphone,
			"system":     c.sinks.System,
			"combined":   c.sinks.Combined,
		} {
			if err := sink.Close(); err != nil {
				c.stopErr = fmt.Errorf("failed to close %s sink: %w", name, err)
				slog.Error("sink close failed", "sink", name, "error", err)
			}
		}

		if c.publisher != nil {
			if err := c.publisher.Close(); err != nil {
				slog.Warn("metrics publisher close failed", "error", err)
			}
		}

		c.mu.Lock()
		c.state = StateStopped
		c.mu.Unlock()

		snap := c.snapshot()
		slog.Info("session stopped",
			"session", info.ID,
			"duration", time.Since(info.StartTime).Round(time.Millisecond),
			"lossless", snap.Lossless(),
			"degraded", snap.Degraded())
	})
	return c.stopErr
}

// abortStartup unwinds a partially started session. Called with c.mu held.
func (c *Controller) abortStartup() {
	c.closeBuffers()
	c.group.Wait()
	if c.publisher != nil {
		c.publisher.Close()
		c.publisher = nil
	}
	c.state = StateStopped
}

func (c *Controller) closeBuffers() {
	c.micRecBuf.Close()
	c.micMixBuf.Close()
	c.sysRecBuf.Close()
	c.sysMixBuf.Close()
}

// State returns the current lifecycle state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a copy of the session info, or nil before Start.
func (c *Controller) Session() *Info {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.info == nil {
		return nil
	}
	info := *c.info
	return &info
}

// Counters returns a snapshot of all diagnostic counters. After Stop it
// tells the caller whether the recording is complete and lossless.
func (c *Controller) Counters() stats.Snapshot {
	return c.snapshot()
}

func (c *Controller) snapshot() stats.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	var s stats.Snapshot
	if c.micRecBuf == nil {
		return s
	}

	s.Microphone = stats.StreamStats{
		Drops:         c.micRecBuf.Drops(),
		MixTapDrops:   c.micMixBuf.Drops(),
		Underruns:     c.mixer.SilenceA(),
		BlocksWritten: c.micRecorder.BlocksWritten(),
		WriteFailures: c.micRecorder.WriteFailures(),
		LastSeq:       c.micRecorder.LastSeq(),
	}
	s.System = stats.StreamStats{
		Drops:         c.sysRecBuf.Drops(),
		MixTapDrops:   c.sysMixBuf.Drops(),
		Underruns:     c.mixer.SilenceB(),
		BlocksWritten: c.sysRecorder.BlocksWritten(),
		WriteFailures: c.sysRecorder.WriteFailures(),
		LastSeq:       c.sysRecorder.LastSeq(),
	}
	if c.micStream != nil {
		s.Microphone.Overruns = c.micStream.Overruns()
	}
	if c.sysStream != nil {
		s.System.Overruns = c.sysStream.Overruns()
	}
	s.MixedBlocks = c.mixer.BlocksMixed()
	s.SilenceSubstitutions = c.mixer.SilenceSubstitutions()
	s.CombinedWriteFailures = c.mixer.WriteFailures()
	return s
}
