package capture

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gen2brain/malgo"
)

// MalgoBackend opens capture streams through miniaudio. System-output
// capture uses the platform's monitor source where it is exposed as a
// capture device (PulseAudio/PipeWire) and WASAPI loopback where it is not.
type MalgoBackend struct {
	ctx *malgo.AllocatedContext
}

// NewMalgoBackend initializes the miniaudio context.
func NewMalgoBackend() (*MalgoBackend, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to init miniaudio context: %w", err)
	}
	return &MalgoBackend{ctx: ctx}, nil
}

// Type returns the backend type.
func (b *MalgoBackend) Type() BackendType { return BackendTypeMalgo }

// Close releases the miniaudio context.
func (b *MalgoBackend) Close() error {
	if b.ctx == nil {
		return nil
	}
	err := b.ctx.Uninit()
	b.ctx.Free()
	b.ctx = nil
	return err
}

// ListDevices enumerates capture endpoints. Playback devices are included as
// loopback candidates on platforms where miniaudio supports output capture.
func (b *MalgoBackend) ListDevices() ([]Device, error) {
	captureInfos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return nil, fmt.Errorf("failed to list capture devices: %w", err)
	}

	var devices []Device
	for _, info := range captureInfos {
		name := info.Name()
		devices = append(devices, Device{
			ID:      hex.EncodeToString(info.ID[:]),
			Name:    name,
			Monitor: strings.Contains(strings.ToLower(name), "monitor"),
			Default: info.IsDefault != 0,
		})
	}

	playbackInfos, err := b.ctx.Devices(malgo.Playback)
	if err != nil {
		return nil, fmt.Errorf("failed to list playback devices: %w", err)
	}
	for _, info := range playbackInfos {
		devices = append(devices, Device{
			ID:      hex.EncodeToString(info.ID[:]),
			Name:    info.Name(),
			Monitor: true,
			Default: info.IsDefault != 0,
		})
	}

	return devices, nil
}

// Open resolves the device identifier (hex ID or exact name) and prepares a
// capture stream delivering fixed-size float32 blocks.
func (b *MalgoBackend) Open(params StreamParams, deliver DeliverFunc) (Stream, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	id, name, loopback, err := b.resolveDevice(params)
	if err != nil {
		return nil, err
	}

	s := &malgoStream{
		handle: StreamHandle{
			Role:       params.Role,
			DeviceID:   params.DeviceID,
			DeviceName: name,
			SampleRate: params.SampleRate,
			Channels:   params.Channels,
			BlockSize:  params.BlockSize,
		},
		deliver: deliver,
	}

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceConfig.Capture.Format = malgo.FormatF32
	deviceConfig.Capture.Channels = uint32(params.Channels)
	deviceConfig.SampleRate = uint32(params.SampleRate)
	deviceConfig.PeriodSizeInFrames = uint32(params.BlockSize)

	if loopback {
		deviceConfig.DeviceType = malgo.Loopback
		deviceConfig.Playback.DeviceID = id.Pointer()
	} else {
		deviceConfig.Capture.DeviceID = id.Pointer()
	}

	callbacks := malgo.DeviceCallbacks{
		Data: func(pOutput, pInput []byte, framecount uint32) {
			s.onData(pInput)
		},
	}

	device, err := malgo.InitDevice(b.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return nil, fmt.Errorf("%w: %s rejected %dHz/%dch: %v",
			ErrFormatUnsupported, name, params.SampleRate, params.Channels, err)
	}
	s.device = device

	slog.Debug("miniaudio stream opened",
		"role", params.Role, "device", name, "loopback", loopback)
	return s, nil
}

// resolveDevice matches the identifier against capture devices first, then
// playback devices (loopback capture). A system-output stream whose
// identifier matches nothing means no monitor endpoint exists; the engine
// fails rather than trying to create one.
func (b *MalgoBackend) resolveDevice(params StreamParams) (malgo.DeviceID, string, bool, error) {
	match := func(infos []malgo.DeviceInfo) (malgo.DeviceID, string, bool) {
		for _, info := range infos {
			if hex.EncodeToString(info.ID[:]) == params.DeviceID || info.Name() == params.DeviceID {
				return info.ID, info.Name(), true
			}
		}
		return malgo.DeviceID{}, "", false
	}

	captureInfos, err := b.ctx.Devices(malgo.Capture)
	if err != nil {
		return malgo.DeviceID{}, "", false, fmt.Errorf("failed to list capture devices: %w", err)
	}
	if id, name, ok := match(captureInfos); ok {
		return id, name, false, nil
	}

	if params.Role == RoleSystemOutput {
		playbackInfos, err := b.ctx.Devices(malgo.Playback)
		if err != nil {
			return malgo.DeviceID{}, "", false, fmt.Errorf("failed to list playback devices: %w", err)
		}
		if id, name, ok := match(playbackInfos); ok {
			return id, name, true, nil
		}
	}

	return malgo.DeviceID{}, "", false,
		fmt.Errorf("%w: %q does not resolve to an active endpoint", ErrDeviceUnavailable, params.DeviceID)
}

type malgoStream struct {
	handle  StreamHandle
	device  *malgo.Device
	deliver DeliverFunc

	mu      sync.Mutex
	pending []float32
	seq     uint64
	stopped bool

	// miniaudio's data callback carries no overrun signal and malgo exposes
	// no notification for it, so this counter stays zero on this backend.
	overruns atomic.Uint64
}

// onData runs in the audio context: convert, re-chunk to BlockSize frames,
// push. No I/O, no long-held locks.
func (s *malgoStream) onData(pInput []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return
	}

	for i := 0; i+4 <= len(pInput); i += 4 {
		bits := binary.LittleEndian.Uint32(pInput[i : i+4])
		s.pending = append(s.pending, math.Float32frombits(bits))
	}

	blockLen := s.handle.BlockSize * s.handle.Channels
	for len(s.pending) >= blockLen {
		samples := make([]float32, blockLen)
		copy(samples, s.pending[:blockLen])
		s.pending = s.pending[:copy(s.pending, s.pending[blockLen:])]

		s.seq++
		s.deliver(pcmBlock(s.seq, s.handle, samples))
	}
}

func (s *malgoStream) Start() error {
	if err := s.device.Start(); err != nil {
		s.device.Uninit()
		return fmt.Errorf("failed to start capture device %s: %w", s.handle.DeviceName, err)
	}
	return nil
}

func (s *malgoStream) Stop() error {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return nil
	}
	s.stopped = true
	s.mu.Unlock()

	s.device.Uninit()
	slog.Debug("miniaudio stream stopped", "role", s.handle.Role, "device", s.handle.DeviceName)
	return nil
}

func (s *malgoStream) Handle() StreamHandle { return s.handle }

func (s *malgoStream) Overruns() uint64 { return s.overruns.Load() }
