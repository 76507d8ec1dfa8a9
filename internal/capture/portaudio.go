package capture

import (
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
)

// PortAudioBackend opens capture streams through PortAudio. On PulseAudio
// systems monitor sources show up as ordinary input devices, so both roles
// open plain input streams here.
type PortAudioBackend struct{}

// NewPortAudioBackend initializes the PortAudio library.
func NewPortAudioBackend() (*PortAudioBackend, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	return &PortAudioBackend{}, nil
}

// Type returns the backend type.
func (b *PortAudioBackend) Type() BackendType { return BackendTypePortAudio }

// Close terminates the PortAudio library.
func (b *PortAudioBackend) Close() error {
	return portaudio.Terminate()
}

// ListDevices enumerates PortAudio input devices. The device index doubles
// as the identifier since PortAudio has no stable IDs.
func (b *PortAudioBackend) ListDevices() ([]Device, error) {
	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}
	defaultIn, _ := portaudio.DefaultInputDevice()

	var devices []Device
	for i, info := range infos {
		if info.MaxInputChannels <= 0 {
			continue
		}
		devices = append(devices, Device{
			ID:      strconv.Itoa(i),
			Name:    info.Name,
			Monitor: strings.Contains(strings.ToLower(info.Name), "monitor"),
			Default: info == defaultIn,
		})
	}
	return devices, nil
}

// Open resolves the device identifier (index or exact name) and prepares a
// capture stream.
func (b *PortAudioBackend) Open(params StreamParams, deliver DeliverFunc) (Stream, error) {
	if err := params.validate(); err != nil {
		return nil, err
	}

	infos, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate devices: %w", err)
	}

	var device *portaudio.DeviceInfo
	if idx, convErr := strconv.Atoi(params.DeviceID); convErr == nil && idx >= 0 && idx < len(infos) {
		device = infos[idx]
	} else {
		for _, info := range infos {
			if info.Name == params.DeviceID {
				device = info
				break
			}
		}
	}
	if device == nil || device.MaxInputChannels <= 0 {
		return nil, fmt.Errorf("%w: %q does not resolve to an active endpoint",
			ErrDeviceUnavailable, params.DeviceID)
	}
	if device.MaxInputChannels < params.Channels {
		return nil, fmt.Errorf("%w: %s has %d input channels, %d requested",
			ErrFormatUnsupported, device.Name, device.MaxInputChannels, params.Channels)
	}

	buffer := make([]float32, params.BlockSize*params.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: params.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      float64(params.SampleRate),
		FramesPerBuffer: params.BlockSize,
	}, buffer)
	if err != nil {
		return nil, fmt.Errorf("%w: %s rejected %dHz/%dch/%d frames: %v",
			ErrFormatUnsupported, device.Name, params.SampleRate, params.Channels, params.BlockSize, err)
	}

	s := &portAudioStream{
		handle: StreamHandle{
			Role:       params.Role,
			DeviceID:   params.DeviceID,
			DeviceName: device.Name,
			SampleRate: params.SampleRate,
			Channels:   params.Channels,
			BlockSize:  params.BlockSize,
		},
		stream:  stream,
		buffer:  buffer,
		deliver: deliver,
		done:    make(chan struct{}),
	}

	slog.Debug("PortAudio stream opened", "role", params.Role, "device", device.Name)
	return s, nil
}

type portAudioStream struct {
	handle  StreamHandle
	stream  *portaudio.Stream
	buffer  []float32
	deliver DeliverFunc
	done    chan struct{}

	stopOnce sync.Once
	finished sync.WaitGroup

	seq      uint64
	overruns atomic.Uint64
}

func (s *portAudioStream) Start() error {
	if err := s.stream.Start(); err != nil {
		s.stream.Close()
		return fmt.Errorf("failed to start audio stream %s: %w", s.handle.DeviceName, err)
	}

	s.finished.Add(1)
	go s.readLoop()
	return nil
}

// readLoop blocks on the driver for each completed block. PortAudio reports
// an input overflow when the loop falls behind; the block it returns with
// that error is still valid.
func (s *portAudioStream) readLoop() {
	defer s.finished.Done()
	for {
		select {
		case <-s.done:
			return
		default:
		}

		if err := s.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				s.overruns.Add(1)
			} else {
				slog.Debug("PortAudio read ended", "device", s.handle.DeviceName, "error", err)
				return
			}
		}

		samples := make([]float32, len(s.buffer))
		copy(samples, s.buffer)

		s.seq++
		s.deliver(pcmBlock(s.seq, s.handle, samples))
	}
}

func (s *portAudioStream) Stop() error {
	var err error
	s.stopOnce.Do(func() {
		close(s.done)
		err = s.stream.Stop()
		s.finished.Wait()
		s.stream.Close()
		slog.Debug("PortAudio stream stopped", "role", s.handle.Role, "device", s.handle.DeviceName)
	})
	return err
}

func (s *portAudioStream) Handle() StreamHandle { return s.handle }

func (s *portAudioStream) Overruns() uint64 { return s.overruns.Load() }
