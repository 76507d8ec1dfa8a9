package capture

import (
	"strings"
)

// BackendType identifies an audio capture backend.
type BackendType string

const (
	BackendTypeMalgo     BackendType = "malgo"
	BackendTypePortAudio BackendType = "portaudio"
	BackendTypeAuto      BackendType = "auto"
)

// Device describes one capture endpoint a backend can open.
type Device struct {
	ID      string
	Name    string
	Monitor bool // endpoint mirrors system output (monitor/loopback)
	Default bool
}

// Backend abstracts the platform audio layer. Implementations resolve opaque
// device identifiers, enumerate capture endpoints and open streams.
type Backend interface {
	// Open resolves params.DeviceID and starts delivering BlockSize-frame
	// blocks to deliver once Start is called on the returned stream.
	Open(params StreamParams, deliver DeliverFunc) (Stream, error)

	// ListDevices enumerates capture endpoints, including monitor/loopback
	// sources where the platform exposes them.
	ListDevices() ([]Device, error)

	// Type returns the backend type.
	Type() BackendType

	// Close releases the backend's platform context. Streams must be
	// stopped first.
	Close() error
}

// NewBackend creates the backend selected by name. "auto" and unknown names
// resolve to the malgo backend, which covers the widest platform surface.
func NewBackend(name string) (Backend, error) {
	switch BackendType(strings.ToLower(name)) {
	case BackendTypePortAudio:
		return NewPortAudioBackend()
	case BackendTypeMalgo, BackendTypeAuto, "":
		return NewMalgoBackend()
	default:
		return NewMalgoBackend()
	}
}

// AvailableBackends returns the backends compiled into this binary.
func AvailableBackends() []BackendType {
	return []BackendType{BackendTypeMalgo, BackendTypePortAudio}
}
