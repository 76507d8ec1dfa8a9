// Package wav frames a raw PCM16 stream as a WAV file. The engine itself
// writes only raw interleaved samples; this writer supplies the container
// header and trailer on the caller's side of the sink contract.
package wav

import (
	"encoding/binary"
	"fmt"
	"io"
)

const (
	headerSize    = 44
	bitsPerSample = 16
)

// Writer wraps an io.WriteSeeker with RIFF/WAVE framing for little-endian
// signed 16-bit PCM. The RIFF and data chunk sizes are patched on Close,
// so the destination must support seeking.
type Writer struct {
	dst        io.WriteSeeker
	sampleRate int
	channels   int
	dataBytes  uint32
	closed     bool
}

// NewWriter writes a placeholder header and returns a Writer ready to
// accept sample data.
func NewWriter(dst io.WriteSeeker, sampleRate, channels int) (*Writer, error) {
	w := &Writer{dst: dst, sampleRate: sampleRate, channels: channels}
	if err := w.writeHeader(); err != nil {
		return nil, fmt.Errorf("failed to write WAV header: %w", err)
	}
	return w, nil
}

func (w *Writer) writeHeader() error {
	var h [headerSize]byte
	blockAlign := w.channels * bitsPerSample / 8

	copy(h[0:4], "RIFF")
	binary.LittleEndian.PutUint32(h[4:8], 36+w.dataBytes)
	copy(h[8:12], "WAVE")

	copy(h[12:16], "fmt ")
	binary.LittleEndian.PutUint32(h[16:20], 16) // PCM fmt chunk size
	binary.LittleEndian.PutUint16(h[20:22], 1)  // PCM format
	binary.LittleEndian.PutUint16(h[22:24], uint16(w.channels))
	binary.LittleEndian.PutUint32(h[24:28], uint32(w.sampleRate))
	binary.LittleEndian.PutUint32(h[28:32], uint32(w.sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(h[32:34], uint16(blockAlign))
	binary.LittleEndian.PutUint16(h[34:36], bitsPerSample)

	copy(h[36:40], "data")
	binary.LittleEndian.PutUint32(h[40:44], w.dataBytes)

	_, err := w.dst.Write(h[:])
	return err
}

// Write appends raw PCM16 bytes to the data chunk.
func (w *Writer) Write(p []byte) (int, error) {
	if w.closed {
		return 0, fmt.Errorf("write to closed WAV writer")
	}
	n, err := w.dst.Write(p)
	w.dataBytes += uint32(n)
	return n, err
}

// Close patches the chunk sizes in the header. It does not close the
// underlying destination.
func (w *Writer) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true

	if _, err := w.dst.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to seek to WAV header: %w", err)
	}
	if err := w.writeHeader(); err != nil {
		return fmt.Errorf("failed to finalize WAV header: %w", err)
	}
	_, err := w.dst.Seek(0, io.SeekEnd)
	return err
}
