package wav

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"
)

func TestWriter_HeaderAndSizes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer f.Close()

	w, err := NewWriter(f, 44100, 2)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}

	data := make([]byte, 1764) // arbitrary whole number of stereo frames
	if _, err := w.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("Failed to read back file: %v", err)
	}

	if len(raw) != headerSize+len(data) {
		t.Fatalf("Expected %d bytes, got %d", headerSize+len(data), len(raw))
	}
	if !bytes.Equal(raw[0:4], []byte("RIFF")) || !bytes.Equal(raw[8:12], []byte("WAVE")) {
		t.Error("Missing RIFF/WAVE markers")
	}
	if got := binary.LittleEndian.Uint32(raw[4:8]); got != uint32(36+len(data)) {
		t.Errorf("Expected RIFF size %d, got %d", 36+len(data), got)
	}
	if got := binary.LittleEndian.Uint16(raw[22:24]); got != 2 {
		t.Errorf("Expected 2 channels, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(raw[24:28]); got != 44100 {
		t.Errorf("Expected sample rate 44100, got %d", got)
	}
	if got := binary.LittleEndian.Uint32(raw[40:44]); got != uint32(len(data)) {
		t.Errorf("Expected data size %d, got %d", len(data), got)
	}
}

func TestWriter_CloseIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.wav")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("Failed to create temp file: %v", err)
	}
	defer f.Close()

	w, err := NewWriter(f, 48000, 1)
	if err != nil {
		t.Fatalf("NewWriter failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("First close failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Errorf("Second close failed: %v", err)
	}
	if _, err := w.Write([]byte{0, 0}); err == nil {
		t.Error("Expected error writing to closed writer")
	}
}
