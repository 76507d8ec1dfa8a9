package stats

import "testing"

func TestSnapshot_Lossless(t *testing.T) {
	var s Snapshot
	if !s.Lossless() {
		t.Error("Expected zero snapshot to be lossless")
	}

	s.Microphone.Drops = 1
	if s.Lossless() {
		t.Error("Expected snapshot with drops to not be lossless")
	}
	if s.Degraded() {
		t.Error("Drops alone must not mark a session degraded")
	}
}

func TestSnapshot_Degraded(t *testing.T) {
	var s Snapshot
	if s.Degraded() {
		t.Error("Expected zero snapshot to not be degraded")
	}

	s.System.WriteFailures = 1
	if !s.Degraded() {
		t.Error("Expected write failure to mark the session degraded")
	}
	if s.Lossless() {
		t.Error("Expected degraded session to not be lossless")
	}
}

func TestPublisher_RegisterAndClose(t *testing.T) {
	// The global meter provider defaults to a no-op implementation, which
	// still exercises instrument and callback registration.
	p, err := NewPublisher(func() Snapshot { return Snapshot{MixedBlocks: 3} })
	if err != nil {
		t.Fatalf("NewPublisher failed: %v", err)
	}
	if err := p.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
}
