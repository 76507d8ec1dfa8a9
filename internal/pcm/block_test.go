package pcm

import (
	"math"
	"testing"
)

func TestSilence_Shape(t *testing.T) {
	b := Silence(7, 48000, 2, 480)

	if b.Seq != 7 {
		t.Errorf("Expected seq 7, got %d", b.Seq)
	}
	if b.Frames() != 480 {
		t.Errorf("Expected 480 frames, got %d", b.Frames())
	}
	if len(b.Samples) != 960 {
		t.Errorf("Expected 960 samples, got %d", len(b.Samples))
	}
	for i, s := range b.Samples {
		if s != 0 {
			t.Fatalf("Expected silence, got %f at index %d", s, i)
		}
	}
}

func TestChannel_Deinterleave(t *testing.T) {
	b := Block{
		Channels: 2,
		Samples:  []float32{0.1, -0.1, 0.2, -0.2, 0.3, -0.3},
	}

	left := b.Channel(0)
	right := b.Channel(1)

	if len(left) != 3 || len(right) != 3 {
		t.Fatalf("Expected 3 frames per channel, got %d/%d", len(left), len(right))
	}
	if left[0] != 0.1 || left[2] != 0.3 {
		t.Errorf("Left channel incorrect: %v", left)
	}
	if right[0] != -0.1 || right[2] != -0.3 {
		t.Errorf("Right channel incorrect: %v", right)
	}
}

func TestAppendPCM16_RoundTrip(t *testing.T) {
	in := []float32{0, 0.5, -0.5, 1.0, -1.0}
	data := AppendPCM16(nil, in)

	if len(data) != len(in)*2 {
		t.Fatalf("Expected %d bytes, got %d", len(in)*2, len(data))
	}

	out := DecodePCM16(data)
	for i := range in {
		if math.Abs(float64(out[i]-in[i])) > 0.001 {
			t.Errorf("Sample %d: expected %f, got %f", i, in[i], out[i])
		}
	}
}

func TestAppendPCM16_Clipping(t *testing.T) {
	data := AppendPCM16(nil, []float32{2.0, -2.0})
	out := DecodePCM16(data)

	if out[0] < 0.999 {
		t.Errorf("Expected positive overdrive clipped to full scale, got %f", out[0])
	}
	if out[1] > -0.999 {
		t.Errorf("Expected negative overdrive clipped to full scale, got %f", out[1])
	}
}
