// Package stats exposes the engine's diagnostic counters, both as a
// synchronous snapshot the caller can query after a session stops and as
// OpenTelemetry instruments for external collection.
package stats

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/duocaplab/duocap"

// StreamStats holds the per-stream counters of one capture path.
type StreamStats struct {
	Drops         uint64 `json:"drops" yaml:"drops"`
	MixTapDrops   uint64 `json:"mix_tap_drops" yaml:"mix_tap_drops"`
	Overruns      uint64 `json:"overruns" yaml:"overruns"`
	Underruns     uint64 `json:"underruns" yaml:"underruns"`
	BlocksWritten uint64 `json:"blocks_written" yaml:"blocks_written"`
	WriteFailures uint64 `json:"write_failures" yaml:"write_failures"`
	LastSeq       uint64 `json:"last_seq" yaml:"last_seq"`
}

// Snapshot is a point-in-time view of all session counters.
type Snapshot struct {
	Microphone StreamStats `json:"microphone" yaml:"microphone"`
	System     StreamStats `json:"system" yaml:"system"`

	MixedBlocks           uint64 `json:"mixed_blocks" yaml:"mixed_blocks"`
	SilenceSubstitutions  uint64 `json:"silence_substitutions" yaml:"silence_substitutions"`
	CombinedWriteFailures uint64 `json:"combined_write_failures" yaml:"combined_write_failures"`
}

// Lossless reports whether the recording completed without drops, overruns
// or write failures on any path. Underruns are not counted: silence
// substitution pads the combined stream, it does not lose captured data.
func (s Snapshot) Lossless() bool {
	for _, st := range []StreamStats{s.Microphone, s.System} {
		if st.Drops > 0 || st.MixTapDrops > 0 || st.Overruns > 0 || st.WriteFailures > 0 {
			return false
		}
	}
	return s.CombinedWriteFailures == 0
}

// Degraded reports whether a sink write failure halted part of the session.
func (s Snapshot) Degraded() bool {
	return s.Microphone.WriteFailures > 0 || s.System.WriteFailures > 0 || s.CombinedWriteFailures > 0
}

// Publisher mirrors a snapshot source onto OpenTelemetry observable
// counters under the "duocap.*" namespace.
type Publisher struct {
	registration metric.Registration
}

// NewPublisher registers observable counters backed by source. The source
// is invoked on each metric collection.
func NewPublisher(source func() Snapshot) (*Publisher, error) {
	meter := otel.Meter(meterName)

	drops, err := meter.Int64ObservableCounter("duocap.buffer.drops",
		metric.WithDescription("Blocks dropped by a capture buffer due to overflow"))
	if err != nil {
		return nil, err
	}
	overruns, err := meter.Int64ObservableCounter("duocap.stream.overruns",
		metric.WithDescription("Driver-reported capture overruns"))
	if err != nil {
		return nil, err
	}
	written, err := meter.Int64ObservableCounter("duocap.recorder.blocks_written",
		metric.WithDescription("Blocks appended to a stream sink"))
	if err != nil {
		return nil, err
	}
	mixed, err := meter.Int64ObservableCounter("duocap.mixer.blocks_mixed",
		metric.WithDescription("Combined stereo blocks produced"))
	if err != nil {
		return nil, err
	}
	silence, err := meter.Int64ObservableCounter("duocap.mixer.silence_substitutions",
		metric.WithDescription("Blocks where a missing source was replaced with silence"))
	if err != nil {
		return nil, err
	}

	micAttrs := metric.WithAttributes(attribute.String("stream", "microphone"))
	sysAttrs := metric.WithAttributes(attribute.String("stream", "system_output"))

	registration, err := meter.RegisterCallback(
		func(_ context.Context, o metric.Observer) error {
			s := source()
			o.ObserveInt64(drops, int64(s.Microphone.Drops+s.Microphone.MixTapDrops), micAttrs)
			o.ObserveInt64(drops, int64(s.System.Drops+s.System.MixTapDrops), sysAttrs)
			o.ObserveInt64(overruns, int64(s.Microphone.Overruns), micAttrs)
			o.ObserveInt64(overruns, int64(s.System.Overruns), sysAttrs)
			o.ObserveInt64(written, int64(s.Microphone.BlocksWritten), micAttrs)
			o.ObserveInt64(written, int64(s.System.BlocksWritten), sysAttrs)
			o.ObserveInt64(mixed, int64(s.MixedBlocks))
			o.ObserveInt64(silence, int64(s.SilenceSubstitutions))
			return nil
		},
		drops, overruns, written, mixed, silence,
	)
	if err != nil {
		return nil, err
	}

	return &Publisher{registration: registration}, nil
}

// Close unregisters the metric callback.
func (p *Publisher) Close() error {
	return p.registration.Unregister()
}
