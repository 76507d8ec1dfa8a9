package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/duocaplab/duocap/internal/capture"
	"github.com/duocaplab/duocap/internal/session"
	"github.com/duocaplab/duocap/internal/wav"

	"github.com/spf13/cobra"
)

var recordCmd = &cobra.Command{
	Use:   "record",
	Short: "Record microphone and system audio simultaneously",
	Long: `Record audio from the microphone and the system output monitor at the
same time. Three WAV files are written to the output directory: the
microphone alone, the system audio alone, and a combined stereo mix.

Recording runs until interrupted with Ctrl+C.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend, err := capture.NewBackend(cfg.Audio.Backend)
		if err != nil {
			return fmt.Errorf("failed to initialize audio backend: %w", err)
		}
		defer backend.Close()

		if err := resolveDevices(backend); err != nil {
			return err
		}

		if err := os.MkdirAll(cfg.Output.Directory, 0755); err != nil {
			return fmt.Errorf("failed to create output directory: %w", err)
		}

		timestamp := time.Now().Format("20060102_150405")
		micPath := filepath.Join(cfg.Output.Directory, fmt.Sprintf("audio_input_%s.wav", timestamp))
		sysPath := filepath.Join(cfg.Output.Directory, fmt.Sprintf("audio_output_%s.wav", timestamp))
		combinedPath := filepath.Join(cfg.Output.Directory, fmt.Sprintf("audio_combined_%s.wav", timestamp))

		micSink, err := openWavSink(micPath, cfg.Audio.SampleRate, cfg.Audio.MicChannels)
		if err != nil {
			return err
		}
		sysSink, err := openWavSink(sysPath, cfg.Audio.SampleRate, cfg.Audio.SystemChannels)
		if err != nil {
			micSink.Close()
			return err
		}
		combinedSink, err := openWavSink(combinedPath, cfg.Audio.SampleRate, 2)
		if err != nil {
			micSink.Close()
			sysSink.Close()
			return err
		}

		ctl := session.New(cfg, backend, session.Sinks{
			Microphone: micSink,
			System:     sysSink,
			Combined:   combinedSink,
		})

		if err := ctl.Start(); err != nil {
			micSink.Close()
			sysSink.Close()
			combinedSink.Close()
			return err
		}

		slog.Info("Recording... Press Ctrl+C to stop")

		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		<-sigChan

		slog.Info("Stopping recording...")
		if err := ctl.Stop(); err != nil {
			return fmt.Errorf("failed to stop session: %w", err)
		}

		printSummary(ctl, micPath, sysPath, combinedPath)
		return nil
	},
}

// resolveDevices fills in missing device identifiers the way the operator
// would: the default non-monitor input for the microphone, the first
// monitor endpoint for the system side. The engine itself only accepts
// resolved identifiers.
func resolveDevices(backend capture.Backend) error {
	if cfg.Audio.MicDevice != "" && cfg.Audio.SystemDevice != "" {
		return nil
	}

	devices, err := backend.ListDevices()
	if err != nil {
		return fmt.Errorf("failed to enumerate devices: %w", err)
	}

	if cfg.Audio.MicDevice == "" {
		for _, d := range devices {
			if d.Monitor {
				continue
			}
			if cfg.Audio.MicDevice == "" || d.Default {
				cfg.Audio.MicDevice = d.ID
			}
		}
		if cfg.Audio.MicDevice == "" {
			return fmt.Errorf("no microphone device found; run 'duocap sources' and set --mic")
		}
		slog.Info("Auto-selected microphone device", "id", cfg.Audio.MicDevice)
	}

	if cfg.Audio.SystemDevice == "" {
		for _, d := range devices {
			if d.Monitor {
				cfg.Audio.SystemDevice = d.ID
				slog.Info("Auto-selected system monitor device", "id", d.ID, "name", d.Name)
				break
			}
		}
		if cfg.Audio.SystemDevice == "" {
			return fmt.Errorf("no monitor/loopback source found; configure one and run 'duocap sources', or set --system")
		}
	}
	return nil
}

func printSummary(ctl *session.Controller, micPath, sysPath, combinedPath string) {
	snap := ctl.Counters()

	fmt.Printf("\nRecordings saved:\n")
	fmt.Printf("  %s\n", micPath)
	fmt.Printf("  %s\n", sysPath)
	fmt.Printf("  %s\n\n", combinedPath)

	fmt.Printf("Session counters:\n")
	fmt.Printf("  microphone: %d blocks written, %d drops, %d overruns, %d write failures\n",
		snap.Microphone.BlocksWritten, snap.Microphone.Drops+snap.Microphone.MixTapDrops,
		snap.Microphone.Overruns, snap.Microphone.WriteFailures)
	fmt.Printf("  system:     %d blocks written, %d drops, %d overruns, %d write failures\n",
		snap.System.BlocksWritten, snap.System.Drops+snap.System.MixTapDrops,
		snap.System.Overruns, snap.System.WriteFailures)
	fmt.Printf("  combined:   %d blocks mixed, %d silence substitutions\n",
		snap.MixedBlocks, snap.SilenceSubstitutions)

	switch {
	case snap.Degraded():
		fmt.Printf("\n⚠️  Recording is DEGRADED: a sink stopped accepting writes mid-session.\n")
	case !snap.Lossless():
		fmt.Printf("\n⚠️  Recording is complete but lossy: blocks were dropped or overrun.\n")
	default:
		fmt.Printf("\n✅ Recording complete and lossless.\n")
	}
}

// wavSink finalizes the WAV header and closes the file when the session
// controller closes the sink.
type wavSink struct {
	file   *os.File
	writer *wav.Writer
}

func openWavSink(path string, sampleRate, channels int) (*wavSink, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", path, err)
	}
	w, err := wav.NewWriter(f, sampleRate, channels)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &wavSink{file: f, writer: w}, nil
}

func (s *wavSink) Write(p []byte) (int, error) { return s.writer.Write(p) }

func (s *wavSink) Close() error {
	err := s.writer.Close()
	if closeErr := s.file.Close(); err == nil {
		err = closeErr
	}
	return err
}
