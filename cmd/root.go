package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/duocaplab/duocap/internal/config"

	"github.com/spf13/cobra"
)

var (
	cfg          *config.Config
	cfgFile      string
	verboseLevel int

	flagBackend    string
	flagMicDevice  string
	flagSysDevice  string
	flagSampleRate int
	flagBlockSize  int
	flagMixMode    string
	flagOutputDir  string
)

var rootCmd = &cobra.Command{
	Use:   "duocap",
	Short: "Dual-source audio capture and mixing tool",
	Long: `duocap records a microphone and the system's output audio
simultaneously, saving each source to its own file plus a combined
stereo mix. On Linux the system source is a PulseAudio/PipeWire
monitor endpoint; on Windows it is a WASAPI loopback device.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		setupLogging(verboseLevel)

		// The sources command works without a config file.
		if cmd.Name() == "sources" && cfgFile == "" {
			cfg = applyOverrides(mustDefaults())
			return nil
		}

		if cfgFile == "" {
			defaultPath := os.ExpandEnv("$HOME/.config/duocap.yaml")
			if _, err := os.Stat(defaultPath); err == nil {
				cfgFile = defaultPath
			}
		}

		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = applyOverrides(loaded)
		return cfg.Validate()
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/duocap.yaml)")
	rootCmd.PersistentFlags().IntVarP(&verboseLevel, "verbose", "v", 0, "verbose level: 0=info, 1=debug")
	rootCmd.PersistentFlags().StringVar(&flagBackend, "backend", "", "audio backend: auto, malgo, portaudio (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagMicDevice, "mic", "", "microphone device identifier (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagSysDevice, "system", "", "system output monitor device identifier (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagSampleRate, "sample-rate", 0, "sample rate in Hz (overrides config)")
	rootCmd.PersistentFlags().IntVar(&flagBlockSize, "block-size", 0, "frames per block (overrides config)")
	rootCmd.PersistentFlags().StringVar(&flagMixMode, "mix-mode", "", "mix mode: channel-per-source or summed-stereo (overrides config)")
	rootCmd.PersistentFlags().StringVarP(&flagOutputDir, "output", "o", "", "output directory (overrides config)")

	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(sourcesCmd)
	rootCmd.AddCommand(configCmd)
}

func mustDefaults() *config.Config {
	c, err := config.Load("")
	if err != nil {
		panic(err)
	}
	return c
}

func applyOverrides(c *config.Config) *config.Config {
	if flagBackend != "" {
		c.Audio.Backend = flagBackend
	}
	if flagMicDevice != "" {
		c.Audio.MicDevice = flagMicDevice
	}
	if flagSysDevice != "" {
		c.Audio.SystemDevice = flagSysDevice
	}
	if flagSampleRate > 0 {
		c.Audio.SampleRate = flagSampleRate
	}
	if flagBlockSize > 0 {
		c.Capture.BlockSize = flagBlockSize
	}
	if flagMixMode != "" {
		c.Mix.Mode = flagMixMode
	}
	if flagOutputDir != "" {
		c.Output.Directory = flagOutputDir
	}
	return c
}

// setupLogging configures slog based on the verbose level
func setupLogging(level int) {
	slogLevel := slog.LevelInfo
	if level >= 1 {
		slogLevel = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slogLevel})
	slog.SetDefault(slog.New(handler))
}
