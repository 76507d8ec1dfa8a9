package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Audio   AudioConfig   `mapstructure:"audio" yaml:"audio"`
	Capture CaptureConfig `mapstructure:"capture" yaml:"capture"`
	Mix     MixConfig     `mapstructure:"mix" yaml:"mix"`
	Output  OutputConfig  `mapstructure:"output" yaml:"output"`
}

type AudioConfig struct {
	SampleRate     int    `mapstructure:"sample_rate" yaml:"sample_rate"`
	Backend        string `mapstructure:"backend" yaml:"backend"` // "malgo", "portaudio", "auto"
	MicDevice      string `mapstructure:"mic_device" yaml:"mic_device"`
	SystemDevice   string `mapstructure:"system_device" yaml:"system_device"` // monitor/loopback endpoint
	MicChannels    int    `mapstructure:"mic_channels" yaml:"mic_channels"`
	SystemChannels int    `mapstructure:"system_channels" yaml:"system_channels"`
}

type CaptureConfig struct {
	BlockSize      int           `mapstructure:"block_size" yaml:"block_size"`           // frames per block
	BufferCapacity int           `mapstructure:"buffer_capacity" yaml:"buffer_capacity"` // blocks
	PollInterval   time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type MixConfig struct {
	Mode string `mapstructure:"mode" yaml:"mode"` // "channel-per-source", "summed-stereo"
}

type OutputConfig struct {
	Directory string `mapstructure:"directory" yaml:"directory"`
}

var defaultConfig = Config{
	Audio: AudioConfig{
		SampleRate:     44100,
		Backend:        "auto",
		MicChannels:    1,
		SystemChannels: 2,
	},
	Capture: CaptureConfig{
		BlockSize:      1024,
		BufferCapacity: 50,
		PollInterval:   10 * time.Millisecond,
	},
	Mix: MixConfig{
		Mode: "summed-stereo",
	},
	Output: OutputConfig{
		Directory: filepath.Join(os.Getenv("HOME"), "Audio", "duocap"),
	},
}

// Load reads configuration from configFile, falling back to defaults for
// unset keys. An empty configFile loads pure defaults so device identifiers
// can be supplied entirely through flags.
func Load(configFile string) (*Config, error) {
	v := viper.New()

	v.SetDefault("audio.sample_rate", defaultConfig.Audio.SampleRate)
	v.SetDefault("audio.backend", defaultConfig.Audio.Backend)
	v.SetDefault("audio.mic_channels", defaultConfig.Audio.MicChannels)
	v.SetDefault("audio.system_channels", defaultConfig.Audio.SystemChannels)
	v.SetDefault("capture.block_size", defaultConfig.Capture.BlockSize)
	v.SetDefault("capture.buffer_capacity", defaultConfig.Capture.BufferCapacity)
	v.SetDefault("capture.poll_interval", defaultConfig.Capture.PollInterval)
	v.SetDefault("mix.mode", defaultConfig.Mix.Mode)
	v.SetDefault("output.directory", defaultConfig.Output.Directory)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error parsing config: %w", err)
	}

	cfg.Output.Directory = expandPath(cfg.Output.Directory)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

// Validate checks ranges the engine depends on. Device identifiers are not
// validated here; resolution happens when a stream is opened.
func (c *Config) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return fmt.Errorf("audio.sample_rate must be positive, got %d", c.Audio.SampleRate)
	}
	if c.Audio.MicChannels <= 0 {
		return fmt.Errorf("audio.mic_channels must be positive, got %d", c.Audio.MicChannels)
	}
	if c.Audio.SystemChannels <= 0 {
		return fmt.Errorf("audio.system_channels must be positive, got %d", c.Audio.SystemChannels)
	}
	switch strings.ToLower(c.Audio.Backend) {
	case "", "auto", "malgo", "portaudio":
	default:
		return fmt.Errorf("audio.backend must be one of auto, malgo, portaudio; got %q", c.Audio.Backend)
	}
	if c.Capture.BlockSize <= 0 {
		return fmt.Errorf("capture.block_size must be positive, got %d", c.Capture.BlockSize)
	}
	if c.Capture.BufferCapacity <= 0 {
		return fmt.Errorf("capture.buffer_capacity must be positive, got %d", c.Capture.BufferCapacity)
	}
	if c.Capture.PollInterval <= 0 {
		return fmt.Errorf("capture.poll_interval must be positive, got %s", c.Capture.PollInterval)
	}
	switch c.Mix.Mode {
	case "channel-per-source", "summed-stereo":
	default:
		return fmt.Errorf("mix.mode must be channel-per-source or summed-stereo, got %q", c.Mix.Mode)
	}
	return nil
}

// BlockDuration returns the wall-clock length of one block.
func (c *Config) BlockDuration() time.Duration {
	return time.Duration(c.Capture.BlockSize) * time.Second / time.Duration(c.Audio.SampleRate)
}

func expandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
