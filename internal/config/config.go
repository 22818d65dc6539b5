// Package config provides configuration management for framegrab using Viper.
// It supports configuration from files, environment variables, and defaults.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Default configuration values.
const (
	defaultStreamURL = "https://test-streams.mux.dev/x36xhzz/x36xhzz.m3u8"

	defaultBufferCapacity = 30
	defaultGetTimeout     = 5 * time.Second
	defaultRestartDelay   = 1 * time.Second
	defaultLaunchBackoff  = 2 * time.Second
	defaultReportInterval = 1 * time.Second

	defaultProbeTimeout = 30 * time.Second

	defaultStatusPort            = 8089
	defaultStatusTimeout         = 30 * time.Second
	defaultStatusShutdownTimeout = 10 * time.Second
)

// Config holds all configuration for the application.
type Config struct {
	Stream  StreamConfig  `mapstructure:"stream"`
	Capture CaptureConfig `mapstructure:"capture"`
	FFmpeg  FFmpegConfig  `mapstructure:"ffmpeg"`
	Logging LoggingConfig `mapstructure:"logging"`
	Status  StatusConfig  `mapstructure:"status"`
}

// StreamConfig holds the source stream configuration.
type StreamConfig struct {
	URL string `mapstructure:"url"`
	// Width and Height override the decoder output geometry. Zero keeps the
	// source geometry.
	Width  int `mapstructure:"width"`
	Height int `mapstructure:"height"`
	// SelectVariant enables HLS multivariant resolution before probing.
	SelectVariant bool `mapstructure:"select_variant"`
}

// CaptureConfig holds the frame pipeline configuration.
type CaptureConfig struct {
	BufferCapacity int           `mapstructure:"buffer_capacity"`
	GetTimeout     time.Duration `mapstructure:"get_timeout"`
	RestartDelay   time.Duration `mapstructure:"restart_delay"`
	LaunchBackoff  time.Duration `mapstructure:"launch_backoff"`
	ReportInterval time.Duration `mapstructure:"report_interval"`
	// ForceSoftware skips hardware decode even when an accelerator is
	// available.
	ForceSoftware bool `mapstructure:"force_software"`
	// MaxFrames stops the run after this many consumed frames (0 = run until
	// interrupted).
	MaxFrames uint64 `mapstructure:"max_frames"`
}

// FFmpegConfig holds FFmpeg binary configuration.
type FFmpegConfig struct {
	BinaryPath      string        `mapstructure:"binary_path"`      // Path to ffmpeg binary (empty = auto-detect)
	ProbePath       string        `mapstructure:"probe_path"`       // Path to ffprobe binary (empty = auto-detect)
	LogLevel        string        `mapstructure:"log_level"`        // ffmpeg -loglevel value
	HWAccelPriority []string      `mapstructure:"hwaccel_priority"` // Priority order: cuda, qsv, videotoolbox, vaapi
	ProbeTimeout    time.Duration `mapstructure:"probe_timeout"`
	MonitorProcess  bool          `mapstructure:"monitor_process"` // Sample decoder CPU/memory usage
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `mapstructure:"level"`  // debug, info, warn, error
	Format     string `mapstructure:"format"` // json, text
	AddSource  bool   `mapstructure:"add_source"`
	TimeFormat string `mapstructure:"time_format"`
}

// StatusConfig holds the status HTTP server configuration.
type StatusConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// Load reads configuration from file and environment variables.
// Environment variables take precedence over file configuration.
// Environment variables are prefixed with FRAMEGRAB_ and use underscores for
// nesting. Example: FRAMEGRAB_STREAM_URL=https://example.com/live.m3u8.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	SetDefaults(v)

	// Config file settings
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/framegrab")
		v.AddConfigPath("$HOME/.framegrab")
	}

	// Environment variable settings
	v.SetEnvPrefix("FRAMEGRAB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (ignore if not found)
	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		// Config file not found is OK - we'll use defaults and env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// SetDefaults configures default values for all configuration options.
// This should be called before reading the config file to ensure defaults are in place.
func SetDefaults(v *viper.Viper) {
	// Stream defaults
	v.SetDefault("stream.url", defaultStreamURL)
	v.SetDefault("stream.width", 0)
	v.SetDefault("stream.height", 0)
	v.SetDefault("stream.select_variant", true)

	// Capture defaults
	v.SetDefault("capture.buffer_capacity", defaultBufferCapacity)
	v.SetDefault("capture.get_timeout", defaultGetTimeout)
	v.SetDefault("capture.restart_delay", defaultRestartDelay)
	v.SetDefault("capture.launch_backoff", defaultLaunchBackoff)
	v.SetDefault("capture.report_interval", defaultReportInterval)
	v.SetDefault("capture.force_software", false)
	v.SetDefault("capture.max_frames", 0)

	// FFmpeg defaults
	v.SetDefault("ffmpeg.binary_path", "")
	v.SetDefault("ffmpeg.probe_path", "")
	v.SetDefault("ffmpeg.log_level", "info")
	v.SetDefault("ffmpeg.hwaccel_priority", []string{"cuda", "qsv", "videotoolbox", "vaapi"})
	v.SetDefault("ffmpeg.probe_timeout", defaultProbeTimeout)
	v.SetDefault("ffmpeg.monitor_process", true)

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.add_source", false)
	v.SetDefault("logging.time_format", time.RFC3339)

	// Status server defaults
	v.SetDefault("status.enabled", false)
	v.SetDefault("status.host", "127.0.0.1")
	v.SetDefault("status.port", defaultStatusPort)
	v.SetDefault("status.read_timeout", defaultStatusTimeout)
	v.SetDefault("status.write_timeout", defaultStatusTimeout)
	v.SetDefault("status.shutdown_timeout", defaultStatusShutdownTimeout)
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	// Stream validation
	if c.Stream.URL == "" {
		return fmt.Errorf("stream.url is required")
	}
	if c.Stream.Width < 0 || c.Stream.Height < 0 {
		return fmt.Errorf("stream.width and stream.height must not be negative")
	}
	if (c.Stream.Width == 0) != (c.Stream.Height == 0) {
		return fmt.Errorf("stream.width and stream.height must be set together")
	}

	// Capture validation
	if c.Capture.BufferCapacity < 1 {
		return fmt.Errorf("capture.buffer_capacity must be at least 1")
	}
	if c.Capture.GetTimeout <= 0 {
		return fmt.Errorf("capture.get_timeout must be positive")
	}
	if c.Capture.RestartDelay < 0 {
		return fmt.Errorf("capture.restart_delay must not be negative")
	}
	if c.Capture.LaunchBackoff < 0 {
		return fmt.Errorf("capture.launch_backoff must not be negative")
	}
	if c.Capture.ReportInterval <= 0 {
		return fmt.Errorf("capture.report_interval must be positive")
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("logging.format must be one of: json, text")
	}

	// Status server validation
	const maxPort = 65535
	if c.Status.Enabled && (c.Status.Port < 1 || c.Status.Port > maxPort) {
		return fmt.Errorf("status.port must be between 1 and %d", maxPort)
	}

	return nil
}

// Address returns the status server address in host:port format.
func (c *StatusConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
