// SPDX-License-Identifier: MIT
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"audioviz/internal/analysis"
	"audioviz/internal/domain"
	"audioviz/internal/log"

	"gopkg.in/yaml.v3"
)

// Config represents the main application configuration structure, loaded from YAML.
type Config struct {
	LogLevel  string          `yaml:"log_level"` // Logging level (e.g., "debug", "info", "warn", "error").
	Audio     AudioConfig     `yaml:"audio"`     // Audio input/output settings.
	Analysis  AnalysisConfig  `yaml:"analysis"`  // Spectrum analysis settings.
	Display   DisplayConfig   `yaml:"display"`   // Render loop and viewport settings.
	Recording RecordingConfig `yaml:"recording"` // Tap recording settings.
	Transport TransportConfig `yaml:"transport"` // Frame publishing settings.
}

// AudioConfig holds settings related to audio input/output.
type AudioConfig struct {
	OutputDevice    int     `yaml:"output_device"`     // PortAudio device index for playback (-1 for default).
	InputDevice     int     `yaml:"input_device"`      // PortAudio device index for live capture (-1 for default).
	SampleRate      float64 `yaml:"sample_rate"`       // Capture sample rate in Hz (e.g., 44100, 48000).
	Channels        int     `yaml:"channels"`          // Capture channel count.
	FramesPerBuffer int     `yaml:"frames_per_buffer"` // Frames per audio callback (one tap quantum).
	LowLatency      bool    `yaml:"low_latency"`       // Request low latency settings from PortAudio device.
	Headless        bool    `yaml:"headless"`          // Drive playback from a timer instead of an audio device.
}

// AnalysisConfig holds the spectrum analyzer settings.
type AnalysisConfig struct {
	FFTSize         int     `yaml:"fft_size"`         // Power of two in [32, 32768].
	SmoothingFactor float64 `yaml:"smoothing_factor"` // Temporal smoothing in [0, 1].
	MinDecibels     float64 `yaml:"min_decibels"`     // Level mapped to 0.
	MaxDecibels     float64 `yaml:"max_decibels"`     // Level mapped to 255.
	Window          string  `yaml:"window"`           // Window function name (e.g., "Blackman", "Hann").
}

// DisplayConfig holds render loop settings.
type DisplayConfig struct {
	RefreshRate float64 `yaml:"refresh_rate"` // Frames per second requested from the frame driver.
	Width       int     `yaml:"width"`        // Terminal columns for the bar grid (0 to follow the window).
	Height      int     `yaml:"height"`       // Terminal rows for the bar grid (0 to follow the window).
	BarGap      float64 `yaml:"bar_gap"`      // Horizontal gap between bars, in columns.
}

// RecordingConfig holds settings related to recording the tapped signal.
type RecordingConfig struct {
	Enabled    bool   `yaml:"enabled"`     // Record the tapped mono signal to a WAV file.
	OutputFile string `yaml:"output_file"` // Destination WAV file.
	BitDepth   int    `yaml:"bit_depth"`   // Bit depth for recorded audio (16, 24 or 32).
}

// TransportConfig holds settings related to publishing frames over the network.
type TransportConfig struct {
	WebSocketEnabled bool          `yaml:"websocket_enabled"`  // Serve frames to websocket clients.
	WebSocketAddr    string        `yaml:"websocket_addr"`     // Listen address for the websocket server.
	UDPEnabled       bool          `yaml:"udp_enabled"`        // Enable sending frames over UDP.
	UDPTargetAddress string        `yaml:"udp_target_address"` // Target address and port for UDP packets (e.g., "127.0.0.1:9090").
	UDPSendInterval  time.Duration `yaml:"udp_send_interval"`  // Minimum interval between UDP packets.
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Audio: AudioConfig{
			OutputDevice:    -1, // -1 for default device.
			InputDevice:     -1,
			SampleRate:      44100,
			Channels:        1,
			FramesPerBuffer: 512,
		},
		Analysis: AnalysisConfig{
			FFTSize:         analysis.DefaultFFTSize,
			SmoothingFactor: analysis.DefaultSmoothingFactor,
			MinDecibels:     analysis.DefaultMinDecibels,
			MaxDecibels:     analysis.DefaultMaxDecibels,
			Window:          analysis.Blackman.String(),
		},
		Display: DisplayConfig{
			RefreshRate: 60,
		},
		Recording: RecordingConfig{
			OutputFile: "recording.wav",
			BitDepth:   16,
		},
		Transport: TransportConfig{
			WebSocketAddr:    "127.0.0.1:8080",
			UDPTargetAddress: "127.0.0.1:9090",
			UDPSendInterval:  33 * time.Millisecond, // Default ~30Hz.
		},
	}
}

// LoadConfig loads configuration from a YAML file specified by path. If path is empty,
// it searches default locations ("config.yaml"). If no file is found, it uses built-in
// defaults. After loading defaults or from file, it applies environment variable
// overrides and validates the final configuration.
func LoadConfig(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		candidates := []string{
			"config.yaml",
			"audioviz.yaml",
		}
		for _, candidate := range candidates {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			cfg.applyEnvOverrides()
			if err := cfg.Validate(); err != nil {
				return nil, fmt.Errorf("invalid default configuration: %w", err)
			}
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Apply environment variable overrides AFTER loading from file.
	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	log.Debugf("Config: Loaded %s", path)
	return cfg, nil
}

// Validate checks every section and returns the first problem as a
// *domain.ConfigError.
func (c *Config) Validate() error {
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return domain.NewConfigError("log_level", c.LogLevel, "unknown log level")
	}

	// Audio Validation
	if c.Audio.SampleRate <= 0 {
		return domain.NewConfigError("audio.sample_rate", c.Audio.SampleRate, "must be positive")
	}
	if c.Audio.Channels < 1 {
		return domain.NewConfigError("audio.channels", c.Audio.Channels, "must be at least 1")
	}
	if c.Audio.FramesPerBuffer <= 0 {
		return domain.NewConfigError("audio.frames_per_buffer", c.Audio.FramesPerBuffer, "must be positive")
	}

	// Analysis Validation
	if err := analysis.ValidateFFTSize(c.Analysis.FFTSize); err != nil {
		return prefixed("analysis.", err)
	}
	if _, err := c.AnalysisOptions(); err != nil {
		return prefixed("analysis.", err)
	}

	// Display Validation
	if c.Display.RefreshRate <= 0 {
		return domain.NewConfigError("display.refresh_rate", c.Display.RefreshRate, "must be positive")
	}
	if c.Display.Width < 0 || c.Display.Height < 0 {
		return domain.NewConfigError("display", fmt.Sprintf("%dx%d", c.Display.Width, c.Display.Height), "dimensions must not be negative")
	}
	if c.Display.BarGap < 0 {
		return domain.NewConfigError("display.bar_gap", c.Display.BarGap, "must not be negative")
	}

	// Recording Validation
	if c.Recording.Enabled {
		switch c.Recording.BitDepth {
		case 16, 24, 32:
		default:
			return domain.NewConfigError("recording.bit_depth", c.Recording.BitDepth, "must be 16, 24 or 32")
		}
		if c.Recording.OutputFile == "" {
			return domain.NewConfigError("recording.output_file", "", "must be set when recording is enabled")
		}
	}

	// Transport Validation
	if c.Transport.WebSocketEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.WebSocketAddr); err != nil {
			return domain.NewConfigError("transport.websocket_addr", c.Transport.WebSocketAddr, err.Error())
		}
	}
	if c.Transport.UDPEnabled {
		if _, _, err := net.SplitHostPort(c.Transport.UDPTargetAddress); err != nil {
			return domain.NewConfigError("transport.udp_target_address", c.Transport.UDPTargetAddress, err.Error())
		}
		if c.Transport.UDPSendInterval <= 0 {
			return domain.NewConfigError("transport.udp_send_interval", c.Transport.UDPSendInterval, "must be positive when UDP is enabled")
		}
	}

	return nil
}

// AnalysisOptions converts the analysis section into analyzer options.
func (c *Config) AnalysisOptions() (analysis.Options, error) {
	window, err := analysis.ParseWindowFunc(c.Analysis.Window)
	if err != nil {
		return analysis.Options{}, domain.NewConfigError("window", c.Analysis.Window, err.Error())
	}
	opts := analysis.Options{
		SmoothingFactor: c.Analysis.SmoothingFactor,
		MinDecibels:     c.Analysis.MinDecibels,
		MaxDecibels:     c.Analysis.MaxDecibels,
		Window:          window,
	}
	return opts, opts.Validate()
}

// prefixed qualifies the field of a ConfigError with its section.
func prefixed(section string, err error) error {
	var ce *domain.ConfigError
	if errors.As(err, &ce) {
		return domain.NewConfigError(section+ce.Field, ce.Value, ce.Message)
	}
	return err
}

// applyEnvOverrides replaces values with ENV_* environment variables when
// they are set and parse. Malformed values are logged and ignored.
func (c *Config) applyEnvOverrides() {
	// ENV_LOG_LEVEL
	if val, ok := os.LookupEnv("ENV_LOG_LEVEL"); ok {
		c.LogLevel = val
		log.Infof("Config: Overriding log_level from env: %s", val)
	}

	// ENV_FFT_{...}, ENV_SMOOTHING_FACTOR
	// These are specific to the analyzer.

	// ENV_FFT_SIZE
	if val, ok := os.LookupEnv("ENV_FFT_SIZE"); ok {
		if n, err := strconv.Atoi(val); err == nil {
			c.Analysis.FFTSize = n
			log.Infof("Config: Overriding analysis.fft_size from env: %d", n)
		} else {
			log.Warnf("Config: Ignoring ENV_FFT_SIZE=%q: %v", val, err)
		}
	}
	// ENV_FFT_WINDOW
	if val, ok := os.LookupEnv("ENV_FFT_WINDOW"); ok {
		c.Analysis.Window = val
		log.Infof("Config: Overriding analysis.window from env: %s", val)
	}
	// ENV_SMOOTHING_FACTOR
	if val, ok := os.LookupEnv("ENV_SMOOTHING_FACTOR"); ok {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			c.Analysis.SmoothingFactor = f
			log.Infof("Config: Overriding analysis.smoothing_factor from env: %v", f)
		} else {
			log.Warnf("Config: Ignoring ENV_SMOOTHING_FACTOR=%q: %v", val, err)
		}
	}

	// ENV_HEADLESS
	if val, ok := os.LookupEnv("ENV_HEADLESS"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Audio.Headless = b
			log.Infof("Config: Overriding audio.headless from env: %v", b)
		}
	}

	// ENV_UDP_{...}
	// These are specific to the transport layer.

	// ENV_UDP_ENABLED
	if val, ok := os.LookupEnv("ENV_UDP_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.UDPEnabled = b
			log.Infof("Config: Overriding transport.udp_enabled from env: %v", b)
		}
	}
	// ENV_UDP_TARGET_ADDRESS
	if val, ok := os.LookupEnv("ENV_UDP_TARGET_ADDRESS"); ok {
		c.Transport.UDPTargetAddress = val
		log.Infof("Config: Overriding transport.udp_target_address from env: %s", val)
	}
	// ENV_UDP_SEND_INTERVAL
	if val, ok := os.LookupEnv("ENV_UDP_SEND_INTERVAL"); ok {
		if dur, err := time.ParseDuration(val); err == nil {
			c.Transport.UDPSendInterval = dur
			log.Infof("Config: Overriding transport.udp_send_interval from env: %s", dur)
		}
	}

	// ENV_WS_ENABLED
	if val, ok := os.LookupEnv("ENV_WS_ENABLED"); ok {
		if b, err := strconv.ParseBool(val); err == nil {
			c.Transport.WebSocketEnabled = b
			log.Infof("Config: Overriding transport.websocket_enabled from env: %v", b)
		}
	}
	// ENV_WS_ADDR
	if val, ok := os.LookupEnv("ENV_WS_ADDR"); ok {
		c.Transport.WebSocketAddr = val
		log.Infof("Config: Overriding transport.websocket_addr from env: %s", val)
	}
}
