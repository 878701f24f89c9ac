// SPDX-License-Identifier: MIT
package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"audioviz/internal/analysis"
	"audioviz/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	tmp := t.TempDir()
	path := filepath.Join(tmp, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp config: %v", err)
	}
	return path
}

func TestLoadConfig_EmptyPath(t *testing.T) {
	t.Chdir(t.TempDir())
	cfg, err := LoadConfig("")
	if err != nil {
		t.Errorf("expected nil error, got %v", err)
	}
	if cfg == nil {
		t.Fatal("expected default config, got nil")
	}
	assert.Equal(t, Default(), cfg)
}

func TestLoadConfig_Candidate(t *testing.T) {
	dir := t.TempDir()
	t.Chdir(dir)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("analysis:\n  fft_size: 2048\n"), 0644))

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, 2048, cfg.Analysis.FFTSize)
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	t.Parallel()
	cfg, err := LoadConfig("nonexistent.yaml")
	if err == nil || !strings.Contains(err.Error(), "failed to read config file") {
		t.Errorf("expected read error, got %v", err)
	}
	if cfg != nil {
		t.Errorf("expected nil config on error, got %+v", cfg)
	}
}

func TestLoadConfig_UnmarshalError(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, ":\n:bad")
	_, err := LoadConfig(path)
	if err == nil || !strings.Contains(err.Error(), "failed to parse config file") {
		t.Error("expected unmarshal error, got nil or wrong error")
	}
}

func TestLoadConfig_FileValues(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, `
log_level: debug
audio:
  headless: true
  frames_per_buffer: 256
analysis:
  fft_size: 1024
  smoothing_factor: 0.8
  min_decibels: -90
  max_decibels: -10
  window: hann
display:
  refresh_rate: 30
  bar_gap: 1
transport:
  udp_enabled: true
  udp_send_interval: 50ms
`)
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.Audio.Headless)
	assert.Equal(t, 256, cfg.Audio.FramesPerBuffer)
	assert.Equal(t, 44100.0, cfg.Audio.SampleRate, "unset values keep defaults")
	assert.Equal(t, 1024, cfg.Analysis.FFTSize)
	assert.Equal(t, 30.0, cfg.Display.RefreshRate)
	assert.Equal(t, 50*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.Equal(t, "127.0.0.1:9090", cfg.Transport.UDPTargetAddress)

	opts, err := cfg.AnalysisOptions()
	require.NoError(t, err)
	assert.Equal(t, analysis.Options{SmoothingFactor: 0.8, MinDecibels: -90, MaxDecibels: -10, Window: analysis.Hann}, opts)
}

func TestLoadConfig_InvalidValue(t *testing.T) {
	t.Parallel()
	path := writeTempConfig(t, "analysis:\n  fft_size: 1000\n")
	_, err := LoadConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid configuration")
	assert.ErrorIs(t, err, domain.ErrConfig)

	var ce *domain.ConfigError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "analysis.fft_size", ce.Field)
}

func TestValidate(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		modify func(*Config)
		field  string
	}{
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "log_level"},
		{"sample rate", func(c *Config) { c.Audio.SampleRate = 0 }, "audio.sample_rate"},
		{"channels", func(c *Config) { c.Audio.Channels = 0 }, "audio.channels"},
		{"frames per buffer", func(c *Config) { c.Audio.FramesPerBuffer = -1 }, "audio.frames_per_buffer"},
		{"fft too small", func(c *Config) { c.Analysis.FFTSize = 16 }, "analysis.fft_size"},
		{"fft too large", func(c *Config) { c.Analysis.FFTSize = 65536 }, "analysis.fft_size"},
		{"smoothing", func(c *Config) { c.Analysis.SmoothingFactor = 1.5 }, "analysis.smoothing_factor"},
		{"decibel range", func(c *Config) { c.Analysis.MinDecibels = -20 }, "analysis.min_decibels"},
		{"window", func(c *Config) { c.Analysis.Window = "triangle" }, "analysis.window"},
		{"refresh rate", func(c *Config) { c.Display.RefreshRate = 0 }, "display.refresh_rate"},
		{"display size", func(c *Config) { c.Display.Width = -1 }, "display"},
		{"bar gap", func(c *Config) { c.Display.BarGap = -1 }, "display.bar_gap"},
		{"bit depth", func(c *Config) { c.Recording.Enabled = true; c.Recording.BitDepth = 8 }, "recording.bit_depth"},
		{"recording file", func(c *Config) { c.Recording.Enabled = true; c.Recording.OutputFile = "" }, "recording.output_file"},
		{"websocket addr", func(c *Config) { c.Transport.WebSocketEnabled = true; c.Transport.WebSocketAddr = "nope" }, "transport.websocket_addr"},
		{"udp addr", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPTargetAddress = "localhost" }, "transport.udp_target_address"},
		{"udp interval", func(c *Config) { c.Transport.UDPEnabled = true; c.Transport.UDPSendInterval = 0 }, "transport.udp_send_interval"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()

			var ce *domain.ConfigError
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}

	require.NoError(t, Default().Validate())
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("ENV_LOG_LEVEL", "warn")
	t.Setenv("ENV_FFT_SIZE", "4096")
	t.Setenv("ENV_FFT_WINDOW", "hamming")
	t.Setenv("ENV_SMOOTHING_FACTOR", "0.5")
	t.Setenv("ENV_HEADLESS", "true")
	t.Setenv("ENV_UDP_ENABLED", "true")
	t.Setenv("ENV_UDP_TARGET_ADDRESS", "10.0.0.1:7000")
	t.Setenv("ENV_UDP_SEND_INTERVAL", "10ms")
	t.Setenv("ENV_WS_ENABLED", "1")
	t.Setenv("ENV_WS_ADDR", ":9000")

	path := writeTempConfig(t, "analysis:\n  fft_size: 1024\n")
	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 4096, cfg.Analysis.FFTSize, "env wins over the file")
	assert.Equal(t, "hamming", cfg.Analysis.Window)
	assert.Equal(t, 0.5, cfg.Analysis.SmoothingFactor)
	assert.True(t, cfg.Audio.Headless)
	assert.True(t, cfg.Transport.UDPEnabled)
	assert.Equal(t, "10.0.0.1:7000", cfg.Transport.UDPTargetAddress)
	assert.Equal(t, 10*time.Millisecond, cfg.Transport.UDPSendInterval)
	assert.True(t, cfg.Transport.WebSocketEnabled)
	assert.Equal(t, ":9000", cfg.Transport.WebSocketAddr)
}

func TestEnvOverrides_Malformed(t *testing.T) {
	t.Setenv("ENV_FFT_SIZE", "big")
	t.Setenv("ENV_UDP_ENABLED", "maybe")

	cfg := Default()
	cfg.applyEnvOverrides()
	assert.Equal(t, analysis.DefaultFFTSize, cfg.Analysis.FFTSize)
	assert.False(t, cfg.Transport.UDPEnabled)
}
