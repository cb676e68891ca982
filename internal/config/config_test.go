// ABOUTME: Tests for configuration loading and validation
// ABOUTME: Covers YAML over defaults, environment overrides and rejection of bad values
package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

const sampleYAML = `
name: studio
control:
  port: 9000
log:
  level: debug
period_ms: 10
default_format:
  channels: 1
  sample_rate: 16000
  encoding: s16le
devices:
  - id: tone0
    type: tone
    frequency: 880
  - id: speaker
    name: Speakers
    type: playback
  - id: rec
    type: recorder
    path: /tmp/out.wav
    format: {channels: 2, sample_rate: 48000, encoding: s16le}
connections:
  - {source: tone0, sink: Speakers}
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hound.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "hound", cfg.Name)
	assert.Equal(t, 20, cfg.PeriodMS)
}

func TestLoadYAML(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleYAML))
	require.NoError(t, err)

	assert.Equal(t, "studio", cfg.Name)
	assert.Equal(t, 9000, cfg.Control.Port)
	assert.Equal(t, "0.0.0.0", cfg.Control.Listen, "unset keys keep defaults")
	assert.True(t, cfg.Control.EnableMDNS)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 10, cfg.PeriodMS)

	require.Len(t, cfg.Devices, 3)
	assert.Equal(t, 880.0, cfg.Devices[0].Frequency)
	assert.Equal(t, "tone0", cfg.Devices[0].DisplayName())
	assert.Equal(t, "Speakers", cfg.Devices[1].DisplayName())

	format, err := cfg.Devices[2].Format.Audio()
	require.NoError(t, err)
	assert.Equal(t, audio.Format{Channels: 2, SampleRate: 48000, Encoding: audio.EncodingS16LE}, format)

	assert.Equal(t, []ConnectionConfig{{Source: "tone0", Sink: "Speakers"}}, cfg.Connections)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestLoadMalformedYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "name: [unterminated"))
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(map[string]string{
		"HOUND_NAME":                "from-env",
		"HOUND_CONTROL_PORT":        "7000",
		"HOUND_CONTROL_ENABLE_MDNS": "false",
		"HOUND_LOG_FILE":            "/var/log/hound.log",
		"UNRELATED":                 "x",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-env", cfg.Name)
	assert.Equal(t, 7000, cfg.Control.Port)
	assert.False(t, cfg.Control.EnableMDNS)
	assert.Equal(t, "/var/log/hound.log", cfg.Log.File)
	assert.Equal(t, "info", cfg.Log.Level, "unset variables leave values alone")
	assert.True(t, cfg.Metrics.Enabled)
}

func TestEnvOverrideRejectsGarbage(t *testing.T) {
	cfg := Default()
	err := cfg.applyEnv(map[string]string{"HOUND_CONTROL_PORT": "eighty"})
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty name", func(c *Config) { c.Name = "" }},
		{"port zero", func(c *Config) { c.Control.Port = 0 }},
		{"port too large", func(c *Config) { c.Control.Port = 70000 }},
		{"period zero", func(c *Config) { c.PeriodMS = 0 }},
		{"any default format", func(c *Config) { c.DefaultFormat = FormatConfig{} }},
		{"bad encoding", func(c *Config) { c.DefaultFormat.Encoding = "mp3" }},
		{"device without id", func(c *Config) {
			c.Devices = []DeviceConfig{{Type: DeviceTone}}
		}},
		{"duplicate device id", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Type: DeviceTone}, {ID: "a", Type: DevicePlayback}}
		}},
		{"unknown type", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Type: "theremin"}}
		}},
		{"file without path", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Type: DeviceFile}}
		}},
		{"bad device format", func(c *Config) {
			c.Devices = []DeviceConfig{{ID: "a", Type: DeviceTone, Format: FormatConfig{Channels: 2}}}
		}},
		{"half connection", func(c *Config) {
			c.Connections = []ConnectionConfig{{Source: "a"}}
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}
