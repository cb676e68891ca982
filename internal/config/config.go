// ABOUTME: Daemon configuration: defaults, YAML file, HOUND_ environment overrides
// ABOUTME: Validate rejects configs the device factory or registry could not honour
package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/Resonate-Protocol/hound/pkg/audio"
)

// Device types understood by the device factory
const (
	DeviceTone     = "tone"
	DeviceFile     = "file"
	DevicePlayback = "playback"
	DeviceRecorder = "recorder"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "HOUND_"

// ErrInvalid wraps every validation failure
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete daemon configuration
type Config struct {
	Name          string             `yaml:"name"`
	Control       ControlConfig      `yaml:"control"`
	Log           LogConfig          `yaml:"log"`
	Metrics       MetricsConfig      `yaml:"metrics"`
	DefaultFormat FormatConfig       `yaml:"default_format"`
	PeriodMS      int                `yaml:"period_ms"`
	Devices       []DeviceConfig     `yaml:"devices"`
	Connections   []ConnectionConfig `yaml:"connections"`
}

// ControlConfig configures the websocket control server
type ControlConfig struct {
	Listen     string `yaml:"listen"`
	Port       int    `yaml:"port"`
	EnableMDNS bool   `yaml:"enable_mdns"`
}

// LogConfig configures logging and rotation of the log file
type LogConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// MetricsConfig toggles the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// FormatConfig is a PCM format as written in YAML. All zero means "any".
type FormatConfig struct {
	Channels   int    `yaml:"channels"`
	SampleRate int    `yaml:"sample_rate"`
	Encoding   string `yaml:"encoding"`
}

// DeviceConfig declares one device to create at startup
type DeviceConfig struct {
	ID        string       `yaml:"id"`
	Name      string       `yaml:"name"`
	Type      string       `yaml:"type"`
	Path      string       `yaml:"path"`
	Loop      bool         `yaml:"loop"`
	Format    FormatConfig `yaml:"format"`
	Frequency float64      `yaml:"frequency"`
}

// ConnectionConfig is a source to sink link made at startup
type ConnectionConfig struct {
	Source string `yaml:"source"`
	Sink   string `yaml:"sink"`
}

// envConfig lists the scalar settings that can be overridden from the environment
type envConfig struct {
	Name           *string `env:"NAME"`
	ControlListen  *string `env:"CONTROL_LISTEN"`
	ControlPort    *int    `env:"CONTROL_PORT"`
	EnableMDNS     *bool   `env:"CONTROL_ENABLE_MDNS"`
	LogLevel       *string `env:"LOG_LEVEL"`
	LogFile        *string `env:"LOG_FILE"`
	MetricsEnabled *bool   `env:"METRICS_ENABLED"`
	PeriodMS       *int    `env:"PERIOD_MS"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Name: "hound",
		Control: ControlConfig{
			Listen:     "0.0.0.0",
			Port:       8927,
			EnableMDNS: true,
		},
		Log: LogConfig{
			Level:      "info",
			MaxSize:    100,
			MaxBackups: 5,
			MaxAge:     30,
			Compress:   true,
		},
		Metrics: MetricsConfig{Enabled: true},
		DefaultFormat: FormatConfig{
			Channels:   2,
			SampleRate: 48000,
			Encoding:   audio.EncodingS16LE.String(),
		},
		PeriodMS: 20,
	}
}

// Load reads path (if not empty) over the defaults, applies environment
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(nil); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnv overlays HOUND_* variables. A nil environ reads the process environment.
func (c *Config) applyEnv(environ map[string]string) error {
	var raw envConfig
	if err := env.ParseWithOptions(&raw, env.Options{Prefix: EnvPrefix, Environment: environ}); err != nil {
		return fmt.Errorf("environment variables are invalid: %w", err)
	}

	set(&c.Name, raw.Name)
	set(&c.Control.Listen, raw.ControlListen)
	set(&c.Control.Port, raw.ControlPort)
	set(&c.Control.EnableMDNS, raw.EnableMDNS)
	set(&c.Log.Level, raw.LogLevel)
	set(&c.Log.File, raw.LogFile)
	set(&c.Metrics.Enabled, raw.MetricsEnabled)
	set(&c.PeriodMS, raw.PeriodMS)
	return nil
}

func set[T any](dst *T, v *T) {
	if v != nil {
		*dst = *v
	}
}

// Validate checks ranges, formats, device types and id uniqueness
func (c *Config) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalid)
	}
	if c.Control.Port < 1 || c.Control.Port > 65535 {
		return fmt.Errorf("%w: control.port must be 1-65535, got %d", ErrInvalid, c.Control.Port)
	}
	if c.PeriodMS <= 0 || c.PeriodMS > 1000 {
		return fmt.Errorf("%w: period_ms must be 1-1000, got %d", ErrInvalid, c.PeriodMS)
	}
	format, err := c.DefaultFormat.Audio()
	if err != nil {
		return fmt.Errorf("%w: default_format: %w", ErrInvalid, err)
	}
	if format.IsAny() {
		return fmt.Errorf("%w: default_format must be concrete", ErrInvalid)
	}

	ids := make(map[string]bool, len(c.Devices))
	for i, d := range c.Devices {
		if d.ID == "" {
			return fmt.Errorf("%w: devices[%d]: id is required", ErrInvalid, i)
		}
		if ids[d.ID] {
			return fmt.Errorf("%w: devices[%d]: duplicate id %q", ErrInvalid, i, d.ID)
		}
		ids[d.ID] = true

		switch d.Type {
		case DeviceTone, DevicePlayback:
		case DeviceFile, DeviceRecorder:
			if d.Path == "" {
				return fmt.Errorf("%w: device %q: path is required for %s devices", ErrInvalid, d.ID, d.Type)
			}
		default:
			return fmt.Errorf("%w: device %q: unknown type %q", ErrInvalid, d.ID, d.Type)
		}
		if d.Frequency < 0 {
			return fmt.Errorf("%w: device %q: negative frequency", ErrInvalid, d.ID)
		}
		if _, err := d.Format.Audio(); err != nil {
			return fmt.Errorf("%w: device %q: %w", ErrInvalid, d.ID, err)
		}
	}

	for i, conn := range c.Connections {
		if conn.Source == "" || conn.Sink == "" {
			return fmt.Errorf("%w: connections[%d]: source and sink are required", ErrInvalid, i)
		}
	}
	return nil
}

// Audio converts the YAML form, validating concrete formats
func (f FormatConfig) Audio() (audio.Format, error) {
	if f == (FormatConfig{}) {
		return audio.Format{}, nil
	}
	enc, err := audio.ParseEncoding(f.Encoding)
	if err != nil {
		return audio.Format{}, err
	}
	format := audio.Format{Channels: f.Channels, SampleRate: f.SampleRate, Encoding: enc}
	if err := format.Validate(); err != nil {
		return audio.Format{}, err
	}
	return format, nil
}

// DisplayName returns the device name, defaulting to its id
func (d DeviceConfig) DisplayName() string {
	if d.Name != "" {
		return d.Name
	}
	return d.ID
}
