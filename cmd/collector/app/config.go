package app

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/csi-collector/internal/collector"
	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/radio"
)

const (
	SourceSerial SourceType = "serial"
	SourceReplay SourceType = "replay"

	defaultStatsInterval = 30 * time.Second
	defaultMaxBatchSize  = 100
	defaultQueueSize     = 1024
)

type SourceType string

func (s SourceType) String() string {
	return string(s)
}

type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	duration, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalYAML() (interface{}, error) {
	return d.String(), nil
}

func (d *Duration) UnmarshalJSON(bytes []byte) error {
	var v string
	if err := json.Unmarshal(bytes, &v); err != nil {
		return err
	}

	duration, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("app.Duration: failed to parse: %s", err)
	}

	*d = Duration(duration)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d Duration) Validate() error {
	if d < 0 {
		return fmt.Errorf("app.Duration: must not be negative: %s", time.Duration(d))
	}
	return nil
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config represents the main application configuration
type Config struct {
	Settings  Settings        `yaml:"settings"`
	Collector CollectorConfig `yaml:"collector"`
	Source    SourceConfig    `yaml:"source"`
	Storage   StorageConfig   `yaml:"storage"`
}

// Settings represents global application settings
type Settings struct {
	LogLevel      string   `yaml:"logLevel"`
	StatsInterval Duration `yaml:"statsInterval"` // 0 disables the periodic stats log
}

// CollectorConfig is the collector configuration plus daemon-level options
type CollectorConfig struct {
	csi.Config `yaml:",inline"`

	DrainOnStop           bool     `yaml:"drainOnStop"`
	RebuildFilterOnUpdate bool     `yaml:"rebuildFilterOnUpdate"`
	StopTimeout           Duration `yaml:"stopTimeout"`
	ClockOffset           Duration `yaml:"clockOffset"` // Correction added to capture timestamps, may be negative
}

// SourceConfig selects where CSI frames come from
type SourceConfig struct {
	Type   SourceType          `yaml:"type"`
	Serial radio.SerialOptions `yaml:"serial"`
	Replay ReplayConfig        `yaml:"replay"`
}

// ReplayConfig represents a captured console log played back as a frame source
type ReplayConfig struct {
	Path     string   `yaml:"path"`
	Interval Duration `yaml:"interval"` // Delay between frames, 0 replays as fast as possible
	Loop     bool     `yaml:"loop"`
}

// StorageConfig represents storage settings
type StorageConfig struct {
	Enabled       bool   `yaml:"enabled"`
	DataDirectory string `yaml:"dataDirectory"`
	MaxBatchSize  int    `yaml:"maxBatchSize"`
	QueueSize     int    `yaml:"queueSize"`
}

// DefaultConfig returns the configuration used for any value the file omits
func DefaultConfig() *Config {
	return &Config{
		Settings: Settings{
			LogLevel:      "info",
			StatsInterval: Duration(defaultStatsInterval),
		},
		Collector: CollectorConfig{
			Config:      csi.DefaultConfig(),
			StopTimeout: Duration(collector.StopTimeout),
		},
		Source: SourceConfig{
			Type: SourceSerial,
		},
		Storage: StorageConfig{
			Enabled:       true,
			DataDirectory: storageDir,
			MaxBatchSize:  defaultMaxBatchSize,
			QueueSize:     defaultQueueSize,
		},
	}
}

// LoadConfig reads and validates the YAML configuration file at path
func LoadConfig(path string) (*Config, error) {
	p, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading configuration: %w", err)
	}

	config := DefaultConfig()
	if err = yaml.Unmarshal(p, config); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err = config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// WriteConfig writes the effective configuration, defaults included, as YAML
func WriteConfig(w io.Writer, config *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(config); err != nil {
		return fmt.Errorf("encoding configuration: %w", err)
	}
	return enc.Close()
}

func (c *Config) Validate() error {
	if err := c.Settings.Validate(); err != nil {
		return err
	}
	if err := c.Collector.Validate(); err != nil {
		return err
	}
	if err := c.Source.Validate(); err != nil {
		return err
	}
	return c.Storage.Validate()
}

// Level returns the parsed log level
func (s *Settings) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s.LogLevel)); err != nil {
		return level, fmt.Errorf("app.Settings: invalid log level %q", s.LogLevel)
	}
	return level, nil
}

func (s *Settings) Validate() error {
	if _, err := s.Level(); err != nil {
		return err
	}
	if err := s.StatsInterval.Validate(); err != nil {
		return fmt.Errorf("app.Settings: statsInterval: %w", err)
	}
	return nil
}

func (c *CollectorConfig) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	if err := c.StopTimeout.Validate(); err != nil {
		return fmt.Errorf("app.CollectorConfig: stopTimeout: %w", err)
	}
	return nil
}

func (s *SourceConfig) Validate() error {
	switch s.Type {
	case SourceSerial:
		return s.Serial.Validate()

	case SourceReplay:
		if s.Replay.Path == "" {
			return fmt.Errorf("app.ReplayConfig: path is required")
		}
		if err := s.Replay.Interval.Validate(); err != nil {
			return fmt.Errorf("app.ReplayConfig: interval: %w", err)
		}
		return nil

	default:
		return fmt.Errorf("app.SourceConfig: unknown source type '%s'", s.Type)
	}
}

func (s *StorageConfig) Validate() error {
	if !s.Enabled {
		return nil
	}
	if s.MaxBatchSize <= 0 {
		return fmt.Errorf("app.StorageConfig: maxBatchSize must be positive: %d given", s.MaxBatchSize)
	}
	if s.QueueSize <= 0 {
		return fmt.Errorf("app.StorageConfig: queueSize must be positive: %d given", s.QueueSize)
	}
	return nil
}
