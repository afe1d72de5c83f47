package app

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/roman-kulish/csi-collector/internal/csi"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfig(t *testing.T) {
	path := writeConfig(t, `
settings:
  logLevel: debug
  statsInterval: 10s
collector:
  sampleRate: 50
  bufferCapacity: 512
  filterEnabled: true
  filterThreshold: 0.3
  overwriteOldest: true
  drainOnStop: true
  stopTimeout: 1s
  clockOffset: -1500ms
source:
  type: replay
  replay:
    path: capture.log
    interval: 20ms
    loop: true
storage:
  enabled: true
  dataDirectory: /tmp/csi
  maxBatchSize: 50
`)

	config, err := LoadConfig(path)
	require.NoError(t, err)

	level, err := config.Settings.Level()
	require.NoError(t, err)
	assert.Equal(t, "DEBUG", level.String())
	assert.Equal(t, Duration(10*time.Second), config.Settings.StatsInterval)

	assert.Equal(t, 50, config.Collector.SampleRate)
	assert.Equal(t, 512, config.Collector.BufferCapacity)
	assert.True(t, config.Collector.FilterEnabled)
	assert.InDelta(t, 0.3, config.Collector.FilterThreshold, 1e-9)
	assert.True(t, config.Collector.OverwriteOldest)
	assert.True(t, config.Collector.DrainOnStop)
	assert.Equal(t, Duration(time.Second), config.Collector.StopTimeout)
	assert.Equal(t, Duration(-1500*time.Millisecond), config.Collector.ClockOffset)

	// omitted values keep their defaults
	assert.True(t, config.Collector.EnableAmplitude)
	assert.Equal(t, defaultQueueSize, config.Storage.QueueSize)

	assert.Equal(t, SourceReplay, config.Source.Type)
	assert.Equal(t, "capture.log", config.Source.Replay.Path)
	assert.Equal(t, Duration(20*time.Millisecond), config.Source.Replay.Interval)
	assert.True(t, config.Source.Replay.Loop)

	assert.Equal(t, "/tmp/csi", config.Storage.DataDirectory)
	assert.Equal(t, 50, config.Storage.MaxBatchSize)
}

func TestWriteConfig(t *testing.T) {
	config := DefaultConfig()
	config.Settings.StatsInterval = Duration(5 * time.Second)
	config.Source = SourceConfig{Type: SourceReplay, Replay: ReplayConfig{Path: "capture.log", Interval: Duration(time.Millisecond)}}
	config.Collector.FilterEnabled = true

	var buf bytes.Buffer
	require.NoError(t, WriteConfig(&buf, config))
	assert.Contains(t, buf.String(), "statsInterval: 5s")
	assert.Contains(t, buf.String(), "sampleRate: 20")

	loaded, err := LoadConfig(writeConfig(t, buf.String()))
	require.NoError(t, err)
	assert.Equal(t, config, loaded)
}

func TestLoadConfig_Errors(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{"invalid yaml", "settings: ["},
		{"invalid duration", "settings:\n  statsInterval: soon\n"},
		{"negative duration", "settings:\n  statsInterval: -1s\n"},
		{"invalid log level", "settings:\n  logLevel: chatty\n"},
		{"invalid sample rate", "collector:\n  sampleRate: 500\nsource:\n  type: replay\n  replay:\n    path: x\n"},
		{"invalid threshold", "collector:\n  filterThreshold: 1.5\nsource:\n  type: replay\n  replay:\n    path: x\n"},
		{"missing serial port", "source:\n  type: serial\n"},
		{"missing replay path", "source:\n  type: replay\n"},
		{"unknown source", "source:\n  type: usb\n"},
		{"invalid batch size", "source:\n  type: replay\n  replay:\n    path: x\nstorage:\n  maxBatchSize: 0\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := LoadConfig(writeConfig(t, tc.content))
			assert.Error(t, err)
		})
	}

	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_InvalidArgument(t *testing.T) {
	_, err := LoadConfig(writeConfig(t, "collector:\n  bufferCapacity: 16\n"))
	assert.ErrorIs(t, err, csi.ErrInvalidArgument)
}

func TestDuration_Marshalling(t *testing.T) {
	d := Duration(1500 * time.Millisecond)

	p, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1.5s"`, string(p))

	var decoded Duration
	require.NoError(t, json.Unmarshal([]byte(`"2m"`), &decoded))
	assert.Equal(t, Duration(2*time.Minute), decoded)
	assert.Error(t, json.Unmarshal([]byte(`"later"`), &decoded))

	y, err := yaml.Marshal(struct {
		Interval Duration `yaml:"interval"`
	}{d})
	require.NoError(t, err)
	assert.Equal(t, "interval: 1.5s\n", string(y))
}
