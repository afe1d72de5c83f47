package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/radio"
	"github.com/roman-kulish/csi-collector/internal/storage"
)

func writeCapture(t *testing.T, dir string, lines int) string {
	t.Helper()

	f, err := os.Create(filepath.Join(dir, "capture.log"))
	require.NoError(t, err)
	defer f.Close()

	fmt.Fprintln(f, "I (312) csi: collector started")
	for i := range lines {
		fmt.Fprintf(f, `CSI_DATA,%d,aa:bb:cc:dd:ee:%02x,-%d,11,1,7,1,0,1,0,0,0,1,-95,0,6,1,%d,0,83,0,4,0,"[3,4,6,8]"`+"\n",
			i, i, 40+i, 1000+i)
	}
	return f.Name()
}

func TestRun_ReplayToStorage(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.Settings.StatsInterval = 0
	config.Collector.SampleRate = csi.SampleRateMax
	config.Collector.DrainOnStop = true
	config.Source = SourceConfig{
		Type:   SourceReplay,
		Replay: ReplayConfig{Path: writeCapture(t, dir, 5)},
	}
	config.Storage.DataDirectory = dir
	require.NoError(t, config.Validate())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	require.NoError(t, Run(ctx, config, logger))

	files, err := filepath.Glob(filepath.Join(dir, "csi_session_*.sqlite"))
	require.NoError(t, err)
	require.Len(t, files, 1)

	store := storage.NewSqliteStore(files[0])
	defer store.Close()

	sessions, err := store.Sessions(ctx)
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, "replay", sessions[0].SourceType)

	count, err := store.CountRecords(ctx, sessions[0].ID)
	require.NoError(t, err)
	assert.Equal(t, int64(5), count)
}

func TestRun_SourceErrors(t *testing.T) {
	dir := t.TempDir()

	config := DefaultConfig()
	config.Storage.Enabled = false
	config.Source = SourceConfig{
		Type:   SourceReplay,
		Replay: ReplayConfig{Path: filepath.Join(dir, "missing.log")},
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))
	assert.Error(t, Run(context.Background(), config, logger))

	path := filepath.Join(dir, "garbage.log")
	var content string
	for range radio.ParseErrorsThreshold {
		content += `CSI_DATA,1,zz,-40,"[1,2]"` + "\n"
	}
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config.Source.Replay.Path = path
	assert.ErrorIs(t, Run(context.Background(), config, logger), radio.ErrTooManyParseErrors)
}

func TestCreateStorage_MissingDirectory(t *testing.T) {
	_, err := createStorage(&StorageConfig{DataDirectory: filepath.Join(t.TempDir(), "nope")})
	assert.Error(t, err)
}

func TestNewClock(t *testing.T) {
	clk := newClock(&CollectorConfig{})
	assert.False(t, clk.IsSynced())
	assert.WithinDuration(t, time.Now(), clk.Now(), time.Second)

	clk = newClock(&CollectorConfig{ClockOffset: Duration(-time.Hour)})
	assert.True(t, clk.IsSynced())
	assert.Equal(t, -time.Hour, clk.Offset())
	assert.WithinDuration(t, time.Now().Add(-time.Hour), clk.Now(), time.Second)
}
