package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/roman-kulish/csi-collector/internal/clock"
	"github.com/roman-kulish/csi-collector/internal/collector"
	"github.com/roman-kulish/csi-collector/internal/csi"
	"github.com/roman-kulish/csi-collector/internal/radio"
	"github.com/roman-kulish/csi-collector/internal/storage"
)

const (
	storageDir = "data"

	// dataWait bounds each wait of the consumer loop so it can observe shutdown
	dataWait = time.Second
)

// Run wires the frame source, collector and recorder together and consumes
// processed records until ctx is done or the frame source fails.
func Run(ctx context.Context, config *Config, logger *slog.Logger) (err error) {
	source, sourceID, err := openSource(&config.Source)
	if err != nil {
		return fmt.Errorf("failed to open frame source: %w", err)
	}

	var driverOpts []func(d *radio.LineDriver)
	driverOpts = append(driverOpts, radio.WithLogger(logger))
	if config.Source.Type == SourceReplay && config.Source.Replay.Interval > 0 {
		driverOpts = append(driverOpts, radio.WithFrameInterval(time.Duration(config.Source.Replay.Interval)))
	}
	driver := radio.NewLineDriver(sourceID, source, driverOpts...)
	defer closeWithError(driver, &err)

	c := collector.New(driver,
		collector.WithLogger(logger),
		collector.WithDrainOnStop(config.Collector.DrainOnStop),
		collector.WithFilterRebuildOnUpdate(config.Collector.RebuildFilterOnUpdate),
		collector.WithStopTimeout(time.Duration(config.Collector.StopTimeout)),
		collector.WithClock(newClock(&config.Collector)),
	)
	if err = c.Init(config.Collector.Config); err != nil {
		return fmt.Errorf("failed to initialize collector: %w", err)
	}
	defer func() { _ = c.Deinit() }()

	var recorder *Recorder
	if config.Storage.Enabled {
		store, err := createStorage(&config.Storage)
		if err != nil {
			return fmt.Errorf("failed to create storage: %w", err)
		}
		defer store.Close()

		session, err := store.CreateSession(ctx, config.Source.Type.String(), sourceID, config.Collector.Config)
		if err != nil {
			return fmt.Errorf("creating session: %w", err)
		}
		logger.Info("recording session", slog.String("runID", session.RunID.String()), slog.Int64("sessionID", session.ID))

		recorder = NewRecorder(store, session.ID, config.Storage.QueueSize, config.Storage.MaxBatchSize, WithRecorderLogger(logger))
		defer recorder.Close() // runs before the store is closed

		if err = c.RegisterCallback(recorder.Observe); err != nil {
			return fmt.Errorf("registering recorder: %w", err)
		}
		defer c.UnregisterCallback() // detach before the recorder closes
	}

	if err = c.Start(); err != nil {
		return fmt.Errorf("failed to start collector: %w", err)
	}
	defer func() { _ = c.Stop() }()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	driverDone := make(chan error, 1)
	go func() {
		driverDone <- driver.Run(ctx)
		cancel()
	}()

	if interval := time.Duration(config.Settings.StatsInterval); interval > 0 {
		go reportStats(ctx, interval, logger, c, recorder)
	}

	consume(ctx, c, logger)

	if err = c.Stop(); err != nil {
		return fmt.Errorf("failed to stop collector: %w", err)
	}
	logStats(logger, c, recorder)

	cancel()
	if dErr := <-driverDone; dErr != nil {
		return fmt.Errorf("frame source failed: %w", dErr)
	}
	return nil
}

// consume drains the collector output until ctx is done
func consume(ctx context.Context, c *collector.Collector, logger *slog.Logger) {
	for {
		rec, err := c.GetData(ctx, dataWait)
		switch {
		case err == nil:
			logger.Debug("csi record",
				slog.String("mac", rec.MACString()),
				slog.Int("rssi", rec.RSSI),
				slog.Int("channel", int(rec.Channel)),
				slog.Int("subcarriers", rec.SubcarrierCount),
				slog.Bool("significant", rec.Valid))
			rec.Release()

		case errors.Is(err, csi.ErrTimeout):
			continue

		default:
			// context done or collector stopped
			return
		}
	}
}

func reportStats(ctx context.Context, interval time.Duration, logger *slog.Logger, c *collector.Collector, recorder *Recorder) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			logStats(logger, c, recorder)
		case <-ctx.Done():
			return
		}
	}
}

func openSource(config *SourceConfig) (io.ReadCloser, string, error) {
	switch config.Type {
	case SourceSerial:
		src, err := radio.OpenSerial(config.Serial, nil)
		return src, config.Serial.Port, err

	case SourceReplay:
		src, err := radio.OpenReplay(config.Replay.Path, config.Replay.Loop)
		return src, config.Replay.Path, err

	default:
		return nil, "", fmt.Errorf("unknown source type '%s'", config.Type)
	}
}

// newClock returns the capture clock. A configured offset is applied as if a
// time sync source had measured it.
func newClock(config *CollectorConfig) *clock.Synced {
	clk := clock.NewSynced(nil)
	if config.ClockOffset != 0 {
		clk.SetOffset(time.Duration(config.ClockOffset))
	}
	return clk
}

func createStorage(config *StorageConfig) (*storage.SqliteStore, error) {
	wd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("failed to get current working directory: %w", err)
	}

	dbPath := config.DataDirectory
	if dbPath == "" {
		dbPath = storageDir
	}
	if !filepath.IsAbs(dbPath) {
		dbPath = filepath.Join(wd, dbPath)
	}

	stat, err := os.Stat(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("storage directory '%s' does not exist: %w", dbPath, err)
		}
		return nil, fmt.Errorf("checking storage directory '%s': %w", dbPath, err)
	}
	if !stat.IsDir() {
		return nil, fmt.Errorf("invalid storage directory '%s'", dbPath)
	}

	dbPath = filepath.Join(dbPath, fmt.Sprintf("csi_session_%s.sqlite", time.Now().UTC().Format("20060102_150405")))
	return storage.NewSqliteStore(dbPath), nil
}

func closeWithError(cl interface{ Close() error }, err *error) {
	if cErr := cl.Close(); cErr != nil && *err == nil {
		*err = cErr
	}
}
