package app

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"log/slog"
	"os"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/csi-collector/internal/storage"
)

func Run(ctx context.Context, config *Config, logger *slog.Logger) error {
	if _, err := os.Stat(config.DBPath); err != nil && os.IsNotExist(err) {
		return fmt.Errorf("database file '%s' does not exist: %w", config.DBPath, err)
	}

	store := storage.NewSqliteStore(config.DBPath)
	defer store.Close()

	grid, err := readGrid(ctx, store, config, logger)
	if err != nil {
		return err
	}

	bounds := grid.Bounds().Override(config.MinAmplitude, config.MaxAmplitude)

	logger.Info("finished reading records",
		slog.Group("stats",
			slog.String("records", humanize.Comma(int64(grid.Height))),
			slog.Int("subcarriers", grid.Width),
			slog.String("significant", humanize.Comma(int64(grid.Flagged))),
			slog.String("minTimestamp", grid.TimestampStart.In(config.TimeZone).Format(time.DateTime)),
			slog.String("maxTimestamp", grid.TimestampEnd.In(config.TimeZone).Format(time.DateTime)),
			slog.String("minAmplitude", humanize.FtoaWithDigits(bounds.Min, 2)),
			slog.String("maxAmplitude", humanize.FtoaWithDigits(bounds.Max, 2)),
		))

	renderer := NewHeatmapRenderer(RenderConfig{
		Location:      config.TimeZone,
		ColorTheme:    config.Theme,
		CellWidth:     config.CellWidth,
		NoAnnotations: config.NoAnnotations,
		MinAmplitude:  config.MinAmplitude,
		MaxAmplitude:  config.MaxAmplitude,
	})

	logger.Info("rendering heatmap",
		slog.Group("image",
			slog.String("destination", config.OutputFile),
			slog.String("format", string(config.Format)),
			slog.String("theme", string(config.Theme)),
			slog.Int("width", grid.Width*config.CellWidth),
			slog.Int("height", grid.Height),
		))

	img, err := renderer.Render(grid)
	if err != nil {
		return fmt.Errorf("rendering heatmap: %w", err)
	}

	return writeImage(config.OutputFile, config.Format, img)
}

func readGrid(ctx context.Context, store *storage.SqliteStore, config *Config, logger *slog.Logger) (*AmplitudeGrid, error) {
	var opts []storage.ReaderOption
	var filters []any

	switch {
	case config.MinTimestamp != nil && config.MaxTimestamp != nil:
		opts = append(opts, storage.WithTimeRange(config.MinTimestamp.UTC(), config.MaxTimestamp.UTC()))
		filters = append(filters,
			slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)),
			slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))

	case config.MinTimestamp != nil:
		opts = append(opts, storage.WithStartTime(config.MinTimestamp.UTC()))
		filters = append(filters, slog.String("minTimestamp", config.MinTimestamp.UTC().Format(time.DateTime)))

	case config.MaxTimestamp != nil:
		opts = append(opts, storage.WithEndTime(config.MaxTimestamp.UTC()))
		filters = append(filters, slog.String("maxTimestamp", config.MaxTimestamp.UTC().Format(time.DateTime)))
	}

	if config.MAC != "" {
		opts = append(opts, storage.WithMAC(config.MAC))
		filters = append(filters, slog.String("mac", config.MAC))
	}

	logger.Info("reader configuration", filters...)

	reader, err := store.ReadRecords(ctx, config.SessionID, opts...)
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	if session := reader.Session(); session != nil {
		logger.Debug("reading session",
			slog.Int64("id", session.ID),
			slog.String("runID", session.RunID.String()),
			slog.String("source", session.SourceType+":"+session.SourceID),
			slog.String("started", humanize.Time(session.StartTime)))
	}

	grid := NewAmplitudeGrid()
	for reader.Next(ctx) {
		rec := reader.Current()
		grid.Update(rec)
		rec.Release()
	}
	if err = reader.Error(); err != nil {
		return nil, err
	}

	if grid.Height == 0 {
		return nil, fmt.Errorf("session %d: %w", config.SessionID, storage.ErrNoData)
	}
	return grid, nil
}

func writeImage(path string, format ImageFormat, img image.Image) (err error) {
	out, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, out.Close())
	}()

	switch format {
	case ImageJPEG:
		return jpeg.Encode(out, img, &jpeg.Options{Quality: 98})
	default:
		return png.Encode(out, img)
	}
}
