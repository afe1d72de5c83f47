package app

import (
	"log/slog"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/roman-kulish/csi-collector/internal/collector"
)

// logStats writes one status line with the collector, filter, buffer and
// recorder counters
func logStats(logger *slog.Logger, c *collector.Collector, recorder *Recorder) {
	stats := c.Stats()

	attrs := []any{
		slog.Group("packets",
			slog.String("received", humanize.Comma(int64(stats.PacketsReceived))),
			slog.String("processed", humanize.Comma(int64(stats.PacketsProcessed))),
			slog.String("dropped", humanize.Comma(int64(stats.PacketsDropped))),
			slog.String("filterHits", humanize.Comma(int64(stats.FilterHits))),
			slog.String("overruns", humanize.Comma(int64(stats.BufferOverruns))),
		),
		slog.String("avgRSSI", humanize.FtoaWithDigits(stats.AverageRSSI, 1)+" dBm"),
		slog.String("lastPacket", lastPacket(stats.LastPacketTime)),
	}

	if bs, ok := c.BufferStats(); ok {
		attrs = append(attrs, slog.Group("buffer",
			slog.Int("len", bs.Len),
			slog.String("evicted", humanize.Comma(int64(bs.Evicted))),
			slog.String("rejected", humanize.Comma(int64(bs.Dropped))),
		))
	}

	if fs, ok := c.FilterStats(); ok {
		attrs = append(attrs, slog.Group("filter",
			slog.String("passed", humanize.Comma(int64(fs.Passed))),
			slog.String("filtered", humanize.Comma(int64(fs.Filtered))),
		))
	}

	if recorder != nil {
		rs := recorder.Stats()
		attrs = append(attrs, slog.Group("storage",
			slog.String("stored", humanize.Comma(int64(rs.Stored))),
			slog.String("dropped", humanize.Comma(int64(rs.Dropped))),
			slog.String("failed", humanize.Comma(int64(rs.Failed))),
		))
	}

	logger.Info("collector status", attrs...)
}

func lastPacket(t time.Time) string {
	if t.IsZero() {
		return "never"
	}
	return humanize.Time(t)
}
