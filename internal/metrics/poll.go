package metrics

import (
	"sync/atomic"
	"time"

	"cryptoreport/config"
	"cryptoreport/logger"
)

const (
	MetricPollResult     = "poll_result"
	MetricPollDuration   = "poll_duration_ms"
	MetricSnapshotAssets = "snapshot_assets"
	MetricArtifactBytes  = "artifact_bytes"
)

var cloudWatchEnabled atomic.Bool

func init() {
	cloudWatchEnabled.Store(true)
}

// Configure toggles CloudWatch publishing. Handlers always receive events.
func Configure(cfg config.MetricsConfig) {
	cloudWatchEnabled.Store(cfg.CloudWatch)
}

// PollStats describes one finished poll iteration.
type PollStats struct {
	RunID      string
	Success    bool
	Kind       string
	Assets     int
	Duration   time.Duration
	PDFBytes   int64
	ExportSize int64
}

// ReportPoll emits the per-iteration metrics.
func ReportPoll(log *logger.Log, stats PollStats) {
	result := "success"
	if !stats.Success {
		result = "failure"
	}
	kind := stats.Kind
	if kind == "" {
		kind = "none"
	}

	EmitMetric(log, "poller", MetricPollResult, 1, "counter", logger.Fields{
		"result": result,
		"kind":   kind,
		"unit":   "count",
	})
	EmitMetric(log, "poller", MetricPollDuration, float64(stats.Duration.Microseconds())/1000, "gauge", logger.Fields{
		"unit": "milliseconds",
	})
	if stats.Assets > 0 {
		EmitMetric(log, "poller", MetricSnapshotAssets, stats.Assets, "gauge", logger.Fields{"unit": "count"})
	}
	if stats.PDFBytes > 0 {
		EmitMetric(log, "report", MetricArtifactBytes, stats.PDFBytes, "gauge", logger.Fields{"artifact": "pdf", "unit": "bytes"})
	}
	if stats.ExportSize > 0 {
		EmitMetric(log, "exporter", MetricArtifactBytes, stats.ExportSize, "gauge", logger.Fields{"artifact": "parquet", "unit": "bytes"})
	}
}
