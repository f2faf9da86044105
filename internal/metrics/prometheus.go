package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// Prometheus mirrors metric events into Prometheus collectors.
type Prometheus struct {
	registry  *prometheus.Registry
	polls     *prometheus.CounterVec
	duration  prometheus.Histogram
	assets    prometheus.Gauge
	artifacts *prometheus.GaugeVec
	handlerID MetricHandlerID
}

// NewPrometheus registers the poll collectors plus the Go and process
// collectors on a private registry and subscribes to metric events.
func NewPrometheus() (*Prometheus, error) {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cryptoreport_polls_total",
				Help: "Number of finished poll iterations",
			},
			[]string{"result", "kind"},
		),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "cryptoreport_poll_duration_seconds",
			Help:    "Wall time of one poll iteration",
			Buckets: prometheus.ExponentialBuckets(0.25, 2, 8),
		}),
		assets: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cryptoreport_snapshot_assets",
			Help: "Assets in the most recent snapshot",
		}),
		artifacts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "cryptoreport_artifact_bytes",
				Help: "Size of the most recent artifact",
			},
			[]string{"artifact"},
		),
	}

	for _, c := range []prometheus.Collector{
		p.polls, p.duration, p.assets, p.artifacts,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	} {
		if err := p.registry.Register(c); err != nil {
			return nil, err
		}
	}

	p.handlerID = RegisterMetricHandler(p.observe)
	return p, nil
}

func (p *Prometheus) observe(m Metric) {
	value, ok := toFloat64(m.Value)
	if !ok {
		return
	}
	switch m.Name {
	case MetricPollResult:
		result, _ := m.Fields["result"].(string)
		kind, _ := m.Fields["kind"].(string)
		p.polls.WithLabelValues(result, kind).Add(value)
	case MetricPollDuration:
		p.duration.Observe(value / 1000)
	case MetricSnapshotAssets:
		p.assets.Set(value)
	case MetricArtifactBytes:
		artifact, _ := m.Fields["artifact"].(string)
		p.artifacts.WithLabelValues(artifact).Set(value)
	}
}

// Gatherer exposes the private registry.
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

// Close stops receiving metric events.
func (p *Prometheus) Close() {
	UnregisterMetricHandler(p.handlerID)
}
