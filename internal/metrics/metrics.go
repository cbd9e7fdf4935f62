// Package metrics records download task activity with Prometheus collectors.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "blob_download"

// Recorder receives one observation per finished operation
type Recorder interface {
	ObserveOperation(operation, backend, status string, bytes int64, duration time.Duration)
	IncRename()
}

// Prometheus implements Recorder on its own registry so several
// downloaders in one process do not collide on metric registration.
type Prometheus struct {
	registry   *prometheus.Registry
	operations *prometheus.CounterVec
	bytes      *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	renames    prometheus.Counter
}

// NewPrometheus creates the collectors and registers them on a fresh registry
func NewPrometheus() *Prometheus {
	p := &Prometheus{
		registry: prometheus.NewRegistry(),
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "Finished download task operations by operation, backend and status.",
		}, []string{"operation", "backend", "status"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bytes_total",
			Help:      "Bytes transferred from blob storage.",
		}, []string{"operation"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "duration_seconds",
			Help:      "Duration of download task operations.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"operation"}),
		renames: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "renames_total",
			Help:      "Downloads written under a numbered name because the target existed.",
		}),
	}

	p.registry.MustRegister(p.operations, p.bytes, p.duration, p.renames)
	return p
}

// ObserveOperation records the outcome of one operation
func (p *Prometheus) ObserveOperation(operation, backend, status string, bytes int64, duration time.Duration) {
	p.operations.WithLabelValues(operation, backend, status).Inc()
	if bytes > 0 {
		p.bytes.WithLabelValues(operation).Add(float64(bytes))
	}
	p.duration.WithLabelValues(operation).Observe(duration.Seconds())
}

// IncRename counts a download that fell back to a numbered file name
func (p *Prometheus) IncRename() {
	p.renames.Inc()
}

// Gatherer exposes the registry for scraping or textfile export
func (p *Prometheus) Gatherer() prometheus.Gatherer {
	return p.registry
}

// WriteTextfile writes the current metrics in the node exporter textfile format
func (p *Prometheus) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, p.registry)
}

// Nop discards all observations
type Nop struct{}

func (Nop) ObserveOperation(string, string, string, int64, time.Duration) {}
func (Nop) IncRename()                                                  {}
