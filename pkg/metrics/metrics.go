// Package metrics records per-run counters and writes them in the Prometheus
// text format for the node-exporter textfile collector.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "alert_radar"

// Recorder holds the counters of one run on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	linesRead    prometheus.Counter
	eventsParsed prometheus.Counter
	linesSkipped prometheus.Counter
	burstsFound  prometheus.Counter
	lastRun      prometheus.Gauge
}

// NewRecorder creates a recorder with all metrics registered.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Lines consumed from the alert source.",
		}),
		eventsParsed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_parsed_total",
			Help:      "Alert lines normalized into events.",
		}),
		linesSkipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_skipped_total",
			Help:      "Lines that did not match the alert grammar.",
		}),
		burstsFound: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "bursts_found_total",
			Help:      "Burst findings emitted by the detector.",
		}),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time the run finished.",
		}),
	}
	r.registry.MustRegister(r.linesRead, r.eventsParsed, r.linesSkipped, r.burstsFound, r.lastRun)
	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordParse adds the stream counters of a finished parse.
func (r *Recorder) RecordParse(linesRead, eventsParsed, linesSkipped int) {
	r.linesRead.Add(float64(linesRead))
	r.eventsParsed.Add(float64(eventsParsed))
	r.linesSkipped.Add(float64(linesSkipped))
}

// RecordBursts adds n findings.
func (r *Recorder) RecordBursts(n int) {
	r.burstsFound.Add(float64(n))
}

// WriteTextfile stamps the run time and writes all metrics to path
// atomically.
func (r *Recorder) WriteTextfile(path string, now time.Time) error {
	r.lastRun.Set(float64(now.Unix()))
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics %s: %w", path, err)
	}
	return nil
}
