// Package metrics records backup run outcomes as Prometheus metrics.
//
// DataSafe is a short lived process, so nothing is served over HTTP. The
// registry is written in the text exposition format to a file that the
// node exporter textfile collector picks up.
//
//	m := metrics.New()
//	m.ObserveBackup("Documents", "zip", metrics.StatusSuccess, time.Since(start), 8192, 2048)
//	_ = m.WriteTextfile("/var/lib/node_exporter/datasafe.prom")
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "datasafe"

const (
	StatusSuccess = "success"
	StatusFailure = "failure"
)

type Metrics struct {
	registry *prometheus.Registry

	BackupsTotal     *prometheus.CounterVec
	BackupDuration   *prometheus.HistogramVec
	SourceBytes      *prometheus.GaugeVec
	ArchiveBytes     *prometheus.GaugeVec
	LastSuccessStamp prometheus.Gauge
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,

		BackupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "backups_total",
				Help:      "Total number of backup runs by compression kind and outcome",
			},
			[]string{"kind", "status"},
		),

		// Buckets span a tiny directory up to a multi-hour archive job.
		BackupDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "backup_duration_seconds",
				Help:      "Duration of backup runs in seconds",
				Buckets:   []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900, 3600, 10800},
			},
			[]string{"kind"},
		),

		SourceBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backup_source_bytes",
				Help:      "Size in bytes of the last backed up source directory",
			},
			[]string{"source"},
		),

		ArchiveBytes: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "backup_archive_bytes",
				Help:      "Size in bytes of the last produced archive",
			},
			[]string{"source", "kind"},
		),

		LastSuccessStamp: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "last_success_timestamp_seconds",
				Help:      "Unix time of the last successful backup",
			},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ObserveBackup records one finished run. Negative byte counts mean the
// value is unknown and leave the gauges untouched.
func (m *Metrics) ObserveBackup(source, kind, status string, took time.Duration, sourceBytes, archiveBytes int64) {
	m.BackupsTotal.WithLabelValues(kind, status).Inc()
	m.BackupDuration.WithLabelValues(kind).Observe(took.Seconds())

	if status != StatusSuccess {
		return
	}

	m.LastSuccessStamp.SetToCurrentTime()
	if sourceBytes >= 0 {
		m.SourceBytes.WithLabelValues(source).Set(float64(sourceBytes))
	}
	if archiveBytes >= 0 {
		m.ArchiveBytes.WithLabelValues(source, kind).Set(float64(archiveBytes))
	}
}

// WriteTextfile writes the registry to path atomically.
func (m *Metrics) WriteTextfile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}
	return nil
}
