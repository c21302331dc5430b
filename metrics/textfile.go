// Package metrics publishes the latest speedtest as a Prometheus textfile,
// ready for node_exporter's textfile collector.
package metrics

import (
	"fmt"
	"math"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"netspeedlogger/storage"
)

const namespace = "netspeedlogger"

// Gauges of the most recent record.
type Gauges struct {
	registry *prometheus.Registry

	DownloadSpeed prometheus.Gauge
	UploadSpeed   prometheus.Gauge
	BytesSent     prometheus.Gauge
	BytesReceived prometheus.Gauge
	Ping          prometheus.Gauge
	LastRun       prometheus.Gauge
	Degraded      prometheus.Gauge
}

// NewGauges registers every gauge on a private registry.
func NewGauges() *Gauges {
	g := &Gauges{
		registry: prometheus.NewRegistry(),
		DownloadSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "download_bits_per_second",
			Help:      "Download speed of the last speedtest",
		}),
		UploadSpeed: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "upload_bits_per_second",
			Help:      "Upload speed of the last speedtest",
		}),
		BytesSent: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_sent",
			Help:      "Bytes sent during the last speedtest",
		}),
		BytesReceived: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bytes_received",
			Help:      "Bytes received during the last speedtest",
		}),
		Ping: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ping_milliseconds",
			Help:      "Latency to the selected server; NaN when the run degraded",
		}),
		LastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_timestamp_seconds",
			Help:      "Unix time of the last speedtest",
		}),
		Degraded: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_run_degraded",
			Help:      "1 when the last speedtest ran out of retries",
		}),
	}
	g.registry.MustRegister(
		g.DownloadSpeed,
		g.UploadSpeed,
		g.BytesSent,
		g.BytesReceived,
		g.Ping,
		g.LastRun,
		g.Degraded,
	)
	return g
}

// Observe sets every gauge from rec.
func (g *Gauges) Observe(rec storage.Record) error {
	ts, err := time.ParseInLocation(storage.TimestampLayout, rec.Timestamp, time.Local)
	if err != nil {
		return fmt.Errorf("parse timestamp %q: %w", rec.Timestamp, err)
	}

	g.DownloadSpeed.Set(rec.DownloadSpeed)
	g.UploadSpeed.Set(rec.UploadSpeed)
	g.BytesSent.Set(float64(rec.BytesSent))
	g.BytesReceived.Set(float64(rec.BytesReceived))
	g.LastRun.Set(float64(ts.UnixNano()) / 1e9)

	if rec.Ping != nil {
		g.Ping.Set(*rec.Ping)
	} else {
		g.Ping.Set(math.NaN())
	}
	if rec.Degraded() {
		g.Degraded.Set(1)
	} else {
		g.Degraded.Set(0)
	}
	return nil
}

// Gatherer exposes the registry.
func (g *Gauges) Gatherer() prometheus.Gatherer { return g.registry }

// WriteTextfile writes rec to path in the Prometheus text format. The
// file is replaced atomically.
func WriteTextfile(path string, rec storage.Record) error {
	g := NewGauges()
	if err := g.Observe(rec); err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, g.registry); err != nil {
		return fmt.Errorf("write textfile %s: %w", path, err)
	}
	return nil
}
