// Package metrics exposes ingestion counters in Prometheus format.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ccollicutt/trafficlog/pkg/telemetry"
)

const namespace = "trafficlog"

// Metrics holds the ingestion collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	linesRead    prometheus.Counter
	records      *prometheus.CounterVec
	malformed    prometheus.Counter
	sinkFailures prometheus.Counter
	lastRecord   prometheus.Gauge
}

// New creates the collectors on a dedicated registry, with Go runtime metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		linesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "lines_read_total",
			Help:      "Lines received from the line source",
		}),
		records: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_total",
			Help:      "Completed records handed to the sink, by kind",
		}, []string{"kind"}),
		malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "malformed_total",
			Help:      "Lines discarded as malformed",
		}),
		sinkFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_failures_total",
			Help:      "Records the sink failed to append",
		}),
		lastRecord: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_record_timestamp_seconds",
			Help:      "Wall-clock time of the last stored record",
		}),
	}

	m.registry.MustRegister(
		m.linesRead,
		m.records,
		m.malformed,
		m.sinkFailures,
		m.lastRecord,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Pre-create label values so every kind shows up at zero.
	for _, kind := range []telemetry.Kind{telemetry.KindSpeed, telemetry.KindCount, telemetry.KindSnapshot} {
		m.records.WithLabelValues(string(kind))
	}

	return m
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// LineRead counts one received line.
func (m *Metrics) LineRead() {
	if m == nil {
		return
	}
	m.linesRead.Inc()
}

// RecordStored counts one record accepted by the sink.
func (m *Metrics) RecordStored(kind telemetry.Kind) {
	if m == nil {
		return
	}
	m.records.WithLabelValues(string(kind)).Inc()
	m.lastRecord.SetToCurrentTime()
}

// Malformed counts one malformed report.
func (m *Metrics) Malformed() {
	if m == nil {
		return
	}
	m.malformed.Inc()
}

// SinkFailure counts one failed append.
func (m *Metrics) SinkFailure() {
	if m == nil {
		return
	}
	m.sinkFailures.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down metrics server: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("metrics server on %s: %w", addr, err)
	}
	return nil
}
