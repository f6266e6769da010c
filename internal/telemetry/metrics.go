package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Batch outcomes
const (
	OutcomeOK           = "ok"
	OutcomeDecodeError  = "decode_error"
	OutcomeEncodeError  = "encode_error"
	OutcomePublishError = "publish_error"
)

// Collector bundles the worker's Prometheus metrics
type Collector struct {
	gatherer prometheus.Gatherer

	Batches        *prometheus.CounterVec
	StatesReceived prometheus.Counter
	PointsEmitted  prometheus.Counter
	StatesDropped  prometheus.Counter
	BatchDuration  prometheus.Histogram
}

// NewCollector registers the worker metrics against reg, defaulting to the
// global Prometheus registry when nil.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	c := &Collector{
		gatherer: gatherer,
		Batches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "globe_batches_total",
			Help: "Total number of state batches handled, labeled by outcome.",
		}, []string{"outcome"}),
		StatesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_states_received_total",
			Help: "Total number of raw state vectors received.",
		}),
		PointsEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_points_emitted_total",
			Help: "Total number of globe points emitted.",
		}),
		StatesDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "globe_states_dropped_total",
			Help: "Total number of state vectors removed by the position filter.",
		}),
		BatchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "globe_batch_duration_seconds",
			Help:    "Time spent decoding, transforming and encoding a batch.",
			Buckets: []float64{0.0005, 0.001, 0.0025, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5},
		}),
	}

	for name, col := range map[string]prometheus.Collector{
		"globe_batches_total":          c.Batches,
		"globe_states_received_total":  c.StatesReceived,
		"globe_points_emitted_total":   c.PointsEmitted,
		"globe_states_dropped_total":   c.StatesDropped,
		"globe_batch_duration_seconds": c.BatchDuration,
	} {
		if err := reg.Register(col); err != nil {
			return nil, fmt.Errorf("failed to register %s: %w", name, err)
		}
	}

	return c, nil
}

// ObserveBatch records a transformed batch
func (c *Collector) ObserveBatch(received, emitted int, took time.Duration) {
	if c == nil {
		return
	}
	c.StatesReceived.Add(float64(received))
	c.PointsEmitted.Add(float64(emitted))
	c.StatesDropped.Add(float64(received - emitted))
	c.BatchDuration.Observe(took.Seconds())
}

// ObserveOutcome counts a batch by outcome
func (c *Collector) ObserveOutcome(outcome string) {
	if c == nil {
		return
	}
	c.Batches.WithLabelValues(outcome).Inc()
}

// Handler serves the collector's registry in the Prometheus text format
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until ctx is cancelled
func (c *Collector) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())

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
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server failed: %w", err)
	}
}
