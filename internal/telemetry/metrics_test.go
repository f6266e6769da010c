package telemetry

import (
	"context"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveBatchRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveBatch(10, 7, 2*time.Millisecond)
	c.ObserveBatch(5, 5, time.Millisecond)

	if got := testutil.ToFloat64(c.StatesReceived); got != 15 {
		t.Fatalf("globe_states_received_total = %v, want 15", got)
	}
	if got := testutil.ToFloat64(c.PointsEmitted); got != 12 {
		t.Fatalf("globe_points_emitted_total = %v, want 12", got)
	}
	if got := testutil.ToFloat64(c.StatesDropped); got != 3 {
		t.Fatalf("globe_states_dropped_total = %v, want 3", got)
	}
	if got := testutil.CollectAndCount(c.BatchDuration); got != 1 {
		t.Fatalf("globe_batch_duration_seconds series = %d, want 1", got)
	}
}

func TestObserveOutcomeLabels(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	c.ObserveOutcome(OutcomeOK)
	c.ObserveOutcome(OutcomeOK)
	c.ObserveOutcome(OutcomeDecodeError)

	if got := testutil.ToFloat64(c.Batches.WithLabelValues(OutcomeOK)); got != 2 {
		t.Fatalf("globe_batches_total{outcome=ok} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(c.Batches.WithLabelValues(OutcomeDecodeError)); got != 1 {
		t.Fatalf("globe_batches_total{outcome=decode_error} = %v, want 1", got)
	}
}

func TestNilCollectorIsNoop(t *testing.T) {
	var c *Collector
	c.ObserveBatch(1, 1, time.Millisecond)
	c.ObserveOutcome(OutcomeOK)
}

func TestNewCollectorRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewCollector(reg); err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	if _, err := NewCollector(reg); err == nil {
		t.Fatal("Expected duplicate registration to fail")
	}
}

func TestHandlerExposesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}
	c.ObserveOutcome(OutcomeOK)
	c.ObserveBatch(3, 2, time.Millisecond)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	body := rec.Body.String()
	for _, want := range []string{
		`globe_batches_total{outcome="ok"} 1`,
		"globe_points_emitted_total 2",
		"globe_batch_duration_seconds_count 1",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c, err := NewCollector(reg)
	if err != nil {
		t.Fatalf("NewCollector: %v", err)
	}

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Serve(ctx, addr) }()

	var resp *http.Response
	for i := 0; i < 50; i++ {
		resp, err = http.Get("http://" + addr + "/metrics")
		if err == nil {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /metrics: %v", err)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Serve returned %v", err)
		}
	case <-time.After(6 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}
