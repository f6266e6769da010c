package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/saviobatista/globe-worker/internal/archive"
	"github.com/saviobatista/globe-worker/internal/codec"
	"github.com/saviobatista/globe-worker/internal/config"
	"github.com/saviobatista/globe-worker/internal/db"
	"github.com/saviobatista/globe-worker/internal/nats"
	"github.com/saviobatista/globe-worker/internal/redis"
	"github.com/saviobatista/globe-worker/internal/stats"
	"github.com/saviobatista/globe-worker/internal/telemetry"
	"github.com/saviobatista/globe-worker/internal/transform"
	"github.com/saviobatista/globe-worker/internal/types"
)

// Transport interface for testability
type Transport interface {
	SubscribeStates(ctx context.Context, handler func([]byte)) error
	PublishPoints(ctx context.Context, data []byte) error
	Close() error
}

// RequestServer is implemented by transports that can answer transform requests directly
type RequestServer interface {
	ServeTransform(ctx context.Context, handler func([]byte) ([]byte, error)) error
}

// Archiver records emitted points batches
type Archiver interface {
	WriteBatch(at time.Time, points []types.Point) error
}

// Worker turns raw state batches into globe point batches
type Worker struct {
	transport     Transport
	codec         codec.Codec
	opts          transform.Options
	stats         *stats.Stats
	metrics       *telemetry.Collector
	store         stats.Store
	archive       Archiver
	statsInterval time.Duration
}

// NewWorker creates a new worker
func NewWorker(transport Transport, c codec.Codec, opts transform.Options) *Worker {
	return &Worker{
		transport:     transport,
		codec:         c,
		opts:          opts,
		stats:         stats.New(),
		statsInterval: 5 * time.Minute,
	}
}

// SetMetrics attaches a Prometheus collector
func (w *Worker) SetMetrics(metrics *telemetry.Collector) {
	w.metrics = metrics
}

// SetStore enables periodic persistence of worker statistics
func (w *Worker) SetStore(store stats.Store, interval time.Duration) {
	w.store = store
	w.statsInterval = interval
	w.stats.SetStore(store)
}

// SetArchive enables recording of every emitted points batch
func (w *Worker) SetArchive(archiver Archiver) {
	w.archive = archiver
}

// Start subscribes to state batches and starts background statistics work
func (w *Worker) Start(ctx context.Context) error {
	if err := w.transport.SubscribeStates(ctx, func(data []byte) {
		w.ProcessStates(ctx, data)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to states: %w", err)
	}

	if server, ok := w.transport.(RequestServer); ok {
		if err := server.ServeTransform(ctx, w.HandleBatch); err != nil {
			return fmt.Errorf("failed to serve transform requests: %w", err)
		}
	}

	go w.logStats(ctx)
	if w.store != nil {
		go w.stats.StartPersistence(ctx, w.statsInterval)
	}

	return nil
}

// HandleBatch decodes a states batch, transforms it and returns the encoded points batch
func (w *Worker) HandleBatch(data []byte) ([]byte, error) {
	out, err := w.handle(data)
	if err != nil {
		return nil, err
	}
	w.metrics.ObserveOutcome(telemetry.OutcomeOK)
	return out, nil
}

// ProcessStates handles a states batch and publishes the result
func (w *Worker) ProcessStates(ctx context.Context, data []byte) {
	out, err := w.handle(data)
	if err != nil {
		log.Printf("Failed to process states batch: %v", err)
		return
	}

	if err := w.transport.PublishPoints(ctx, out); err != nil {
		w.stats.IncrementPublishFailures()
		w.metrics.ObserveOutcome(telemetry.OutcomePublishError)
		log.Printf("Warning: Failed to publish points: %v", err)
		return
	}
	w.metrics.ObserveOutcome(telemetry.OutcomeOK)
}

func (w *Worker) handle(data []byte) ([]byte, error) {
	start := time.Now()
	w.stats.IncrementBatches()
	w.stats.UpdateLastBatchTime()

	msg, err := w.codec.DecodeStates(data)
	if err != nil {
		w.stats.IncrementDecodeFailures()
		w.metrics.ObserveOutcome(telemetry.OutcomeDecodeError)
		return nil, fmt.Errorf("failed to decode states: %w", err)
	}

	points := transform.Transform(msg.States, w.opts)

	out, err := w.codec.EncodePoints(&types.PointsMessage{Points: points})
	if err != nil {
		w.metrics.ObserveOutcome(telemetry.OutcomeEncodeError)
		return nil, fmt.Errorf("failed to encode points: %w", err)
	}

	if w.archive != nil {
		if err := w.archive.WriteBatch(start, points); err != nil {
			log.Printf("Warning: Failed to archive points: %v", err)
		}
	}

	took := time.Since(start)
	w.stats.AddBatch(len(msg.States), points)
	w.stats.AddProcessingTime(took)
	w.metrics.ObserveBatch(len(msg.States), len(points), took)

	return out, nil
}

// logStats periodically logs statistics
func (w *Worker) logStats(ctx context.Context) {
	ticker := time.NewTicker(1 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			log.Printf("Statistics:\n%s", w.stats)
		}
	}
}

// createTransport connects the transport selected in the configuration
func createTransport(cfg *config.Config) (Transport, error) {
	switch cfg.Transport {
	case config.TransportNATS:
		client, err := nats.New(cfg.NATSURL)
		if err != nil {
			return nil, fmt.Errorf("failed to create NATS client: %w", err)
		}
		return client, nil
	case config.TransportRedis:
		client, err := redis.New(cfg.RedisAddr)
		if err != nil {
			return nil, fmt.Errorf("failed to create Redis client: %w", err)
		}
		return client, nil
	default:
		return nil, fmt.Errorf("unknown transport %q", cfg.Transport)
	}
}

// createStore connects the stats database when one is configured
func createStore(ctx context.Context, connStr string) (*db.Client, error) {
	if connStr == "" {
		return nil, nil
	}

	dbClient, err := db.New(connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to create database client: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := dbClient.Ping(pingCtx); err != nil {
		if closeErr := dbClient.Close(); closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", closeErr)
		}
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	return dbClient, nil
}

// setupWorker builds the worker from configuration and its connected clients
func setupWorker(cfg *config.Config, transport Transport, dbClient *db.Client, metrics *telemetry.Collector) (*Worker, error) {
	c, err := codec.New(cfg.Codec)
	if err != nil {
		return nil, err
	}

	worker := NewWorker(transport, c, transform.Options{RequirePosition: cfg.RequirePosition})
	worker.SetMetrics(metrics)
	if dbClient != nil {
		worker.SetStore(dbClient, cfg.StatsInterval)
	}
	return worker, nil
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	transport, err := createTransport(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := transport.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "error closing transport: %v\n", err)
		}
	}()

	dbClient, err := createStore(ctx, cfg.DBConnStr)
	if err != nil {
		return err
	}
	if dbClient != nil {
		defer func() {
			if err := dbClient.Close(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing dbClient: %v\n", err)
			}
		}()
	}

	metrics, err := telemetry.NewCollector(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}
	if cfg.MetricsAddr != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.MetricsAddr); err != nil {
				log.Printf("Warning: %v", err)
			}
		}()
	}

	worker, err := setupWorker(cfg, transport, dbClient, metrics)
	if err != nil {
		return fmt.Errorf("failed to setup worker: %w", err)
	}

	if cfg.ArchiveDir != "" {
		pointsArchive := archive.New(cfg.ArchiveDir)
		if err := pointsArchive.Start(); err != nil {
			return fmt.Errorf("failed to start archive: %w", err)
		}
		defer func() {
			if err := pointsArchive.Stop(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing archive: %v\n", err)
			}
		}()
		worker.SetArchive(pointsArchive)
	}
	if err := worker.Start(ctx); err != nil {
		return fmt.Errorf("failed to start worker: %w", err)
	}

	log.Printf("Globe worker started (transport=%s, codec=%s, require_position=%t)",
		cfg.Transport, cfg.Codec, cfg.RequirePosition)

	<-ctx.Done()
	log.Println("Shutting down...")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Printf("Worker failed: %v", err)
		os.Exit(1)
	}
}
