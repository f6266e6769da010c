package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/saviobatista/globe-worker/internal/types"
)

type Client struct {
	db *sql.DB
}

// New creates a new database client
func New(connStr string) (*Client, error) {
	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, err
	}
	return &Client{db: db}, nil
}

// Ping verifies the database is reachable
func (c *Client) Ping(ctx context.Context) error {
	return c.db.PingContext(ctx)
}

// Close closes the database connection
func (c *Client) Close() error {
	return c.db.Close()
}

// StoreWorkerStats stores a worker statistics snapshot
func (c *Client) StoreWorkerStats(ctx context.Context, stats *types.WorkerStats) error {
	query := `
		INSERT INTO worker_stats (
			time, batches, decode_failures, publish_failures,
			states_received, points_emitted, states_dropped,
			category_counts, processing_time_ms, uptime_seconds
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`

	categories := make([]int64, len(stats.CategoryCounts))
	for i, v := range stats.CategoryCounts {
		categories[i] = int64(v)
	}

	_, err := c.db.ExecContext(ctx, query,
		stats.Time,
		int64(stats.Batches),
		int64(stats.DecodeFailures),
		int64(stats.PublishFailures),
		int64(stats.StatesReceived),
		int64(stats.PointsEmitted),
		int64(stats.StatesDropped),
		pq.Array(categories),
		stats.ProcessingTime.Milliseconds(),
		int64(stats.Uptime.Seconds()),
	)
	if err != nil {
		return fmt.Errorf("failed to store worker stats: %w", err)
	}
	return nil
}

// GetWorkerStats retrieves worker statistics for a time range, newest first
func (c *Client) GetWorkerStats(ctx context.Context, start, end time.Time) ([]*types.WorkerStats, error) {
	query := `
		SELECT
			time, batches, decode_failures, publish_failures,
			states_received, points_emitted, states_dropped,
			category_counts, processing_time_ms, uptime_seconds
		FROM worker_stats
		WHERE time BETWEEN $1 AND $2
		ORDER BY time DESC
	`

	rows, err := c.db.QueryContext(ctx, query, start, end)
	if err != nil {
		return nil, fmt.Errorf("failed to query worker stats: %w", err)
	}
	defer rows.Close()

	var result []*types.WorkerStats
	for rows.Next() {
		var (
			s                types.WorkerStats
			batches          int64
			decodeFailures   int64
			publishFailures  int64
			statesReceived   int64
			pointsEmitted    int64
			statesDropped    int64
			categories       []int64
			processingTimeMs int64
			uptimeSeconds    int64
		)

		if err := rows.Scan(
			&s.Time,
			&batches,
			&decodeFailures,
			&publishFailures,
			&statesReceived,
			&pointsEmitted,
			&statesDropped,
			pq.Array(&categories),
			&processingTimeMs,
			&uptimeSeconds,
		); err != nil {
			return nil, fmt.Errorf("failed to scan worker stats: %w", err)
		}

		s.Batches = uint64(batches)
		s.DecodeFailures = uint64(decodeFailures)
		s.PublishFailures = uint64(publishFailures)
		s.StatesReceived = uint64(statesReceived)
		s.PointsEmitted = uint64(pointsEmitted)
		s.StatesDropped = uint64(statesDropped)
		for i, v := range categories {
			if i < len(s.CategoryCounts) {
				s.CategoryCounts[i] = uint64(v)
			}
		}
		s.ProcessingTime = time.Duration(processingTimeMs) * time.Millisecond
		s.Uptime = time.Duration(uptimeSeconds) * time.Second

		result = append(result, &s)
	}

	return result, rows.Err()
}
