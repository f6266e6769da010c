package migrations

// WorkerStats creates the worker statistics hypertable
var WorkerStats = &Migration{
	ID:   "001_worker_stats",
	Name: "001_worker_stats",
	UpSQL: `
		CREATE EXTENSION IF NOT EXISTS timescaledb;

		CREATE TABLE IF NOT EXISTS worker_stats (
			time TIMESTAMPTZ NOT NULL,
			batches BIGINT NOT NULL,
			decode_failures BIGINT NOT NULL,
			publish_failures BIGINT NOT NULL,
			states_received BIGINT NOT NULL,
			points_emitted BIGINT NOT NULL,
			states_dropped BIGINT NOT NULL,
			category_counts BIGINT[] NOT NULL,
			processing_time_ms BIGINT NOT NULL,
			uptime_seconds BIGINT NOT NULL
		);

		SELECT create_hypertable('worker_stats', 'time', if_not_exists => TRUE);

		CREATE INDEX IF NOT EXISTS idx_worker_stats_time ON worker_stats (time DESC);
	`,
	DownSQL: `
		DROP TABLE IF EXISTS worker_stats;
	`,
}
