package migrations

// WorkerStatsRetention drops worker stats older than 30 days
var WorkerStatsRetention = &Migration{
	ID:   "002_worker_stats_retention",
	Name: "002_worker_stats_retention",
	UpSQL: `
		SELECT add_retention_policy('worker_stats', INTERVAL '30 days', if_not_exists => TRUE);
	`,
	DownSQL: `
		SELECT remove_retention_policy('worker_stats', if_exists => TRUE);
	`,
}
