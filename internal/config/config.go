package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Supported transports
const (
	TransportNATS  = "nats"
	TransportRedis = "redis"
)

// Config holds the application configuration
type Config struct {
	Transport       string
	NATSURL         string
	RedisAddr       string
	DBConnStr       string
	Codec           string
	RequirePosition bool
	MetricsAddr     string
	StatsInterval   time.Duration
	ArchiveDir      string
}

// Load loads the configuration from environment variables and .env file
func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	transport := strings.ToLower(getEnv("TRANSPORT", TransportNATS))
	if transport != TransportNATS && transport != TransportRedis {
		return nil, fmt.Errorf("TRANSPORT must be %q or %q, got %q", TransportNATS, TransportRedis, transport)
	}

	requirePosition := false
	if v := os.Getenv("REQUIRE_POSITION"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid REQUIRE_POSITION %q: %w", v, err)
		}
		requirePosition = b
	}

	statsInterval, err := time.ParseDuration(getEnv("STATS_INTERVAL", "5m"))
	if err != nil {
		return nil, fmt.Errorf("invalid STATS_INTERVAL: %w", err)
	}
	if statsInterval <= 0 {
		return nil, fmt.Errorf("STATS_INTERVAL must be positive, got %s", statsInterval)
	}

	metricsAddr, ok := os.LookupEnv("METRICS_ADDR")
	if !ok {
		metricsAddr = ":9100"
	}

	return &Config{
		Transport:       transport,
		NATSURL:         getEnv("NATS_URL", "nats://nats:4222"), // Default to Docker service name
		RedisAddr:       getEnv("REDIS_ADDR", "redis:6379"),
		DBConnStr:       os.Getenv("DB_CONN_STR"),
		Codec:           getEnv("CODEC", "json"),
		RequirePosition: requirePosition,
		MetricsAddr:     metricsAddr,
		StatsInterval:   statsInterval,
		ArchiveDir:      os.Getenv("ARCHIVE_DIR"),
	}, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
