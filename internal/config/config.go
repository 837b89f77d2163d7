package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all runtime configuration loaded from environment variables.
// Every field has a sensible default; only DATABASE_URL is required.
type Config struct {
	// Server
	HTTPPort        string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration

	// Remote record store
	DatabaseURL string
	DBMaxConns  int32
	DBMinConns  int32

	// Local durable state
	StatePath string

	// Local event spool
	SpoolDir      string
	WatchDebounce time.Duration

	// Retry queue
	QueueMaxSize       int
	QueueMaxRetries    int
	QueueCooldown      time.Duration
	QueueDeadLetterCap int
	QueueRetention     time.Duration
	DrainInterval      time.Duration

	// Incremental fetch
	FetchBatchSize int
	ProcessedIDCap int
	SyncMaxWindow  time.Duration
	SyncMinRecent  time.Duration
	AccountCreated time.Time
	FetchOnStartup bool

	// Stats reconciler
	FlushInterval        time.Duration
	ReconcileBaseDelay   time.Duration
	ReconcileMaxAttempts int

	// Remote write rate limit: maximum upserts per second per collection
	RateLimit int

	// Reachability probe interval
	ReachabilityInterval time.Duration
}

func Load() (*Config, error) {
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	return &Config{
		HTTPPort:        getEnv("HTTP_PORT", "8080"),
		ReadTimeout:     getDuration("READ_TIMEOUT", 5*time.Second),
		WriteTimeout:    getDuration("WRITE_TIMEOUT", 10*time.Second),
		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 30*time.Second),

		DatabaseURL: dbURL,
		DBMaxConns:  int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:  int32(getInt("DB_MIN_CONNS", 2)),

		StatePath: getEnv("STATE_PATH", "data/sync.db"),

		SpoolDir:      getEnv("SPOOL_DIR", "data/spool"),
		WatchDebounce: getDuration("WATCH_DEBOUNCE", 2*time.Second),

		QueueMaxSize:       getInt("QUEUE_MAX_SIZE", 100),
		QueueMaxRetries:    getInt("QUEUE_MAX_RETRIES", 5),
		QueueCooldown:      getDuration("QUEUE_COOLDOWN", 60*time.Second),
		QueueDeadLetterCap: getInt("QUEUE_DEAD_LETTER_CAP", 50),
		QueueRetention:     getDuration("QUEUE_RETENTION", 7*24*time.Hour),
		DrainInterval:      getDuration("DRAIN_INTERVAL", 15*time.Second),

		FetchBatchSize: getInt("FETCH_BATCH_SIZE", 10),
		ProcessedIDCap: getInt("PROCESSED_ID_CAP", 1000),
		SyncMaxWindow:  getDuration("SYNC_MAX_WINDOW", 30*24*time.Hour),
		SyncMinRecent:  getDuration("SYNC_MIN_RECENT_WINDOW", 24*time.Hour),
		AccountCreated: getTime("ACCOUNT_CREATED_AT", time.Time{}),
		FetchOnStartup: getBool("FETCH_ON_STARTUP", true),

		FlushInterval:        getDuration("FLUSH_INTERVAL", 5*time.Second),
		ReconcileBaseDelay:   getDuration("RECONCILE_BASE_DELAY", 2*time.Second),
		ReconcileMaxAttempts: getInt("RECONCILE_MAX_ATTEMPTS", 3),

		RateLimit: getInt("RATE_LIMIT_PER_COLLECTION", 20),

		ReachabilityInterval: getDuration("REACHABILITY_INTERVAL", 10*time.Second),
	}, nil
}

func getEnv(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultVal
}

func getBool(key string, defaultVal bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultVal
}

func getDuration(key string, defaultVal time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultVal
}

func getTime(key string, defaultVal time.Time) time.Time {
	if v := os.Getenv(key); v != "" {
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t
		}
	}
	return defaultVal
}
