package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// LoggingConfig holds logging-related configuration.
type LoggingConfig struct {
	Level      string
	Pretty     bool
	File       string
	MaxSizeMB  int
	MaxBackups int
	MaxAgeDays int
	Compress   bool
}

// AxiomConfig holds Axiom logging configuration.
type AxiomConfig struct {
	Send          bool
	APIKey        string
	OrgID         string
	Dataset       string
	FlushInterval time.Duration
}

// SplitConfig defines defaults for split jobs; requests may override them.
type SplitConfig struct {
	OutputPrefix  string
	Repagination  string // "none"|"last-first"
	FormatVersion string
	Overwrite     bool
}

// WorkerConfig defines worker behavior and limits. MaxInflight caps the
// number of jobs running at once across all replicas; zero disables the cap.
type WorkerConfig struct {
	Concurrency int
	JobTimeout  time.Duration
	MaxInflight int
}

// QueueConfig defines queue connectivity and names.
type QueueConfig struct {
	RedisURL     string
	Stream       string
	Group        string
	PollInterval time.Duration
}

// StorageConfig defines where results land.
type StorageConfig struct {
	ResultDir     string
	S3Bucket      string
	CryptPassword string
}

// Config is the top-level configuration.
type Config struct {
	Logging LoggingConfig
	Axiom   AxiomConfig
	Split   SplitConfig
	Worker  WorkerConfig
	Queue   QueueConfig
	Storage StorageConfig
}

// FromEnv loads configuration from environment with sensible defaults.
func FromEnv() Config {
	cfg := Config{}

	// Logging defaults
	cfg.Logging = LoggingConfig{
		Level:      getEnv("LOG_LEVEL", "info"),
		Pretty:     parseBool(getEnv("LOG_PRETTY", devDefaultPretty())),
		File:       getEnv("LOG_FILE", "logs/middlesplit.log"),
		MaxSizeMB:  parseInt(getEnv("LOG_MAX_SIZE_MB", "100"), 100),
		MaxBackups: parseInt(getEnv("LOG_MAX_BACKUPS", "10"), 10),
		MaxAgeDays: parseInt(getEnv("LOG_MAX_AGE_DAYS", "30"), 30),
		Compress:   parseBool(getEnv("LOG_COMPRESS", "true")),
	}

	// Axiom defaults
	baseDataset := getEnv("AXIOM_DATASET", "dev")
	cfg.Axiom = AxiomConfig{
		Send:          parseBool(getEnv("SEND_LOGS_TO_AXIOM", "0")),
		APIKey:        getEnv("AXIOM_API_KEY", ""),
		OrgID:         getEnv("AXIOM_ORG_ID", ""),
		Dataset:       baseDataset + "_middlesplit",
		FlushInterval: parseDuration(getEnv("AXIOM_FLUSH_INTERVAL", "10s"), 10*time.Second),
	}

	// Split defaults
	cfg.Split = SplitConfig{
		OutputPrefix:  getEnv("SPLIT_OUTPUT_PREFIX", "split_"),
		Repagination:  getEnv("SPLIT_REPAGINATION", "none"),
		FormatVersion: getEnv("SPLIT_FORMAT_VERSION", ""),
		Overwrite:     parseBool(getEnv("SPLIT_OVERWRITE", "0")),
	}

	// Worker defaults
	cfg.Worker = WorkerConfig{
		Concurrency: parseInt(getEnv("WORKER_CONCURRENCY", "2"), 2),
		JobTimeout:  parseDuration(getEnv("JOB_TIMEOUT", "10m"), 10*time.Minute),
		MaxInflight: parseInt(getEnv("WORKER_MAX_INFLIGHT_GLOBAL", "0"), 0),
	}

	// Queue defaults
	cfg.Queue = QueueConfig{
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379"),
		Stream:       getEnv("QUEUE_STREAM", "jobs:split:batches"),
		Group:        getEnv("QUEUE_GROUP", "workers:split"),
		PollInterval: parseDuration(getEnv("QUEUE_POLL_INTERVAL", "100ms"), 100*time.Millisecond),
	}

	// Storage defaults
	cfg.Storage = StorageConfig{
		ResultDir:     getEnv("RESULT_DIR", "uploads/results"),
		S3Bucket:      getEnv("AWS_S3_BUCKET", ""),
		CryptPassword: getEnv("S3_CRYPT_PASSWORD", ""),
	}

	return cfg
}

// Helpers
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" { return def }
	if n, err := strconv.Atoi(s); err == nil { return n }
	return def
}

func parseBool(s string) bool {
	v := strings.ToLower(strings.TrimSpace(s))
	return v == "1" || v == "true" || v == "yes" || v == "on"
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" { return def }
	if d, err := time.ParseDuration(s); err == nil { return d }
	return def
}

func devDefaultPretty() string {
	env := strings.ToLower(os.Getenv("ENVIRONMENT"))
	if env == "dev" || env == "development" || env == "local" { return "true" }
	return "false"
}
