package config

import (
	"fmt"
	"net/url"
	"time"
)

// Config holds all runtime settings for the ingestion tools and the read API
type Config struct {
	Database DatabaseConfig `json:"database"`
	Ingest   IngestConfig   `json:"ingest"`
	Feed     FeedConfig     `json:"feed"`
	S3       S3Config       `json:"s3"`
	Server   ServerConfig   `json:"server"`
	RunLog   RunLogConfig   `json:"run_log"`
	Log      LogConfig      `json:"log"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Driver         string `json:"driver"` // "postgres" (lib/pq) or "pgx"
	URL            string `json:"url"`
	MaxConnections int    `json:"max_connections"`
}

// IngestConfig controls batching and write semantics of a run
type IngestConfig struct {
	BatchSize      int           `json:"batch_size"`
	SkipDuplicates bool          `json:"skip_duplicates"`
	BatchDelay     time.Duration `json:"batch_delay"`
	MaxDefects     int           `json:"max_defects"`
}

// FeedConfig contains settings for remote paginated feeds
type FeedConfig struct {
	PageSize   int           `json:"page_size"`
	BatchDelay time.Duration `json:"batch_delay"`
	Timeout    time.Duration `json:"timeout"`
	AppToken   string        `json:"-"`
}

// S3Config holds settings for reading source extracts from S3-compatible storage
type S3Config struct {
	Region    string `json:"region"`
	Endpoint  string `json:"endpoint"`
	PathStyle bool   `json:"path_style"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host            string        `json:"host"`
	Port            int           `json:"port"`
	APIKey          string        `json:"-"`
	CORSOrigin      string        `json:"cors_origin"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout"`
}

// RunLogConfig points at the local run ledger
type RunLogConfig struct {
	Path string `json:"path"`
}

// LogConfig controls the structured logger
type LogConfig struct {
	Level string `json:"level"`
	JSON  bool   `json:"json"`
}

// FromEnv builds a Config from environment variables, falling back to defaults
func FromEnv() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:         GetEnv("DB_DRIVER", "postgres"),
			URL:            databaseURL(),
			MaxConnections: GetEnvInt("DB_MAX_CONNECTIONS", 10),
		},
		Ingest: IngestConfig{
			BatchSize:      GetEnvInt("INGEST_BATCH_SIZE", 1000),
			SkipDuplicates: GetEnv("INGEST_MODE", "insert") == "skip-duplicates",
			BatchDelay:     GetEnvDuration("INGEST_BATCH_DELAY", 0),
			MaxDefects:     GetEnvInt("INGEST_MAX_DEFECTS", 1000),
		},
		Feed: FeedConfig{
			PageSize:   GetEnvInt("FEED_PAGE_SIZE", 1000),
			BatchDelay: GetEnvDuration("FEED_BATCH_DELAY", 100*time.Millisecond),
			Timeout:    GetEnvDuration("FEED_TIMEOUT", 60*time.Second),
			AppToken:   GetEnv("FEED_APP_TOKEN", ""),
		},
		S3: S3Config{
			Region:    GetEnv("S3_REGION", "us-east-1"),
			Endpoint:  GetEnv("S3_ENDPOINT", ""),
			PathStyle: GetEnvBool("S3_PATH_STYLE", false),
		},
		Server: ServerConfig{
			Host:            GetEnv("WEB_HOST", "localhost"),
			Port:            GetEnvInt("WEB_PORT", 8080),
			APIKey:          GetEnv("WEB_API_KEY", ""),
			CORSOrigin:      GetEnv("WEB_CORS_ORIGIN", "*"),
			ShutdownTimeout: GetEnvDuration("WEB_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		RunLog: RunLogConfig{
			Path: GetEnv("RUNLOG_PATH", "runs.db"),
		},
		Log: LogConfig{
			Level: GetEnv("LOG_LEVEL", "info"),
			JSON:  GetEnvBool("LOG_JSON", false),
		},
	}
}

// databaseURL prefers DATABASE_URL and otherwise assembles one from the PG* variables
func databaseURL() string {
	if dsn := GetEnv("DATABASE_URL", ""); dsn != "" {
		return dsn
	}
	u := &url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(GetEnv("PGUSER", "postgres"), GetEnv("PGPASSWORD", "postgres")),
		Host:     fmt.Sprintf("%s:%s", GetEnv("PGHOST", "localhost"), GetEnv("PGPORT", "5432")),
		Path:     "/" + GetEnv("PGDATABASE", "permits"),
		RawQuery: "sslmode=" + GetEnv("PGSSLMODE", "disable"),
	}
	return u.String()
}
