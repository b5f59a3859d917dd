package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/couchcryptid/station-data-ingest/internal/domain"
	sharedcfg "github.com/couchcryptid/storm-data-shared/config"
	"github.com/joho/godotenv"
)

// Config holds all service settings, populated from environment variables.
type Config struct {
	DatabaseURL    string
	ConnectTimeout time.Duration
	RetryDelay     time.Duration

	DataDir      string
	StationsFile string
	Stations     []domain.StationConfig
	PollInterval time.Duration
	WatchFiles   bool
	CursorFile   string
	BufferFile   string

	// Size-threshold archival.
	StoreSizeLimitBytes int64
	ArchiveDir          string

	// Report trigger. Disabled when ReportBrokers is empty.
	ReportBrokers []string
	ReportTopic   string

	HTTPAddr        string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
}

// Load reads configuration from environment variables, applying defaults where
// unset. A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	_ = godotenv.Load(".env")

	cfg := &Config{
		DatabaseURL:  strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DataDir:      sharedcfg.EnvOrDefault("DATA_DIR", "."),
		StationsFile: strings.TrimSpace(os.Getenv("STATIONS_FILE")),
		CursorFile:   strings.TrimSpace(os.Getenv("CURSOR_FILE")),
		BufferFile:   sharedcfg.EnvOrDefault("BUFFER_FILE", "offline_buffer.json"),
		ArchiveDir:   sharedcfg.EnvOrDefault("ARCHIVE_DIR", "archives"),
		ReportTopic:  sharedcfg.EnvOrDefault("REPORT_TOPIC", "station-reports"),
		HTTPAddr:     sharedcfg.EnvOrDefault("HTTP_ADDR", ":8080"),
		LogLevel:     sharedcfg.EnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:    sharedcfg.EnvOrDefault("LOG_FORMAT", "json"),
	}
	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}

	var err error
	if cfg.PollInterval, err = parseDuration("POLL_INTERVAL", 10*time.Second); err != nil {
		return nil, err
	}
	if cfg.RetryDelay, err = parseDuration("RETRY_DELAY", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout, err = parseDuration("CONNECT_TIMEOUT", 3*time.Second); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = sharedcfg.ParseShutdownTimeout(); err != nil {
		return nil, err
	}

	limitMB := sharedcfg.EnvOrDefault("STORE_SIZE_LIMIT_MB", "400")
	mb, err := strconv.ParseInt(limitMB, 10, 64)
	if err != nil || mb <= 0 {
		return nil, fmt.Errorf("invalid STORE_SIZE_LIMIT_MB %q: must be a positive integer", limitMB)
	}
	cfg.StoreSizeLimitBytes = mb * 1024 * 1024

	watch := sharedcfg.EnvOrDefault("WATCH_FILES", "true")
	if cfg.WatchFiles, err = strconv.ParseBool(watch); err != nil {
		return nil, fmt.Errorf("invalid WATCH_FILES %q", watch)
	}

	if brokers := strings.TrimSpace(os.Getenv("REPORT_BROKERS")); brokers != "" {
		cfg.ReportBrokers = sharedcfg.ParseBrokers(brokers)
	}
	if len(cfg.ReportBrokers) > 0 && cfg.ReportTopic == "" {
		return nil, errors.New("REPORT_TOPIC is required when REPORT_BROKERS is set")
	}

	if cfg.StationsFile == "" {
		cfg.Stations = domain.DefaultStations()
	} else if cfg.Stations, err = LoadStations(cfg.StationsFile); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ReportsEnabled reports whether a report trigger should be published.
func (c *Config) ReportsEnabled() bool {
	return len(c.ReportBrokers) > 0
}

func parseDuration(key string, def time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(sharedcfg.EnvOrDefault(key, def.String()))
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return 0, fmt.Errorf("invalid %s %q: must be a positive duration", key, v)
	}
	return d, nil
}
