// Package config loads and validates ingest configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	collyfetcher "github.com/JakeFAU/movie-ingest/internal/fetcher/colly"
	"github.com/JakeFAU/movie-ingest/internal/sitemap"
)

// EnvPrefix namespaces environment overrides, e.g. MOVIE_INGEST_STORE_DSN.
const EnvPrefix = "MOVIE_INGEST"

// Store drivers.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Logging  LoggingConfig  `mapstructure:"logging"`
	Sitemap  SitemapConfig  `mapstructure:"sitemap"`
	Fetcher  FetcherConfig  `mapstructure:"fetcher"`
	Ingest   IngestConfig   `mapstructure:"ingest"`
	Store    StoreConfig    `mapstructure:"store"`
	PubSub   PubSubConfig   `mapstructure:"pubsub"`
	Progress ProgressConfig `mapstructure:"progress"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout"`
}

// AuthConfig defines API authentication toggles.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// SitemapConfig locates the sitemap documents and names them.
type SitemapConfig struct {
	// Base is a directory, an http(s) URL prefix or a gs://bucket/prefix.
	Base    string `mapstructure:"base"`
	Pattern string `mapstructure:"pattern"`
	First   int    `mapstructure:"first"`
	Count   int    `mapstructure:"count"`
	// Sources overrides the numbered series with an explicit ordered list.
	Sources       []string      `mapstructure:"sources"`
	DetailSegment string        `mapstructure:"detail_segment"`
	Timeout       time.Duration `mapstructure:"timeout"`
	// MaxBytes caps documents downloaded over http(s).
	MaxBytes int `mapstructure:"max_bytes"`
}

// FetcherConfig configures the detail page collector.
type FetcherConfig struct {
	UserAgent     string                 `mapstructure:"user_agent"`
	RespectRobots bool                   `mapstructure:"respect_robots"`
	Timeout       time.Duration          `mapstructure:"timeout"`
	Selectors     collyfetcher.Selectors `mapstructure:"selectors"`
}

// IngestConfig tunes the runner.
type IngestConfig struct {
	Workers      int           `mapstructure:"workers"`
	Interval     time.Duration `mapstructure:"interval"`
	Burst        int           `mapstructure:"burst"`
	StoreTimeout time.Duration `mapstructure:"store_timeout"`
	// MaxURLs caps the URLs taken from each sitemap document; zero keeps all.
	MaxURLs int `mapstructure:"max_urls"`
}

// StoreConfig selects and configures persistence.
type StoreConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	// AutoMigrate applies pending migrations when the store opens.
	AutoMigrate bool `mapstructure:"auto_migrate"`
}

// PubSubConfig holds metadata for stored-movie notifications.
type PubSubConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ProgressConfig tunes the progress hub.
type ProgressConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
	SinkTimeout    time.Duration `mapstructure:"sink_timeout"`
	LogEvents      bool          `mapstructure:"log_events"`
}

// Load builds a Config from defaults, an optional .env file, an optional config
// file at path, and MOVIE_INGEST_* environment variables.
func Load(path string) (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func loadDotEnv(path string) error {
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.request_timeout", "60s")
	v.SetDefault("server.read_header_timeout", "10s")
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "")
	v.SetDefault("sitemap.base", "sitemaps")
	v.SetDefault("sitemap.pattern", "sitemap-list-%d.xml")
	v.SetDefault("sitemap.first", 1)
	v.SetDefault("sitemap.count", 30)
	v.SetDefault("sitemap.detail_segment", "/movie/watch-")
	v.SetDefault("sitemap.timeout", "30s")
	v.SetDefault("sitemap.max_bytes", sitemap.DefaultMaxBytes)
	v.SetDefault("fetcher.user_agent", "movie-ingest/0.1")
	v.SetDefault("fetcher.respect_robots", true)
	v.SetDefault("fetcher.timeout", "15s")
	v.SetDefault("ingest.workers", 1)
	v.SetDefault("ingest.interval", "1s")
	v.SetDefault("ingest.burst", 1)
	v.SetDefault("ingest.store_timeout", "30s")
	v.SetDefault("ingest.max_urls", 0)
	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.path", "data/movies.db")
	v.SetDefault("store.max_conns", 4)
	v.SetDefault("store.min_conns", 0)
	v.SetDefault("store.max_conn_lifetime", "30m")
	v.SetDefault("store.auto_migrate", true)
	v.SetDefault("pubsub.enabled", false)
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "movies-stored")
	v.SetDefault("progress.buffer_size", 1024)
	v.SetDefault("progress.max_batch_events", 256)
	v.SetDefault("progress.max_batch_wait", "500ms")
	v.SetDefault("progress.sink_timeout", "10s")
	v.SetDefault("progress.log_events", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && c.Auth.APIKey == "" {
		return fmt.Errorf("auth.api_key must be set when auth is enabled")
	}
	if c.Sitemap.Base == "" {
		return fmt.Errorf("sitemap.base is required")
	}
	if len(c.Sitemap.Sources) == 0 && c.Sitemap.Count <= 0 {
		return fmt.Errorf("sitemap.count must be > 0 when sitemap.sources is empty")
	}
	if c.Sitemap.MaxBytes < 0 {
		return fmt.Errorf("sitemap.max_bytes must be >= 0")
	}
	if c.Ingest.Workers <= 0 {
		return fmt.Errorf("ingest.workers must be > 0")
	}
	if c.Ingest.Interval < 0 {
		return fmt.Errorf("ingest.interval must be >= 0")
	}
	if c.Ingest.MaxURLs < 0 {
		return fmt.Errorf("ingest.max_urls must be >= 0")
	}
	switch c.Store.Driver {
	case DriverMemory:
	case DriverPostgres:
		if c.Store.DSN == "" {
			return fmt.Errorf("store.dsn must be set for the postgres driver")
		}
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("store.path must be set for the sqlite driver")
		}
	default:
		return fmt.Errorf("store.driver %q is not one of memory, postgres, sqlite", c.Store.Driver)
	}
	if c.PubSub.Enabled && (c.PubSub.ProjectID == "" || c.PubSub.TopicName == "") {
		return fmt.Errorf("pubsub.project_id and pubsub.topic_name must be set when pubsub is enabled")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c Config) Addr() string {
	return fmt.Sprintf(":%d", c.Server.Port)
}
