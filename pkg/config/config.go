// Package config loads the lakesync configuration.
//
// A YAML file is read with ${VAR} references expanded from the
// environment, then LAKESYNC_* variables override individual settings.
// Secrets are usually kept in a .env file loaded with LoadDotEnv.
//
//	environment: production
//	database:
//	  driver: postgres
//	  dsn: ${DATABASE_URL}
//	search:
//	  addresses: [https://es.internal:9200]
//	  password: ${ES_PASSWORD}
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/exploopio/lakesync/pkg/chunk"
	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/kev"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/search"
	"github.com/exploopio/lakesync/pkg/store"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "LAKESYNC_"

// Config is the full lakesync configuration.
type Config struct {
	// Environment selects environment-specific behavior; "test" shrinks
	// index sync chunks.
	Environment string `yaml:"environment"`

	Log      LogConfig    `yaml:"log"`
	Database store.Config `yaml:"database"`
	Search   SearchConfig `yaml:"search"`
	Ingest   IngestConfig `yaml:"ingest"`
	Serve    ServeConfig  `yaml:"serve"`
	KEV      KEVConfig    `yaml:"kev"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // console or json
}

// SearchConfig configures the search cluster and the index sync jobs.
type SearchConfig struct {
	Addresses []string `yaml:"addresses"`
	Username  string   `yaml:"username"`
	Password  string   `yaml:"password"`
	APIKey    string   `yaml:"api_key"`

	OrganizationsIndex string `yaml:"organizations_index"`
	DomainsIndex       string `yaml:"domains_index"`

	ChunkSize         int           `yaml:"chunk_size"`
	TestChunkSize     int           `yaml:"test_chunk_size"`
	RetryAttempts     int           `yaml:"retry_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	RequestsPerSecond float64       `yaml:"requests_per_second"`

	RefreshInterval string `yaml:"refresh_interval"`
	FlushBytes      int    `yaml:"flush_bytes"`
}

// IngestConfig configures export ingestion.
type IngestConfig struct {
	// NonSectorIDs replaces the default pseudo-sector deny-list when set.
	NonSectorIDs []string `yaml:"non_sector_ids"`

	// CredentialsFile is a service-account key for gs:// exports.
	CredentialsFile string `yaml:"credentials_file"`
}

// ServeConfig configures the daemon.
type ServeConfig struct {
	Address  string        `yaml:"address"`
	Interval time.Duration `yaml:"interval"`
	// Jobs lists the index sync jobs run each interval.
	Jobs []string `yaml:"jobs"`
}

// KEVConfig configures the KEV catalog download.
type KEVConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout"`
}

// DefaultConfig returns a configuration for a local SQLite store and a
// local search cluster.
func DefaultConfig() *Config {
	cc := chunk.DefaultConfig()
	return &Config{
		Environment: "production",
		Log:         LogConfig{Level: "info", Format: "console"},
		Database:    store.DefaultConfig(),
		Search: SearchConfig{
			Addresses:          []string{"http://localhost:9200"},
			OrganizationsIndex: search.DefaultOrganizationsIndex,
			DomainsIndex:       search.DefaultDomainsIndex,
			ChunkSize:          cc.Size,
			TestChunkSize:      cc.TestSize,
			RetryAttempts:      cc.MaxAttempts,
			RetryBaseDelay:     cc.RetryBaseDelay,
			RetryMaxDelay:      cc.RetryMaxDelay,
			RefreshInterval:    "30s",
			FlushBytes:         5 << 20,
		},
		Serve: ServeConfig{
			Address:  ":9090",
			Interval: 15 * time.Minute,
			Jobs:     []string{JobOrganizations, JobDomains},
		},
		KEV: KEVConfig{URL: kev.DefaultURL, Timeout: kev.DefaultTimeout},
	}
}

// Index sync job names.
const (
	JobOrganizations = "organizations"
	JobDomains       = "domains"
)

// LoadDotEnv loads .env files into the environment. Missing files are
// ignored and variables already set win.
func LoadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return errors.E(errors.KindInvalidInput, "config.LoadDotEnv", "load "+p, err)
		}
	}
	return nil
}

// Load reads path over DefaultConfig, applies LAKESYNC_* overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	const op = "config.Load"

	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.E(errors.KindInvalidInput, op, "read "+path, err)
		}
		if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), cfg); err != nil {
			return nil, errors.E(errors.KindInvalidInput, op, "parse "+path, err)
		}
	}
	cfg.applyEnv(os.LookupEnv)

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, op)
	}
	return cfg, nil
}

// applyEnv overrides settings from LAKESYNC_* variables.
func (c *Config) applyEnv(lookup func(string) (string, bool)) {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	list := func(name string, dst *[]string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = splitList(v)
		}
	}

	str("ENVIRONMENT", &c.Environment)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("DATABASE_DRIVER", &c.Database.Driver)
	str("DATABASE_DSN", &c.Database.DSN)
	list("SEARCH_ADDRESSES", &c.Search.Addresses)
	str("SEARCH_USERNAME", &c.Search.Username)
	str("SEARCH_PASSWORD", &c.Search.Password)
	str("SEARCH_API_KEY", &c.Search.APIKey)
	list("NON_SECTOR_IDS", &c.Ingest.NonSectorIDs)
	str("GCS_CREDENTIALS_FILE", &c.Ingest.CredentialsFile)
	str("SERVE_ADDRESS", &c.Serve.Address)
	str("KEV_URL", &c.KEV.URL)

	if v, ok := lookup(EnvPrefix + "SEARCH_CHUNK_SIZE"); ok {
		if n, err := strconv.Atoi(v); err == nil {
			c.Search.ChunkSize = n
		}
	}
	if v, ok := lookup(EnvPrefix + "SERVE_INTERVAL"); ok {
		if d, err := time.ParseDuration(v); err == nil {
			c.Serve.Interval = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate reports every invalid field at once.
func (c *Config) Validate() error {
	v := NewValidator()

	v.Required("environment", c.Environment)
	v.OneOf("log.level", strings.ToLower(c.Log.Level), "debug", "info", "warn", "warning", "error", "silent")
	v.OneOf("log.format", c.Log.Format, "console", "json")

	v.OneOf("database.driver", strings.ToLower(c.Database.Driver), "sqlite", "postgres", "postgresql", "pgx")
	v.Required("database.dsn", c.Database.DSN)
	v.Min("database.max_open_conns", c.Database.MaxOpenConns, 0)

	v.Min("search.addresses", len(c.Search.Addresses), 1)
	for _, addr := range c.Search.Addresses {
		v.URL("search.addresses", addr)
	}
	v.Required("search.organizations_index", c.Search.OrganizationsIndex)
	v.Required("search.domains_index", c.Search.DomainsIndex)
	v.Custom("search.domains_index", c.Search.DomainsIndex != c.Search.OrganizationsIndex,
		"must differ from search.organizations_index")
	v.Min("search.chunk_size", c.Search.ChunkSize, 1)
	v.Min("search.test_chunk_size", c.Search.TestChunkSize, 1)
	v.Min("search.retry_attempts", c.Search.RetryAttempts, 1)
	v.MinDuration("search.retry_base_delay", c.Search.RetryBaseDelay, time.Millisecond)
	v.MinFloat("search.requests_per_second", c.Search.RequestsPerSecond, 0)

	v.FileExists("ingest.credentials_file", c.Ingest.CredentialsFile)

	v.Required("serve.address", c.Serve.Address)
	v.MinDuration("serve.interval", c.Serve.Interval, time.Second)
	for _, job := range c.Serve.Jobs {
		v.OneOf("serve.jobs", job, JobOrganizations, JobDomains)
	}

	v.URL("kev.url", c.KEV.URL)
	v.MinDuration("kev.timeout", c.KEV.Timeout, time.Second)

	if err := v.Err(); err != nil {
		return errors.E(errors.KindInvalidInput, "config.Validate", err)
	}
	return nil
}

// ChunkConfig returns the index sync chunking settings.
func (c *Config) ChunkConfig() *chunk.Config {
	return &chunk.Config{
		Size:              c.Search.ChunkSize,
		TestSize:          c.Search.TestChunkSize,
		Environment:       c.Environment,
		MaxAttempts:       c.Search.RetryAttempts,
		RetryBaseDelay:    c.Search.RetryBaseDelay,
		RetryMaxDelay:     c.Search.RetryMaxDelay,
		RequestsPerSecond: c.Search.RequestsPerSecond,
		Burst:             1,
	}
}

// ElasticConfig returns the search cluster client settings.
func (c *Config) ElasticConfig(logger logging.Logger) search.ElasticConfig {
	return search.ElasticConfig{
		Addresses:       c.Search.Addresses,
		Username:        c.Search.Username,
		Password:        c.Search.Password,
		APIKey:          c.Search.APIKey,
		RefreshInterval: c.Search.RefreshInterval,
		FlushBytes:      c.Search.FlushBytes,
		Logger:          logger,
	}
}

// KEVClientConfig returns the catalog client settings.
func (c *Config) KEVClientConfig(logger logging.Logger) *kev.Config {
	return &kev.Config{URL: c.KEV.URL, Timeout: c.KEV.Timeout, Logger: logger}
}

// LoggingOptions returns the zap logger settings.
func (c *Config) LoggingOptions() logging.Options {
	return logging.Options{
		Level:  logging.ParseLevel(c.Log.Level),
		Format: c.Log.Format,
		Name:   "lakesync",
	}
}
