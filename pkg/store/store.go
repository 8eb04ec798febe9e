// Package store is the relational store of the pipeline.
//
// It runs on SQLite (modernc.org/sqlite, the default for local runs and
// tests) or PostgreSQL (pgx stdlib driver). Queries are written with '?'
// placeholders and rebound for the active driver by sqlx.
package store

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver "pgx"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite" // Pure Go SQLite driver "sqlite"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

// Dialect is the SQL flavour of the connected database.
type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

// driverName returns the database/sql driver registered for the dialect.
func (d Dialect) driverName() string {
	if d == DialectPostgres {
		return "pgx"
	}
	return "sqlite"
}

// now returns the dialect's current-timestamp expression. SQLite keeps
// milliseconds so change detection works within one second.
func (d Dialect) now() string {
	if d == DialectPostgres {
		return "CURRENT_TIMESTAMP"
	}
	return "strftime('%Y-%m-%d %H:%M:%f', 'now')"
}

// Config configures the store connection.
type Config struct {
	// Driver is "sqlite" or "postgres"
	Driver string `yaml:"driver"`

	// DSN is a file path for SQLite or a connection URL for PostgreSQL
	DSN string `yaml:"dsn"`

	MaxOpenConns    int           `yaml:"max_open_conns"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`

	// BusyTimeout applies to SQLite only (default: 5s)
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// DefaultConfig returns a SQLite store under the user's data directory.
func DefaultConfig() Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	return Config{
		Driver:       string(DialectSQLite),
		DSN:          filepath.Join(home, ".lakesync", "lakesync.db"),
		MaxOpenConns: 10,
		BusyTimeout:  5 * time.Second,
	}
}

// Options configures optional collaborators.
type Options struct {
	Logger  logging.Logger
	Metrics metrics.Collector
}

// Store is the relational store.
type Store struct {
	db      *sqlx.DB
	dialect Dialect
	logger  logging.Logger
	metrics metrics.Collector
}

// Open connects to the configured database and verifies the connection.
func Open(ctx context.Context, cfg Config, opts *Options) (*Store, error) {
	const op = "store.Open"

	if opts == nil {
		opts = &Options{}
	}

	dialect := Dialect(strings.ToLower(cfg.Driver))
	switch dialect {
	case "", DialectSQLite:
		dialect = DialectSQLite
	case DialectPostgres, "pgx", "postgresql":
		dialect = DialectPostgres
	default:
		return nil, errors.E(errors.KindInvalidInput, op, fmt.Sprintf("unsupported driver %q", cfg.Driver))
	}

	dsn := cfg.DSN
	if dialect == DialectSQLite {
		var err error
		if dsn, err = sqliteDSN(cfg); err != nil {
			return nil, errors.E(errors.KindStore, op, err)
		}
	}

	db, err := sqlx.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, errors.E(errors.KindStore, op, "open database", err)
	}

	if dialect == DialectSQLite {
		// One writer at a time; busy_timeout covers readers.
		db.SetMaxOpenConns(1)
	} else if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, errors.E(errors.KindStore, op, "ping database", err)
	}

	return New(db, dialect, opts), nil
}

// New wraps an open connection.
func New(db *sqlx.DB, dialect Dialect, opts *Options) *Store {
	if opts == nil {
		opts = &Options{}
	}
	return &Store{
		db:      db,
		dialect: dialect,
		logger:  logging.OrNop(opts.Logger),
		metrics: metrics.OrNop(opts.Metrics),
	}
}

// sqliteDSN builds a modernc DSN with per-connection pragmas.
func sqliteDSN(cfg Config) (string, error) {
	path := cfg.DSN
	if path == "" {
		path = DefaultConfig().DSN
	}
	if strings.HasPrefix(path, "file:") || path == ":memory:" {
		return path, nil
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create storage directory: %w", err)
	}

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}

	q := url.Values{}
	q.Add("_pragma", "journal_mode(WAL)")
	q.Add("_pragma", "synchronous(NORMAL)")
	q.Add("_pragma", "foreign_keys(ON)")
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busy.Milliseconds()))
	return "file:" + path + "?" + q.Encode(), nil
}

// DB returns the underlying sqlx.DB instance.
func (s *Store) DB() *sqlx.DB {
	return s.db
}

// Dialect returns the connected dialect.
func (s *Store) Dialect() Dialect {
	return s.dialect
}

// Ping verifies the connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return errors.E(errors.KindStore, "store.Ping", err)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// rebind converts '?' placeholders for the active driver.
func (s *Store) rebind(query string) string {
	return s.db.Rebind(query)
}
