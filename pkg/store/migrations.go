package store

import (
	"context"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"github.com/exploopio/lakesync/pkg/errors"
)

// MigrationInfo describes an applied migration.
type MigrationInfo struct {
	Version   int    `db:"version"`
	Name      string `db:"name"`
	AppliedAt string `db:"applied_at"`
}

// migration represents a single schema migration.
type migration struct {
	version int
	name    string
	up      []string
	down    []string
}

// migrations returns all available migrations in order.
func migrations() []migration {
	m := []migration{
		{version: 1, name: "core_schema", up: coreSchema, down: coreSchemaDown},
		{version: 2, name: "domains_webpages", up: domainSchema, down: domainSchemaDown},
		{version: 3, name: "sync_indexes", up: syncIndexes, down: syncIndexesDown},
	}
	sort.Slice(m, func(i, j int) bool { return m[i].version < m[j].version })
	return m
}

// Migrate applies all pending migrations.
func (s *Store) Migrate(ctx context.Context) error {
	const op = "store.Migrate"

	current, err := s.CurrentVersion(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}

	for _, mig := range migrations() {
		if mig.version <= current {
			continue
		}
		if err := s.applyMigration(ctx, mig.version, mig.name, mig.up, true); err != nil {
			return errors.E(errors.KindStore, op,
				fmt.Sprintf("apply migration %d (%s)", mig.version, mig.name), err)
		}
		s.logger.Info("applied migration %d (%s)", mig.version, mig.name)
	}
	return nil
}

// CurrentVersion returns the current schema version.
func (s *Store) CurrentVersion(ctx context.Context) (int, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return 0, err
	}

	var version int
	if err := s.db.GetContext(ctx, &version, "SELECT COALESCE(MAX(version), 0) FROM schema_migrations"); err != nil {
		return 0, errors.E(errors.KindStore, "store.CurrentVersion", err)
	}
	return version, nil
}

// AppliedMigrations lists applied migrations, oldest first.
func (s *Store) AppliedMigrations(ctx context.Context) ([]MigrationInfo, error) {
	if err := s.ensureMigrationsTable(ctx); err != nil {
		return nil, err
	}

	var out []MigrationInfo
	err := s.db.SelectContext(ctx, &out,
		"SELECT version, name, CAST(applied_at AS TEXT) AS applied_at FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, errors.E(errors.KindStore, "store.AppliedMigrations", err)
	}
	return out, nil
}

// Rollback rolls back to a target version.
func (s *Store) Rollback(ctx context.Context, targetVersion int) error {
	const op = "store.Rollback"

	if targetVersion < 0 {
		return errors.E(errors.KindInvalidInput, op, fmt.Sprintf("invalid target version: %d", targetVersion))
	}

	current, err := s.CurrentVersion(ctx)
	if err != nil {
		return errors.Wrap(err, op)
	}
	if targetVersion > current {
		return errors.E(errors.KindInvalidInput, op,
			fmt.Sprintf("cannot rollback to future version %d (current: %d)", targetVersion, current))
	}

	all := migrations()
	for i := len(all) - 1; i >= 0; i-- {
		mig := all[i]
		if mig.version <= targetVersion {
			break
		}
		if mig.version > current {
			continue
		}
		if err := s.applyMigration(ctx, mig.version, mig.name, mig.down, false); err != nil {
			return errors.E(errors.KindStore, op,
				fmt.Sprintf("rollback migration %d (%s)", mig.version, mig.name), err)
		}
	}
	return nil
}

func (s *Store) ensureMigrationsTable(ctx context.Context) error {
	query := s.dialect.render(`
	CREATE TABLE IF NOT EXISTS schema_migrations (
		version INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		applied_at {{TS}} NOT NULL DEFAULT {{NOW}}
	)`)
	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return errors.E(errors.KindStore, "store.ensureMigrationsTable", err)
	}
	return nil
}

// applyMigration runs statements and records (or removes) the version in
// one transaction.
func (s *Store) applyMigration(ctx context.Context, version int, name string, stmts []string, up bool) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}

	if err := s.execMigration(ctx, tx, version, name, stmts, up); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *Store) execMigration(ctx context.Context, tx *sqlx.Tx, version int, name string, stmts []string, up bool) error {
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, s.dialect.render(stmt)); err != nil {
			return fmt.Errorf("execute statement: %w", err)
		}
	}

	if up {
		_, err := tx.ExecContext(ctx, s.rebind("INSERT INTO schema_migrations (version, name) VALUES (?, ?)"), version, name)
		return err
	}
	_, err := tx.ExecContext(ctx, s.rebind("DELETE FROM schema_migrations WHERE version = ?"), version)
	return err
}
