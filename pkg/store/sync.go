package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// syncable reports whether a table carries a synced_at column.
func syncable(table string) bool {
	switch table {
	case model.TableOrganizations, model.TableDomains, model.TableWebpages:
		return true
	}
	return false
}

// ChangedIDs returns the ids of rows modified since they were last synced
// to the search index, or never synced.
func (s *Store) ChangedIDs(ctx context.Context, table string) ([]string, error) {
	const op = "store.ChangedIDs"

	if !syncable(table) {
		return nil, errors.E(errors.KindInvalidInput, op, fmt.Sprintf("table %q is not synced", table))
	}

	var ids []string
	query := fmt.Sprintf("SELECT id FROM %s WHERE synced_at IS NULL OR updated_at > synced_at ORDER BY id", table)
	if err := s.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}
	return ids, nil
}

// AllIDs returns every row id of a synced table.
func (s *Store) AllIDs(ctx context.Context, table string) ([]string, error) {
	const op = "store.AllIDs"

	if !syncable(table) {
		return nil, errors.E(errors.KindInvalidInput, op, fmt.Sprintf("table %q is not synced", table))
	}

	var ids []string
	if err := s.db.SelectContext(ctx, &ids, "SELECT id FROM "+table+" ORDER BY id"); err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}
	return ids, nil
}

// MarkSynced stamps synced_at on the given rows. updated_at is left alone.
func (s *Store) MarkSynced(ctx context.Context, table string, ids []string) error {
	const op = "store.MarkSynced"

	if !syncable(table) {
		return errors.E(errors.KindInvalidInput, op, fmt.Sprintf("table %q is not synced", table))
	}
	if len(ids) == 0 {
		return nil
	}

	query, args, err := sqlx.In("UPDATE "+table+" SET synced_at = "+s.dialect.now()+" WHERE id IN (?)", ids)
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	return nil
}

// ResetSynced clears synced_at on every row so the next sync sends all of
// them again.
func (s *Store) ResetSynced(ctx context.Context, table string) error {
	const op = "store.ResetSynced"

	if !syncable(table) {
		return errors.E(errors.KindInvalidInput, op, fmt.Sprintf("table %q is not synced", table))
	}
	if _, err := s.db.ExecContext(ctx, "UPDATE "+table+" SET synced_at = NULL"); err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	return nil
}

// OrganizationsByIDs loads organizations in id order.
func (s *Store) OrganizationsByIDs(ctx context.Context, ids []string) ([]model.Organization, error) {
	var out []model.Organization
	err := s.selectIn(ctx, "store.OrganizationsByIDs", &out, "SELECT * FROM organizations WHERE id IN (?) ORDER BY id", ids)
	return out, err
}

// DomainsByIDs loads domains in id order.
func (s *Store) DomainsByIDs(ctx context.Context, ids []string) ([]model.Domain, error) {
	var out []model.Domain
	err := s.selectIn(ctx, "store.DomainsByIDs", &out, "SELECT * FROM domains WHERE id IN (?) ORDER BY id", ids)
	return out, err
}

// WebpagesByIDs loads webpages in id order.
func (s *Store) WebpagesByIDs(ctx context.Context, ids []string) ([]model.Webpage, error) {
	var out []model.Webpage
	err := s.selectIn(ctx, "store.WebpagesByIDs", &out, "SELECT * FROM webpages WHERE id IN (?) ORDER BY id", ids)
	return out, err
}

func (s *Store) selectIn(ctx context.Context, op string, dest any, query string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	q, args, err := sqlx.In(query, ids)
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if err := s.db.SelectContext(ctx, dest, s.rebind(q), args...); err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	return nil
}
