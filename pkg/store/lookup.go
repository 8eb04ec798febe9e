package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// OrganizationIDByAcronym resolves an organization's row id.
func (s *Store) OrganizationIDByAcronym(ctx context.Context, acronym string) (string, error) {
	return s.lookupID(ctx, model.TableOrganizations, "acronym", acronym)
}

// SectorIDByAcronym resolves a sector's row id.
func (s *Store) SectorIDByAcronym(ctx context.Context, acronym string) (string, error) {
	return s.lookupID(ctx, model.TableSectors, "acronym", acronym)
}

// CveIDByName resolves a CVE row id.
func (s *Store) CveIDByName(ctx context.Context, name string) (string, error) {
	return s.lookupID(ctx, model.TableCves, "name", name)
}

// KevIDByCve resolves a KEV row id by its CVE name.
func (s *Store) KevIDByCve(ctx context.Context, cve string) (string, error) {
	return s.lookupID(ctx, model.TableKevs, "cve", cve)
}

// DomainIDByName resolves a domain row id.
func (s *Store) DomainIDByName(ctx context.Context, name string) (string, error) {
	return s.lookupID(ctx, model.TableDomains, "name", name)
}

// Count returns the number of rows in a table.
func (s *Store) Count(ctx context.Context, table string) (int, error) {
	if !knownTable(table) {
		return 0, errors.E(errors.KindInvalidInput, "store.Count", fmt.Sprintf("unknown table %q", table))
	}
	var n int
	if err := s.db.GetContext(ctx, &n, "SELECT COUNT(*) FROM "+table); err != nil {
		return 0, errors.E(errors.KindStore, "store.Count", err)
	}
	return n, nil
}

// lookupID returns the id of the row whose col equals value, or a
// KindNotFound error.
func (s *Store) lookupID(ctx context.Context, table, col, value string) (string, error) {
	const op = "store.lookupID"

	var id string
	err := s.db.GetContext(ctx, &id, s.rebind(fmt.Sprintf("SELECT id FROM %s WHERE %s = ?", table, col)), value)
	if err == sql.ErrNoRows {
		return "", errors.E(errors.KindNotFound, op, fmt.Sprintf("%s %s=%q not found", table, col, value))
	}
	if err != nil {
		return "", errors.E(errors.KindStore, op, err)
	}
	return id, nil
}

func knownTable(table string) bool {
	switch table {
	case model.TableOrganizations, model.TableSectors, model.TableCidrs, model.TableLocations,
		model.TableIps, model.TableCves, model.TableKevs, model.TableVulnScans, model.TableTickets,
		model.TableDomains, model.TableWebpages, model.TableSectorOrganizations, model.TableCidrOrganizations:
		return true
	}
	return false
}
