package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/model"
)

// ParentChildren loads an organization by acronym together with the ids of
// the children already linked to it.
func (s *Store) ParentChildren(ctx context.Context, acronym string) (string, []string, error) {
	const op = "store.ParentChildren"

	parentID, err := s.lookupID(ctx, model.TableOrganizations, "acronym", acronym)
	if err != nil {
		return "", nil, errors.Wrap(err, op)
	}

	var children []string
	err = s.db.SelectContext(ctx, &children,
		s.rebind("SELECT id FROM organizations WHERE parent_id = ? ORDER BY id"), parentID)
	if err != nil {
		return "", nil, errors.E(errors.KindStore, op, err)
	}
	return parentID, children, nil
}

// AddChildren points each child at parentID. Children's updated_at moves so
// the next index sync picks the new parent up.
func (s *Store) AddChildren(ctx context.Context, parentID string, childIDs []string) error {
	const op = "store.AddChildren"

	if len(childIDs) == 0 {
		return nil
	}

	query, args, err := sqlx.In(
		"UPDATE organizations SET parent_id = ?, updated_at = "+s.dialect.now()+" WHERE id IN (?)",
		parentID, childIDs)
	if err != nil {
		return errors.E(errors.KindInternal, op, err)
	}
	if _, err := s.db.ExecContext(ctx, s.rebind(query), args...); err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	return nil
}

// SectorMembers returns the organization ids already in a sector.
func (s *Store) SectorMembers(ctx context.Context, sectorID string) ([]string, error) {
	const op = "store.SectorMembers"

	var exists int
	err := s.db.GetContext(ctx, &exists, s.rebind("SELECT 1 FROM sectors WHERE id = ?"), sectorID)
	if err == sql.ErrNoRows {
		return nil, errors.E(errors.KindNotFound, op, fmt.Sprintf("sector %s not found", sectorID))
	}
	if err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}

	var members []string
	err = s.db.SelectContext(ctx, &members,
		s.rebind("SELECT organization_id FROM sector_organizations WHERE sector_id = ? ORDER BY organization_id"),
		sectorID)
	if err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}
	return members, nil
}

// AddSectorMembers appends organizations to a sector. Existing edges are
// left alone.
func (s *Store) AddSectorMembers(ctx context.Context, sectorID string, orgIDs []string) error {
	return s.appendEdges(ctx, "store.AddSectorMembers", model.TableSectorOrganizations,
		"sector_id", "organization_id", sectorID, orgIDs)
}

// LinkCidr records that an organization owns a network.
func (s *Store) LinkCidr(ctx context.Context, cidrID, orgID string) error {
	return s.appendEdges(ctx, "store.LinkCidr", model.TableCidrOrganizations,
		"organization_id", "cidr_id", orgID, []string{cidrID})
}

// CidrsByOrganization returns the networks of each organization.
func (s *Store) CidrsByOrganization(ctx context.Context, orgIDs []string) (map[string][]model.Cidr, error) {
	const op = "store.CidrsByOrganization"

	out := make(map[string][]model.Cidr, len(orgIDs))
	if len(orgIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT co.organization_id AS organization_id, c.id, c.network, c.start_ip, c.end_ip, c.retired
		FROM cidr_organizations co
		JOIN cidrs c ON c.id = co.cidr_id
		WHERE co.organization_id IN (?)
		ORDER BY c.network`, orgIDs)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	var rows []struct {
		OrganizationID string `db:"organization_id"`
		model.Cidr
	}
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}
	for _, r := range rows {
		out[r.OrganizationID] = append(out[r.OrganizationID], r.Cidr)
	}
	return out, nil
}

// SectorAcronymsByOrganization returns the sector acronyms of each organization.
func (s *Store) SectorAcronymsByOrganization(ctx context.Context, orgIDs []string) (map[string][]string, error) {
	const op = "store.SectorAcronymsByOrganization"

	out := make(map[string][]string, len(orgIDs))
	if len(orgIDs) == 0 {
		return out, nil
	}

	query, args, err := sqlx.In(`
		SELECT so.organization_id, s.acronym
		FROM sector_organizations so
		JOIN sectors s ON s.id = so.sector_id
		WHERE so.organization_id IN (?)
		ORDER BY s.acronym`, orgIDs)
	if err != nil {
		return nil, errors.E(errors.KindInternal, op, err)
	}

	var rows []struct {
		OrganizationID string `db:"organization_id"`
		Acronym        string `db:"acronym"`
	}
	if err := s.db.SelectContext(ctx, &rows, s.rebind(query), args...); err != nil {
		return nil, errors.E(errors.KindStore, op, err)
	}
	for _, r := range rows {
		out[r.OrganizationID] = append(out[r.OrganizationID], r.Acronym)
	}
	return out, nil
}

// appendEdges inserts (left, right) join rows, ignoring ones that exist.
func (s *Store) appendEdges(ctx context.Context, op, table, leftCol, rightCol, left string, rights []string) error {
	if len(rights) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	defer func() { _ = tx.Rollback() }()

	query := s.rebind(fmt.Sprintf(
		"INSERT INTO %s (%s, %s) VALUES (?, ?) ON CONFLICT (%s, %s) DO NOTHING",
		table, leftCol, rightCol, leftCol, rightCol))
	for _, right := range rights {
		if _, err := tx.ExecContext(ctx, query, left, right); err != nil {
			return errors.E(errors.KindStore, op, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.E(errors.KindStore, op, err)
	}
	return nil
}
