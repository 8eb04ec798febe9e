package datalake

import (
	"context"
	"math/big"
	"strings"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/ingest"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/netrange"
)

// SyncOrganizations upserts organization and sector records, then links
// parents to children and sectors to their members.
//
// Records are processed in one sequential pass. Sector records whose id is
// on the non-sector deny list are skipped. Network strings that do not
// parse are rejected and the rest of the record is kept.
func (s *Syncer) SyncOrganizations(ctx context.Context, records []ingest.Record) (*Summary, error) {
	const op = "datalake.SyncOrganizations"

	r := s.newRun(KindOrganizations)
	var (
		ids     = make(map[string]string)   // acronym -> organization id
		parents = make(map[string][]string) // parent acronym -> child acronyms
		members = make(map[string][]string) // sector id -> organization acronyms
		assets  = new(big.Int)
	)

	for _, rec := range records {
		if err := r.checkContext(ctx, op); err != nil {
			return r.finish(), err
		}
		r.summary.Processed++

		parsed, err := ingest.ParseOrganization(rec)
		if err != nil {
			if err := r.recordError(rec.SourceID(), err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}

		if parsed.IsSector {
			if s.sectors.Excluded(parsed.Acronym) {
				s.logger.Debug("not persisting pseudo-sector %s", parsed.Acronym)
				r.summary.Skipped++
				r.count(statusSkipped)
				continue
			}
			sectorID, err := s.store.Upsert(ctx, &parsed.Sector)
			if err != nil {
				if err := r.recordError(parsed.Acronym, err); err != nil {
					return r.finish(), errors.Wrap(err, op)
				}
				continue
			}
			if len(parsed.Children) > 0 {
				members[sectorID] = append(members[sectorID], parsed.Children...)
			}
			r.upserted()
			continue
		}

		orgID, size, err := s.upsertOrganization(ctx, parsed)
		if err != nil {
			if err := r.recordError(parsed.Acronym, err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}
		ids[parsed.Acronym] = orgID
		if len(parsed.Children) > 0 {
			parents[parsed.Acronym] = append(parents[parsed.Acronym], parsed.Children...)
		}
		assets.Add(assets, size)
		r.upserted()
	}

	children, err := s.worker.LinkChildren(ctx, ids, parents)
	r.summary.Linked.Add(children)
	if err != nil {
		return r.finish(), errors.Wrap(err, op)
	}
	sectors, err := s.worker.LinkSectors(ctx, ids, members)
	r.summary.Linked.Add(sectors)
	if err != nil {
		return r.finish(), errors.Wrap(err, op)
	}

	r.summary.NetworkAssets = assets
	total, _ := new(big.Float).SetInt(assets).Float64()
	s.metrics.GaugeSet(metrics.NetworkAssetsTotal.Name, total)

	return r.finish(), nil
}

// upsertOrganization upserts the location, the organization and its
// networks. It returns the organization id and the address count of the
// networks that parsed.
func (s *Syncer) upsertOrganization(ctx context.Context, parsed *ingest.OrganizationRecord) (string, *big.Int, error) {
	org := parsed.Organization

	if parsed.Location != nil {
		locID, err := s.store.Upsert(ctx, parsed.Location)
		if err != nil {
			return "", nil, err
		}
		org.LocationID = &locID
	}

	orgID, err := s.store.Upsert(ctx, &org)
	if err != nil {
		return "", nil, err
	}

	size := new(big.Int)
	for _, raw := range parsed.Networks {
		network, err := netrange.Parse(raw)
		if err != nil {
			s.logger.Warn("rejecting network %q of %s: %v", raw, parsed.Acronym, err)
			continue
		}
		cidr := &model.Cidr{
			Network: model.Ptr(strings.TrimSpace(raw)),
			StartIP: model.Ptr(network.Start.String()),
			EndIP:   model.Ptr(network.End.String()),
		}
		cidrID, err := s.store.Upsert(ctx, cidr)
		if err != nil {
			return "", nil, err
		}
		if err := s.store.LinkCidr(ctx, cidrID, orgID); err != nil {
			return "", nil, err
		}
		size.Add(size, network.Size())
	}
	return orgID, size, nil
}
