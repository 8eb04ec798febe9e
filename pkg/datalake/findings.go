package datalake

import (
	"context"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/ingest"
)

// SyncVulnScans upserts vulnerability-scan findings. Each finding's owner
// must already be persisted; its address and CVE are created on demand.
func (s *Syncer) SyncVulnScans(ctx context.Context, records []ingest.Record) (*Summary, error) {
	const op = "datalake.SyncVulnScans"

	r := s.newRun(KindVulnScans)
	owners := newOwnerResolver(s.store)

	for _, rec := range records {
		if err := r.checkContext(ctx, op); err != nil {
			return r.finish(), err
		}
		r.summary.Processed++

		if err := s.syncVulnScan(ctx, owners, rec); err != nil {
			if err := r.recordError(rec.SourceID(), err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}
		r.upserted()
	}
	return r.finish(), nil
}

func (s *Syncer) syncVulnScan(ctx context.Context, owners *ownerResolver, rec ingest.Record) error {
	parsed, err := ingest.ParseVulnScan(rec)
	if err != nil {
		return err
	}
	orgID, err := owners.resolve(ctx, parsed.Owner)
	if err != nil {
		return err
	}

	scan := parsed.Scan
	scan.OrganizationID = &orgID
	if scan.IPID, err = s.upsertIP(ctx, parsed.IP, orgID); err != nil {
		return err
	}
	if scan.CveID, err = s.upsertCve(ctx, parsed.Cve); err != nil {
		return err
	}

	_, err = s.store.Upsert(ctx, &scan)
	return err
}

// SyncTickets upserts tickets. Tickets flagged as known exploited are
// linked to the KEV entry of their CVE when one is persisted.
func (s *Syncer) SyncTickets(ctx context.Context, records []ingest.Record) (*Summary, error) {
	const op = "datalake.SyncTickets"

	r := s.newRun(KindTickets)
	owners := newOwnerResolver(s.store)

	for _, rec := range records {
		if err := r.checkContext(ctx, op); err != nil {
			return r.finish(), err
		}
		r.summary.Processed++

		if err := s.syncTicket(ctx, owners, rec); err != nil {
			if err := r.recordError(rec.SourceID(), err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}
		r.upserted()
	}
	return r.finish(), nil
}

func (s *Syncer) syncTicket(ctx context.Context, owners *ownerResolver, rec ingest.Record) error {
	parsed, err := ingest.ParseTicket(rec)
	if err != nil {
		return err
	}
	orgID, err := owners.resolve(ctx, parsed.Owner)
	if err != nil {
		return err
	}

	ticket := parsed.Ticket
	ticket.OrganizationID = &orgID
	if ticket.IPID, err = s.upsertIP(ctx, parsed.IP, orgID); err != nil {
		return err
	}
	if ticket.CveID, err = s.upsertCve(ctx, parsed.Cve); err != nil {
		return err
	}

	if parsed.KnownExploited && parsed.Cve != nil {
		kevID, err := s.store.KevIDByCve(ctx, *parsed.Cve)
		switch {
		case err == nil:
			ticket.KevID = &kevID
		case errors.IsNotFoundError(err):
			s.logger.Debug("ticket %s: no KEV entry for %s", ticket.ID, *parsed.Cve)
		default:
			return err
		}
	}

	_, err = s.store.Upsert(ctx, &ticket)
	return err
}
