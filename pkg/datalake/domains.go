package datalake

import (
	"context"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/ingest"
	"github.com/exploopio/lakesync/pkg/kev"
)

// SyncDomains upserts domains and their crawled webpages. A domain that
// names an owner is attached to it; an unknown owner skips the record.
func (s *Syncer) SyncDomains(ctx context.Context, records []ingest.Record) (*Summary, error) {
	const op = "datalake.SyncDomains"

	r := s.newRun(KindDomains)
	owners := newOwnerResolver(s.store)

	for _, rec := range records {
		if err := r.checkContext(ctx, op); err != nil {
			return r.finish(), err
		}
		r.summary.Processed++

		if err := s.syncDomain(ctx, owners, rec); err != nil {
			if err := r.recordError(rec.SourceID(), err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}
		r.upserted()
	}
	return r.finish(), nil
}

func (s *Syncer) syncDomain(ctx context.Context, owners *ownerResolver, rec ingest.Record) error {
	parsed, err := ingest.ParseDomain(rec)
	if err != nil {
		return err
	}

	domain := parsed.Domain
	if parsed.Owner != nil {
		orgID, err := owners.resolve(ctx, *parsed.Owner)
		if err != nil {
			return err
		}
		domain.OrganizationID = &orgID
	}

	domainID, err := s.store.Upsert(ctx, &domain)
	if err != nil {
		return err
	}
	for i := range parsed.Webpages {
		page := parsed.Webpages[i]
		page.DomainID = &domainID
		if _, err := s.store.Upsert(ctx, &page); err != nil {
			return err
		}
	}
	return nil
}

// SyncKEV upserts every entry of a KEV catalog. Entries without a CVE id
// are skipped.
func (s *Syncer) SyncKEV(ctx context.Context, catalog *kev.Catalog) (*Summary, error) {
	const op = "datalake.SyncKEV"

	r := s.newRun(KindKEV)
	if catalog == nil {
		return r.finish(), errors.E(errors.KindInvalidInput, op, "nil catalog")
	}

	for _, entry := range catalog.Vulnerabilities {
		if err := r.checkContext(ctx, op); err != nil {
			return r.finish(), err
		}
		r.summary.Processed++

		k := entry.Kev()
		if k.Cve == nil {
			if err := r.recordError("<no cve>", errors.E(errors.KindParse, op, "KEV entry has no cveID")); err != nil {
				return r.finish(), err
			}
			continue
		}
		if _, err := s.store.Upsert(ctx, &k); err != nil {
			if err := r.recordError(*k.Cve, err); err != nil {
				return r.finish(), errors.Wrap(err, op)
			}
			continue
		}
		r.upserted()
	}
	return r.finish(), nil
}
