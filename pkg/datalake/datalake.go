// Package datalake loads export records into the relational store.
//
// A Syncer runs one export kind at a time, sequentially: each record is
// parsed, its cross references resolved and its entities upserted. Records
// that cannot be parsed or whose owner is unknown are skipped with a
// warning. Errors that would make every following record fail the same way
// (a missing natural key, a broken store) abort the run.
package datalake

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/ingest"
	"github.com/exploopio/lakesync/pkg/linker"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/store"
)

// Kind is an export kind.
type Kind string

const (
	KindOrganizations Kind = "organizations"
	KindVulnScans     Kind = "vulnscans"
	KindTickets       Kind = "tickets"
	KindDomains       Kind = "domains"
	KindKEV           Kind = "kev"
)

// ParseKind validates an export kind name.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindOrganizations, KindVulnScans, KindTickets, KindDomains:
		return k, nil
	}
	return "", errors.E(errors.KindInvalidInput, "datalake.ParseKind", fmt.Sprintf("unknown export kind %q", s))
}

// Record outcomes reported in metrics.
const (
	statusUpserted = "upserted"
	statusSkipped  = "skipped"
	statusFailed   = "failed"
)

// Summary reports the outcome of one sync run.
type Summary struct {
	Kind      Kind          `json:"kind"`
	Processed int           `json:"processed"`
	Upserted  int           `json:"upserted"`
	Skipped   int           `json:"skipped"`
	Failed    int           `json:"failed"`
	Linked    linker.Result `json:"linked"`

	// NetworkAssets is the number of addresses covered by the valid
	// networks of an organization sync.
	NetworkAssets *big.Int      `json:"network_assets,omitempty"`
	Duration      time.Duration `json:"duration"`
}

// Config configures a Syncer.
type Config struct {
	// NonSectorIDs are pseudo-sector ids never persisted as sectors.
	// Default: ingest.DefaultNonSectorIDs
	NonSectorIDs []string

	// LinkQueueSize bounds pending link requests. Default: 16
	LinkQueueSize int

	Logger  logging.Logger
	Metrics metrics.Collector
}

// Syncer writes export records to the store.
type Syncer struct {
	store   *store.Store
	sectors ingest.SectorFilter
	worker  *linker.Worker
	logger  logging.Logger
	metrics metrics.Collector
}

// New creates a Syncer over st. Call Start before syncing organizations.
func New(st *store.Store, cfg *Config) *Syncer {
	if cfg == nil {
		cfg = &Config{}
	}
	logger := logging.OrNop(cfg.Logger)
	collector := metrics.OrNop(cfg.Metrics)

	l := linker.New(st, &linker.Options{Logger: logger, Metrics: collector})
	return &Syncer{
		store:   st,
		sectors: ingest.NewSectorFilter(cfg.NonSectorIDs),
		worker:  linker.NewWorker(l, &linker.WorkerConfig{QueueSize: cfg.LinkQueueSize}),
		logger:  logger,
		metrics: collector,
	}
}

// Start launches the link worker.
func (s *Syncer) Start(ctx context.Context) error {
	return s.worker.Start(ctx)
}

// Stop drains pending link requests and stops the link worker.
func (s *Syncer) Stop(ctx context.Context) error {
	return s.worker.Stop(ctx)
}

// Ingest reads an export from uri and syncs it as kind.
func (s *Syncer) Ingest(ctx context.Context, kind Kind, uri string, opts *ingest.SourceOptions) (*Summary, error) {
	const op = "datalake.Ingest"

	records, err := ingest.ReadExport(ctx, uri, opts)
	if err != nil {
		return nil, errors.Wrap(err, op)
	}
	s.logger.Info("read %d %s records from %s", len(records), kind, uri)

	switch kind {
	case KindOrganizations:
		return s.SyncOrganizations(ctx, records)
	case KindVulnScans:
		return s.SyncVulnScans(ctx, records)
	case KindTickets:
		return s.SyncTickets(ctx, records)
	case KindDomains:
		return s.SyncDomains(ctx, records)
	default:
		return nil, errors.E(errors.KindInvalidInput, op, fmt.Sprintf("export kind %q cannot be ingested from a file", kind))
	}
}

// run is the state of one sync call.
type run struct {
	s       *Syncer
	summary *Summary
	started time.Time
}

func (s *Syncer) newRun(kind Kind) *run {
	return &run{s: s, summary: &Summary{Kind: kind}, started: time.Now()}
}

func (r *run) finish() *Summary {
	r.summary.Duration = time.Since(r.started)
	r.s.logger.Info("%s sync: processed=%d upserted=%d skipped=%d failed=%d linked=%d duration=%s",
		r.summary.Kind, r.summary.Processed, r.summary.Upserted, r.summary.Skipped, r.summary.Failed,
		r.summary.Linked.Linked, r.summary.Duration.Round(time.Millisecond))
	return r.summary
}

func (r *run) checkContext(ctx context.Context, op string) error {
	if err := ctx.Err(); err != nil {
		return errors.E(errors.KindTimeout, op, "sync interrupted", err)
	}
	return nil
}

func (r *run) upserted() {
	r.summary.Upserted++
	r.count(statusUpserted)
}

// recordError classifies a per-record error. It returns nil when the
// record was skipped or dropped and the run continues.
func (r *run) recordError(id string, err error) error {
	switch {
	case errors.IsRecordError(err):
		r.summary.Skipped++
		r.count(statusSkipped)
		r.s.logger.Warn("skipping %s record %s: %v", r.summary.Kind, id, err)
		return nil
	case errors.GetKind(err) == errors.KindNotFound:
		r.summary.Failed++
		r.count(statusFailed)
		r.s.logger.Warn("dropping %s record %s: %v", r.summary.Kind, id, err)
		return nil
	default:
		return err
	}
}

func (r *run) count(status string) {
	r.s.metrics.CounterInc(metrics.IngestRecordsTotal.Name, "kind", string(r.summary.Kind), "status", status)
}

// ownerResolver caches organization ids by acronym for one run.
type ownerResolver struct {
	store *store.Store
	ids   map[string]string
}

func newOwnerResolver(st *store.Store) *ownerResolver {
	return &ownerResolver{store: st, ids: make(map[string]string)}
}

// resolve returns the id of the organization with the acronym. An unknown
// acronym is a reference error.
func (o *ownerResolver) resolve(ctx context.Context, acronym string) (string, error) {
	const op = "datalake.resolveOwner"

	if id, ok := o.ids[acronym]; ok {
		if id == "" {
			return "", errors.E(errors.KindReference, op, fmt.Sprintf("unknown owner %q", acronym))
		}
		return id, nil
	}
	id, err := o.store.OrganizationIDByAcronym(ctx, acronym)
	if errors.IsNotFoundError(err) {
		o.ids[acronym] = ""
		return "", errors.E(errors.KindReference, op, fmt.Sprintf("unknown owner %q", acronym))
	}
	if err != nil {
		return "", err
	}
	o.ids[acronym] = id
	return id, nil
}

// upsertIP upserts the (ip, organization) pair and returns its id, or nil
// when ip is absent.
func (s *Syncer) upsertIP(ctx context.Context, ip *string, orgID string) (*string, error) {
	if ip == nil {
		return nil, nil
	}
	id, err := s.store.Upsert(ctx, &model.Ip{IP: ip, OrganizationID: model.Ptr(orgID)})
	if err != nil {
		return nil, err
	}
	return &id, nil
}

// upsertCve makes sure a Cve row exists for name and returns its id, or
// nil when name is absent. Existing CVE details are left untouched.
func (s *Syncer) upsertCve(ctx context.Context, name *string) (*string, error) {
	if name == nil {
		return nil, nil
	}
	id, err := s.store.Upsert(ctx, &model.Cve{Name: name})
	if err != nil {
		return nil, err
	}
	return &id, nil
}
