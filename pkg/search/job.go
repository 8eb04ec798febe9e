package search

import (
	"context"
	"time"

	"github.com/exploopio/lakesync/pkg/chunk"
	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/retry"
)

// Source is the relational data the jobs project. *store.Store
// implements it.
type Source interface {
	ChangedIDs(ctx context.Context, table string) ([]string, error)
	MarkSynced(ctx context.Context, table string, ids []string) error
	ResetSynced(ctx context.Context, table string) error

	OrganizationsByIDs(ctx context.Context, ids []string) ([]model.Organization, error)
	CidrsByOrganization(ctx context.Context, orgIDs []string) (map[string][]model.Cidr, error)
	SectorAcronymsByOrganization(ctx context.Context, orgIDs []string) (map[string][]string, error)
	DomainsByIDs(ctx context.Context, ids []string) ([]model.Domain, error)
	WebpagesByIDs(ctx context.Context, ids []string) ([]model.Webpage, error)
}

// JobConfig configures a sync job.
type JobConfig struct {
	// Index overrides the default index name.
	Index string

	// Chunk controls chunk size, per-chunk retries and rate limiting.
	// Default: chunk.DefaultConfig()
	Chunk *chunk.Config

	// Policy replaces the retry policy derived from Chunk.
	Policy *retry.Policy

	Logger  logging.Logger
	Metrics metrics.Collector
}

// Result reports one job run.
type Result struct {
	Index      string        `json:"index"`
	Candidates int           `json:"candidates"`
	Documents  int           `json:"documents"`
	Chunks     int           `json:"chunks"`
	Retries    int           `json:"retries"`
	Duration   time.Duration `json:"duration"`
}

// table is one source table projected into the job's index.
type table struct {
	name  string
	build func(ctx context.Context, ids []string) ([]Document, error)
}

// Job syncs changed rows of one or more tables into one index.
type Job struct {
	name    string
	index   string
	mapping Mapping
	tables  []table

	backend Backend
	source  Source
	chunk   *chunk.Config
	policy  *retry.Policy
	logger  logging.Logger
	metrics metrics.Collector
}

func newJob(name, defaultIndex string, mapping Mapping, b Backend, src Source, cfg *JobConfig) *Job {
	if cfg == nil {
		cfg = &JobConfig{}
	}
	j := &Job{
		name:    name,
		index:   cfg.Index,
		mapping: mapping,
		backend: b,
		source:  src,
		chunk:   cfg.Chunk,
		policy:  cfg.Policy,
		logger:  logging.OrNop(cfg.Logger),
		metrics: metrics.OrNop(cfg.Metrics),
	}
	if j.index == "" {
		j.index = defaultIndex
	}
	if j.chunk == nil {
		j.chunk = chunk.DefaultConfig()
	}
	return j
}

// NewOrganizationJob syncs organizations into the organizations index.
func NewOrganizationJob(b Backend, src Source, cfg *JobConfig) *Job {
	j := newJob("organizations", DefaultOrganizationsIndex, OrganizationsMapping(), b, src, cfg)
	j.tables = []table{{name: model.TableOrganizations, build: j.organizationDocuments}}
	return j
}

// NewDomainJob syncs domains, then their webpages, into the domains index.
func NewDomainJob(b Backend, src Source, cfg *JobConfig) *Job {
	j := newJob("domains", DefaultDomainsIndex, DomainsMapping(), b, src, cfg)
	j.tables = []table{
		{name: model.TableDomains, build: j.domainDocuments},
		{name: model.TableWebpages, build: j.webpageDocuments},
	}
	return j
}

// Name returns the job name.
func (j *Job) Name() string { return j.name }

// Index returns the target index.
func (j *Job) Index() string { return j.index }

// Run syncs the index schema, then every row changed since its last sync.
// Chunks run one at a time; a chunk that exhausts its retries fails the
// run and chunks committed before it stay committed.
func (j *Job) Run(ctx context.Context) (*Result, error) {
	const op = "search.Job.Run"

	start := time.Now()
	res := &Result{Index: j.index}

	if err := j.backend.SyncIndex(ctx, j.index, j.mapping); err != nil {
		res.Duration = time.Since(start)
		return res, errors.Wrap(err, op)
	}
	for _, t := range j.tables {
		if err := j.syncTable(ctx, t, res); err != nil {
			res.Duration = time.Since(start)
			return res, errors.Wrap(err, op)
		}
	}

	res.Duration = time.Since(start)
	j.logger.Info("%s index sync: %d candidates, %d documents in %d chunks (%d retries) in %s",
		j.index, res.Candidates, res.Documents, res.Chunks, res.Retries, res.Duration.Round(time.Millisecond))
	return res, nil
}

// Rebuild deletes the index, marks every row unsynced and runs the job.
func (j *Job) Rebuild(ctx context.Context) (*Result, error) {
	const op = "search.Job.Rebuild"

	j.logger.Info("rebuilding %s index", j.index)
	if err := j.backend.DeleteIndex(ctx, j.index); err != nil {
		return nil, errors.Wrap(err, op)
	}
	for _, t := range j.tables {
		if err := j.source.ResetSynced(ctx, t.name); err != nil {
			return nil, errors.Wrap(err, op)
		}
	}
	return j.Run(ctx)
}

func (j *Job) syncTable(ctx context.Context, t table, res *Result) error {
	ids, err := j.source.ChangedIDs(ctx, t.name)
	if err != nil {
		return err
	}
	res.Candidates += len(ids)
	j.metrics.GaugeSet(metrics.IndexPendingDocuments.Name, float64(len(ids)), "index", j.index)
	if len(ids) == 0 {
		return nil
	}

	runner := chunk.NewRunner[string](j.chunk, j.logger)
	if j.policy != nil {
		runner.SetPolicy(j.policy)
	}
	runner.SetCallbacks(
		func(_ chunk.Chunk[string], elapsed time.Duration) {
			j.metrics.CounterInc(metrics.IndexChunksTotal.Name, "index", j.index, "status", "committed")
			j.metrics.HistogramObserve(metrics.IndexChunkDuration.Name, elapsed.Seconds(), "index", j.index)
		},
		func(_ chunk.Chunk[string], _ int, _ error) {
			j.metrics.CounterInc(metrics.IndexRetriesTotal.Name, "index", j.index)
		},
	)

	progress, err := runner.Run(ctx, ids, func(ctx context.Context, c chunk.Chunk[string]) error {
		docs, err := t.build(ctx, c.Items)
		if err != nil {
			return err
		}
		if err := j.backend.BulkUpsert(ctx, j.index, docs); err != nil {
			return err
		}
		if err := j.source.MarkSynced(ctx, t.name, c.Items); err != nil {
			return err
		}
		res.Documents += len(docs)
		j.metrics.CounterAdd(metrics.IndexDocumentsTotal.Name, float64(len(docs)), "index", j.index)
		return nil
	})
	res.Chunks += progress.CompletedChunks
	res.Retries += progress.Retries
	if err != nil {
		j.metrics.CounterInc(metrics.IndexChunksTotal.Name, "index", j.index, "status", "failed")
		return err
	}
	return nil
}

func (j *Job) organizationDocuments(ctx context.Context, ids []string) ([]Document, error) {
	orgs, err := j.source.OrganizationsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	cidrs, err := j.source.CidrsByOrganization(ctx, ids)
	if err != nil {
		return nil, err
	}
	sectors, err := j.source.SectorAcronymsByOrganization(ctx, ids)
	if err != nil {
		return nil, err
	}

	docs := make([]OrganizationDocument, 0, len(orgs))
	for _, org := range orgs {
		docs = append(docs, NewOrganizationDocument(org, cidrs[org.ID], sectors[org.ID]))
	}
	return Documents(docs, func(d OrganizationDocument) string { return d.ID }), nil
}

func (j *Job) domainDocuments(ctx context.Context, ids []string) ([]Document, error) {
	domains, err := j.source.DomainsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	docs := make([]DomainDocument, 0, len(domains))
	for _, d := range domains {
		docs = append(docs, NewDomainDocument(d))
	}
	return Documents(docs, func(d DomainDocument) string { return d.ID }), nil
}

func (j *Job) webpageDocuments(ctx context.Context, ids []string) ([]Document, error) {
	pages, err := j.source.WebpagesByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	docs := make([]Document, 0, len(pages))
	for _, p := range pages {
		doc, ok := NewWebpageDocument(p)
		if !ok {
			j.logger.Warn("webpage %s has no domain, not indexing it", p.ID)
			continue
		}
		docs = append(docs, Document{ID: doc.ID, Routing: doc.DomainID, Body: doc})
	}
	return docs, nil
}
