package search

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/chunk"
	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
	"github.com/exploopio/lakesync/pkg/retry"
	"github.com/exploopio/lakesync/pkg/severity"
	"github.com/exploopio/lakesync/pkg/store"
)

// memBackend is an in-memory Backend. failures[n] is returned by the n-th
// BulkUpsert call (1-based).
type memBackend struct {
	mu sync.Mutex

	synced   []string
	deleted  []string
	docs     map[string]map[string]Document
	calls    int
	failures map[int]error
	syncErr  error
}

func newMemBackend() *memBackend {
	return &memBackend{docs: make(map[string]map[string]Document), failures: make(map[int]error)}
}

func (b *memBackend) SyncIndex(_ context.Context, index string, _ Mapping) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.syncErr != nil {
		return b.syncErr
	}
	b.synced = append(b.synced, index)
	return nil
}

func (b *memBackend) BulkUpsert(_ context.Context, index string, docs []Document) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls++
	if err := b.failures[b.calls]; err != nil {
		return err
	}
	if b.docs[index] == nil {
		b.docs[index] = make(map[string]Document)
	}
	for _, d := range docs {
		b.docs[index][d.ID] = d
	}
	return nil
}

func (b *memBackend) DeleteIndex(_ context.Context, index string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = append(b.deleted, index)
	delete(b.docs, index)
	return nil
}

func (b *memBackend) Ping(context.Context) error { return nil }

func bulkFailure(ids ...string) error {
	bulkErr := &errors.BulkError{Index: "organizations"}
	for _, id := range ids {
		bulkErr.Failures = append(bulkErr.Failures, errors.BulkFailure{DocumentID: id, Status: 503})
	}
	return bulkErr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	cfg := store.DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "index.db")
	st, err := store.Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

// seedOrganizations persists ACME, BETA and GAMMA. ACME owns 10.0.0.0/24
// and belongs to the ENERGY sector.
func seedOrganizations(t *testing.T, st *store.Store) map[string]string {
	t.Helper()
	ctx := context.Background()

	ids := make(map[string]string)
	for _, acronym := range []string{"ACME", "BETA", "GAMMA"} {
		id, err := st.Upsert(ctx, &model.Organization{Acronym: model.Ptr(acronym), Name: model.Ptr(acronym + " Corp")})
		require.NoError(t, err)
		ids[acronym] = id
	}

	cidrID, err := st.Upsert(ctx, &model.Cidr{Network: model.Ptr("10.0.0.0/24")})
	require.NoError(t, err)
	require.NoError(t, st.LinkCidr(ctx, cidrID, ids["ACME"]))

	sectorID, err := st.Upsert(ctx, &model.Sector{Acronym: model.Ptr("ENERGY")})
	require.NoError(t, err)
	require.NoError(t, st.AddSectorMembers(ctx, sectorID, []string{ids["ACME"]}))
	return ids
}

func fastPolicy(attempts int) *retry.Policy {
	return &retry.Policy{
		MaxAttempts: attempts,
		Backoff:     &retry.BackoffConfig{BaseInterval: time.Millisecond, MaxInterval: time.Millisecond},
	}
}

func jobConfig(size int, collector metrics.Collector) *JobConfig {
	return &JobConfig{
		Chunk:   &chunk.Config{Size: size},
		Policy:  fastPolicy(3),
		Metrics: collector,
	}
}

func TestOrganizationJob_SyncsChangedRows(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	ids := seedOrganizations(t, st)
	backend := newMemBackend()
	collector := metrics.NewInMemoryCollector()

	job := NewOrganizationJob(backend, st, jobConfig(2, collector))
	assert.Equal(t, DefaultOrganizationsIndex, job.Index())

	res, err := job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Candidates)
	assert.Equal(t, 3, res.Documents)
	assert.Equal(t, 2, res.Chunks)
	assert.Equal(t, []string{"organizations"}, backend.synced)

	doc, ok := backend.docs["organizations"][ids["ACME"]].Body.(OrganizationDocument)
	require.True(t, ok)
	assert.Equal(t, "ACME", *doc.Acronym)
	assert.Equal(t, []string{"ENERGY"}, doc.Sectors)
	assert.Equal(t, []string{"10.0.0.0/24"}, doc.Networks)
	assert.Equal(t, float64(254), doc.NetworkAssets)
	assert.Equal(t, []string{"ACME", "ACME Corp"}, doc.Suggest.Input)

	assert.Equal(t, float64(2), collector.GetCounter(metrics.IndexChunksTotal.Name, "index", "organizations", "status", "committed"))
	assert.Equal(t, float64(3), collector.GetCounter(metrics.IndexDocumentsTotal.Name, "index", "organizations"))

	// Nothing changed since the last run.
	res, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Candidates)
	assert.Equal(t, 2, backend.calls)

	time.Sleep(5 * time.Millisecond)
	_, err = st.Upsert(ctx, &model.Organization{Acronym: model.Ptr("BETA"), Retired: model.Ptr(true)})
	require.NoError(t, err)

	res, err = job.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	beta := backend.docs["organizations"][ids["BETA"]].Body.(OrganizationDocument)
	assert.True(t, *beta.Retired)
}

func TestJob_RetriesWholeChunk(t *testing.T) {
	st := newTestStore(t)
	seedOrganizations(t, st)
	backend := newMemBackend()
	backend.failures[1] = bulkFailure("x")
	collector := metrics.NewInMemoryCollector()

	res, err := NewOrganizationJob(backend, st, jobConfig(10, collector)).Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Retries)
	assert.Equal(t, 1, res.Chunks)
	assert.Len(t, backend.docs["organizations"], 3)
	assert.Equal(t, 2, backend.calls)
	assert.Equal(t, float64(1), collector.GetCounter(metrics.IndexRetriesTotal.Name, "index", "organizations"))
}

func TestJob_ExhaustedRetriesKeepCommittedChunks(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedOrganizations(t, st)
	backend := newMemBackend()
	for call := 2; call <= 4; call++ {
		backend.failures[call] = bulkFailure("y")
	}
	collector := metrics.NewInMemoryCollector()

	res, err := NewOrganizationJob(backend, st, jobConfig(2, collector)).Run(ctx)
	require.Error(t, err)
	_, isBulk := errors.IsBulkError(err)
	assert.True(t, isBulk)
	assert.Equal(t, 1, res.Chunks)
	assert.Equal(t, 2, res.Documents)
	assert.Equal(t, 4, backend.calls)
	assert.Equal(t, float64(1), collector.GetCounter(metrics.IndexChunksTotal.Name, "index", "organizations", "status", "failed"))

	// The committed chunk is not resent.
	pending, err := st.ChangedIDs(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	res, err = NewOrganizationJob(backend, st, jobConfig(2, nil)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Candidates)
	assert.Len(t, backend.docs["organizations"], 3)
}

func TestJob_NonRetryableErrorFailsImmediately(t *testing.T) {
	st := newTestStore(t)
	seedOrganizations(t, st)
	backend := newMemBackend()
	backend.failures[1] = errors.E(errors.KindInvalidInput, "test", "bad document")

	_, err := NewOrganizationJob(backend, st, jobConfig(10, nil)).Run(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
	assert.Equal(t, 1, backend.calls)
}

func TestJob_SyncIndexFailureStopsRun(t *testing.T) {
	st := newTestStore(t)
	seedOrganizations(t, st)
	backend := newMemBackend()
	backend.syncErr = errors.E(errors.KindIndex, "test", "cluster unavailable")

	_, err := NewOrganizationJob(backend, st, jobConfig(10, nil)).Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, 0, backend.calls)
}

func TestJob_RebuildConverges(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	seedOrganizations(t, st)
	backend := newMemBackend()
	job := NewOrganizationJob(backend, st, &JobConfig{Index: "orgs-v2", Chunk: &chunk.Config{Size: 50}, Policy: fastPolicy(3)})

	_, err := job.Run(ctx)
	require.NoError(t, err)

	res, err := job.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"orgs-v2"}, backend.deleted)
	assert.Equal(t, 3, res.Candidates)
	assert.Len(t, backend.docs["orgs-v2"], 3)
}

func TestDomainJob_RoutesWebpagesToTheirDomain(t *testing.T) {
	ctx := context.Background()
	st := newTestStore(t)
	backend := newMemBackend()

	domainID, err := st.Upsert(ctx, &model.Domain{
		Name:            model.Ptr("www.acme.example"),
		Vulnerabilities: model.JSON(`[{"cve": "CVE-2021-44228", "cvss": 10.0}, {"severity": "medium"}, {"severity": 3}]`),
	})
	require.NoError(t, err)
	pageID, err := st.Upsert(ctx, &model.Webpage{
		URL:      model.Ptr("https://www.acme.example/"),
		DomainID: model.Ptr(domainID),
		Body:     model.Ptr("<html>hello</html>"),
	})
	require.NoError(t, err)

	res, err := NewDomainJob(backend, st, jobConfig(50, nil)).Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Candidates)
	assert.Equal(t, 2, res.Documents)

	docs := backend.docs[DefaultDomainsIndex]
	domain := docs[domainID].Body.(DomainDocument)
	assert.Equal(t, Join{Name: RelationDomain}, domain.ParentJoin)
	assert.Equal(t, severity.Critical, domain.HighestSeverity)
	assert.Equal(t, 3, domain.SeverityCounts.Total)
	assert.Equal(t, 1, domain.SeverityCounts.High)
	assert.Equal(t, "", docs[domainID].Routing)

	page := docs[pageID]
	assert.Equal(t, domainID, page.Routing)
	assert.Equal(t, Join{Name: RelationWebpage, Parent: domainID}, page.Body.(WebpageDocument).ParentJoin)
}

func TestNewOrganizationDocument(t *testing.T) {
	doc := NewOrganizationDocument(
		model.Organization{ID: "o1", Acronym: model.Ptr("ACME")},
		[]model.Cidr{
			{Network: model.Ptr("2001:db8::/126")},
			{Network: model.Ptr("192.0.2.1")},
			{},
		},
		nil,
	)
	assert.Equal(t, []string{"192.0.2.1", "2001:db8::/126"}, doc.Networks)
	assert.Equal(t, float64(5), doc.NetworkAssets)
	assert.Equal(t, []string{"ACME"}, doc.Suggest.Input)
}

func TestNewWebpageDocument_RequiresDomain(t *testing.T) {
	_, ok := NewWebpageDocument(model.Webpage{ID: "p1", URL: model.Ptr("https://x.example/")})
	assert.False(t, ok)
}
