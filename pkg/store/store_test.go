package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/metrics"
	"github.com/exploopio/lakesync/pkg/model"
)

func newTestStore(t *testing.T) (*Store, *metrics.InMemoryCollector) {
	t.Helper()

	collector := metrics.NewInMemoryCollector()
	cfg := DefaultConfig()
	cfg.DSN = filepath.Join(t.TempDir(), "test.db")

	s, err := Open(context.Background(), cfg, &Options{Metrics: collector})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	require.NoError(t, s.Migrate(context.Background()))
	return s, collector
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), Config{Driver: "oracle"}, nil)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestMigrate(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	version, err := s.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, len(migrations()), version)

	// Applying again is a no-op.
	require.NoError(t, s.Migrate(ctx))

	applied, err := s.AppliedMigrations(ctx)
	require.NoError(t, err)
	require.Len(t, applied, len(migrations()))
	assert.Equal(t, "core_schema", applied[0].Name)
}

func TestRollback(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Rollback(ctx, 1))
	version, err := s.CurrentVersion(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	_, err = s.Count(ctx, model.TableDomains)
	assert.Error(t, err, "domains table should be dropped")

	require.NoError(t, s.Migrate(ctx))
	n, err := s.Count(ctx, model.TableDomains)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.Error(t, s.Rollback(ctx, 99))
	assert.Error(t, s.Rollback(ctx, -1))
}

func TestUpsert_Idempotent(t *testing.T) {
	s, collector := newTestStore(t)
	ctx := context.Background()

	org := model.Organization{Acronym: model.Ptr("ACME"), Name: model.Ptr("Acme Corp")}

	id1, err := s.Upsert(ctx, org)
	require.NoError(t, err)
	require.NotEmpty(t, id1)

	id2, err := s.Upsert(ctx, org)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	n, err := s.Count(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.Equal(t, float64(2), collector.GetCounter(metrics.UpsertsTotal.Name,
		"table", model.TableOrganizations, "mode", string(ModeUpdate)))
}

func TestUpsert_NilNeverOverwrites(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_, err := s.Upsert(ctx, model.Organization{
		Acronym:     model.Ptr("ACME"),
		Name:        model.Ptr("Acme Corp"),
		Retired:     model.Ptr(false),
		ReportTypes: model.StringList{"CYHY"},
	})
	require.NoError(t, err)

	id, err := s.Upsert(ctx, model.Organization{
		Acronym: model.Ptr("ACME"),
		Retired: model.Ptr(true),
	})
	require.NoError(t, err)

	orgs, err := s.OrganizationsByIDs(ctx, []string{id})
	require.NoError(t, err)
	require.Len(t, orgs, 1)

	got := orgs[0]
	require.NotNil(t, got.Name)
	assert.Equal(t, "Acme Corp", *got.Name)
	require.NotNil(t, got.Retired)
	assert.True(t, *got.Retired)
	assert.Equal(t, model.StringList{"CYHY"}, got.ReportTypes)
}

func TestUpsert_IgnoreModeReturnsExistingID(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	first, mode, err := s.UpsertWithMode(ctx, model.Sector{Acronym: model.Ptr("ENERGY")})
	require.NoError(t, err)
	assert.Equal(t, ModeIgnore, mode)

	second, mode, err := s.UpsertWithMode(ctx, model.Sector{Acronym: model.Ptr("ENERGY")})
	require.NoError(t, err)
	assert.Equal(t, ModeIgnore, mode)
	assert.Equal(t, first, second)

	third, mode, err := s.UpsertWithMode(ctx, model.Sector{Acronym: model.Ptr("ENERGY"), Name: model.Ptr("Energy")})
	require.NoError(t, err)
	assert.Equal(t, ModeUpdate, mode)
	assert.Equal(t, first, third)
}

func TestUpsert_MissingNaturalKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		entity model.Entity
	}{
		{"nil acronym", model.Organization{Name: model.Ptr("No Key")}},
		{"blank acronym", model.Organization{Acronym: model.Ptr("  ")}},
		{"partial composite key", model.Ip{IP: model.Ptr("10.0.0.1")}},
		{"empty external id", model.VulnScan{Owner: model.Ptr("ACME")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Upsert(ctx, tt.entity)
			require.Error(t, err)
			assert.True(t, errors.IsInvalidInput(err))
		})
	}

	n, err := s.Count(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestUpsert_WritesIDBack(t *testing.T) {
	s, _ := newTestStore(t)

	loc := &model.Location{GnisID: model.Ptr("1702381"), Name: model.Ptr("Springfield")}
	id, err := s.Upsert(context.Background(), loc)
	require.NoError(t, err)
	assert.Equal(t, id, loc.ID)
}

func TestUpsert_CompositeKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	orgA, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("A")})
	require.NoError(t, err)
	orgB, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("B")})
	require.NoError(t, err)

	ipA, err := s.Upsert(ctx, model.Ip{IP: model.Ptr("10.0.0.1"), OrganizationID: &orgA, Live: model.Ptr(true)})
	require.NoError(t, err)
	ipB, err := s.Upsert(ctx, model.Ip{IP: model.Ptr("10.0.0.1"), OrganizationID: &orgB})
	require.NoError(t, err)
	again, err := s.Upsert(ctx, model.Ip{IP: model.Ptr("10.0.0.1"), OrganizationID: &orgA, Live: model.Ptr(false)})
	require.NoError(t, err)

	assert.NotEqual(t, ipA, ipB)
	assert.Equal(t, ipA, again)
}

func TestUpsert_CallerSuppliedKey(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Upsert(ctx, model.VulnScan{
		ID:            "5f9b1c2e8d3a4b0012345678",
		PluginName:    model.Ptr("OpenSSL"),
		Snapshots:     model.StringList{"s1"},
		OtherFindings: model.MustJSON(map[string]any{"extra": 1}),
	})
	require.NoError(t, err)
	assert.Equal(t, "5f9b1c2e8d3a4b0012345678", id)

	id, err = s.Upsert(ctx, model.VulnScan{ID: "5f9b1c2e8d3a4b0012345678", Severity: model.Ptr[int64](3)})
	require.NoError(t, err)
	assert.Equal(t, "5f9b1c2e8d3a4b0012345678", id)

	var row struct {
		PluginName string `db:"plugin_name"`
		Severity   int64  `db:"severity"`
	}
	require.NoError(t, s.DB().GetContext(ctx, &row, "SELECT plugin_name, severity FROM vuln_scans WHERE id = ?", id))
	assert.Equal(t, "OpenSSL", row.PluginName)
	assert.Equal(t, int64(3), row.Severity)
}

func TestUpsert_NilEntity(t *testing.T) {
	s, _ := newTestStore(t)

	var org *model.Organization
	_, err := s.Upsert(context.Background(), org)
	require.Error(t, err)
	assert.True(t, errors.IsInvalidInput(err))
}

func TestLookups(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	id, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("ACME")})
	require.NoError(t, err)

	got, err := s.OrganizationIDByAcronym(ctx, "ACME")
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = s.OrganizationIDByAcronym(ctx, "NOPE")
	require.Error(t, err)
	assert.True(t, errors.IsNotFoundError(err))

	_, err = s.Count(ctx, "users; DROP TABLE organizations")
	assert.True(t, errors.IsInvalidInput(err))
}

func TestHierarchy(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	parent, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("PARENT")})
	require.NoError(t, err)
	child1, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("CHILD1")})
	require.NoError(t, err)
	child2, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("CHILD2")})
	require.NoError(t, err)

	gotParent, children, err := s.ParentChildren(ctx, "PARENT")
	require.NoError(t, err)
	assert.Equal(t, parent, gotParent)
	assert.Empty(t, children)

	require.NoError(t, s.AddChildren(ctx, parent, []string{child1, child2}))

	_, children, err = s.ParentChildren(ctx, "PARENT")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{child1, child2}, children)

	_, _, err = s.ParentChildren(ctx, "MISSING")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestSectorMembers(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	sector, err := s.Upsert(ctx, model.Sector{Acronym: model.Ptr("ENERGY")})
	require.NoError(t, err)
	org, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("ACME")})
	require.NoError(t, err)

	require.NoError(t, s.AddSectorMembers(ctx, sector, []string{org}))
	require.NoError(t, s.AddSectorMembers(ctx, sector, []string{org}))

	members, err := s.SectorMembers(ctx, sector)
	require.NoError(t, err)
	assert.Equal(t, []string{org}, members)

	acronyms, err := s.SectorAcronymsByOrganization(ctx, []string{org})
	require.NoError(t, err)
	assert.Equal(t, []string{"ENERGY"}, acronyms[org])

	_, err = s.SectorMembers(ctx, "no-such-sector")
	assert.True(t, errors.IsNotFoundError(err))
}

func TestLinkCidr(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	org, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("ACME")})
	require.NoError(t, err)
	cidr, err := s.Upsert(ctx, model.Cidr{Network: model.Ptr("192.0.2.0/24"), StartIP: model.Ptr("192.0.2.0")})
	require.NoError(t, err)

	require.NoError(t, s.LinkCidr(ctx, cidr, org))
	require.NoError(t, s.LinkCidr(ctx, cidr, org))

	byOrg, err := s.CidrsByOrganization(ctx, []string{org})
	require.NoError(t, err)
	require.Len(t, byOrg[org], 1)
	assert.Equal(t, "192.0.2.0/24", *byOrg[org][0].Network)
}

func TestChangeTracking(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	a, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("A")})
	require.NoError(t, err)
	b, err := s.Upsert(ctx, model.Organization{Acronym: model.Ptr("B")})
	require.NoError(t, err)

	changed, err := s.ChangedIDs(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{a, b}, changed)

	require.NoError(t, s.MarkSynced(ctx, model.TableOrganizations, []string{a, b}))
	changed, err = s.ChangedIDs(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Empty(t, changed)

	time.Sleep(5 * time.Millisecond)
	_, err = s.Upsert(ctx, model.Organization{Acronym: model.Ptr("B"), Name: model.Ptr("Bee")})
	require.NoError(t, err)

	changed, err = s.ChangedIDs(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Equal(t, []string{b}, changed)

	require.NoError(t, s.ResetSynced(ctx, model.TableOrganizations))
	changed, err = s.ChangedIDs(ctx, model.TableOrganizations)
	require.NoError(t, err)
	assert.Len(t, changed, 2)

	_, err = s.ChangedIDs(ctx, model.TableCves)
	assert.True(t, errors.IsInvalidInput(err))
}
