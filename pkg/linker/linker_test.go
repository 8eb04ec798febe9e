package linker

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/metrics"
)

// memGraph is an in-memory Graph.
type memGraph struct {
	mu       sync.Mutex
	acronyms map[string]string   // acronym -> id
	children map[string][]string // parent id -> child ids
	sectors  map[string][]string // sector id -> org ids
	failAdd  error
}

func newMemGraph() *memGraph {
	return &memGraph{
		acronyms: map[string]string{},
		children: map[string][]string{},
		sectors:  map[string][]string{},
	}
}

func (g *memGraph) ParentChildren(_ context.Context, acronym string) (string, []string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	id, ok := g.acronyms[acronym]
	if !ok {
		return "", nil, errors.E(errors.KindNotFound, "memGraph.ParentChildren", acronym)
	}
	return id, append([]string(nil), g.children[id]...), nil
}

func (g *memGraph) AddChildren(_ context.Context, parentID string, childIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.failAdd != nil {
		return g.failAdd
	}
	g.children[parentID] = append(g.children[parentID], childIDs...)
	return nil
}

func (g *memGraph) SectorMembers(_ context.Context, sectorID string) ([]string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	members, ok := g.sectors[sectorID]
	if !ok {
		return nil, errors.E(errors.KindNotFound, "memGraph.SectorMembers", sectorID)
	}
	return append([]string(nil), members...), nil
}

func (g *memGraph) AddSectorMembers(_ context.Context, sectorID string, orgIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.sectors[sectorID] = append(g.sectors[sectorID], orgIDs...)
	return nil
}

func TestLinkChildren_DedupAcrossRuns(t *testing.T) {
	g := newMemGraph()
	g.acronyms["PARENT"] = "p"
	ids := map[string]string{"PARENT": "p", "CHILD1": "c1", "CHILD2": "c2"}
	parents := map[string][]string{"PARENT": {"CHILD1", "CHILD2"}}

	collector := metrics.NewInMemoryCollector()
	l := New(g, &Options{Metrics: collector})

	res, err := l.LinkChildren(context.Background(), ids, parents)
	require.NoError(t, err)
	assert.Equal(t, Result{Linked: 2}, res)
	assert.Equal(t, []string{"c1", "c2"}, g.children["p"])

	res, err = l.LinkChildren(context.Background(), ids, parents)
	require.NoError(t, err)
	assert.Equal(t, Result{AlreadyLinked: 2}, res)
	assert.Equal(t, []string{"c1", "c2"}, g.children["p"], "second run must not duplicate")

	assert.Equal(t, float64(2), collector.GetCounter(metrics.LinkerEdgesTotal.Name,
		"relation", RelationParentChild, "status", "linked"))
	assert.Equal(t, float64(2), collector.GetCounter(metrics.LinkerEdgesTotal.Name,
		"relation", RelationParentChild, "status", "already_linked"))
}

func TestLinkChildren_AppendOnly(t *testing.T) {
	g := newMemGraph()
	g.acronyms["PARENT"] = "p"
	g.children["p"] = []string{"old"}

	l := New(g, nil)
	res, err := l.LinkChildren(context.Background(),
		map[string]string{"CHILD1": "c1"},
		map[string][]string{"PARENT": {"CHILD1"}})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Linked)
	assert.Equal(t, []string{"old", "c1"}, g.children["p"])
}

func TestLinkChildren_SkipsUnresolved(t *testing.T) {
	g := newMemGraph()
	g.acronyms["PARENT"] = "p"

	l := New(g, nil)
	res, err := l.LinkChildren(context.Background(),
		map[string]string{"PARENT": "p", "CHILD1": "c1"},
		map[string][]string{
			"PARENT":  {"CHILD1", "GHOST", "CHILD1", "PARENT"},
			"NOWHERE": {"CHILD1", "CHILD2"},
		})
	require.NoError(t, err)
	assert.Equal(t, Result{Linked: 1, AlreadyLinked: 1, Unresolved: 4}, res)
	assert.Equal(t, []string{"c1"}, g.children["p"])
}

func TestLinkChildren_StoreError(t *testing.T) {
	g := newMemGraph()
	g.acronyms["PARENT"] = "p"
	g.failAdd = errors.E(errors.KindStore, "memGraph.AddChildren", "disk full")

	_, err := New(g, nil).LinkChildren(context.Background(),
		map[string]string{"CHILD1": "c1"},
		map[string][]string{"PARENT": {"CHILD1"}})
	require.Error(t, err)
	assert.Equal(t, errors.KindStore, errors.GetKind(err))
}

func TestLinkChildren_Cancelled(t *testing.T) {
	g := newMemGraph()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(g, nil).LinkChildren(ctx, nil, map[string][]string{"PARENT": {"CHILD1"}})
	require.Error(t, err)
}

func TestLinkSectors(t *testing.T) {
	g := newMemGraph()
	g.sectors["s-energy"] = []string{"o1"}

	ids := map[string]string{"ORG1": "o1", "ORG2": "o2"}
	l := New(g, nil)

	res, err := l.LinkSectors(context.Background(), ids, map[string][]string{
		"s-energy":  {"ORG1", "ORG2", "ORG3"},
		"s-missing": {"ORG1"},
	})
	require.NoError(t, err)
	assert.Equal(t, Result{Linked: 1, AlreadyLinked: 1, Unresolved: 2}, res)
	assert.Equal(t, []string{"o1", "o2"}, g.sectors["s-energy"])
}

func TestWorker_Serializes(t *testing.T) {
	g := newMemGraph()
	for i := 0; i < 20; i++ {
		g.acronyms[fmt.Sprintf("P%d", i%2)] = fmt.Sprintf("p%d", i%2)
	}

	w := NewWorker(New(g, nil), nil)
	require.NoError(t, w.Start(context.Background()))

	ids := map[string]string{"C1": "c1", "C2": "c2", "C3": "c3"}
	parents := map[string][]string{"P0": {"C1", "C2"}, "P1": {"C3"}}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := w.LinkChildren(context.Background(), ids, parents)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, w.Stop(ctx))

	assert.ElementsMatch(t, []string{"c1", "c2"}, g.children["p0"])
	assert.Equal(t, []string{"c3"}, g.children["p1"])
	assert.Equal(t, int64(10), w.Stats().Completed)
}

func TestWorker_NotRunning(t *testing.T) {
	w := NewWorker(New(newMemGraph(), nil), nil)
	_, err := w.LinkSectors(context.Background(), nil, nil)
	assert.Error(t, err)

	require.NoError(t, w.Stop(context.Background()))
}
