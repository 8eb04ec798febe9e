// Package linker rebuilds the organization hierarchy and sector membership
// from adjacency lists collected during an organization sync.
//
// Links are append-only: an edge already present is left as is and no edge
// is ever removed. Acronyms that do not resolve to a persisted row are
// skipped and counted, never treated as errors.
package linker

import (
	"context"
	"sort"

	"github.com/exploopio/lakesync/pkg/errors"
	"github.com/exploopio/lakesync/pkg/logging"
	"github.com/exploopio/lakesync/pkg/metrics"
)

// Relations reported in metrics.
const (
	RelationParentChild  = "parent_child"
	RelationSectorMember = "sector_member"
)

// Graph is the persisted hierarchy the linker appends to.
// *store.Store implements it.
type Graph interface {
	// ParentChildren returns the id of the organization with the acronym
	// and the ids of its current children. A missing organization is a
	// not-found error.
	ParentChildren(ctx context.Context, acronym string) (string, []string, error)
	AddChildren(ctx context.Context, parentID string, childIDs []string) error

	// SectorMembers returns the organization ids of a sector. A missing
	// sector is a not-found error.
	SectorMembers(ctx context.Context, sectorID string) ([]string, error)
	AddSectorMembers(ctx context.Context, sectorID string, orgIDs []string) error
}

// Result counts the edges considered by a link call.
type Result struct {
	Linked        int `json:"linked"`
	AlreadyLinked int `json:"already_linked"`
	Unresolved    int `json:"unresolved"`
}

// Add accumulates other into r.
func (r *Result) Add(other Result) {
	r.Linked += other.Linked
	r.AlreadyLinked += other.AlreadyLinked
	r.Unresolved += other.Unresolved
}

// Options configures a Linker.
type Options struct {
	Logger  logging.Logger
	Metrics metrics.Collector
}

// Linker appends hierarchy edges to a Graph.
type Linker struct {
	graph   Graph
	logger  logging.Logger
	metrics metrics.Collector
}

// New creates a Linker.
func New(graph Graph, opts *Options) *Linker {
	if opts == nil {
		opts = &Options{}
	}
	return &Linker{
		graph:   graph,
		logger:  logging.OrNop(opts.Logger),
		metrics: metrics.OrNop(opts.Metrics),
	}
}

// LinkChildren links every parent to its children. ids maps organization
// acronyms to row ids; parents maps a parent acronym to child acronyms.
func (l *Linker) LinkChildren(ctx context.Context, ids map[string]string, parents map[string][]string) (Result, error) {
	const op = "linker.LinkChildren"

	var total Result
	for _, parent := range sortedKeys(parents) {
		if err := ctx.Err(); err != nil {
			return total, errors.E(errors.KindTimeout, op, err)
		}

		children := parents[parent]
		parentID, existing, err := l.graph.ParentChildren(ctx, parent)
		if errors.IsNotFoundError(err) {
			l.logger.Debug("parent %s not found, skipping %d children", parent, len(children))
			total.Unresolved += len(children)
			l.count(RelationParentChild, "unresolved", len(children))
			continue
		}
		if err != nil {
			return total, errors.Wrap(err, op)
		}

		res, add := l.resolve(RelationParentChild, parent, parentID, children, ids, existing)
		if err := l.graph.AddChildren(ctx, parentID, add); err != nil {
			return total, errors.Wrap(err, op)
		}
		total.Add(res)
	}
	return total, nil
}

// LinkSectors adds organizations to sectors. members maps a sector id to
// organization acronyms.
func (l *Linker) LinkSectors(ctx context.Context, ids map[string]string, members map[string][]string) (Result, error) {
	const op = "linker.LinkSectors"

	var total Result
	for _, sectorID := range sortedKeys(members) {
		if err := ctx.Err(); err != nil {
			return total, errors.E(errors.KindTimeout, op, err)
		}

		orgs := members[sectorID]
		existing, err := l.graph.SectorMembers(ctx, sectorID)
		if errors.IsNotFoundError(err) {
			l.logger.Debug("sector %s not found, skipping %d members", sectorID, len(orgs))
			total.Unresolved += len(orgs)
			l.count(RelationSectorMember, "unresolved", len(orgs))
			continue
		}
		if err != nil {
			return total, errors.Wrap(err, op)
		}

		res, add := l.resolve(RelationSectorMember, sectorID, "", orgs, ids, existing)
		if err := l.graph.AddSectorMembers(ctx, sectorID, add); err != nil {
			return total, errors.Wrap(err, op)
		}
		total.Add(res)
	}
	return total, nil
}

// resolve translates acronyms to ids and drops those already linked.
// selfID, when set, is never linked to itself.
func (l *Linker) resolve(relation, owner, selfID string, acronyms []string, ids map[string]string, existing []string) (Result, []string) {
	seen := make(map[string]struct{}, len(existing)+len(acronyms))
	for _, id := range existing {
		seen[id] = struct{}{}
	}

	var (
		res Result
		add []string
	)
	for _, acronym := range acronyms {
		id, ok := ids[acronym]
		if !ok || id == "" || id == selfID {
			l.logger.Debug("%s %s: %s does not resolve, skipping", relation, owner, acronym)
			res.Unresolved++
			continue
		}
		if _, dup := seen[id]; dup {
			res.AlreadyLinked++
			continue
		}
		seen[id] = struct{}{}
		add = append(add, id)
	}
	res.Linked = len(add)

	l.count(relation, "linked", res.Linked)
	l.count(relation, "already_linked", res.AlreadyLinked)
	l.count(relation, "unresolved", res.Unresolved)
	return res, add
}

func (l *Linker) count(relation, status string, n int) {
	if n > 0 {
		l.metrics.CounterAdd(metrics.LinkerEdgesTotal.Name, float64(n), "relation", relation, "status", status)
	}
}

func sortedKeys(m map[string][]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
