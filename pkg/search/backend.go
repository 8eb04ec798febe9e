// Package search keeps the search index in step with the relational store.
//
// The relational store is the source of truth and the index a rebuildable
// projection: jobs read rows changed since their last sync, upsert them
// into the index in fixed-size chunks and stamp synced_at once a chunk is
// committed. Deleting the index and resetting synced_at always converges
// back to the store's state.
package search

import "context"

// Backend is a search cluster.
type Backend interface {
	// SyncIndex makes index match mapping. An existing index gets an
	// additive mapping update; a missing one is created with the mapping
	// plus a completion field and a bulk-load refresh interval.
	SyncIndex(ctx context.Context, index string, mapping Mapping) error

	// BulkUpsert writes docs as partial updates with doc_as_upsert. Any
	// rejected document fails the whole call with an error listing every
	// rejected id.
	BulkUpsert(ctx context.Context, index string, docs []Document) error

	// DeleteIndex removes index. A missing index is not an error.
	DeleteIndex(ctx context.Context, index string) error

	Ping(ctx context.Context) error
}

// Document is one index document addressed by a stable id.
type Document struct {
	ID string

	// Routing overrides the shard key. Child documents of a join relation
	// are routed by their parent id.
	Routing string

	Body any
}

// Documents addresses records by idFn.
func Documents[T any](records []T, idFn func(T) string) []Document {
	docs := make([]Document, 0, len(records))
	for _, r := range records {
		docs = append(docs, Document{ID: idFn(r), Body: r})
	}
	return docs
}
