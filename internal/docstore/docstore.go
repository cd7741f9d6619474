// Package docstore is the boundary to the mediating document store that
// carries request envelopes between processes.
//
// The broker and client stubs never talk to each other directly; they
// exchange documents through a shared, multi-writer store that supports
// atomic single-document create/update and a change feed per collection.
// The store's own wire protocol is out of scope here - this package only
// fixes the contract the rest of the system relies on.
//
// Two implementations ship: Firestore for production and an in-process
// Memstore for tests and single-machine development.
package docstore

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("docstore: document not found")

// ErrExists is returned by Create when the document id is already taken.
var ErrExists = errors.New("docstore: document already exists")

// Document is one stored record. Data holds the raw field map; CreateTime
// is assigned server-side on create.
type Document struct {
	ID         string
	Data       map[string]any
	CreateTime time.Time
}

// EventKind distinguishes change-feed event types.
type EventKind int

const (
	// EventAdded signals a newly created document.
	EventAdded EventKind = iota + 1
	// EventModified signals an update to an existing document.
	EventModified
	// EventRemoved signals a deletion.
	EventRemoved
)

// Event is one change observed on a watched collection.
type Event struct {
	Kind EventKind
	Doc  Document
}

// Store is the mediating-store contract consumed by the broker and the
// client stub.
//
// Ordering: events for a single document are delivered in the order its
// mutations were applied; no ordering is guaranteed across documents.
// Watch must replay documents that already exist at subscription time as
// EventAdded, so a broker that restarts drains the backlog it missed.
type Store interface {
	// Create stores a new document under id. The store assigns the
	// document's create timestamp. Returns ErrExists on id collision.
	Create(ctx context.Context, collection, id string, data map[string]any) error

	// Get fetches a document by id. Returns ErrNotFound if absent.
	Get(ctx context.Context, collection, id string) (Document, error)

	// Update applies a partial field update atomically. Fields not named
	// are left untouched. Returns ErrNotFound if the document is absent.
	Update(ctx context.Context, collection, id string, fields map[string]any) error

	// Delete removes a document. Deleting an absent document is not an
	// error; only one party ever deletes and a duplicate delete is benign.
	Delete(ctx context.Context, collection, id string) error

	// Watch subscribes to changes on a collection. The returned channel
	// closes when ctx is cancelled or the underlying stream fails.
	Watch(ctx context.Context, collection string) (<-chan Event, error)
}
