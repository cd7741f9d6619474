package docstore

import (
	"context"
	"maps"
	"sync"
	"time"
)

// Memstore is an in-process Store with watch semantics, used by tests and
// by single-machine development where broker and client share a process.
//
// Thread-safety: all methods are safe for concurrent use. Events for one
// document are emitted under the same lock that applied the mutation, so
// per-document ordering matches mutation order.
type Memstore struct {
	mu          sync.Mutex
	collections map[string]map[string]Document
	watchers    map[string][]*memWatcher
}

type memWatcher struct {
	ctx context.Context
	ch  chan Event
}

// NewMemstore creates an empty in-memory store.
func NewMemstore() *Memstore {
	return &Memstore{
		collections: make(map[string]map[string]Document),
		watchers:    make(map[string][]*memWatcher),
	}
}

// Create implements Store.
func (m *Memstore) Create(_ context.Context, collection, id string, data map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	if coll == nil {
		coll = make(map[string]Document)
		m.collections[collection] = coll
	}
	if _, ok := coll[id]; ok {
		return ErrExists
	}

	doc := Document{
		ID:         id,
		Data:       cloneData(data),
		CreateTime: time.Now().UTC(),
	}
	doc.Data["created_at"] = doc.CreateTime
	coll[id] = doc

	m.notifyLocked(collection, Event{Kind: EventAdded, Doc: cloneDoc(doc)})
	return nil
}

// Get implements Store.
func (m *Memstore) Get(_ context.Context, collection, id string) (Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	doc, ok := m.collections[collection][id]
	if !ok {
		return Document{}, ErrNotFound
	}
	return cloneDoc(doc), nil
}

// Update implements Store.
func (m *Memstore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	doc, ok := coll[id]
	if !ok {
		return ErrNotFound
	}

	maps.Copy(doc.Data, cloneData(fields))
	coll[id] = doc

	m.notifyLocked(collection, Event{Kind: EventModified, Doc: cloneDoc(doc)})
	return nil
}

// Delete implements Store. Deleting an absent document is a no-op.
func (m *Memstore) Delete(_ context.Context, collection, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	coll := m.collections[collection]
	doc, ok := coll[id]
	if !ok {
		return nil
	}
	delete(coll, id)

	m.notifyLocked(collection, Event{Kind: EventRemoved, Doc: cloneDoc(doc)})
	return nil
}

// Watch implements Store. Existing documents are replayed as EventAdded
// before live events, so a late subscriber sees the full backlog.
func (m *Memstore) Watch(ctx context.Context, collection string) (<-chan Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	// Buffer sized generously: the single-writer consumer drains quickly,
	// and a full buffer would otherwise drop events.
	w := &memWatcher{ctx: ctx, ch: make(chan Event, 256)}
	m.watchers[collection] = append(m.watchers[collection], w)

	for _, doc := range m.collections[collection] {
		w.send(Event{Kind: EventAdded, Doc: cloneDoc(doc)})
	}

	go func() {
		<-ctx.Done()
		m.mu.Lock()
		defer m.mu.Unlock()
		live := m.watchers[collection][:0]
		for _, other := range m.watchers[collection] {
			if other != w {
				live = append(live, other)
			}
		}
		m.watchers[collection] = live
		close(w.ch)
	}()

	return w.ch, nil
}

func (m *Memstore) notifyLocked(collection string, ev Event) {
	for _, w := range m.watchers[collection] {
		w.send(ev)
	}
}

func (w *memWatcher) send(ev Event) {
	if w.ctx.Err() != nil {
		return
	}
	select {
	case w.ch <- ev:
	default:
		// Watcher stopped draining; dropping is preferable to blocking
		// every writer on one stuck consumer.
	}
}

func cloneData(data map[string]any) map[string]any {
	out := make(map[string]any, len(data))
	maps.Copy(out, data)
	return out
}

func cloneDoc(doc Document) Document {
	return Document{
		ID:         doc.ID,
		Data:       cloneData(doc.Data),
		CreateTime: doc.CreateTime,
	}
}
