// Package registry maps collection names to their shared entries, and
// owns persistence/recovery of collection metadata.
package registry

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/vectordb/vectordb/pkg/codec"
	"github.com/vectordb/vectordb/pkg/collection"
	"github.com/vectordb/vectordb/pkg/idalloc"
	"github.com/vectordb/vectordb/pkg/metric"
	"github.com/vectordb/vectordb/pkg/storage"
)

// ErrDuplicate is returned by CreateCollection when the name is already
// registered.
var ErrDuplicate = errors.New("registry: collection already exists")

// ErrNotFound is returned when a collection name has no registered entry.
var ErrNotFound = errors.New("registry: collection not found")

// Registry maps collection name to its shared Entry, under a single
// reader/writer lock. CreateCollection and Load take the write lock; every
// other operation takes a read lock just long enough to clone the entry
// reference, per the core's lock-ordering discipline.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*collection.Entry

	store storage.KVStore
	ids   *idalloc.Allocator
}

// New constructs an empty registry backed by store, minting ids from ids.
func New(store storage.KVStore, ids *idalloc.Allocator) *Registry {
	return &Registry{
		entries: make(map[string]*collection.Entry),
		store:   store,
		ids:     ids,
	}
}

// CreateCollection registers a new collection. The disk put is performed
// before the in-memory insert; if it fails, no in-memory entry is ever
// observable, which is the atomicity property the core spec requires.
func (r *Registry) CreateCollection(name string, m metric.Metric, dim int) (collection.Meta, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return collection.Meta{}, ErrDuplicate
	}

	meta := collection.Meta{
		ID:     r.ids.Next(),
		Name:   name,
		Dim:    dim,
		Metric: m,
	}

	data, err := json.Marshal(meta)
	if err != nil {
		return collection.Meta{}, fmt.Errorf("registry: marshal metadata: %w", err)
	}
	if err := r.store.Put(storage.CollectionKey(name), data); err != nil {
		return collection.Meta{}, fmt.Errorf("registry: persist collection %q: %w", name, err)
	}

	r.entries[name] = collection.NewEntry(meta)
	return meta, nil
}

// Lookup returns the shared entry for name, for use by the engine facade.
// The registry lock is released before the caller does any real work with
// the returned pointer.
func (r *Registry) Lookup(name string) (*collection.Entry, error) {
	r.mu.RLock()
	entry, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return entry, nil
}

// GetCollectionByName returns a metadata snapshot for name.
func (r *Registry) GetCollectionByName(name string) (collection.Meta, error) {
	entry, err := r.Lookup(name)
	if err != nil {
		return collection.Meta{}, err
	}
	return entry.Meta(), nil
}

// ListCollections returns a snapshot of every registered collection's
// metadata. Ordering is unspecified.
func (r *Registry) ListCollections() []collection.Meta {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]collection.Meta, 0, len(r.entries))
	for _, entry := range r.entries {
		out = append(out, entry.Meta())
	}
	return out
}

// Load recovers persisted collections from the KV store on startup: every
// "col:" key is deserialized into an entry with a freshly rebuilt index
// (by replaying its "vec:<coll_id>:*" keys), and the id allocator is
// advanced past every collection and document id observed so that newly
// minted ids cannot collide with recovered ones.
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var metas []collection.Meta
	err := r.store.IterPrefix(storage.CollectionPrefix(), func(key, value []byte) error {
		var meta collection.Meta
		if err := json.Unmarshal(value, &meta); err != nil {
			return fmt.Errorf("registry: corrupt collection metadata at %s: %w", key, err)
		}
		metas = append(metas, meta)
		return nil
	})
	if err != nil {
		return err
	}

	for _, meta := range metas {
		entry := collection.NewEntry(meta)
		r.ids.AdvancePast(meta.ID)

		err := r.store.IterPrefix(storage.VectorPrefix(meta.ID), func(key, value []byte) error {
			docID, ok := storage.ParseDocIDFromVectorKey(key)
			if !ok {
				return nil
			}
			vec, err := codec.DecodeEmbedding(value)
			if err != nil {
				// A corrupt stored embedding is skipped, not fatal to recovery.
				return nil
			}
			if err := entry.Index.Insert(docID, vec); err != nil {
				return nil
			}
			// The persisted metadata is written once at creation, so the
			// document count is rebuilt from the recovered vectors.
			entry.IncrementDocCount()
			r.ids.AdvancePast(docID)
			return nil
		})
		if err != nil {
			return fmt.Errorf("registry: rebuild index for %q: %w", meta.Name, err)
		}

		r.entries[meta.Name] = entry
	}

	return nil
}
