// Package collection defines a collection's metadata and the handle that
// pairs it with its ANN index under the lock discipline the engine relies
// on.
package collection

import (
	"sync"

	"github.com/vectordb/vectordb/pkg/metric"
	"github.com/vectordb/vectordb/pkg/search"
)

// Meta is the persisted, JSON-serializable description of a collection.
// Name is unique across the registry; Dim and Metric are immutable after
// creation; DocCount only ever increases.
type Meta struct {
	ID       uint64        `json:"id"`
	Name     string        `json:"name"`
	Dim      int           `json:"dim"`
	Metric   metric.Metric `json:"metric"`
	DocCount uint64        `json:"doc_count"`
}

// Entry pairs a collection's metadata with its ANN index and guards both
// under locks, per the lock-ordering discipline: registry -> entry.meta ->
// entry.index -> KV.
type Entry struct {
	metaMu sync.Mutex
	meta   Meta

	Index *search.HNSWIndex
}

// NewEntry constructs an entry with a freshly built, empty ANN index sized
// for meta.Dim and meta.Metric.
func NewEntry(meta Meta) *Entry {
	return &Entry{
		meta:  meta,
		Index: search.NewHNSWIndex(meta.Dim, meta.Metric),
	}
}

// Meta returns a snapshot of the collection's metadata. The snapshot is
// taken under the meta lock but the lock is not held after it returns.
func (e *Entry) Meta() Meta {
	e.metaMu.Lock()
	defer e.metaMu.Unlock()
	return e.meta
}

// IncrementDocCount bumps DocCount by one under the meta lock. Must never
// be called while holding the index lock or performing KV I/O.
func (e *Entry) IncrementDocCount() {
	e.metaMu.Lock()
	e.meta.DocCount++
	e.metaMu.Unlock()
}
