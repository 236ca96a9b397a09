// Package engine implements the public facade described by the core spec:
// create/list/get collection, add single/batch document, search. It
// enforces the dimension and metric invariants and owns the lock-ordering
// discipline (registry -> entry.meta -> entry.index -> KV).
package engine

import (
	"fmt"
	"runtime"
	"strconv"
	"sync"

	"github.com/vectordb/vectordb/pkg/codec"
	"github.com/vectordb/vectordb/pkg/collection"
	"github.com/vectordb/vectordb/pkg/idalloc"
	"github.com/vectordb/vectordb/pkg/metric"
	"github.com/vectordb/vectordb/pkg/registry"
	"github.com/vectordb/vectordb/pkg/storage"
)

// Engine is the in-process core: a collection registry backed by a
// persistent KV store, with the invariants and concurrency discipline
// described by the core spec layered on top.
type Engine struct {
	registry *registry.Registry
	store    storage.KVStore
	ids      *idalloc.Allocator
}

// Open constructs an Engine over store, recovering any collections and
// indices persisted by a previous run.
func Open(store storage.KVStore) (*Engine, error) {
	ids := idalloc.New()
	reg := registry.New(store, ids)
	if err := reg.Load(); err != nil {
		return nil, newError(KindStorage, fmt.Sprintf("recover collections: %v", err))
	}
	return &Engine{registry: reg, store: store, ids: ids}, nil
}

// CreateCollection parses metricName and registers a new, empty
// collection.
func (e *Engine) CreateCollection(name, metricName string, dim int) (collection.Meta, error) {
	m, ok := metric.Parse(metricName)
	if !ok {
		return collection.Meta{}, newError(KindBadMetric, fmt.Sprintf("unknown metric %q", metricName))
	}

	meta, err := e.registry.CreateCollection(name, m, dim)
	if err != nil {
		if err == registry.ErrDuplicate {
			return collection.Meta{}, newError(KindDuplicate, fmt.Sprintf("collection %q already exists", name))
		}
		return collection.Meta{}, newError(KindStorage, err.Error())
	}
	return meta, nil
}

// GetCollectionByName returns a single collection's metadata.
func (e *Engine) GetCollectionByName(name string) (collection.Meta, error) {
	meta, err := e.registry.GetCollectionByName(name)
	if err != nil {
		return collection.Meta{}, newError(KindCollectionNotFound, fmt.Sprintf("collection %q not found", name))
	}
	return meta, nil
}

// ListCollections returns every registered collection's metadata.
func (e *Engine) ListCollections() []collection.Meta {
	return e.registry.ListCollections()
}

// AddDocument adds a single document to collectionName. If idOpt is nil, an
// id is minted from the allocator. Returns the document's id.
func (e *Engine) AddDocument(collectionName string, idOpt *uint64, embedding []float32, metadata, content string) (uint64, error) {
	entry, err := e.registry.Lookup(collectionName)
	if err != nil {
		return 0, newError(KindCollectionNotFound, fmt.Sprintf("collection %q not found", collectionName))
	}

	meta := entry.Meta()
	if len(embedding) != meta.Dim {
		return 0, newError(KindDimensionMismatch,
			fmt.Sprintf("embedding has %d dimensions, collection %q expects %d", len(embedding), collectionName, meta.Dim))
	}

	var docID uint64
	if idOpt != nil {
		docID = *idOpt
	} else {
		docID = e.ids.Next()
	}

	ops := []storage.KVOp{
		{Key: storage.VectorKey(meta.ID, docID), Value: codec.EncodeEmbedding(embedding)},
		{Key: storage.MetadataKey(meta.ID, docID), Value: []byte(metadata)},
		{Key: storage.ContentKey(meta.ID, docID), Value: []byte(content)},
	}
	if err := e.store.WriteBatch(ops); err != nil {
		return 0, newError(KindStorage, fmt.Sprintf("persist document: %v", err))
	}

	if err := entry.Index.Insert(docID, embedding); err != nil {
		return 0, newError(KindStorage, fmt.Sprintf("index insert: %v", err))
	}
	entry.IncrementDocCount()

	return docID, nil
}

// DocumentInput is one document within an AddDocuments batch.
type DocumentInput struct {
	ID        *uint64
	Embedding []float32
	Metadata  string
	Content   string
}

// BatchItem is the per-document outcome of AddDocuments.
type BatchItem struct {
	ID    uint64
	Err   string
	Input DocumentInput
}

// AddDocuments validates that the collection exists and that docs is
// non-empty, then adds every document via AddDocument, fanning chunks of
// work out across goroutines. Results preserve input order. Errors are
// per-document and do not abort the rest of the batch: documents that
// succeed remain persisted even when others in the same call fail.
func (e *Engine) AddDocuments(collectionName string, docs []DocumentInput) ([]BatchItem, error) {
	if _, err := e.registry.Lookup(collectionName); err != nil {
		return nil, newError(KindCollectionNotFound, fmt.Sprintf("collection %q not found", collectionName))
	}
	if len(docs) == 0 {
		return nil, newError(KindEmptyBatch, "add_documents called with zero documents")
	}

	results := make([]BatchItem, len(docs))

	parallelism := runtime.GOMAXPROCS(0)
	chunkSize := len(docs) / parallelism
	if chunkSize < 1 {
		chunkSize = 1
	}

	var wg sync.WaitGroup
	for start := 0; start < len(docs); start += chunkSize {
		end := start + chunkSize
		if end > len(docs) {
			end = len(docs)
		}

		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			for i := start; i < end; i++ {
				doc := docs[i]
				id, err := e.AddDocument(collectionName, doc.ID, doc.Embedding, doc.Metadata, doc.Content)
				item := BatchItem{ID: id, Input: doc}
				if err != nil {
					item.Err = documentLabel(doc) + " failed: " + err.Error()
				}
				results[i] = item
			}
		}(start, end)
	}
	wg.Wait()

	return results, nil
}

func documentLabel(doc DocumentInput) string {
	if doc.ID != nil {
		return "doc id " + strconv.FormatUint(*doc.ID, 10)
	}
	return "doc id auto"
}

// SearchHit is one result row returned by Search.
type SearchHit struct {
	ID       uint64
	Distance float64
	Metadata string
	Content  string
}

// Search runs a k-NN query against collectionName and hydrates each hit's
// metadata/content from the KV store. A missing payload (index/KV skew)
// yields an empty string rather than failing the whole query.
func (e *Engine) Search(collectionName string, query []float32, k int) ([]SearchHit, error) {
	entry, err := e.registry.Lookup(collectionName)
	if err != nil {
		return nil, newError(KindCollectionNotFound, fmt.Sprintf("collection %q not found", collectionName))
	}

	meta := entry.Meta()
	if len(query) != meta.Dim {
		return nil, newError(KindDimensionMismatch,
			fmt.Sprintf("query has %d dimensions, collection %q expects %d", len(query), collectionName, meta.Dim))
	}

	raw, err := entry.Index.Search(query, k)
	if err != nil {
		return nil, newError(KindStorage, fmt.Sprintf("ann search: %v", err))
	}

	hits := make([]SearchHit, len(raw))
	for i, r := range raw {
		hits[i] = SearchHit{
			ID:       r.ID,
			Distance: r.Distance,
			Metadata: e.readStringOrEmpty(storage.MetadataKey(meta.ID, r.ID)),
			Content:  e.readStringOrEmpty(storage.ContentKey(meta.ID, r.ID)),
		}
	}
	return hits, nil
}

func (e *Engine) readStringOrEmpty(key []byte) string {
	val, err := e.store.Get(key)
	if err != nil {
		return ""
	}
	return string(val)
}

// Stats summarizes engine-wide runtime state for the /api/v1/stats
// endpoint.
type Stats struct {
	Collections     int
	TotalDocuments  uint64
	MemoryAllocMB   float64
	MemorySystemMB  float64
}

// Stats computes a snapshot across every registered collection.
func (e *Engine) Stats() Stats {
	metas := e.registry.ListCollections()

	var total uint64
	for _, meta := range metas {
		total += meta.DocCount
	}

	var m runtime.MemStats
	runtime.ReadMemStats(&m)

	return Stats{
		Collections:    len(metas),
		TotalDocuments: total,
		MemoryAllocMB:  float64(m.Alloc) / (1 << 20),
		MemorySystemMB: float64(m.Sys) / (1 << 20),
	}
}
