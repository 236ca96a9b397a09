package storage

import "strconv"

// Key builders for the KV layout fixed by the external interface: a
// collection's metadata lives under "col:<name>", and each document's
// three payloads live under "<tag>:<coll_id>:<doc_id>" with decimal-ASCII
// ids. These are used verbatim by both the registry (col:) and the engine
// (vec:/meta:/content:), so they are centralized here rather than
// duplicated at each call site.

// CollectionKey builds the key under which a collection's metadata JSON
// is stored.
func CollectionKey(name string) []byte {
	return []byte("col:" + name)
}

// CollectionPrefix is the prefix iterated to recover all persisted
// collections on startup.
func CollectionPrefix() []byte {
	return []byte("col:")
}

// VectorKey builds the key under which a document's encoded embedding is
// stored.
func VectorKey(collID, docID uint64) []byte {
	return docKey("vec", collID, docID)
}

// VectorPrefix is the prefix iterated to recover all vectors for a
// collection on index rebuild.
func VectorPrefix(collID uint64) []byte {
	return []byte("vec:" + strconv.FormatUint(collID, 10) + ":")
}

// MetadataKey builds the key under which a document's metadata string is
// stored.
func MetadataKey(collID, docID uint64) []byte {
	return docKey("meta", collID, docID)
}

// ContentKey builds the key under which a document's content string is
// stored.
func ContentKey(collID, docID uint64) []byte {
	return docKey("content", collID, docID)
}

func docKey(tag string, collID, docID uint64) []byte {
	return []byte(tag + ":" + strconv.FormatUint(collID, 10) + ":" + strconv.FormatUint(docID, 10))
}

// ParseDocIDFromVectorKey extracts the doc_id decimal suffix from a key
// produced by VectorKey, for use while rebuilding an index from a
// VectorPrefix scan.
func ParseDocIDFromVectorKey(key []byte) (uint64, bool) {
	s := string(key)
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == ':' {
			id, err := strconv.ParseUint(s[i+1:], 10, 64)
			if err != nil {
				return 0, false
			}
			return id, true
		}
	}
	return 0, false
}
