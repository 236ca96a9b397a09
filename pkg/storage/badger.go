package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

// BadgerOptions configures the BadgerDB-backed KVStore.
type BadgerOptions struct {
	// DataDir is the directory Badger stores its LSM tree and value log in.
	// Created if it doesn't exist.
	DataDir string

	// InMemory runs Badger entirely in RAM. Useful for tests; data is lost
	// on Close.
	InMemory bool

	// SyncWrites forces an fsync after every write. Slower, more durable.
	SyncWrites bool

	// MemTableMB overrides the memtable size. Zero uses Badger's tuned
	// default below.
	MemTableMB int

	// ValueLogMB overrides the value-log file size. Zero uses the tuned
	// default below.
	ValueLogMB int

	// BlockCacheMB overrides the block cache size. Zero uses the tuned
	// default below.
	BlockCacheMB int

	// Logger receives Badger's internal log lines. Nil silences them.
	Logger badger.Logger
}

// BadgerStore is a KVStore backed by BadgerDB, an embedded LSM-tree engine.
type BadgerStore struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// OpenBadgerStore opens (creating if necessary) a Badger database at
// opts.DataDir with the given tuning knobs, falling back to defaults for
// anything left zero.
func OpenBadgerStore(opts BadgerOptions) (*BadgerStore, error) {
	badgerOpts := badger.DefaultOptions(opts.DataDir)

	if opts.InMemory {
		badgerOpts = badgerOpts.WithInMemory(true)
	}
	if opts.SyncWrites {
		badgerOpts = badgerOpts.WithSyncWrites(true)
	}
	badgerOpts = badgerOpts.WithLogger(opts.Logger)

	memTableMB := opts.MemTableMB
	if memTableMB == 0 {
		memTableMB = 16
	}
	valueLogMB := opts.ValueLogMB
	if valueLogMB == 0 {
		valueLogMB = 64
	}
	blockCacheMB := opts.BlockCacheMB
	if blockCacheMB == 0 {
		blockCacheMB = 32
	}

	badgerOpts = badgerOpts.
		WithMemTableSize(int64(memTableMB) << 20).
		WithValueLogFileSize(int64(valueLogMB) << 20).
		WithNumMemtables(2).
		WithNumLevelZeroTables(2).
		WithNumLevelZeroTablesStall(4).
		WithValueThreshold(1024).
		WithBlockCacheSize(int64(blockCacheMB) << 20).
		WithIndexCacheSize(16 << 20)

	db, err := badger.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("storage: open badger at %q: %w", opts.DataDir, err)
	}

	return &BadgerStore{db: db}, nil
}

// OpenBadgerStoreInMemory opens an in-memory Badger store, for tests.
func OpenBadgerStoreInMemory() (*BadgerStore, error) {
	return OpenBadgerStore(BadgerOptions{DataDir: "", InMemory: true})
}

func (s *BadgerStore) Put(key, value []byte) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, value)
	})
	if err != nil {
		return fmt.Errorf("storage: put: %w", err)
	}
	return nil
}

func (s *BadgerStore) WriteBatch(ops []KVOp) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		for _, op := range ops {
			if err := txn.Set(op.Key, op.Value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("storage: write batch: %w", err)
	}
	return nil
}

func (s *BadgerStore) Get(key []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			out = append([]byte(nil), val...)
			return nil
		})
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("storage: get: %w", err)
	}
	return out, nil
}

func (s *BadgerStore) IterPrefix(prefix []byte, fn func(key, value []byte) error) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}
	return s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			key := append([]byte(nil), item.Key()...)
			var callErr error
			valErr := item.Value(func(val []byte) error {
				callErr = fn(key, val)
				return nil
			})
			if valErr != nil {
				return valErr
			}
			if callErr != nil {
				return callErr
			}
		}
		return nil
	})
}

func (s *BadgerStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}
