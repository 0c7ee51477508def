// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-docvault.
//
// go-docvault is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

// Package badger implements storage.Backend on BadgerDB.
//
// Writes go through Badger transactions, so the multi-key rewrite performed
// during passphrase rotation is applied atomically via PutBatch.
package badger

import (
	"errors"
	"fmt"
	"sync"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/jeremyhahn/go-docvault/pkg/storage"
)

// Options configures a Badger-backed store.
type Options struct {
	// Dir is the database directory. Ignored when InMemory is set.
	Dir string

	// InMemory keeps all data in memory. Intended for tests.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives Badger's internal log output. Nil keeps Badger quiet.
	Logger badgerdb.Logger
}

// BadgerStorage stores keys in a BadgerDB instance.
type BadgerStorage struct {
	db     *badgerdb.DB
	mu     sync.RWMutex
	closed bool
}

// New opens (or creates) a Badger database at dir with synchronous writes.
func New(dir string) (*BadgerStorage, error) {
	return NewWithOptions(Options{Dir: dir, SyncWrites: true})
}

// NewInMemory opens an in-memory Badger database.
func NewInMemory() (*BadgerStorage, error) {
	return NewWithOptions(Options{InMemory: true})
}

// NewWithOptions opens a Badger database with the given options.
func NewWithOptions(opts Options) (*BadgerStorage, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, fmt.Errorf("badger storage: directory cannot be empty")
	}

	dir := opts.Dir
	if opts.InMemory {
		dir = ""
	}

	badgerOpts := badgerdb.DefaultOptions(dir).
		WithInMemory(opts.InMemory).
		WithSyncWrites(opts.SyncWrites).
		WithLogger(opts.Logger).
		WithMemTableSize(16 << 20).
		WithValueLogFileSize(64 << 20).
		WithNumMemtables(2).
		WithBlockCacheSize(16 << 20).
		WithIndexCacheSize(8 << 20)

	db, err := badgerdb.Open(badgerOpts)
	if err != nil {
		return nil, fmt.Errorf("badger storage: failed to open database: %w", err)
	}

	return &BadgerStorage{db: db}, nil
}

// Get retrieves the value for the given key.
func (b *BadgerStorage) Get(key string) ([]byte, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	var value []byte
	err := b.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return storage.ErrNotFound
		}
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("badger storage: failed to read key %q: %w", key, err)
	}
	return value, nil
}

// Put stores the value for the given key.
func (b *BadgerStorage) Put(key string, value []byte, opts *storage.Options) error {
	return b.PutBatch(map[string][]byte{key: value}, opts)
}

// PutBatch writes every entry in a single transaction.
func (b *BadgerStorage) PutBatch(entries map[string][]byte, opts *storage.Options) error {
	if err := b.checkOpen(); err != nil {
		return err
	}
	for key := range entries {
		if key == "" {
			return storage.ErrInvalidKey
		}
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		for key, value := range entries {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger storage: failed to write: %w", err)
	}
	return nil
}

// Delete removes the key and its value from storage.
func (b *BadgerStorage) Delete(key string) error {
	if err := b.checkOpen(); err != nil {
		return err
	}

	err := b.db.Update(func(txn *badgerdb.Txn) error {
		if _, err := txn.Get([]byte(key)); err != nil {
			if errors.Is(err, badgerdb.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("badger storage: failed to delete key %q: %w", key, err)
	}
	return err
}

// List returns all keys with the given prefix in lexical order.
func (b *BadgerStorage) List(prefix string) ([]string, error) {
	if err := b.checkOpen(); err != nil {
		return nil, err
	}

	keys := make([]string, 0)
	err := b.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("badger storage: failed to list keys: %w", err)
	}
	return keys, nil
}

// Exists checks if a key exists in storage.
func (b *BadgerStorage) Exists(key string) (bool, error) {
	_, err := b.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Close closes the underlying database.
func (b *BadgerStorage) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	return b.db.Close()
}

func (b *BadgerStorage) checkOpen() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return storage.ErrClosed
	}
	return nil
}

var (
	_ storage.Backend     = (*BadgerStorage)(nil)
	_ storage.BatchWriter = (*BadgerStorage)(nil)
)
