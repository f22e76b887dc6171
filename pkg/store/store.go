package store

import (
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/go-jose/go-jose/v4/json"
	"github.com/puzpuzpuz/xsync/v4"
	"go.uber.org/zap"
)

// Store is the keyed record store shared by the governance engine and the
// delegation registry. Records are JSON documents in badger; every public
// operation runs as one all-or-nothing badger transaction, and a per-key
// lock table serializes operations that touch the same entity so
// read-then-write checks (already voted, cap not exceeded) never observe
// a torn prior state.
type Store struct {
	logger *zap.Logger
	db     *badger.DB
	locks  *xsync.Map[string, *sync.Mutex]
}

// Open opens (or creates) a store at dir.
func Open(logger *zap.Logger, dir string) (*Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open store at %s: %w", dir, err)
	}
	logger.Info("store opened", zap.String("dir", dir))
	return newStore(logger, db), nil
}

// OpenInMemory opens a store that lives only for the process lifetime.
// Used by tests and by deployments that treat the service as a cache in
// front of an external ledger.
func OpenInMemory(logger *zap.Logger) (*Store, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory store: %w", err)
	}
	return newStore(logger, db), nil
}

func newStore(logger *zap.Logger, db *badger.DB) *Store {
	return &Store{
		logger: logger.With(zap.String("module", "store")),
		db:     db,
		locks:  xsync.NewMap[string, *sync.Mutex](),
	}
}

// Close closes the underlying badger database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Txn exposes JSON get/set/delete on top of a badger transaction.
type Txn struct {
	txn *badger.Txn
}

// Get unmarshals the record at key into out. The boolean is false when the
// key is absent (out is left untouched).
func (t *Txn) Get(key string, out any) (bool, error) {
	item, err := t.txn.Get([]byte(key))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

// Set marshals v and writes it at key.
func (t *Txn) Set(key string, v any) error {
	val, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := t.txn.Set([]byte(key), val); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

// Delete removes the record at key. Deleting an absent key is a no-op.
func (t *Txn) Delete(key string) error {
	if err := t.txn.Delete([]byte(key)); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}

// View runs fn in a read-only transaction.
func (s *Store) View(fn func(*Txn) error) error {
	return s.db.View(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}

// Update runs fn in a read-write transaction while holding the locks for
// the named entity keys. Locks are acquired in sorted order so concurrent
// operations over overlapping key sets cannot deadlock. If fn returns an
// error nothing is committed.
func (s *Store) Update(keys []string, fn func(*Txn) error) error {
	sorted := make([]string, len(keys))
	copy(sorted, keys)
	sort.Strings(sorted)
	sorted = slices.Compact(sorted)
	for _, key := range sorted {
		mu, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
		mu.Lock()
		defer mu.Unlock()
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return fn(&Txn{txn: txn})
	})
}
