// Package badgerstore implements store.Store on top of BadgerDB.
//
// Badger transactions are serializable snapshot transactions: every key read inside
// Transact is tracked, and a commit fails with badger.ErrConflict when another
// transaction committed a write to one of those keys in the meantime. That is what
// keeps two terminals from deducting the same ingredient stock twice.
package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"

	"cafepos/pkg/store"
)

// Config holds configuration for a BadgerDB instance.
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in RAM; used by tests and demo runs.
	InMemory bool

	// SyncWrites fsyncs every commit.
	SyncWrites bool

	// Logger receives BadgerDB's internal messages. Nil disables them.
	Logger *slog.Logger

	// GCInterval is how often value log GC runs. Zero disables it.
	GCInterval time.Duration

	// GCDiscardRatio is the minimum discardable ratio before a value log file is rewritten.
	GCDiscardRatio float64
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SyncWrites:     true,
		GCInterval:     5 * time.Minute,
		GCDiscardRatio: 0.5,
	}
}

// InMemoryConfig returns a configuration for tests.
func InMemoryConfig() Config {
	return Config{InMemory: true}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is a badger-backed document store.
type Store struct {
	db     *badger.DB
	stopGC chan struct{}
	gcDone chan struct{}
	logger *slog.Logger
}

var _ store.Store = (*Store)(nil)

// Open opens the database described by cfg and starts value log GC when configured.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent database")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create database directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.WithSyncWrites(cfg.SyncWrites).WithNumVersionsToKeep(1)
	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Store{db: db, logger: logger}
	if cfg.GCInterval > 0 && !cfg.InMemory {
		s.stopGC = make(chan struct{})
		s.gcDone = make(chan struct{})
		go s.runGC(cfg.GCInterval, cfg.GCDiscardRatio)
	}
	return s, nil
}

// OpenInMemory opens an in-memory store. Data is lost on Close.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

func (s *Store) runGC(interval time.Duration, ratio float64) {
	defer close(s.gcDone)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.stopGC:
			return
		case <-ticker.C:
			// ErrNoRewrite only means there was nothing worth collecting.
			if err := s.db.RunValueLogGC(ratio); err != nil && !errors.Is(err, badger.ErrNoRewrite) {
				s.logger.Warn("badger value log GC error", slog.String("error", err.Error()))
			}
		}
	}
}

// Get returns the committed value of one document.
func (s *Store) Get(ctx context.Context, c store.Collection, id string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = get(txn, c, id)
		return err
	})
	return out, err
}

// Query iterates a collection prefix and returns matching documents in key order.
func (s *Store) Query(ctx context.Context, c store.Collection, pred store.Predicate) ([]store.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	prefix := store.Prefix(c)
	var docs []store.Document
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = prefix
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			id := string(item.Key()[len(prefix):])
			data, err := item.ValueCopy(nil)
			if err != nil {
				return fmt.Errorf("read %s/%s: %w", c, id, err)
			}
			if pred == nil || pred(id, data) {
				docs = append(docs, store.Document{ID: id, Data: data})
			}
		}
		return nil
	})
	return docs, err
}

// Transact runs fn inside a read-write badger transaction.
func (s *Store) Transact(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&tx{txn: txn}); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return store.ErrConflict
		}
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// AppendLog stores record under a time-ordered unique key.
func (s *Store) AppendLog(ctx context.Context, c store.Collection, record []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id := fmt.Sprintf("%020d-%s", time.Now().UTC().UnixNano(), uuid.NewString())
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(store.Key(c, id), record)
	})
}

// Close stops GC and closes the database.
func (s *Store) Close() error {
	if s.stopGC != nil {
		close(s.stopGC)
		<-s.gcDone
	}
	return s.db.Close()
}

// tx adapts a badger transaction to store.Txn.
type tx struct {
	txn *badger.Txn
}

func (t *tx) Get(c store.Collection, id string) ([]byte, error) {
	return get(t.txn, c, id)
}

func (t *tx) Set(c store.Collection, id string, data []byte) error {
	return t.txn.Set(store.Key(c, id), data)
}

func (t *tx) Delete(c store.Collection, id string) error {
	return t.txn.Delete(store.Key(c, id))
}

func get(txn *badger.Txn, c store.Collection, id string) ([]byte, error) {
	item, err := txn.Get(store.Key(c, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, fmt.Errorf("%s/%s: %w", c, id, store.ErrNotFound)
		}
		return nil, err
	}
	return item.ValueCopy(nil)
}
