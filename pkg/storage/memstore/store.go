// Package memstore is an in-memory document store whose state is owned by a single
// goroutine. Every read and commit travels through a channel, so the store needs no
// mutexes, and optimistic transactions are validated against per-document versions.
package memstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"

	"cafepos/pkg/store"
)

// record keeps a document together with the version assigned at its last commit.
type record struct {
	data    []byte
	version uint64
}

// snapshot is written to disk after each commit so the store survives restarts.
type snapshot struct {
	Collections map[store.Collection]map[string]json.RawMessage `json:"collections"`
}

// command models every operation executed against the store goroutine.
type command struct {
	action     string
	collection store.Collection
	id         string
	pred       store.Predicate
	data       []byte
	reads      map[string]uint64
	writes     map[string]*write
	reply      chan result
}

// write is a buffered transaction mutation; a nil data slice deletes the document.
type write struct {
	collection store.Collection
	id         string
	data       []byte
}

// result transfers a document, a query result, or an error back to the caller.
type result struct {
	data    []byte
	version uint64
	docs    []store.Document
	err     error
}

// Store is the channel-serialized in-memory store.
type Store struct {
	commands        chan command
	closed          chan struct{}
	done            chan struct{}
	persistDone     chan struct{}
	persistRequests chan snapshot
	collections     map[store.Collection]map[string]record
	clock           uint64
	snapshotPath    string
	timeout         time.Duration
}

var _ store.Store = (*Store)(nil)

// New creates a store, loading the snapshot at path when it exists. An empty path keeps
// everything in memory only.
func New(path string) (*Store, error) {
	loaded, err := readSnapshot(path)
	if err != nil {
		return nil, err
	}
	s := &Store{
		// A small buffer keeps bootstrap writes from blocking before the goroutine spins up.
		commands:        make(chan command, 32),
		closed:          make(chan struct{}),
		done:            make(chan struct{}),
		persistDone:     make(chan struct{}),
		persistRequests: make(chan snapshot, 1),
		collections:     make(map[store.Collection]map[string]record),
		snapshotPath:    path,
		timeout:         2 * time.Second,
	}
	if loaded != nil {
		for c, docs := range loaded.Collections {
			for id, data := range docs {
				s.clock++
				s.bucket(c)[id] = record{data: []byte(data), version: s.clock}
			}
		}
	}
	go s.loop()
	go s.persistenceLoop()
	return s, nil
}

// loop serializes every read and commit.
func (s *Store) loop() {
	defer close(s.done)
	for {
		select {
		case cmd := <-s.commands:
			switch cmd.action {
			case "get":
				rec, ok := s.bucket(cmd.collection)[cmd.id]
				if !ok {
					cmd.reply <- result{err: fmt.Errorf("%s/%s: %w", cmd.collection, cmd.id, store.ErrNotFound)}
					continue
				}
				cmd.reply <- result{data: cloneBytes(rec.data), version: rec.version}
			case "query":
				cmd.reply <- result{docs: s.query(cmd.collection, cmd.pred)}
			case "commit":
				cmd.reply <- result{err: s.commit(cmd.reads, cmd.writes)}
			case "append":
				s.clock++
				id := fmt.Sprintf("%020d-%010d-%s", time.Now().UTC().UnixNano(), s.clock, uuid.NewString()[:8])
				s.bucket(cmd.collection)[id] = record{data: cloneBytes(cmd.data), version: s.clock}
				s.queuePersist()
				cmd.reply <- result{}
			default:
				cmd.reply <- result{err: fmt.Errorf("unsupported action %s", cmd.action)}
			}
		case <-s.closed:
			return
		}
	}
}

// commit validates the read set and applies all writes, or nothing.
func (s *Store) commit(reads map[string]uint64, writes map[string]*write) error {
	for key, seen := range reads {
		c, id := splitKey(key)
		if s.bucket(c)[id].version != seen {
			return store.ErrConflict
		}
	}
	if len(writes) == 0 {
		return nil
	}
	for _, w := range writes {
		if w.data == nil {
			delete(s.bucket(w.collection), w.id)
			continue
		}
		s.clock++
		s.bucket(w.collection)[w.id] = record{data: cloneBytes(w.data), version: s.clock}
	}
	s.queuePersist()
	return nil
}

func (s *Store) query(c store.Collection, pred store.Predicate) []store.Document {
	bucket := s.bucket(c)
	ids := make([]string, 0, len(bucket))
	for id := range bucket {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	docs := make([]store.Document, 0, len(ids))
	for _, id := range ids {
		data := bucket[id].data
		if pred == nil || pred(id, data) {
			docs = append(docs, store.Document{ID: id, Data: cloneBytes(data)})
		}
	}
	return docs
}

func (s *Store) bucket(c store.Collection) map[string]record {
	b, ok := s.collections[c]
	if !ok {
		b = make(map[string]record)
		s.collections[c] = b
	}
	return b
}

// persistenceLoop writes snapshots asynchronously so the main loop stays responsive.
func (s *Store) persistenceLoop() {
	defer close(s.persistDone)
	for {
		select {
		case snap := <-s.persistRequests:
			_ = writeSnapshot(s.snapshotPath, snap)
		case <-s.closed:
			return
		}
	}
}

// queuePersist hands the current state to the background writer without blocking.
func (s *Store) queuePersist() {
	if s.snapshotPath == "" {
		return
	}
	snap := s.snapshot()
	select {
	case s.persistRequests <- snap:
	default:
		select {
		case <-s.persistRequests:
		default:
		}
		s.persistRequests <- snap
	}
}

func (s *Store) snapshot() snapshot {
	snap := snapshot{Collections: make(map[store.Collection]map[string]json.RawMessage, len(s.collections))}
	for c, bucket := range s.collections {
		docs := make(map[string]json.RawMessage, len(bucket))
		for id, rec := range bucket {
			docs[id] = json.RawMessage(cloneBytes(rec.data))
		}
		snap.Collections[c] = docs
	}
	return snap
}

// send enqueues cmd and waits for the reply, honoring ctx and the store timeout.
func (s *Store) send(ctx context.Context, cmd command) (result, error) {
	cmd.reply = make(chan result, 1)
	select {
	case s.commands <- cmd:
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-s.done:
		return result{}, store.ErrClosed
	case <-time.After(s.timeout):
		return result{}, errors.New("memstore queue is busy")
	}
	select {
	case res := <-cmd.reply:
		return res, res.err
	case <-ctx.Done():
		return result{}, ctx.Err()
	case <-s.done:
		return result{}, store.ErrClosed
	}
}

// Get returns the committed document.
func (s *Store) Get(ctx context.Context, c store.Collection, id string) ([]byte, error) {
	res, err := s.send(ctx, command{action: "get", collection: c, id: id})
	return res.data, err
}

// Query returns matching documents sorted by id.
func (s *Store) Query(ctx context.Context, c store.Collection, pred store.Predicate) ([]store.Document, error) {
	res, err := s.send(ctx, command{action: "query", collection: c, pred: pred})
	return res.docs, err
}

// Transact runs fn against a buffered transaction and commits it optimistically.
func (s *Store) Transact(ctx context.Context, fn func(store.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("context cancelled: %w", err)
	}
	t := &tx{ctx: ctx, store: s, reads: map[string]uint64{}, writes: map[string]*write{}}
	if err := fn(t); err != nil {
		return err
	}
	if t.err != nil {
		return t.err
	}
	_, err := s.send(ctx, command{action: "commit", reads: t.reads, writes: t.writes})
	return err
}

// AppendLog inserts an audit record.
func (s *Store) AppendLog(ctx context.Context, c store.Collection, data []byte) error {
	_, err := s.send(ctx, command{action: "append", collection: c, data: data})
	return err
}

// Close stops the goroutines and writes a final snapshot.
func (s *Store) Close() error {
	select {
	case <-s.closed:
		return nil
	default:
	}
	close(s.closed)
	<-s.done
	<-s.persistDone
	return writeSnapshot(s.snapshotPath, s.snapshot())
}

// tx buffers writes and records the version of every document it reads.
type tx struct {
	ctx    context.Context
	store  *Store
	reads  map[string]uint64
	writes map[string]*write
	err    error
}

func (t *tx) Get(c store.Collection, id string) ([]byte, error) {
	key := string(store.Key(c, id))
	if w, ok := t.writes[key]; ok {
		if w.data == nil {
			return nil, fmt.Errorf("%s/%s: %w", c, id, store.ErrNotFound)
		}
		return cloneBytes(w.data), nil
	}
	res, err := t.store.send(t.ctx, command{action: "get", collection: c, id: id})
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			if _, seen := t.reads[key]; !seen {
				t.reads[key] = 0
			}
			return nil, err
		}
		t.err = err
		return nil, err
	}
	if seen, ok := t.reads[key]; ok && seen != res.version {
		// A second read observed a newer commit; the transaction can no longer be serialized.
		t.err = store.ErrConflict
		return nil, store.ErrConflict
	}
	t.reads[key] = res.version
	return res.data, nil
}

func (t *tx) Set(c store.Collection, id string, data []byte) error {
	t.writes[string(store.Key(c, id))] = &write{collection: c, id: id, data: cloneBytes(data)}
	return nil
}

func (t *tx) Delete(c store.Collection, id string) error {
	t.writes[string(store.Key(c, id))] = &write{collection: c, id: id}
	return nil
}

func splitKey(key string) (store.Collection, string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '/' {
			return store.Collection(key[:i]), key[i+1:]
		}
	}
	return store.Collection(key), ""
}

// readSnapshot loads the persisted JSON file if it exists.
func readSnapshot(path string) (*snapshot, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

// writeSnapshot persists the state through a temp file and rename.
func writeSnapshot(path string, snap snapshot) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return err
	}
	temp := path + ".tmp"
	if err := os.WriteFile(temp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(temp, path)
}

func cloneBytes(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
