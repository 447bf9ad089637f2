// Package store defines the transactional document store the POS engine runs against.
//
// Documents are opaque JSON blobs addressed by collection and id. Drivers live under
// pkg/storage and must give Transact serializable semantics: a transaction whose reads
// were invalidated by a concurrent commit fails with ErrConflict and writes nothing.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Collection names a group of documents.
type Collection string

// Collections referenced by the engine.
const (
	Products            Collection = "products"
	Ingredients         Collection = "ingredients"
	Recipes             Collection = "recipes"
	PendingOrders       Collection = "pending_orders"
	Sales               Collection = "sales"
	InventoryLogs       Collection = "inventoryLogs"
	IngredientUsageLogs Collection = "ingredientUsageLogs"
)

var (
	// ErrNotFound is returned when a document does not exist.
	ErrNotFound = errors.New("document not found")
	// ErrConflict is returned when a transaction lost a race against a concurrent commit.
	ErrConflict = errors.New("transaction conflict")
	// ErrClosed is returned after the store has been closed.
	ErrClosed = errors.New("store is closed")
)

// Document is a raw document as returned by Query.
type Document struct {
	ID   string
	Data []byte
}

// Predicate filters documents during Query. A nil predicate matches everything.
type Predicate func(id string, data []byte) bool

// Txn is the view a transaction function gets. Reads are tracked for conflict
// detection and writes become visible only after a successful commit.
type Txn interface {
	Get(c Collection, id string) ([]byte, error)
	Set(c Collection, id string, data []byte) error
	Delete(c Collection, id string) error
}

// Store is implemented by every storage driver.
type Store interface {
	// Get returns the committed document or ErrNotFound.
	Get(ctx context.Context, c Collection, id string) ([]byte, error)
	// Query scans a collection; it is meant for read models, never for commit decisions.
	Query(ctx context.Context, c Collection, pred Predicate) ([]Document, error)
	// Transact runs fn and commits its writes atomically. An error from fn discards every write.
	Transact(ctx context.Context, fn func(Txn) error) error
	// AppendLog inserts an audit record under a generated key.
	AppendLog(ctx context.Context, c Collection, record []byte) error
	Close() error
}

// GetJSON reads a document inside a transaction and decodes it into T.
func GetJSON[T any](txn Txn, c Collection, id string) (T, error) {
	var out T
	data, err := txn.Get(c, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return out, nil
}

// SetJSON encodes v and stores it inside a transaction.
func SetJSON(txn Txn, c Collection, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", c, id, err)
	}
	return txn.Set(c, id, data)
}

// CreateJSON stores v only when no document with id exists yet and reports whether it wrote.
func CreateJSON(txn Txn, c Collection, id string, v any) (bool, error) {
	_, err := txn.Get(c, id)
	switch {
	case err == nil:
		return false, nil
	case !errors.Is(err, ErrNotFound):
		return false, err
	}
	if err := SetJSON(txn, c, id, v); err != nil {
		return false, err
	}
	return true, nil
}

// Load reads a committed document and decodes it into T.
func Load[T any](ctx context.Context, s Store, c Collection, id string) (T, error) {
	var out T
	data, err := s.Get(ctx, c, id)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("decode %s/%s: %w", c, id, err)
	}
	return out, nil
}

// LoadAll decodes every document of a collection that matches pred.
func LoadAll[T any](ctx context.Context, s Store, c Collection, pred Predicate) ([]T, error) {
	docs, err := s.Query(ctx, c, pred)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		var v T
		if err := json.Unmarshal(doc.Data, &v); err != nil {
			return nil, fmt.Errorf("decode %s/%s: %w", c, doc.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Append encodes record and writes it to an audit collection.
func Append(ctx context.Context, s Store, c Collection, record any) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("encode %s record: %w", c, err)
	}
	return s.AppendLog(ctx, c, data)
}

// Key joins a collection and id into the flat key space used by drivers.
func Key(c Collection, id string) []byte {
	return []byte(string(c) + "/" + id)
}

// Prefix returns the key prefix shared by every document of a collection.
func Prefix(c Collection) []byte {
	return []byte(string(c) + "/")
}

// RetryPolicy bounds how often a conflicting transaction is re-run.
type RetryPolicy struct {
	Attempts int
	Backoff  time.Duration
	// OnConflict is called after each conflicting attempt, before the backoff.
	OnConflict func(attempt int)
}

// DefaultRetry re-runs a transaction up to five times with a short linear backoff.
var DefaultRetry = RetryPolicy{Attempts: 5, Backoff: 10 * time.Millisecond}

// TransactRetry runs fn through s.Transact and re-runs it from scratch while the commit
// fails with ErrConflict. fn must not keep state across attempts.
func TransactRetry(ctx context.Context, s Store, p RetryPolicy, fn func(Txn) error) error {
	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = s.Transact(ctx, fn)
		if !errors.Is(err, ErrConflict) {
			return err
		}
		if p.OnConflict != nil {
			p.OnConflict(attempt)
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.Backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("gave up after %d attempts: %w", attempts, err)
}
