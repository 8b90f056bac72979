// Package storage is aura-core's persistence layer: a single embedded
// Pebble database holding the item catalog and locked deals, keyed and
// prefix-indexed the way the teacher's pkg/storage/pebble_store.go keys
// accounts/positions/orders/trades.
package storage

import (
	"fmt"
	"strings"

	"github.com/cockroachdb/pebble"
)

// Store wraps a Pebble database and exposes the item/deal repositories
// consumed by pkg/core/item and pkg/core/market.
type Store struct {
	db *pebble.DB
}

// Open opens (creating if absent) the Pebble database named by dsn, of
// the form "pebble://<path>".
func Open(dsn string) (*Store, error) {
	path := strings.TrimPrefix(dsn, "pebble://")
	if path == "" {
		return nil, fmt.Errorf("empty database path in dsn %q", dsn)
	}
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble store at %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Ping performs a trivial read to confirm the store is responsive,
// standing in for the "SELECT 1" liveness probe spec.md §4.8 describes
// for the gRPC health service.
func (s *Store) Ping() error {
	_, closer, err := s.db.Get([]byte("__ping__"))
	if err != nil && err != pebble.ErrNotFound {
		return fmt.Errorf("store ping: %w", err)
	}
	if closer != nil {
		_ = closer.Close()
	}
	return nil
}

func prefixIterOptions(prefix string) *pebble.IterOptions {
	upper := append([]byte(prefix[:len(prefix)-1]), prefix[len(prefix)-1]+1)
	return &pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	}
}
