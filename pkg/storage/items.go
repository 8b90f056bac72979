package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"

	"github.com/auranet/aura-core/pkg/core/item"
)

const itemPrefix = "item:"

func itemKey(id string) []byte {
	return []byte(itemPrefix + id)
}

// SaveItem persists it, overwriting any existing record with the same
// ID. Matches the teacher's SaveAccount/SavePosition JSON-encode-and-put
// pattern.
func (s *Store) SaveItem(it *item.Item) error {
	raw, err := json.Marshal(it)
	if err != nil {
		return fmt.Errorf("marshal item %s: %w", it.ID, err)
	}
	if err := s.db.Set(itemKey(it.ID), raw, pebble.Sync); err != nil {
		return fmt.Errorf("save item %s: %w", it.ID, err)
	}
	return nil
}

// GetItem returns nil, nil if no item with that ID exists.
func (s *Store) GetItem(id string) (*item.Item, error) {
	raw, closer, err := s.db.Get(itemKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get item %s: %w", id, err)
	}
	defer closer.Close()

	var it item.Item
	if err := json.Unmarshal(raw, &it); err != nil {
		return nil, fmt.Errorf("unmarshal item %s: %w", id, err)
	}
	return &it, nil
}

// LoadAllItems scans every item: key via a prefix iterator, the same
// technique the teacher's LoadAllPositions uses.
func (s *Store) LoadAllItems() ([]*item.Item, error) {
	iter, err := s.db.NewIter(prefixIterOptions(itemPrefix))
	if err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	defer iter.Close()

	var items []*item.Item
	for iter.First(); iter.Valid(); iter.Next() {
		var it item.Item
		if err := json.Unmarshal(iter.Value(), &it); err != nil {
			return nil, fmt.Errorf("unmarshal item at key %s: %w", iter.Key(), err)
		}
		items = append(items, &it)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate items: %w", err)
	}
	return items, nil
}
