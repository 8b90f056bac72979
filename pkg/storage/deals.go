package storage

import (
	"encoding/json"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"

	"github.com/auranet/aura-core/pkg/core/market"
)

const (
	dealPrefix       = "deal:"
	memoIndexPrefix  = "idx:memo:"
	statusIndexPrefix = "idx:status:"
)

func dealKey(id uuid.UUID) []byte {
	return []byte(dealPrefix + id.String())
}

func memoIndexKey(memo string) []byte {
	return []byte(memoIndexPrefix + memo)
}

func statusIndexKey(status market.Status, id uuid.UUID) []byte {
	return []byte(statusIndexPrefix + string(status) + ":" + id.String())
}

// SaveDeal persists d and maintains its memo and status secondary
// indexes atomically, mirroring the teacher's approach of updating a
// primary record and its indexes together (SaveOrder/DeleteOrder).
func (s *Store) SaveDeal(d *market.LockedDeal) error {
	raw, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("marshal deal %s: %w", d.ID, err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(dealKey(d.ID), raw, nil); err != nil {
		return fmt.Errorf("save deal %s: %w", d.ID, err)
	}
	if err := batch.Set(memoIndexKey(d.PaymentMemo), []byte(d.ID.String()), nil); err != nil {
		return fmt.Errorf("index deal memo %s: %w", d.PaymentMemo, err)
	}

	if prior, _ := s.GetDeal(d.ID); prior != nil && prior.Status != d.Status {
		if err := batch.Delete(statusIndexKey(prior.Status, d.ID), nil); err != nil {
			return fmt.Errorf("clear prior status index for deal %s: %w", d.ID, err)
		}
	}
	if err := batch.Set(statusIndexKey(d.Status, d.ID), []byte{}, nil); err != nil {
		return fmt.Errorf("index deal status for %s: %w", d.ID, err)
	}

	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("commit deal %s: %w", d.ID, err)
	}
	return nil
}

// GetDeal returns nil, nil if no deal with that ID exists.
func (s *Store) GetDeal(id uuid.UUID) (*market.LockedDeal, error) {
	raw, closer, err := s.db.Get(dealKey(id))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal %s: %w", id, err)
	}
	defer closer.Close()

	var d market.LockedDeal
	if err := json.Unmarshal(raw, &d); err != nil {
		return nil, fmt.Errorf("unmarshal deal %s: %w", id, err)
	}
	return &d, nil
}

// GetDealByMemo resolves a deal through the memo secondary index,
// returning nil, nil when no deal owns that memo (including the
// "memo is free to use" case uniqueMemo relies on).
func (s *Store) GetDealByMemo(memo string) (*market.LockedDeal, error) {
	raw, closer, err := s.db.Get(memoIndexKey(memo))
	if err == pebble.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get deal by memo %s: %w", memo, err)
	}
	idStr := string(raw)
	closer.Close()

	id, err := uuid.Parse(idStr)
	if err != nil {
		return nil, fmt.Errorf("corrupt memo index for %s: %w", memo, err)
	}
	return s.GetDeal(id)
}

// ListDealsByStatus scans the status secondary index, used by the
// background expiry sweep so it never has to scan the full deal table.
func (s *Store) ListDealsByStatus(status market.Status) ([]*market.LockedDeal, error) {
	prefix := statusIndexPrefix + string(status) + ":"
	iter, err := s.db.NewIter(prefixIterOptions(prefix))
	if err != nil {
		return nil, fmt.Errorf("iterate deals by status %s: %w", status, err)
	}
	defer iter.Close()

	var deals []*market.LockedDeal
	for iter.First(); iter.Valid(); iter.Next() {
		idStr := string(iter.Key())[len(prefix):]
		id, err := uuid.Parse(idStr)
		if err != nil {
			continue
		}
		d, err := s.GetDeal(id)
		if err != nil {
			return nil, err
		}
		if d != nil {
			deals = append(deals, d)
		}
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("iterate deals by status %s: %w", status, err)
	}
	return deals, nil
}
