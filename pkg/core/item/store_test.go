package item

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeRepository struct {
	items map[string]*Item
	err   error
}

func newFakeRepository(seed ...*Item) *fakeRepository {
	r := &fakeRepository{items: make(map[string]*Item)}
	for _, it := range seed {
		r.items[it.ID] = it
	}
	return r
}

func (r *fakeRepository) SaveItem(it *Item) error {
	if r.err != nil {
		return r.err
	}
	r.items[it.ID] = it
	return nil
}

func (r *fakeRepository) GetItem(id string) (*Item, error) {
	return r.items[id], nil
}

func (r *fakeRepository) LoadAllItems() ([]*Item, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]*Item, 0, len(r.items))
	for _, it := range r.items {
		out = append(out, it)
	}
	return out, nil
}

func TestStore_LoadFromRepository(t *testing.T) {
	repo := newFakeRepository(&Item{ID: "a", Name: "A"}, &Item{ID: "b", Name: "B"})
	s := NewStore(repo, 4)

	require.NoError(t, s.LoadFromRepository())
	assert.Equal(t, 2, s.Count())
}

func TestStore_SeedPersistsAndRegisters(t *testing.T) {
	repo := newFakeRepository()
	s := NewStore(repo, 4)

	require.NoError(t, s.Seed(&Item{ID: "hotel_alpha", Name: "Hotel Alpha"}))
	assert.Equal(t, 1, s.Count())
	assert.Contains(t, repo.items, "hotel_alpha")

	got, err := s.Get(context.Background(), "hotel_alpha")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Hotel Alpha", got.Name)
}

func TestStore_SeedPropagatesRepositoryError(t *testing.T) {
	repo := newFakeRepository()
	repo.err = fmt.Errorf("disk full")
	s := NewStore(repo, 4)

	err := s.Seed(&Item{ID: "x"})
	require.Error(t, err)
	assert.Equal(t, 0, s.Count())
}

func TestStore_GetMissingReturnsNilNil(t *testing.T) {
	s := NewStore(newFakeRepository(), 4)
	got, err := s.Get(context.Background(), "does-not-exist")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestStore_GetRespectsContextCancellation(t *testing.T) {
	s := NewStore(newFakeRepository(), 1)
	// Saturate the single blocking slot, then cancel before it frees up.
	s.blockingPool <- struct{}{}
	defer func() { <-s.blockingPool }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Get(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestStore_Search(t *testing.T) {
	repo := newFakeRepository(&Item{ID: "a", Active: true, Embedding: []float32{1, 0}})
	s := NewStore(repo, 4)
	require.NoError(t, s.LoadFromRepository())

	results, err := s.Search(context.Background(), []float32{1, 0}, 3, 0)
	require.NoError(t, err)
	if assert.Len(t, results, 1) {
		assert.Equal(t, "a", results[0].Item.ID)
	}
}
