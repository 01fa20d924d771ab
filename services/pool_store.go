package services

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/DBYGuy/truthforge/consensus"
	"github.com/DBYGuy/truthforge/crypto"
)

// PoolStore persists pool records so open pools and unclaimed
// entitlements survive a restart.
type PoolStore interface {
	// SavePool writes the record, replacing any previous version.
	SavePool(ctx context.Context, rec *consensus.PoolRecord) error
	// LoadPool reads one record. Missing pools return ErrPoolNotFound.
	LoadPool(ctx context.Context, id crypto.PoolID) (*consensus.PoolRecord, error)
	// ListPools returns every stored pool id.
	ListPools(ctx context.Context) ([]crypto.PoolID, error)
}

// ErrPoolNotFound is returned by LoadPool for unknown pool ids.
var ErrPoolNotFound = fmt.Errorf("pool not found")

// MemoryPoolStore is the in-process PoolStore used by tests and
// deployments without PostgreSQL.
type MemoryPoolStore struct {
	mu    sync.RWMutex
	pools map[crypto.PoolID]*consensus.PoolRecord
}

// NewMemoryPoolStore creates an empty in-memory pool store.
func NewMemoryPoolStore() *MemoryPoolStore {
	return &MemoryPoolStore{pools: make(map[crypto.PoolID]*consensus.PoolRecord)}
}

// SavePool stores the record. Records come out of Engine.Export as
// fresh copies, so the store keeps them as handed over.
func (s *MemoryPoolStore) SavePool(_ context.Context, rec *consensus.PoolRecord) error {
	if rec == nil || rec.ID == "" {
		return fmt.Errorf("invalid pool record")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[rec.ID] = rec
	return nil
}

// LoadPool returns the stored record for a pool.
func (s *MemoryPoolStore) LoadPool(_ context.Context, id crypto.PoolID) (*consensus.PoolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.pools[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPoolNotFound, id)
	}
	return rec, nil
}

// ListPools returns the stored pool ids in lexical order.
func (s *MemoryPoolStore) ListPools(_ context.Context) ([]crypto.PoolID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]crypto.PoolID, 0, len(s.pools))
	for id := range s.pools {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}
