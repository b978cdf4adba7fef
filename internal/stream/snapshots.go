package stream

import (
	"sort"
	"sync"
	"time"

	"github.com/aman-zulfiqar/ref-swap-engine/internal/models"
	"github.com/aman-zulfiqar/ref-swap-engine/internal/price"
)

// PoolStatus is the last refresh outcome of one pool
type PoolStatus struct {
	PoolID      string    `json:"pool_id"`
	SnapshotID  string    `json:"snapshot_id,omitempty"`
	Source      string    `json:"source,omitempty"`
	RefreshedAt time.Time `json:"refreshed_at"`
	Error       string    `json:"error,omitempty"`
}

// SnapshotStore holds the latest pool and price snapshots. Snapshots are
// replaced as a whole, never edited.
type SnapshotStore struct {
	mu     sync.RWMutex
	pools  map[string]models.Pool
	status map[string]PoolStatus
	prices *price.Snapshot
}

func NewSnapshotStore() *SnapshotStore {
	return &SnapshotStore{
		pools:  make(map[string]models.Pool),
		status: make(map[string]PoolStatus),
	}
}

func (s *SnapshotStore) SetPool(p models.Pool) {
	meta := p.Snapshot()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pools[p.PoolID()] = p
	s.status[p.PoolID()] = PoolStatus{
		PoolID:      p.PoolID(),
		SnapshotID:  meta.ID,
		Source:      string(meta.Source),
		RefreshedAt: meta.FetchedAt,
	}
}

// SetPoolError records a failed refresh, keeping the previous snapshot
func (s *SnapshotStore) SetPoolError(poolID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.status[poolID]
	st.PoolID = poolID
	st.Error = err.Error()
	st.RefreshedAt = time.Now()
	s.status[poolID] = st
}

func (s *SnapshotStore) Pool(poolID string) (models.Pool, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[poolID]
	return p, ok
}

func (s *SnapshotStore) SetPrices(snap *price.Snapshot) {
	s.mu.Lock()
	s.prices = snap
	s.mu.Unlock()
}

// Prices returns the latest price snapshot, nil before the first refresh
func (s *SnapshotStore) Prices() *price.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices
}

// Status lists the refresh state of every pool, ordered by id
func (s *SnapshotStore) Status() []PoolStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]PoolStatus, 0, len(s.status))
	for _, st := range s.status {
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PoolID < out[j].PoolID })
	return out
}
