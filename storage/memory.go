package storage

import (
	"context"
	"sync"
	"time"

	"voting-gateway/models"
)

// MemoryStore keeps records in a map. Used in tests and local runs.
type MemoryStore struct {
	mu     sync.RWMutex
	voters map[string]*models.VoterRecord
	now    func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		voters: make(map[string]*models.VoterRecord),
		now:    time.Now,
	}
}

func (m *MemoryStore) FindByNationalID(_ context.Context, nationalID string) (*models.VoterRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	voter, exists := m.voters[nationalID]
	if !exists {
		return nil, models.ErrNotFound
	}
	rec := *voter
	return &rec, nil
}

func (m *MemoryStore) Insert(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.voters[record.NationalID]; exists {
		return nil, models.ErrConflict
	}
	rec := prepareInsert(record, m.now().UTC())
	m.voters[rec.NationalID] = rec

	out := *rec
	return &out, nil
}

func (m *MemoryStore) Update(_ context.Context, record *models.VoterRecord) (*models.VoterRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	existing, exists := m.voters[record.NationalID]
	if !exists {
		return nil, models.ErrNotFound
	}
	rec := applyUpdate(existing, record, m.now().UTC())
	m.voters[rec.NationalID] = rec

	out := *rec
	return &out, nil
}

// Count returns the number of stored voters.
func (m *MemoryStore) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.voters)
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error { return nil }
