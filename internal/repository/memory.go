package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"intentrouter/internal/models"
)

// MemoryDepositRepository is mostly for testing and single-node local runs.
type MemoryDepositRepository struct {
	mu   sync.RWMutex
	data map[string]models.DepositRecord
}

func NewMemoryDepositRepository() *MemoryDepositRepository {
	return &MemoryDepositRepository{
		data: make(map[string]models.DepositRecord),
	}
}

func (m *MemoryDepositRepository) Create(_ context.Context, record *models.DepositRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[record.IntentID] = *record
	return nil
}

func (m *MemoryDepositRepository) GetByIntentID(_ context.Context, intentID string) (*models.DepositRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	record, ok := m.data[intentID]
	if !ok {
		return nil, ErrNotFound
	}
	return &record, nil
}

func (m *MemoryDepositRepository) MarkClaimed(_ context.Context, intentID string, claimedAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	record, ok := m.data[intentID]
	if !ok {
		return ErrNotFound
	}
	record.Status = models.DepositStatusClaimed
	record.PendingRequestID = ""
	record.ClaimedAt = &claimedAt
	m.data[intentID] = record
	return nil
}

func (m *MemoryDepositRepository) FindByUser(_ context.Context, user string, page, limit int) ([]*models.DepositRecord, int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matched []*models.DepositRecord
	for id := range m.data {
		record := m.data[id]
		if record.User == user {
			copied := record
			matched = append(matched, &copied)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	total := int64(len(matched))

	page, limit = clampPage(page, limit)
	start := (page - 1) * limit
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + limit
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

// MemoryNonceRepository is mostly for testing.
type MemoryNonceRepository struct {
	mu   sync.RWMutex
	used map[string]map[uint64]bool
}

func NewMemoryNonceRepository() *MemoryNonceRepository {
	return &MemoryNonceRepository{
		used: make(map[string]map[uint64]bool),
	}
}

func (m *MemoryNonceRepository) IsUsed(_ context.Context, user string, nonce uint64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.used[user][nonce], nil
}

func (m *MemoryNonceRepository) MarkUsed(_ context.Context, user string, nonce uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[user][nonce] {
		return ErrNonceUsed
	}
	if m.used[user] == nil {
		m.used[user] = make(map[uint64]bool)
	}
	m.used[user][nonce] = true
	return nil
}
