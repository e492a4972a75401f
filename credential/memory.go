package credential

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MemoryStore is a process-local Store. It backs tests and single-shot
// tooling that has no database.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: map[string]Record{},
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (m *MemoryStore) UpsertToken(_ context.Context, ownerKey, token string) error {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return fmt.Errorf("owner key is required")
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[ownerKey] = Record{OwnerKey: ownerKey, Token: token, UpdatedAt: m.now()}
	return nil
}

func (m *MemoryStore) GetToken(_ context.Context, ownerKey string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[strings.TrimSpace(ownerKey)]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *MemoryStore) MostRecent(_ context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		latest Record
		found  bool
	)
	for _, rec := range m.records {
		if !found || rec.UpdatedAt.After(latest.UpdatedAt) {
			latest = rec
			found = true
		}
	}
	if !found {
		return Record{}, ErrNotFound
	}
	return latest, nil
}

// Len reports the number of stored owner keys.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

func (m *MemoryStore) Close() error { return nil }
