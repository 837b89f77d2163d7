package remote

import (
	"context"
	"sync"
	"time"

	"github.com/fitpulse/sync-engine/internal/domain"
)

// MockRecordStore is a hand-written, in-memory implementation of RecordStore
// used in unit tests. No mock-generation library needed.
type MockRecordStore struct {
	mu      sync.RWMutex
	records map[string]Record // keyed by collection + "/" + key

	// Counters for assertions.
	UpsertCalls int
	DeleteCalls int

	// Optional error overrides, set in tests to simulate failure paths.
	UpsertErr error
	QueryErr  error
	DeleteErr error

	// FailKeys makes Upsert fail only for specific keys.
	FailKeys map[string]error
}

func NewMockRecordStore() *MockRecordStore {
	return &MockRecordStore{
		records:  make(map[string]Record),
		FailKeys: make(map[string]error),
	}
}

func (m *MockRecordStore) Upsert(_ context.Context, collection, key string, fields map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UpsertCalls++
	if m.UpsertErr != nil {
		return m.UpsertErr
	}
	if err, ok := m.FailKeys[key]; ok {
		return err
	}
	m.records[collection+"/"+key] = Record{
		Collection: collection,
		Key:        key,
		Fields:     fields,
		UpdatedAt:  time.Now().UTC(),
	}
	return nil
}

func (m *MockRecordStore) Query(_ context.Context, collection string, pred Predicate, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.QueryErr != nil {
		return nil, m.QueryErr
	}
	var out []Record
	for _, rec := range m.records {
		if rec.Collection != collection {
			continue
		}
		if pred.Field != "" && rec.Fields[pred.Field] != pred.Value {
			continue
		}
		out = append(out, rec)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (m *MockRecordStore) Delete(_ context.Context, collection, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteCalls++
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	if _, ok := m.records[collection+"/"+key]; !ok {
		return domain.ErrNotFound
	}
	delete(m.records, collection+"/"+key)
	return nil
}

// Get returns the stored record, for test assertions.
func (m *MockRecordStore) Get(collection, key string) (Record, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[collection+"/"+key]
	return rec, ok
}

// Len returns the number of stored records.
func (m *MockRecordStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.records)
}

// compile-time check that MockRecordStore implements RecordStore
var _ RecordStore = (*MockRecordStore)(nil)
