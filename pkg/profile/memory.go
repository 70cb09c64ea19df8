package profile

import (
	"context"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// MemoryRepository keeps profiles in process memory. It backs tests and
// deployments that run without a document store.
type MemoryRepository struct {
	mu      sync.RWMutex
	records []Record
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Create(_ context.Context, record Record) (Record, error) {
	now := time.Now().UnixMilli()
	record.ID = primitive.NewObjectID()
	record.CreatedAt = now
	record.UpdatedAt = now

	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)

	return record, nil
}

// FindBySender returns the most recently created profile for the sender.
func (m *MemoryRepository) FindBySender(_ context.Context, tenant, senderID string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for i := len(m.records) - 1; i >= 0; i-- {
		record := m.records[i]
		if record.Tenant == tenant && record.SenderID == senderID {
			return record, nil
		}
	}

	return Record{}, ErrNotFound
}
