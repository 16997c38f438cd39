package database

import (
	"context"
	"fmt"
	"sync"

	"github.com/Yazan-Dev9/DataSafe/internal/domain"
)

// MemoryCatalog keeps records in process memory.
type MemoryCatalog struct {
	mu      sync.RWMutex
	records map[domain.RecordID]*domain.BackupRecord
	nextID  domain.RecordID
	closed  bool
}

func NewMemory() *MemoryCatalog {
	return &MemoryCatalog{records: make(map[domain.RecordID]*domain.BackupRecord)}
}

func (c *MemoryCatalog) EnsureSchema(ctx context.Context) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return fmt.Errorf("%w: catalog is closed", domain.ErrStoreUnavailable)
	}
	return nil
}

func (c *MemoryCatalog) Insert(ctx context.Context, record *domain.BackupRecord) (domain.RecordID, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, fmt.Errorf("%w: catalog is closed", domain.ErrStoreUnavailable)
	}

	c.nextID++
	stored := cloneRecord(record)
	stored.ID = c.nextID
	c.records[stored.ID] = stored

	record.ID = stored.ID
	return stored.ID, nil
}

func (c *MemoryCatalog) Get(ctx context.Context, id domain.RecordID) (*domain.BackupRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("%w: catalog is closed", domain.ErrStoreUnavailable)
	}

	r, ok := c.records[id]
	if !ok {
		return nil, fmt.Errorf("%w: id %d", domain.ErrRecordNotFound, id)
	}
	return cloneRecord(r), nil
}

func (c *MemoryCatalog) List(ctx context.Context) ([]*domain.BackupRecord, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return nil, fmt.Errorf("%w: catalog is closed", domain.ErrStoreUnavailable)
	}

	records := make([]*domain.BackupRecord, 0, len(c.records))
	for _, r := range c.records {
		records = append(records, cloneRecord(r))
	}
	sortRecords(records)
	return records, nil
}

func (c *MemoryCatalog) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}
