// Package memstore keeps tracker records and the latest report in process
// memory. Contents are lost on restart.
package memstore

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"smart-tracker/internal/domain"
)

type RecordStore struct {
	mu      sync.RWMutex
	records []domain.Record
}

func NewRecordStore() *RecordStore {
	return &RecordStore{}
}

func (s *RecordStore) Append(_ context.Context, rec domain.Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// List returns records in insertion order.
func (s *RecordStore) List(_ context.Context) ([]domain.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Record, len(s.records))
	copy(out, s.records)
	return out, nil
}

type LatestCache struct {
	mu      sync.RWMutex
	payload []byte
}

func NewLatestCache() *LatestCache {
	return &LatestCache{}
}

func (c *LatestCache) Put(_ context.Context, payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payload = append([]byte{}, payload...)
	return nil
}

func (c *LatestCache) Get(_ context.Context) ([]byte, bool, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.payload == nil {
		return nil, false, nil
	}
	return append([]byte(nil), c.payload...), true, nil
}
