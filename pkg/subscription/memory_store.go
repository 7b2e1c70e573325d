package subscription

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements RecordStore and MappingStore in process memory.
type MemoryStore struct {
	mu       sync.Mutex
	records  map[string]*Record
	mappings map[string]*TransactionMapping
	locks    map[string]*sync.Mutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records:  make(map[string]*Record),
		mappings: make(map[string]*TransactionMapping),
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *MemoryStore) Get(_ context.Context, userID string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[userID]
	if !ok {
		return nil, ErrRecordNotFound
	}
	return cloneRecord(r), nil
}

func (s *MemoryStore) Update(_ context.Context, userID string, fn func(*Record) (*Record, error)) (*Record, error) {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.Lock()
	current := cloneRecord(s.records[userID])
	s.mu.Unlock()

	next, err := fn(current)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.records[userID] = cloneRecord(next)
	s.mu.Unlock()
	return next, nil
}

func (s *MemoryStore) Register(_ context.Context, m TransactionMapping) (*TransactionMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	existing, ok := s.mappings[m.OriginalTransactionID]
	if ok && existing.UserID != m.UserID {
		cp := *existing
		return &cp, ErrTransactionConflict
	}
	if ok {
		m.CreatedAt = existing.CreatedAt
		if m.ProductID == "" {
			m.ProductID = existing.ProductID
		}
	} else {
		m.CreatedAt = now
	}
	m.UpdatedAt = now
	s.mappings[m.OriginalTransactionID] = &m

	cp := m
	return &cp, nil
}

func (s *MemoryStore) Resolve(_ context.Context, originalTransactionID string) (*TransactionMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.mappings[originalTransactionID]
	if !ok {
		return nil, ErrMappingNotFound
	}
	cp := *m
	return &cp, nil
}

func (s *MemoryStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.locks[userID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[userID] = l
	}
	return l
}

func cloneRecord(r *Record) *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Snapshot.ExpiresTime != nil {
		t := *r.Snapshot.ExpiresTime
		cp.Snapshot.ExpiresTime = &t
	}
	if r.Snapshot.AutoRenewStatus != nil {
		v := *r.Snapshot.AutoRenewStatus
		cp.Snapshot.AutoRenewStatus = &v
	}
	if r.LastNotifiedAt != nil {
		t := *r.LastNotifiedAt
		cp.LastNotifiedAt = &t
	}
	if r.LastValidatedAt != nil {
		t := *r.LastValidatedAt
		cp.LastValidatedAt = &t
	}
	return &cp
}
