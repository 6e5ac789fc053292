package storage

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/rohankatakam/mailgraph/internal/entity"
)

// MemoryStore keeps everything in process memory. Useful for dry runs and tests.
type MemoryStore struct {
	id            string
	mu            sync.RWMutex
	entities      map[string]entity.Entity
	relationships map[string]entity.Relationship
	closed        bool
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		id:            uuid.New().String(),
		entities:      make(map[string]entity.Entity),
		relationships: make(map[string]entity.Relationship),
	}
}

// ID returns an id unique to this store instance
func (s *MemoryStore) ID() string {
	return s.id
}

func (s *MemoryStore) HasKey(ctx context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return false, ErrClosed
	}
	_, isEntity := s.entities[key]
	_, isRel := s.relationships[key]
	return isEntity || isRel, nil
}

func (s *MemoryStore) FindEntity(ctx context.Context, key string) (*entity.Entity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	e, ok := s.entities[key]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (s *MemoryStore) AddEntities(ctx context.Context, entities []entity.Entity) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, e := range entities {
		if _, ok := s.entities[e.Key]; !ok {
			s.entities[e.Key] = e
		}
	}
	return nil
}

func (s *MemoryStore) AddRelationships(ctx context.Context, relationships []entity.Relationship) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	for _, r := range relationships {
		if _, ok := s.relationships[r.Key]; !ok {
			s.relationships[r.Key] = r
		}
	}
	return nil
}

func (s *MemoryStore) Counts(ctx context.Context) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Counts{Entities: len(s.entities), Relationships: len(s.relationships)}, nil
}

// Close marks the store closed
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
