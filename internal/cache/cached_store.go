package cache

import (
	"context"
	"log/slog"
	"sync/atomic"

	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/storage"
)

// CachedStore answers HasKey from keys the wrapped store confirmed during
// this process. Anything else is asked of the store.
//
// The optional shared cache (Redis) is scoped to the store's ID. A shared
// hit for a key the store does not hold is never trusted; it is counted as
// stale, which means the store lost writes or was reset.
type CachedStore struct {
	storage.Store
	confirmed *LocalKeyCache
	shared    KeyCache
	namespace string
	stale     atomic.Int64
	logger    *slog.Logger
}

// NewCachedStore wraps store. shared may be nil.
func NewCachedStore(store storage.Store, shared KeyCache) *CachedStore {
	return &CachedStore{
		Store:     store,
		confirmed: NewLocalKeyCache(0),
		shared:    shared,
		namespace: store.ID() + ":",
		logger:    slog.Default().With("component", "cache"),
	}
}

// Stale returns how many shared-cache entries pointed at keys the store lacked
func (s *CachedStore) Stale() int {
	return int(s.stale.Load())
}

// HasKey implements storage.Store
func (s *CachedStore) HasKey(ctx context.Context, key string) (bool, error) {
	if ok, _ := s.confirmed.Contains(ctx, key); ok {
		return true, nil
	}

	exists, err := s.Store.HasKey(ctx, key)
	if err != nil {
		return false, err
	}
	if exists {
		s.remember(ctx, key)
		return true, nil
	}

	if s.shared != nil {
		hit, err := s.shared.Contains(ctx, s.namespace+key)
		if err != nil {
			s.logger.Warn("shared key cache lookup failed", "key", key, "error", err)
		} else if hit {
			s.stale.Add(1)
			s.logger.Warn("shared key cache lists a key the store does not hold", "key", key, "store_id", s.Store.ID())
		}
	}
	return false, nil
}

// AddEntities implements storage.Store
func (s *CachedStore) AddEntities(ctx context.Context, entities []entity.Entity) error {
	if err := s.Store.AddEntities(ctx, entities); err != nil {
		return err
	}
	keys := make([]string, 0, len(entities))
	for _, e := range entities {
		keys = append(keys, e.Key)
	}
	s.remember(ctx, keys...)
	return nil
}

// AddRelationships implements storage.Store
func (s *CachedStore) AddRelationships(ctx context.Context, relationships []entity.Relationship) error {
	if err := s.Store.AddRelationships(ctx, relationships); err != nil {
		return err
	}
	keys := make([]string, 0, len(relationships))
	for _, r := range relationships {
		keys = append(keys, r.Key)
	}
	s.remember(ctx, keys...)
	return nil
}

// remember records keys the store has just confirmed or accepted
func (s *CachedStore) remember(ctx context.Context, keys ...string) {
	s.confirmed.Add(ctx, keys...)
	if s.shared == nil {
		return
	}

	scoped := make([]string, len(keys))
	for i, key := range keys {
		scoped[i] = s.namespace + key
	}
	if err := s.shared.Add(ctx, scoped...); err != nil {
		s.logger.Warn("shared key cache update failed", "keys", len(keys), "error", err)
	}
}
