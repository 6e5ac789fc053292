package ingestion

import (
	"context"
	"fmt"

	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/msgraph"
)

// Store is the persistent keyed store the pipeline commits into.
// FindEntity returns (nil, nil) when no entity has the key.
type Store interface {
	HasKey(ctx context.Context, key string) (bool, error)
	FindEntity(ctx context.Context, key string) (*entity.Entity, error)
	AddEntities(ctx context.Context, entities []entity.Entity) error
	AddRelationships(ctx context.Context, relationships []entity.Relationship) error
}

// Source is the upstream mailbox the pipeline reads from
type Source interface {
	IterateUserMessages(ctx context.Context, q msgraph.MessageQuery, fn func(*msgraph.Message) error) error
	ListAttachments(ctx context.Context, userID, messageID string) ([]*msgraph.Attachment, error)
}

// Batch accumulates the candidate subgraph of one commit
type Batch struct {
	Entities      []entity.Entity
	Relationships []entity.Relationship
}

// AddEntity appends an entity
func (b *Batch) AddEntity(e entity.Entity) {
	b.Entities = append(b.Entities, e)
}

// AddRelationship appends a relationship
func (b *Batch) AddRelationship(r entity.Relationship) {
	b.Relationships = append(b.Relationships, r)
}

// Len returns the number of entities plus relationships
func (b *Batch) Len() int {
	return len(b.Entities) + len(b.Relationships)
}

func (b *Batch) hasEntity(key string) bool {
	for _, e := range b.Entities {
		if e.Key == key {
			return true
		}
	}
	return false
}

// Dedupe keeps the first occurrence of every entity and relationship key
func (b *Batch) Dedupe() {
	seen := make(map[string]struct{}, len(b.Entities))
	entities := b.Entities[:0]
	for _, e := range b.Entities {
		if _, ok := seen[e.Key]; ok {
			continue
		}
		seen[e.Key] = struct{}{}
		entities = append(entities, e)
	}
	b.Entities = entities

	seen = make(map[string]struct{}, len(b.Relationships))
	rels := b.Relationships[:0]
	for _, r := range b.Relationships {
		if _, ok := seen[r.Key]; ok {
			continue
		}
		seen[r.Key] = struct{}{}
		rels = append(rels, r)
	}
	b.Relationships = rels
}

// DiffAgainstStore returns a new batch holding only the keys the store has
// not seen yet. The receiver is left untouched.
func (b *Batch) DiffAgainstStore(ctx context.Context, store Store) (*Batch, error) {
	pending := &Batch{}

	for _, e := range b.Entities {
		exists, err := store.HasKey(ctx, e.Key)
		if err != nil {
			return nil, fmt.Errorf("check entity key %s: %w", e.Key, err)
		}
		if !exists {
			pending.AddEntity(e)
		}
	}

	for _, r := range b.Relationships {
		exists, err := store.HasKey(ctx, r.Key)
		if err != nil {
			return nil, fmt.Errorf("check relationship key %s: %w", r.Key, err)
		}
		if !exists {
			pending.AddRelationship(r)
		}
	}

	return pending, nil
}

// Commit writes entities then relationships. Empty halves are not sent.
func (b *Batch) Commit(ctx context.Context, store Store) error {
	if len(b.Entities) > 0 {
		if err := store.AddEntities(ctx, b.Entities); err != nil {
			return fmt.Errorf("add %d entities: %w", len(b.Entities), err)
		}
	}
	if len(b.Relationships) > 0 {
		if err := store.AddRelationships(ctx, b.Relationships); err != nil {
			return fmt.Errorf("add %d relationships: %w", len(b.Relationships), err)
		}
	}
	return nil
}
