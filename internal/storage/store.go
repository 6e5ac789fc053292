package storage

import (
	"context"
	"errors"

	"github.com/rohankatakam/mailgraph/internal/entity"
)

var (
	// ErrClosed is returned by operations on a closed store
	ErrClosed = errors.New("store closed")
)

// Counts is the number of stored entities and relationships
type Counts struct {
	Entities      int
	Relationships int
}

// Store defines the keyed entity/relationship storage interface.
// Entity and relationship keys share one key space for HasKey.
type Store interface {
	// ID identifies the underlying database. It is generated once and
	// persisted with the data, so two handles on the same database agree.
	ID() string

	// HasKey reports whether an entity or relationship with key exists
	HasKey(ctx context.Context, key string) (bool, error)

	// FindEntity returns the entity with key, or (nil, nil) if absent
	FindEntity(ctx context.Context, key string) (*entity.Entity, error)

	// AddEntities inserts entities; existing keys are left unchanged
	AddEntities(ctx context.Context, entities []entity.Entity) error

	// AddRelationships inserts relationships; existing keys are left unchanged
	AddRelationships(ctx context.Context, relationships []entity.Relationship) error

	Counts(ctx context.Context) (Counts, error)

	Close() error
}
