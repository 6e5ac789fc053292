package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/errors"
)

var (
	entitiesBucket      = []byte("entities")
	relationshipsBucket = []byte("relationships")
	metaBucket          = []byte("meta")
	storeIDKey          = []byte("store_id")
)

// BoltStore implements storage in a single embedded bbolt file. Values are
// the JSON encoding of the entity or relationship.
type BoltStore struct {
	db *bolt.DB
	id string
}

// NewBoltStore opens (or creates) the bbolt file at path
func NewBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt database: %w", err)
	}

	var id string
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{entitiesBucket, relationshipsBucket, metaBucket} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		meta := tx.Bucket(metaBucket)
		if v := meta.Get(storeIDKey); v != nil {
			id = string(v)
			return nil
		}
		id = uuid.New().String()
		return meta.Put(storeIDKey, []byte(id))
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db, id: id}, nil
}

// ID returns the id saved in the meta bucket
func (s *BoltStore) ID() string {
	return s.id
}

func (s *BoltStore) HasKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	err := s.db.View(func(tx *bolt.Tx) error {
		k := []byte(key)
		exists = tx.Bucket(entitiesBucket).Get(k) != nil || tx.Bucket(relationshipsBucket).Get(k) != nil
		return nil
	})
	if err != nil {
		return false, errors.DatabaseErrorf(err, "check key %s", key)
	}
	return exists, nil
}

func (s *BoltStore) FindEntity(ctx context.Context, key string) (*entity.Entity, error) {
	var found *entity.Entity
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(entitiesBucket).Get([]byte(key))
		if data == nil {
			return nil
		}
		var e entity.Entity
		if err := json.Unmarshal(data, &e); err != nil {
			return fmt.Errorf("decode entity %s: %w", key, err)
		}
		found = &e
		return nil
	})
	if err != nil {
		return nil, errors.DatabaseErrorf(err, "find entity %s", key)
	}
	return found, nil
}

func (s *BoltStore) AddEntities(ctx context.Context, entities []entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entitiesBucket)
		for _, e := range entities {
			if err := putIfAbsent(b, e.Key, e); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.DatabaseError(err, "add entities")
	}
	return nil
}

func (s *BoltStore) AddRelationships(ctx context.Context, relationships []entity.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(relationshipsBucket)
		for _, r := range relationships {
			if err := putIfAbsent(b, r.Key, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return errors.DatabaseError(err, "add relationships")
	}
	return nil
}

func (s *BoltStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	err := s.db.View(func(tx *bolt.Tx) error {
		c.Entities = tx.Bucket(entitiesBucket).Stats().KeyN
		c.Relationships = tx.Bucket(relationshipsBucket).Stats().KeyN
		return nil
	})
	return c, err
}

// Close closes the bolt file
func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putIfAbsent(b *bolt.Bucket, key string, v any) error {
	k := []byte(key)
	if b.Get(k) != nil {
		return nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return b.Put(k, data)
}
