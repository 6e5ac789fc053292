package storage

import (
	"context"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
)

// PostgresStore implements storage using PostgreSQL
type PostgresStore struct {
	sqlStore
}

// NewPostgresStore creates a new PostgreSQL storage and ensures its schema
func NewPostgresStore(ctx context.Context, dsn string, logger *logrus.Logger) (*PostgresStore, error) {
	db, err := sqlx.ConnectContext(ctx, "pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store := &PostgresStore{sqlStore{
		db:     db,
		logger: logger,
		insertEntity: `
			INSERT INTO entities (entity_key, entity_type, attributes, raw_data)
			VALUES (?, ?, ?::jsonb, ?::jsonb)
			ON CONFLICT (entity_key) DO NOTHING`,
		insertRelationship: `
			INSERT INTO relationships
			(relationship_key, kind, from_key, from_type, to_key, to_type)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (relationship_key) DO NOTHING`,
		selectEntity: `
			SELECT entity_key, entity_type, attributes::text AS attributes, raw_data::text AS raw_data
			FROM entities WHERE entity_key = ?`,
		insertMeta: `
			INSERT INTO store_meta (name, value) VALUES (?, ?)
			ON CONFLICT (name) DO NOTHING`,
	}}

	if err := store.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := store.loadID(ctx); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *PostgresStore) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		entity_key TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		attributes JSONB NOT NULL,
		raw_data JSONB,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS relationships (
		relationship_key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		from_key TEXT NOT NULL,
		from_type TEXT NOT NULL,
		to_key TEXT NOT NULL,
		to_type TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_key);
	CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_key);
	`

	_, err := s.db.ExecContext(ctx, schema)
	return err
}
