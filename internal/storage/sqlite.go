package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/sirupsen/logrus"
)

// SQLiteStore implements storage using SQLite (for local runs)
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore creates a new SQLite storage. ":memory:" opens a private
// in-memory database.
func NewSQLiteStore(path string, logger *logrus.Logger) (*SQLiteStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sqlx.Connect("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("connect to sqlite: %w", err)
	}

	// One writer; also keeps a :memory: database on a single connection
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode = WAL")

	if logger == nil {
		logger = logrus.StandardLogger()
	}

	store := &SQLiteStore{sqlStore{
		db:     db,
		logger: logger,
		insertEntity: `
			INSERT OR IGNORE INTO entities (entity_key, entity_type, attributes, raw_data)
			VALUES (?, ?, ?, ?)`,
		insertRelationship: `
			INSERT OR IGNORE INTO relationships
			(relationship_key, kind, from_key, from_type, to_key, to_type)
			VALUES (?, ?, ?, ?, ?, ?)`,
		selectEntity: `
			SELECT entity_key, entity_type, attributes, raw_data
			FROM entities WHERE entity_key = ?`,
		insertMeta: `INSERT OR IGNORE INTO store_meta (name, value) VALUES (?, ?)`,
	}}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}
	if err := store.loadID(context.Background()); err != nil {
		db.Close()
		return nil, err
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS entities (
		entity_key TEXT PRIMARY KEY,
		entity_type TEXT NOT NULL,
		attributes TEXT NOT NULL,
		raw_data TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS relationships (
		relationship_key TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		from_key TEXT NOT NULL,
		from_type TEXT NOT NULL,
		to_key TEXT NOT NULL,
		to_type TEXT NOT NULL,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS store_meta (
		name TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entities_type ON entities(entity_type);
	CREATE INDEX IF NOT EXISTS idx_relationships_from ON relationships(from_key);
	CREATE INDEX IF NOT EXISTS idx_relationships_to ON relationships(to_key);
	`

	_, err := s.db.Exec(schema)
	return err
}
