package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/mailgraph/internal/entity"
	"github.com/rohankatakam/mailgraph/internal/errors"
)

// entityRow is the SQL shape of an entity
type entityRow struct {
	Key        string         `db:"entity_key"`
	Type       string         `db:"entity_type"`
	Attributes string         `db:"attributes"`
	RawData    sql.NullString `db:"raw_data"`
}

// sqlStore holds the statements shared by the SQLite and Postgres stores.
// Queries are written with ? placeholders and rebound per driver.
type sqlStore struct {
	db     *sqlx.DB
	logger *logrus.Logger
	id     string

	insertEntity       string
	insertRelationship string
	selectEntity       string
	insertMeta         string
}

// ID returns the id saved in store_meta
func (s *sqlStore) ID() string {
	return s.id
}

// loadID saves a fresh store id unless one exists, then reads it back
func (s *sqlStore) loadID(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, s.db.Rebind(s.insertMeta), "store_id", uuid.New().String()); err != nil {
		return errors.DatabaseError(err, "save store id")
	}
	query := s.db.Rebind(`SELECT value FROM store_meta WHERE name = ?`)
	if err := s.db.GetContext(ctx, &s.id, query, "store_id"); err != nil {
		return errors.DatabaseError(err, "load store id")
	}
	return nil
}

func (s *sqlStore) HasKey(ctx context.Context, key string) (bool, error) {
	var exists bool
	query := s.db.Rebind(`
		SELECT EXISTS (SELECT 1 FROM entities WHERE entity_key = ?)
		    OR EXISTS (SELECT 1 FROM relationships WHERE relationship_key = ?)
	`)
	if err := s.db.GetContext(ctx, &exists, query, key, key); err != nil {
		return false, errors.DatabaseErrorf(err, "check key %s", key)
	}
	return exists, nil
}

func (s *sqlStore) FindEntity(ctx context.Context, key string) (*entity.Entity, error) {
	var row entityRow
	err := s.db.GetContext(ctx, &row, s.db.Rebind(s.selectEntity), key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, errors.DatabaseErrorf(err, "find entity %s", key)
	}
	return row.toEntity()
}

func (s *sqlStore) AddEntities(ctx context.Context, entities []entity.Entity) error {
	if len(entities) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := s.db.Rebind(s.insertEntity)
	inserted := 0
	for _, e := range entities {
		row, err := newEntityRow(e)
		if err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, query, row.Key, row.Type, row.Attributes, row.RawData)
		if err != nil {
			return errors.DatabaseErrorf(err, "insert entity %s", e.Key)
		}
		if n, err := res.RowsAffected(); err == nil {
			inserted += int(n)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError(err, "commit entities")
	}

	s.logger.WithFields(logrus.Fields{
		"requested": len(entities),
		"inserted":  inserted,
	}).Debug("Stored entities")
	return nil
}

func (s *sqlStore) AddRelationships(ctx context.Context, relationships []entity.Relationship) error {
	if len(relationships) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return errors.DatabaseError(err, "begin transaction")
	}
	defer tx.Rollback()

	query := s.db.Rebind(s.insertRelationship)
	for _, r := range relationships {
		_, err := tx.ExecContext(ctx, query,
			r.Key, string(r.Kind), r.FromKey, string(r.FromType), r.ToKey, string(r.ToType))
		if err != nil {
			return errors.DatabaseErrorf(err, "insert relationship %s", r.Key)
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.DatabaseError(err, "commit relationships")
	}

	s.logger.WithField("count", len(relationships)).Debug("Stored relationships")
	return nil
}

func (s *sqlStore) Counts(ctx context.Context) (Counts, error) {
	var c Counts
	if err := s.db.GetContext(ctx, &c.Entities, `SELECT COUNT(*) FROM entities`); err != nil {
		return Counts{}, errors.DatabaseError(err, "count entities")
	}
	if err := s.db.GetContext(ctx, &c.Relationships, `SELECT COUNT(*) FROM relationships`); err != nil {
		return Counts{}, errors.DatabaseError(err, "count relationships")
	}
	return c, nil
}

// Close closes the database connection
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func newEntityRow(e entity.Entity) (entityRow, error) {
	attrs, err := json.Marshal(e.Attributes)
	if err != nil {
		return entityRow{}, errors.InternalErrorf("marshal attributes of %s: %v", e.Key, err)
	}

	row := entityRow{Key: e.Key, Type: string(e.Type), Attributes: string(attrs)}
	if len(e.RawData) > 0 {
		raw, err := json.Marshal(e.RawData)
		if err != nil {
			return entityRow{}, errors.InternalErrorf("marshal raw data of %s: %v", e.Key, err)
		}
		row.RawData = sql.NullString{String: string(raw), Valid: true}
	}
	return row, nil
}

func (r entityRow) toEntity() (*entity.Entity, error) {
	e := &entity.Entity{Key: r.Key, Type: entity.Type(r.Type)}
	if err := json.Unmarshal([]byte(r.Attributes), &e.Attributes); err != nil {
		return nil, fmt.Errorf("decode attributes of %s: %w", r.Key, err)
	}
	if r.RawData.Valid && r.RawData.String != "" {
		if err := json.Unmarshal([]byte(r.RawData.String), &e.RawData); err != nil {
			return nil, fmt.Errorf("decode raw data of %s: %w", r.Key, err)
		}
	}
	return e, nil
}
