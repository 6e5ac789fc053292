package storage

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/rohankatakam/mailgraph/internal/config"
	"github.com/rohankatakam/mailgraph/internal/errors"
)

// Open creates the store selected by cfg.Backend
func Open(ctx context.Context, cfg config.StorageConfig, logger *logrus.Logger) (Store, error) {
	switch cfg.Backend {
	case "memory":
		return NewMemoryStore(), nil
	case "sqlite", "":
		s, err := NewSQLiteStore(cfg.LocalPath, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "postgres":
		s, err := NewPostgresStore(ctx, cfg.PostgresDSN, logger)
		if err != nil {
			return nil, err
		}
		return s, nil
	case "bolt":
		s, err := NewBoltStore(cfg.LocalPath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, errors.ConfigErrorf("unknown storage backend %q", cfg.Backend)
	}
}
