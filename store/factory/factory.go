// Package factory builds the credential and telemetry stores selected by
// configuration.
package factory

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/credential"
	"github.com/PipeOpsHQ/agent-backend/internal/config"
	observestore "github.com/PipeOpsHQ/agent-backend/observe/store"
	"github.com/PipeOpsHQ/agent-backend/store/hybrid"
	"github.com/PipeOpsHQ/agent-backend/store/postgres"
	redisstore "github.com/PipeOpsHQ/agent-backend/store/redis"
	sqlitestore "github.com/PipeOpsHQ/agent-backend/store/sqlite"
	"github.com/PipeOpsHQ/agent-backend/store/sqlstore"
)

// Stores groups the persistence handles of one process. Credentials and
// Telemetry may share a connection pool; close them through Close only.
type Stores struct {
	Credentials credential.Store
	Telemetry   observestore.Store

	closers []io.Closer
}

func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i].Close())
	}
	return errors.Join(errs...)
}

// FromEnv loads configuration from the environment and opens the stores.
func FromEnv(ctx context.Context, logger *zap.Logger) (*Stores, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return FromConfig(ctx, cfg.Store, logger)
}

func FromConfig(ctx context.Context, cfg config.StoreConfig, logger *zap.Logger) (*Stores, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Backend {
	case "sqlite", "":
		db, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return shared(db), nil

	case "postgres":
		db, err := postgres.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		return shared(db), nil

	case "hybrid":
		db, err := sqlitestore.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		stores := shared(db)
		cache, err := redisstore.New(cfg.RedisAddr,
			redisstore.WithPassword(cfg.RedisPassword),
			redisstore.WithDB(cfg.RedisDB),
			redisstore.WithTTL(cfg.RedisTTL),
		)
		if err != nil {
			logger.Warn("redis unavailable, token cache disabled", zap.String("addr", cfg.RedisAddr), zap.Error(err))
			return stores, nil
		}
		h, err := hybrid.New(db, cache, logger)
		if err != nil {
			_ = cache.Close()
			_ = db.Close()
			return nil, err
		}
		stores.Credentials = h
		stores.closers = append(stores.closers, cache)
		return stores, nil

	default:
		return nil, fmt.Errorf("unsupported AGENT_STORE_BACKEND %q (use sqlite, postgres, or hybrid)", cfg.Backend)
	}
}

func shared(db *sqlstore.DB) *Stores {
	return &Stores{Credentials: db, Telemetry: db, closers: []io.Closer{db}}
}
