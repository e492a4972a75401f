// Package hybrid layers a token cache in front of a durable credential
// store. The durable store is the source of truth; cache failures are
// logged and never surfaced.
package hybrid

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/PipeOpsHQ/agent-backend/credential"
)

// Cache is a credential.Store that can also accept a record with its
// original timestamp.
type Cache interface {
	credential.Store
	Put(ctx context.Context, rec credential.Record) error
}

type Store struct {
	durable credential.Store
	cache   Cache
	logger  *zap.Logger
}

func New(durable credential.Store, cache Cache, logger *zap.Logger) (*Store, error) {
	if durable == nil {
		return nil, fmt.Errorf("durable store is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{durable: durable, cache: cache, logger: logger}, nil
}

func (h *Store) UpsertToken(ctx context.Context, ownerKey, token string) error {
	if err := h.durable.UpsertToken(ctx, ownerKey, token); err != nil {
		return err
	}
	if h.cache != nil {
		if err := h.cache.UpsertToken(ctx, ownerKey, token); err != nil {
			h.logger.Warn("token cache upsert failed", zap.String("owner", ownerKey), zap.Error(err))
		}
	}
	return nil
}

func (h *Store) GetToken(ctx context.Context, ownerKey string) (credential.Record, error) {
	if h.cache != nil {
		rec, err := h.cache.GetToken(ctx, ownerKey)
		if err == nil {
			return rec, nil
		}
		if !errors.Is(err, credential.ErrNotFound) {
			h.logger.Warn("token cache read failed", zap.String("owner", ownerKey), zap.Error(err))
		}
	}

	rec, err := h.durable.GetToken(ctx, ownerKey)
	if err != nil {
		return credential.Record{}, err
	}
	if h.cache != nil {
		if err := h.cache.Put(ctx, rec); err != nil {
			h.logger.Warn("token cache backfill failed", zap.String("owner", ownerKey), zap.Error(err))
		}
	}
	return rec, nil
}

// MostRecent always reads the durable store; the cache may have evicted
// the newest entry.
func (h *Store) MostRecent(ctx context.Context) (credential.Record, error) {
	return h.durable.MostRecent(ctx)
}

func (h *Store) Close() error {
	var errs []error
	if h.cache != nil {
		errs = append(errs, h.cache.Close())
	}
	errs = append(errs, h.durable.Close())
	return errors.Join(errs...)
}

var _ credential.Store = (*Store)(nil)
