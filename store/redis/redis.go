// Package redis caches owner tokens in Redis. It is used as the read-through
// layer of the hybrid credential store.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/PipeOpsHQ/agent-backend/credential"
)

const (
	defaultTTL    = 24 * time.Hour
	defaultPrefix = "agent-backend"
)

type Store struct {
	client   *goredis.Client
	ttl      time.Duration
	prefix   string
	addr     string
	db       int
	password string
}

type Option func(*Store)

func WithPassword(password string) Option {
	return func(s *Store) {
		s.password = password
	}
}

func WithDB(db int) Option {
	return func(s *Store) {
		s.db = db
	}
}

func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		if ttl > 0 {
			s.ttl = ttl
		}
	}
}

func WithPrefix(prefix string) Option {
	return func(s *Store) {
		if strings.TrimSpace(prefix) != "" {
			s.prefix = strings.TrimSpace(prefix)
		}
	}
}

func WithClient(client *goredis.Client) Option {
	return func(s *Store) {
		if client != nil {
			s.client = client
		}
	}
}

func New(addr string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(addr) == "" {
		return nil, fmt.Errorf("redis addr is required")
	}
	s := &Store{
		ttl:    defaultTTL,
		prefix: defaultPrefix,
		addr:   addr,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.client == nil {
		s.client = goredis.NewClient(&goredis.Options{
			Addr:     s.addr,
			Password: s.password,
			DB:       s.db,
		})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		_ = s.client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return s, nil
}

// cachedToken is the wire form; credential.Record hides the token from JSON.
type cachedToken struct {
	OwnerKey  string    `json:"ownerKey"`
	Token     string    `json:"token"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (s *Store) tokenKey(owner string) string {
	return s.prefix + ":token:" + owner
}

func (s *Store) recentKey() string {
	return s.prefix + ":tokens:recent"
}

func (s *Store) UpsertToken(ctx context.Context, ownerKey, token string) error {
	return s.put(ctx, credential.Record{OwnerKey: ownerKey, Token: token, UpdatedAt: time.Now().UTC()})
}

// Put stores rec as-is, keeping its UpdatedAt. The hybrid store uses it to
// backfill from the durable layer.
func (s *Store) Put(ctx context.Context, rec credential.Record) error {
	return s.put(ctx, rec)
}

func (s *Store) put(ctx context.Context, rec credential.Record) error {
	rec.OwnerKey = strings.TrimSpace(rec.OwnerKey)
	if rec.OwnerKey == "" {
		return fmt.Errorf("owner key is required")
	}
	if rec.Token == "" {
		return fmt.Errorf("token is required")
	}
	raw, err := json.Marshal(cachedToken{OwnerKey: rec.OwnerKey, Token: rec.Token, UpdatedAt: rec.UpdatedAt})
	if err != nil {
		return fmt.Errorf("failed to marshal token: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.tokenKey(rec.OwnerKey), raw, s.ttl)
	pipe.ZAdd(ctx, s.recentKey(), goredis.Z{Score: float64(rec.UpdatedAt.UnixMilli()), Member: rec.OwnerKey})
	pipe.Expire(ctx, s.recentKey(), s.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to cache token: %w", err)
	}
	return nil
}

func (s *Store) GetToken(ctx context.Context, ownerKey string) (credential.Record, error) {
	raw, err := s.client.Get(ctx, s.tokenKey(strings.TrimSpace(ownerKey))).Bytes()
	if errors.Is(err, goredis.Nil) {
		return credential.Record{}, credential.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("failed to load token: %w", err)
	}
	var c cachedToken
	if err := json.Unmarshal(raw, &c); err != nil {
		return credential.Record{}, fmt.Errorf("failed to decode token: %w", err)
	}
	return credential.Record{OwnerKey: c.OwnerKey, Token: c.Token, UpdatedAt: c.UpdatedAt}, nil
}

func (s *Store) MostRecent(ctx context.Context) (credential.Record, error) {
	owners, err := s.client.ZRevRange(ctx, s.recentKey(), 0, 0).Result()
	if err != nil {
		return credential.Record{}, fmt.Errorf("failed to load recent tokens: %w", err)
	}
	if len(owners) == 0 {
		return credential.Record{}, credential.ErrNotFound
	}
	return s.GetToken(ctx, owners[0])
}

func (s *Store) Close() error {
	if s == nil || s.client == nil {
		return nil
	}
	return s.client.Close()
}

var _ credential.Store = (*Store)(nil)
