package sqlstore

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PipeOpsHQ/agent-backend/credential"
)

func (s *DB) UpsertToken(ctx context.Context, ownerKey, token string) error {
	ownerKey = strings.TrimSpace(ownerKey)
	if ownerKey == "" {
		return fmt.Errorf("owner key is required")
	}
	if token == "" {
		return fmt.Errorf("token is required")
	}
	const q = `
INSERT INTO user_tokens (user_id, github_token, updated_at)
VALUES (?, ?, ?)
ON CONFLICT(user_id) DO UPDATE SET
  github_token = excluded.github_token,
  updated_at = excluded.updated_at;
`
	if err := s.exec(ctx, q, ownerKey, token, formatTime(time.Now())); err != nil {
		return fmt.Errorf("failed to upsert token: %w", err)
	}
	return nil
}

func (s *DB) GetToken(ctx context.Context, ownerKey string) (credential.Record, error) {
	const q = `SELECT user_id, github_token, updated_at FROM user_tokens WHERE user_id = ?;`
	return s.scanToken(ctx, q, strings.TrimSpace(ownerKey))
}

func (s *DB) MostRecent(ctx context.Context) (credential.Record, error) {
	const q = `SELECT user_id, github_token, updated_at FROM user_tokens ORDER BY updated_at DESC LIMIT 1;`
	return s.scanToken(ctx, q)
}

func (s *DB) scanToken(ctx context.Context, q string, args ...any) (credential.Record, error) {
	var (
		rec       credential.Record
		updatedAt string
	)
	err := s.db.QueryRowContext(ctx, s.rebind(q), args...).Scan(&rec.OwnerKey, &rec.Token, &updatedAt)
	if isNoRows(err) {
		return credential.Record{}, credential.ErrNotFound
	}
	if err != nil {
		return credential.Record{}, fmt.Errorf("failed to load token: %w", err)
	}
	rec.UpdatedAt = parseTime(updatedAt)
	return rec, nil
}
