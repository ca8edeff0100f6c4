package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) CreateRefreshToken(ctx context.Context, userID int64, tokenHash []byte, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO refresh_tokens(user_id, token_hash, expires_at) VALUES(?, ?, ?)`,
		userID, tokenHash, expiresAt.UTC())
	if err != nil {
		return fmt.Errorf("写入刷新令牌失败: %w", err)
	}
	return nil
}

func (s *Store) GetRefreshToken(ctx context.Context, tokenHash []byte) (*RefreshToken, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, token_hash, expires_at, created_at FROM refresh_tokens WHERE token_hash = ?`, tokenHash)
	var t RefreshToken
	err := row.Scan(&t.ID, &t.UserID, &t.TokenHash, &t.ExpiresAt, &t.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询刷新令牌失败: %w", err)
	}
	return &t, nil
}

// RotateRefreshToken 在一条语句里完成换发，避免旧令牌窗口期内可重复使用。
func (s *Store) RotateRefreshToken(ctx context.Context, oldHash, newHash []byte, expiresAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE refresh_tokens SET token_hash = ?, expires_at = ? WHERE token_hash = ?`,
		newHash, expiresAt.UTC(), oldHash)
	if err != nil {
		return fmt.Errorf("轮换刷新令牌失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("轮换刷新令牌失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteRefreshTokensByUser(ctx context.Context, userID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("删除用户刷新令牌失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteExpiredRefreshTokens(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM refresh_tokens WHERE expires_at < ?`, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理过期刷新令牌失败: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
