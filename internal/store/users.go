package store

import (
	"context"
	"database/sql"
	"fmt"
)

const userColumns = `id, email, name, password_hash, is_admin, active, auth_token, created_at, updated_at`

func scanUser(row interface{ Scan(...any) error }) (*User, error) {
	var u User
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &u.IsAdmin, &u.Active, &u.AuthToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (s *Store) CreateUser(ctx context.Context, email, name string, passwordHash []byte, isAdmin bool, authToken string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users(email, name, password_hash, is_admin, active, auth_token) VALUES(?, ?, ?, ?, 1, ?)`,
		email, name, passwordHash, isAdmin, authToken)
	if err != nil {
		return 0, fmt.Errorf("创建用户失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取用户 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email = ?`, email)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("按邮箱查询用户失败: %w", err)
	}
	return u, nil
}

func (s *Store) GetUserByAuthToken(ctx context.Context, token string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE auth_token = ? AND auth_token != ''`, token)
	u, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("按 auth_token 查询用户失败: %w", err)
	}
	return u, nil
}

// ListUsers 在游标窗口内列出用户；ids 为空时不过滤。
func (s *Store) ListUsers(ctx context.Context, ids []int64, afterID, beforeID *int64, limit int, backward bool) ([]User, error) {
	args := make([]any, 0, len(ids)+3)
	q := `SELECT ` + userColumns + ` FROM users WHERE 1=1`
	q += idsSQL("id", ids, &args)
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询用户列表失败: %w", err)
	}
	defer rows.Close()

	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("扫描用户行失败: %w", err)
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

func (s *Store) CountUsers(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计用户数失败: %w", err)
	}
	return n, nil
}

func (s *Store) CountActiveAdmins(ctx context.Context) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE is_admin = 1 AND active = 1`).Scan(&n); err != nil {
		return 0, fmt.Errorf("统计管理员数失败: %w", err)
	}
	return n, nil
}

func (s *Store) SetUserActive(ctx context.Context, id int64, active bool) error {
	return s.updateUser(ctx, id, `UPDATE users SET active = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, active, id)
}

func (s *Store) SetUserRole(ctx context.Context, id int64, isAdmin bool) error {
	return s.updateUser(ctx, id, `UPDATE users SET is_admin = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, isAdmin, id)
}

func (s *Store) SetUserName(ctx context.Context, id int64, name string) error {
	return s.updateUser(ctx, id, `UPDATE users SET name = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, name, id)
}

func (s *Store) SetUserPassword(ctx context.Context, id int64, passwordHash []byte) error {
	return s.updateUser(ctx, id, `UPDATE users SET password_hash = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, passwordHash, id)
}

func (s *Store) SetUserAuthToken(ctx context.Context, id int64, token string) error {
	return s.updateUser(ctx, id, `UPDATE users SET auth_token = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, token, id)
}

// SetUserAvatar 传入 nil 表示清除头像。
func (s *Store) SetUserAvatar(ctx context.Context, id int64, avatar []byte) error {
	return s.updateUser(ctx, id, `UPDATE users SET avatar = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, avatar, id)
}

func (s *Store) GetUserAvatar(ctx context.Context, id int64) ([]byte, error) {
	var avatar []byte
	err := s.db.QueryRowContext(ctx, `SELECT avatar FROM users WHERE id = ?`, id).Scan(&avatar)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询头像失败: %w", err)
	}
	return avatar, nil
}

func (s *Store) updateUser(ctx context.Context, id int64, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("更新用户失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新用户失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
