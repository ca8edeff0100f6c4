package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) CreateUserGroup(ctx context.Context, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `INSERT INTO user_groups(name) VALUES(?)`, name)
	if err != nil {
		return 0, fmt.Errorf("创建用户组失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取用户组 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetUserGroup(ctx context.Context, id int64) (*UserGroup, error) {
	row := s.db.QueryRowContext(ctx, `SELECT id, name, created_at FROM user_groups WHERE id = ?`, id)
	var g UserGroup
	err := row.Scan(&g.ID, &g.Name, &g.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户组失败: %w", err)
	}
	return &g, nil
}

func (s *Store) ListUserGroups(ctx context.Context) ([]UserGroup, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name, created_at FROM user_groups ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("查询用户组列表失败: %w", err)
	}
	defer rows.Close()

	var out []UserGroup
	for rows.Next() {
		var g UserGroup
		if err := rows.Scan(&g.ID, &g.Name, &g.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描用户组行失败: %w", err)
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func (s *Store) DeleteUserGroup(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM user_groups WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除用户组失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除用户组失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM user_group_memberships WHERE user_group_id = ?`, id); err != nil {
		return fmt.Errorf("删除用户组成员失败: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM source_id_read_access WHERE user_group_id = ?`, id); err != nil {
		return fmt.Errorf("删除来源授权失败: %w", err)
	}
	return nil
}

// UpsertUserGroupMembership 幂等写入成员关系，重复写入仅更新管理员标记。
func (s *Store) UpsertUserGroupMembership(ctx context.Context, groupID, userID int64, isGroupAdmin bool) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE user_group_memberships SET is_group_admin = ? WHERE user_group_id = ? AND user_id = ?`,
		isGroupAdmin, groupID, userID)
	if err != nil {
		return fmt.Errorf("更新用户组成员失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_group_memberships(user_group_id, user_id, is_group_admin) VALUES(?, ?, ?)`,
		groupID, userID, isGroupAdmin); err != nil {
		return fmt.Errorf("写入用户组成员失败: %w", err)
	}
	return nil
}

func (s *Store) DeleteUserGroupMembership(ctx context.Context, groupID, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_group_memberships WHERE user_group_id = ? AND user_id = ?`, groupID, userID)
	if err != nil {
		return fmt.Errorf("删除用户组成员失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除用户组成员失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListUserGroupMemberships(ctx context.Context, groupID int64) ([]UserGroupMembership, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_group_id, user_id, is_group_admin, created_at FROM user_group_memberships WHERE user_group_id = ? ORDER BY user_id`, groupID)
	if err != nil {
		return nil, fmt.Errorf("查询用户组成员失败: %w", err)
	}
	defer rows.Close()

	var out []UserGroupMembership
	for rows.Next() {
		var m UserGroupMembership
		if err := rows.Scan(&m.UserGroupID, &m.UserID, &m.IsGroupAdmin, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描成员行失败: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// IsGroupAdmin 查询用户在组内是否持有组管理员标记。
func (s *Store) IsGroupAdmin(ctx context.Context, groupID, userID int64) (bool, error) {
	var isAdmin bool
	err := s.db.QueryRowContext(ctx,
		`SELECT is_group_admin FROM user_group_memberships WHERE user_group_id = ? AND user_id = ?`,
		groupID, userID).Scan(&isAdmin)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("查询组管理员标记失败: %w", err)
	}
	return isAdmin, nil
}

func (s *Store) GrantSourceIDReadAccess(ctx context.Context, sourceID string, groupID int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE source_id_read_access SET created_at = created_at WHERE source_id = ? AND user_group_id = ?`,
		sourceID, groupID)
	if err != nil {
		return fmt.Errorf("写入来源授权失败: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO source_id_read_access(source_id, user_group_id) VALUES(?, ?)`,
		sourceID, groupID); err != nil {
		return fmt.Errorf("写入来源授权失败: %w", err)
	}
	return nil
}

func (s *Store) RevokeSourceIDReadAccess(ctx context.Context, sourceID string, groupID int64) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM source_id_read_access WHERE source_id = ? AND user_group_id = ?`, sourceID, groupID)
	if err != nil {
		return fmt.Errorf("删除来源授权失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除来源授权失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) ListSourceIDAccessGroups(ctx context.Context, sourceID string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_group_id FROM source_id_read_access WHERE source_id = ? ORDER BY user_group_id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("查询来源授权失败: %w", err)
	}
	defer rows.Close()

	var out []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("扫描授权行失败: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// SourceIDReadable 判断用户是否可读指定来源：来源未配置任何授权组时默认放行，
// 配置过授权组则要求用户属于其中之一。
func (s *Store) SourceIDReadable(ctx context.Context, sourceID string, userID int64) (bool, error) {
	var total int64
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_id_read_access WHERE source_id = ?`, sourceID).Scan(&total); err != nil {
		return false, fmt.Errorf("查询来源授权失败: %w", err)
	}
	if total == 0 {
		return true, nil
	}
	var n int64
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM source_id_read_access a
		 JOIN user_group_memberships m ON m.user_group_id = a.user_group_id
		 WHERE a.source_id = ? AND m.user_id = ?`, sourceID, userID).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("查询来源授权失败: %w", err)
	}
	return n > 0, nil
}
