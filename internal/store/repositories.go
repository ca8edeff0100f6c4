package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) CreateGitRepository(ctx context.Context, name, gitURL string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO git_repositories(name, git_url) VALUES(?, ?)`, name, gitURL)
	if err != nil {
		return 0, fmt.Errorf("创建仓库失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取仓库 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetGitRepository(ctx context.Context, id int64) (*GitRepository, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, git_url, created_at FROM git_repositories WHERE id = ?`, id)
	var r GitRepository
	err := row.Scan(&r.ID, &r.Name, &r.GitURL, &r.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询仓库失败: %w", err)
	}
	return &r, nil
}

func (s *Store) ListGitRepositories(ctx context.Context, afterID, beforeID *int64, limit int, backward bool) ([]GitRepository, error) {
	args := make([]any, 0, 3)
	q := `SELECT id, name, git_url, created_at FROM git_repositories WHERE 1=1`
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询仓库列表失败: %w", err)
	}
	defer rows.Close()

	var out []GitRepository
	for rows.Next() {
		var r GitRepository
		if err := rows.Scan(&r.ID, &r.Name, &r.GitURL, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描仓库行失败: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) UpdateGitRepository(ctx context.Context, id int64, name, gitURL string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE git_repositories SET name = ?, git_url = ? WHERE id = ?`, name, gitURL, id)
	if err != nil {
		return fmt.Errorf("更新仓库失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新仓库失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteGitRepository(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM git_repositories WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除仓库失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除仓库失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) CreateIntegration(ctx context.Context, kind, displayName, accessToken string, apiBase *string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO integrations(kind, display_name, access_token, api_base) VALUES(?, ?, ?, ?)`,
		kind, displayName, accessToken, apiBase)
	if err != nil {
		return 0, fmt.Errorf("创建集成失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取集成 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetIntegration(ctx context.Context, id int64) (*Integration, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, display_name, access_token, api_base, created_at FROM integrations WHERE id = ?`, id)
	var in Integration
	err := row.Scan(&in.ID, &in.Kind, &in.DisplayName, &in.AccessToken, &in.APIBase, &in.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询集成失败: %w", err)
	}
	return &in, nil
}

// ListIntegrations 按窗口列出集成；ids 限定行，kind 限定类型。
func (s *Store) ListIntegrations(ctx context.Context, ids []int64, kind string, afterID, beforeID *int64, limit int, backward bool) ([]Integration, error) {
	args := make([]any, 0, len(ids)+4)
	q := `SELECT id, kind, display_name, access_token, api_base, created_at FROM integrations WHERE 1=1`
	q += idsSQL("id", ids, &args)
	if kind != "" {
		q += ` AND kind = ?`
		args = append(args, kind)
	}
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询集成列表失败: %w", err)
	}
	defer rows.Close()

	var out []Integration
	for rows.Next() {
		var in Integration
		if err := rows.Scan(&in.ID, &in.Kind, &in.DisplayName, &in.AccessToken, &in.APIBase, &in.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描集成行失败: %w", err)
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

func (s *Store) UpdateIntegration(ctx context.Context, id int64, displayName, accessToken string, apiBase *string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE integrations SET display_name = ?, access_token = ?, api_base = ? WHERE id = ?`,
		displayName, accessToken, apiBase, id)
	if err != nil {
		return fmt.Errorf("更新集成失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新集成失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteIntegration(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM integrations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除集成失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除集成失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
