package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) CreatePage(ctx context.Context, publicID string, authorID int64, title, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO pages(public_id, author_id, title, content) VALUES(?, ?, ?, ?)`,
		publicID, authorID, title, content)
	if err != nil {
		return 0, fmt.Errorf("创建页面失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取页面 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetPageByPublicID(ctx context.Context, publicID string) (*Page, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, author_id, title, content, created_at, updated_at FROM pages WHERE public_id = ?`, publicID)
	var p Page
	err := row.Scan(&p.ID, &p.PublicID, &p.AuthorID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询页面失败: %w", err)
	}
	return &p, nil
}

func (s *Store) ListPages(ctx context.Context, ids []int64, afterID, beforeID *int64, limit int, backward bool) ([]Page, error) {
	args := make([]any, 0, len(ids)+3)
	q := `SELECT id, public_id, author_id, title, content, created_at, updated_at FROM pages WHERE 1=1`
	q += idsSQL("id", ids, &args)
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询页面列表失败: %w", err)
	}
	defer rows.Close()

	var out []Page
	for rows.Next() {
		var p Page
		if err := rows.Scan(&p.ID, &p.PublicID, &p.AuthorID, &p.Title, &p.Content, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描页面行失败: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePageTitle(ctx context.Context, id int64, title string) error {
	return s.updatePage(ctx, `UPDATE pages SET title = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, title, id)
}

func (s *Store) UpdatePageContent(ctx context.Context, id int64, content string) error {
	return s.updatePage(ctx, `UPDATE pages SET content = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, content, id)
}

func (s *Store) updatePage(ctx context.Context, q string, args ...any) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("更新页面失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新页面失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeletePage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM pages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除页面失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除页面失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM page_sections WHERE page_id = ?`, id); err != nil {
		return fmt.Errorf("删除页面小节失败: %w", err)
	}
	return nil
}

func (s *Store) CreatePageSection(ctx context.Context, publicID string, pageID int64, title, content string) (int64, error) {
	var pos int
	err := s.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(position), -1) + 1 FROM page_sections WHERE page_id = ?`, pageID).Scan(&pos)
	if err != nil {
		return 0, fmt.Errorf("计算小节位置失败: %w", err)
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO page_sections(public_id, page_id, title, content, position) VALUES(?, ?, ?, ?, ?)`,
		publicID, pageID, title, content, pos)
	if err != nil {
		return 0, fmt.Errorf("创建页面小节失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取小节 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetPageSectionByPublicID(ctx context.Context, publicID string) (*PageSection, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, page_id, title, content, position, created_at FROM page_sections WHERE public_id = ?`, publicID)
	var sec PageSection
	err := row.Scan(&sec.ID, &sec.PublicID, &sec.PageID, &sec.Title, &sec.Content, &sec.Position, &sec.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询页面小节失败: %w", err)
	}
	return &sec, nil
}

func (s *Store) ListPageSections(ctx context.Context, pageID int64, afterID, beforeID *int64, limit int, backward bool) ([]PageSection, error) {
	args := []any{pageID}
	q := `SELECT id, public_id, page_id, title, content, position, created_at FROM page_sections WHERE page_id = ?`
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询页面小节失败: %w", err)
	}
	defer rows.Close()

	var out []PageSection
	for rows.Next() {
		var sec PageSection
		if err := rows.Scan(&sec.ID, &sec.PublicID, &sec.PageID, &sec.Title, &sec.Content, &sec.Position, &sec.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描小节行失败: %w", err)
		}
		out = append(out, sec)
	}
	return out, rows.Err()
}

func (s *Store) UpdatePageSection(ctx context.Context, id int64, title, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE page_sections SET title = ?, content = ? WHERE id = ?`, title, content, id)
	if err != nil {
		return fmt.Errorf("更新页面小节失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新页面小节失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeletePageSection(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM page_sections WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除页面小节失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除页面小节失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// MovePageSection 与相邻小节交换 position；direction 为 -1（上移）或 +1（下移）。
// 已处于边界时为空操作。
func (s *Store) MovePageSection(ctx context.Context, id int64, direction int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("开启事务失败: %w", err)
	}
	defer tx.Rollback()

	var pageID int64
	var pos int
	err = tx.QueryRowContext(ctx,
		`SELECT page_id, position FROM page_sections WHERE id = ?`, id).Scan(&pageID, &pos)
	if err == sql.ErrNoRows {
		return sql.ErrNoRows
	}
	if err != nil {
		return fmt.Errorf("查询小节位置失败: %w", err)
	}

	cmp, order := "<", "DESC"
	if direction > 0 {
		cmp, order = ">", "ASC"
	}
	var neighborID int64
	var neighborPos int
	err = tx.QueryRowContext(ctx,
		`SELECT id, position FROM page_sections WHERE page_id = ? AND position `+cmp+` ? ORDER BY position `+order+` LIMIT 1`,
		pageID, pos).Scan(&neighborID, &neighborPos)
	if err == sql.ErrNoRows {
		return nil
	}
	if err != nil {
		return fmt.Errorf("查询相邻小节失败: %w", err)
	}

	if _, err := tx.ExecContext(ctx, `UPDATE page_sections SET position = ? WHERE id = ?`, neighborPos, id); err != nil {
		return fmt.Errorf("交换小节位置失败: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE page_sections SET position = ? WHERE id = ?`, pos, neighborID); err != nil {
		return fmt.Errorf("交换小节位置失败: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("提交事务失败: %w", err)
	}
	return nil
}
