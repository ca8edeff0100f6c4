package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) CreateInvitation(ctx context.Context, email, code string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO invitations(email, code) VALUES(?, ?)`, email, code)
	if err != nil {
		return 0, fmt.Errorf("创建邀请失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取邀请 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetInvitationByCode(ctx context.Context, code string) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, email, code, created_at FROM invitations WHERE code = ?`, code)
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.Email, &inv.Code, &inv.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询邀请失败: %w", err)
	}
	return &inv, nil
}

func (s *Store) ListInvitations(ctx context.Context, afterID, beforeID *int64, limit int, backward bool) ([]Invitation, error) {
	args := make([]any, 0, 3)
	q := `SELECT id, email, code, created_at FROM invitations WHERE 1=1`
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询邀请列表失败: %w", err)
	}
	defer rows.Close()

	var out []Invitation
	for rows.Next() {
		var inv Invitation
		if err := rows.Scan(&inv.ID, &inv.Email, &inv.Code, &inv.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描邀请行失败: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func (s *Store) DeleteInvitation(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除邀请失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除邀请失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteInvitationByEmail(ctx context.Context, email string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM invitations WHERE email = ?`, email); err != nil {
		return fmt.Errorf("删除邀请失败: %w", err)
	}
	return nil
}
