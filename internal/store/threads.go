package store

import (
	"context"
	"database/sql"
	"fmt"
)

func (s *Store) CreateThread(ctx context.Context, publicID string, userID int64, isEphemeral bool) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO threads(public_id, user_id, is_ephemeral) VALUES(?, ?, ?)`,
		publicID, userID, isEphemeral)
	if err != nil {
		return 0, fmt.Errorf("创建线程失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取线程 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetThreadByPublicID(ctx context.Context, publicID string) (*Thread, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, user_id, is_ephemeral, created_at, updated_at FROM threads WHERE public_id = ?`, publicID)
	var t Thread
	err := row.Scan(&t.ID, &t.PublicID, &t.UserID, &t.IsEphemeral, &t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询线程失败: %w", err)
	}
	return &t, nil
}

// ListThreads 按窗口列出线程。onlyOwner 非 nil 时仅取该用户的线程；
// excludeEphemeral 为真时隐藏临时线程（供非所有者视角使用）。
func (s *Store) ListThreads(ctx context.Context, ids []int64, onlyOwner *int64, excludeEphemeral bool, afterID, beforeID *int64, limit int, backward bool) ([]Thread, error) {
	args := make([]any, 0, len(ids)+4)
	q := `SELECT id, public_id, user_id, is_ephemeral, created_at, updated_at FROM threads WHERE 1=1`
	q += idsSQL("id", ids, &args)
	if onlyOwner != nil {
		q += ` AND user_id = ?`
		args = append(args, *onlyOwner)
	}
	if excludeEphemeral {
		q += ` AND is_ephemeral = 0`
	}
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询线程列表失败: %w", err)
	}
	defer rows.Close()

	var out []Thread
	for rows.Next() {
		var t Thread
		if err := rows.Scan(&t.ID, &t.PublicID, &t.UserID, &t.IsEphemeral, &t.CreatedAt, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("扫描线程行失败: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *Store) SetThreadPersisted(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE threads SET is_ephemeral = 0, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("更新线程失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新线程失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *Store) DeleteThread(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM threads WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("删除线程失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("删除线程失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM thread_messages WHERE thread_id = ?`, id); err != nil {
		return fmt.Errorf("删除线程消息失败: %w", err)
	}
	return nil
}

func (s *Store) CreateThreadMessage(ctx context.Context, publicID string, threadID int64, role, content string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO thread_messages(public_id, thread_id, role, content) VALUES(?, ?, ?, ?)`,
		publicID, threadID, role, content)
	if err != nil {
		return 0, fmt.Errorf("写入线程消息失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取消息 id 失败: %w", err)
	}
	_, _ = s.db.ExecContext(ctx, `UPDATE threads SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, threadID)
	return id, nil
}

func (s *Store) GetThreadMessageByPublicID(ctx context.Context, publicID string) (*ThreadMessage, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, public_id, thread_id, role, content, created_at FROM thread_messages WHERE public_id = ?`, publicID)
	var m ThreadMessage
	err := row.Scan(&m.ID, &m.PublicID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询线程消息失败: %w", err)
	}
	return &m, nil
}

func (s *Store) ListThreadMessages(ctx context.Context, threadID int64, afterID, beforeID *int64, limit int, backward bool) ([]ThreadMessage, error) {
	args := []any{threadID}
	q := `SELECT id, public_id, thread_id, role, content, created_at FROM thread_messages WHERE thread_id = ?`
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询线程消息失败: %w", err)
	}
	defer rows.Close()

	var out []ThreadMessage
	for rows.Next() {
		var m ThreadMessage
		if err := rows.Scan(&m.ID, &m.PublicID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描消息行失败: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LastAssistantMessagePair 返回线程尾部的 user/assistant 消息对；线程尾部不满足
// user 在前、assistant 在后的结构时返回 sql.ErrNoRows。
func (s *Store) LastAssistantMessagePair(ctx context.Context, threadID int64) (userMsg, assistantMsg *ThreadMessage, err error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, public_id, thread_id, role, content, created_at FROM thread_messages
		 WHERE thread_id = ? ORDER BY id DESC LIMIT 2`, threadID)
	if err != nil {
		return nil, nil, fmt.Errorf("查询消息对失败: %w", err)
	}
	defer rows.Close()

	var last []ThreadMessage
	for rows.Next() {
		var m ThreadMessage
		if err := rows.Scan(&m.ID, &m.PublicID, &m.ThreadID, &m.Role, &m.Content, &m.CreatedAt); err != nil {
			return nil, nil, fmt.Errorf("扫描消息行失败: %w", err)
		}
		last = append(last, m)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}
	if len(last) != 2 || last[0].Role != "assistant" || last[1].Role != "user" {
		return nil, nil, sql.ErrNoRows
	}
	return &last[1], &last[0], nil
}

func (s *Store) DeleteThreadMessages(ctx context.Context, ids ...int64) error {
	if len(ids) == 0 {
		return nil
	}
	args := make([]any, 0, len(ids))
	q := `DELETE FROM thread_messages WHERE 1=1` + idsSQL("id", ids, &args)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("删除线程消息失败: %w", err)
	}
	return nil
}

func (s *Store) UpdateThreadMessageContent(ctx context.Context, id int64, content string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE thread_messages SET content = ? WHERE id = ?`, content, id)
	if err != nil {
		return fmt.Errorf("更新线程消息失败: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("更新线程消息失败: %w", err)
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
