package store

import (
	"context"
	"fmt"
	"time"
)

// 事件种类沿用固定小写串，分析查询按种类聚合。
const (
	EventCompletion = "completion"
	EventSelect     = "select"
	EventView       = "view"
	EventDismiss    = "dismiss"
	EventChat       = "chat"
)

// DailyStat 是按天聚合的补全类事件计数。
type DailyStat struct {
	Date        string `json:"date"`
	Completions int64  `json:"completions"`
	Selects     int64  `json:"selects"`
	Views       int64  `json:"views"`
}

// ChatDailyStat 是按天聚合的对话事件计数。
type ChatDailyStat struct {
	Date  string `json:"date"`
	Chats int64  `json:"chats"`
}

func (s *Store) CreateUserEvent(ctx context.Context, userID int64, kind, payload string) error {
	if _, err := s.db.ExecContext(ctx,
		`INSERT INTO user_events(user_id, kind, payload) VALUES(?, ?, ?)`,
		userID, kind, payload); err != nil {
		return fmt.Errorf("写入用户事件失败: %w", err)
	}
	return nil
}

// ListUserEvents 列出时间区间内的事件；users 为空表示全部用户。
func (s *Store) ListUserEvents(ctx context.Context, users []int64, start, end time.Time, afterID, beforeID *int64, limit int, backward bool) ([]UserEvent, error) {
	args := []any{start.UTC(), end.UTC()}
	q := `SELECT id, user_id, kind, payload, created_at FROM user_events WHERE created_at >= ? AND created_at < ?`
	q += idsSQL("user_id", users, &args)
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询用户事件失败: %w", err)
	}
	defer rows.Close()

	var out []UserEvent
	for rows.Next() {
		var e UserEvent
		if err := rows.Scan(&e.ID, &e.UserID, &e.Kind, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("扫描事件行失败: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// DailyStats 统计区间内补全、采纳、浏览三类事件的按天计数；users 为空表示全部用户。
// DATE() 在两种方言下行为一致，这里直接复用。
func (s *Store) DailyStats(ctx context.Context, users []int64, start, end time.Time) ([]DailyStat, error) {
	args := []any{start.UTC(), end.UTC()}
	q := `SELECT DATE(created_at),
	  COALESCE(SUM(CASE WHEN kind = 'completion' THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN kind = 'select' THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN kind = 'view' THEN 1 ELSE 0 END), 0)
	FROM user_events WHERE created_at >= ? AND created_at < ?`
	q += idsSQL("user_id", users, &args)
	q += ` GROUP BY DATE(created_at) ORDER BY DATE(created_at)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("统计每日事件失败: %w", err)
	}
	defer rows.Close()

	var out []DailyStat
	for rows.Next() {
		var st DailyStat
		if err := rows.Scan(&st.Date, &st.Completions, &st.Selects, &st.Views); err != nil {
			return nil, fmt.Errorf("扫描统计行失败: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (s *Store) ChatDailyStats(ctx context.Context, users []int64, start, end time.Time) ([]ChatDailyStat, error) {
	args := []any{EventChat, start.UTC(), end.UTC()}
	q := `SELECT DATE(created_at), COUNT(*)
	FROM user_events WHERE kind = ? AND created_at >= ? AND created_at < ?`
	q += idsSQL("user_id", users, &args)
	q += ` GROUP BY DATE(created_at) ORDER BY DATE(created_at)`

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("统计每日对话失败: %w", err)
	}
	defer rows.Close()

	var out []ChatDailyStat
	for rows.Next() {
		var st ChatDailyStat
		if err := rows.Scan(&st.Date, &st.Chats); err != nil {
			return nil, fmt.Errorf("扫描统计行失败: %w", err)
		}
		out = append(out, st)
	}
	return out, rows.Err()
}
