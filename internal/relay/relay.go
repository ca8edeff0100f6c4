// Package relay 实现不透明游标分页：给定 (after, before, first, last) 窗口与一个
// 有序的后端取数函数，产出 relay 风格的 Connection（edges + page_info）。
//
// 游标对调用方完全不透明（row id 的 base64url 编码）；引擎从不把游标当偏移量使用，
// 同一 (filter, cursor, direction) 在底层数据不变时总是得到相同的切片。
package relay

import (
	"context"
	"encoding/base64"
	"strconv"

	"sage/internal/apierr"
)

const defaultPageSize = 20

type Edge[T any] struct {
	Node   T      `json:"node"`
	Cursor string `json:"cursor"`
}

type PageInfo struct {
	HasNextPage     bool    `json:"has_next_page"`
	HasPreviousPage bool    `json:"has_previous_page"`
	StartCursor     *string `json:"start_cursor"`
	EndCursor       *string `json:"end_cursor"`
}

type Connection[T any] struct {
	Edges    []Edge[T] `json:"edges"`
	PageInfo PageInfo  `json:"page_info"`
}

// Row 是后端取数返回的一行：ID 用于铸造游标，必须与后端排序使用的全序一致。
type Row[T any] struct {
	ID   int64
	Node T
}

// FetchFunc 在 (after, before) 开区间内按 id 全序取数：
//   - backward 为 false：按 id 升序返回最前 limit 行
//   - backward 为 true：按 id 降序返回最后 limit 行（引擎负责翻转回升序）
//
// limit 总是比窗口多 1（探测行），引擎据此计算 has_next/has_previous。
type FetchFunc[T any] func(ctx context.Context, after, before *int64, limit int, backward bool) ([]Row[T], error)

// Paginate 应用 relay 的分页规则。first 与 last 同时给出时：
// 先按 first/after 取正向窗口，再从窗口前端截断保留 last 条。
func Paginate[T any](ctx context.Context, after, before *string, first, last *int, fetch FetchFunc[T]) (*Connection[T], error) {
	v := &apierr.Validator{}
	if first != nil && *first < 0 {
		v.Fail("first", "必须是非负整数")
	}
	if last != nil && *last < 0 {
		v.Fail("last", "必须是非负整数")
	}
	afterID, err := decodeCursor(after)
	if err != nil {
		v.Fail("after", "无法识别的游标")
	}
	beforeID, err := decodeCursor(before)
	if err != nil {
		v.Fail("before", "无法识别的游标")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	backward := last != nil && first == nil

	count := defaultPageSize
	if backward {
		count = *last
	} else if first != nil {
		count = *first
	}

	rows, err := fetch(ctx, afterID, beforeID, count+1, backward)
	if err != nil {
		return nil, err
	}

	conn := &Connection[T]{Edges: []Edge[T]{}}

	if backward {
		conn.PageInfo.HasPreviousPage = len(rows) > count
		conn.PageInfo.HasNextPage = before != nil
		if len(rows) > count {
			rows = rows[:count]
		}
		reverse(rows)
	} else {
		conn.PageInfo.HasNextPage = len(rows) > count
		conn.PageInfo.HasPreviousPage = after != nil
		if len(rows) > count {
			rows = rows[:count]
		}
		// first 与 last 同时给出：对正向窗口再做反向截断。
		if first != nil && last != nil && len(rows) > *last {
			drop := len(rows) - *last
			rows = rows[drop:]
			conn.PageInfo.HasPreviousPage = true
		}
	}

	for _, row := range rows {
		conn.Edges = append(conn.Edges, Edge[T]{Node: row.Node, Cursor: encodeCursor(row.ID)})
	}
	if len(conn.Edges) > 0 {
		start := conn.Edges[0].Cursor
		end := conn.Edges[len(conn.Edges)-1].Cursor
		conn.PageInfo.StartCursor = &start
		conn.PageInfo.EndCursor = &end
	}
	return conn, nil
}

func encodeCursor(id int64) string {
	return base64.RawURLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

func decodeCursor(cursor *string) (*int64, error) {
	if cursor == nil || *cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(*cursor)
	if err != nil {
		return nil, err
	}
	id, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

func reverse[T any](rows []Row[T]) {
	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
}
