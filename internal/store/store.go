// Package store 提供数据库读写的封装与基础约束，保证业务层只处理领域语义而不是 SQL 细节。
//
// 所有列表查询共享同一套游标窗口约定：在 (afterID, beforeID) 开区间内按 id 全序取数，
// limit 由分页引擎带探测行传入，backward 表示从窗口尾部倒序取。
package store

import (
	"database/sql"
	"fmt"
	"strings"
)

type Store struct {
	db      *sql.DB
	dialect Dialect
}

func New(db *sql.DB) *Store {
	return &Store{
		db:      db,
		dialect: DialectSQLite,
	}
}

func (s *Store) SetDialect(d Dialect) {
	if strings.TrimSpace(string(d)) == "" {
		return
	}
	s.dialect = d
}

// windowSQL 拼接游标窗口条件与排序；返回的片段以 " AND" 开头便于追加在 WHERE 1=1 之后。
func windowSQL(afterID, beforeID *int64, backward bool, args *[]any) string {
	var b strings.Builder
	if afterID != nil {
		b.WriteString(" AND id > ?")
		*args = append(*args, *afterID)
	}
	if beforeID != nil {
		b.WriteString(" AND id < ?")
		*args = append(*args, *beforeID)
	}
	if backward {
		b.WriteString(" ORDER BY id DESC LIMIT ?")
	} else {
		b.WriteString(" ORDER BY id ASC LIMIT ?")
	}
	return b.String()
}

// idsSQL 生成 id IN (...) 条件；空集合表示不过滤。
func idsSQL(col string, ids []int64, args *[]any) string {
	if len(ids) == 0 {
		return ""
	}
	ph := make([]string, len(ids))
	for i, id := range ids {
		ph[i] = "?"
		*args = append(*args, id)
	}
	return fmt.Sprintf(" AND %s IN (%s)", col, strings.Join(ph, ","))
}
