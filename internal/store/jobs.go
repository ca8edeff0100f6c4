package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// JobStats 汇总一段时间内任务运行的结果分布。
type JobStats struct {
	Success int64 `json:"success"`
	Failed  int64 `json:"failed"`
	Pending int64 `json:"pending"`
}

func (s *Store) CreateJobRun(ctx context.Context, job, command string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO job_runs(job, command) VALUES(?, ?)`, job, command)
	if err != nil {
		return 0, fmt.Errorf("创建任务运行失败: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("读取任务运行 id 失败: %w", err)
	}
	return id, nil
}

func (s *Store) GetJobRun(ctx context.Context, id int64) (*JobRun, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, job, command, exit_code, stdout, created_at, started_at, finished_at FROM job_runs WHERE id = ?`, id)
	var r JobRun
	err := row.Scan(&r.ID, &r.Job, &r.Command, &r.ExitCode, &r.Stdout, &r.CreatedAt, &r.StartedAt, &r.FinishedAt)
	if err == sql.ErrNoRows {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("查询任务运行失败: %w", err)
	}
	return &r, nil
}

func (s *Store) MarkJobRunStarted(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET started_at = CURRENT_TIMESTAMP WHERE id = ?`, id); err != nil {
		return fmt.Errorf("更新任务运行失败: %w", err)
	}
	return nil
}

func (s *Store) MarkJobRunFinished(ctx context.Context, id int64, exitCode int, stdout string) error {
	if _, err := s.db.ExecContext(ctx,
		`UPDATE job_runs SET exit_code = ?, stdout = ?, finished_at = CURRENT_TIMESTAMP WHERE id = ?`,
		exitCode, stdout, id); err != nil {
		return fmt.Errorf("更新任务运行失败: %w", err)
	}
	return nil
}

// ListJobRuns 按窗口列出任务运行；jobs 限定任务名，ids 限定行。
func (s *Store) ListJobRuns(ctx context.Context, ids []int64, jobs []string, afterID, beforeID *int64, limit int, backward bool) ([]JobRun, error) {
	args := make([]any, 0, len(ids)+len(jobs)+3)
	q := `SELECT id, job, command, exit_code, stdout, created_at, started_at, finished_at FROM job_runs WHERE 1=1`
	q += idsSQL("id", ids, &args)
	if len(jobs) > 0 {
		q += ` AND job IN (`
		for i, j := range jobs {
			if i > 0 {
				q += `,`
			}
			q += `?`
			args = append(args, j)
		}
		q += `)`
	}
	q += windowSQL(afterID, beforeID, backward, &args)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("查询任务运行列表失败: %w", err)
	}
	defer rows.Close()

	var out []JobRun
	for rows.Next() {
		var r JobRun
		if err := rows.Scan(&r.ID, &r.Job, &r.Command, &r.ExitCode, &r.Stdout, &r.CreatedAt, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("扫描任务运行行失败: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) JobRunStats(ctx context.Context, jobs []string) (*JobStats, error) {
	args := make([]any, 0, len(jobs))
	q := `SELECT
	  COALESCE(SUM(CASE WHEN exit_code = 0 THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN exit_code IS NOT NULL AND exit_code != 0 THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN exit_code IS NULL THEN 1 ELSE 0 END), 0)
	FROM job_runs WHERE 1=1`
	if len(jobs) > 0 {
		q += ` AND job IN (`
		for i, j := range jobs {
			if i > 0 {
				q += `,`
			}
			q += `?`
			args = append(args, j)
		}
		q += `)`
	}

	var st JobStats
	if err := s.db.QueryRowContext(ctx, q, args...).Scan(&st.Success, &st.Failed, &st.Pending); err != nil {
		return nil, fmt.Errorf("统计任务运行失败: %w", err)
	}
	return &st, nil
}

func (s *Store) ListJobNames(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT job FROM job_runs ORDER BY job`)
	if err != nil {
		return nil, fmt.Errorf("查询任务名失败: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("扫描任务名失败: %w", err)
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// DeleteStaleJobRuns 清理给定时刻之前仍未收尾的运行记录，避免历史残留堆积。
func (s *Store) DeleteStaleJobRuns(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM job_runs WHERE finished_at IS NULL AND created_at < ?`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("清理任务运行失败: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
