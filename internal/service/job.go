package service

import (
	"context"
	"strings"

	"sage/internal/apierr"
	"sage/internal/store"
)

// 可手动触发的后台任务白名单。
var triggerableJobs = map[string]string{
	"scheduler":      "sage-job scheduler",
	"index_garbage":  "sage-job index-gc",
	"license_check":  "sage-job license-check",
	"db_maintenance": "sage-job db-maintenance",
}

type JobService interface {
	// Trigger 创建一条待执行的任务运行并返回其 id；任务名必须在白名单内。
	Trigger(ctx context.Context, job string) (int64, error)
	Stats(ctx context.Context, jobs []string) (*store.JobStats, error)
	Names(ctx context.Context) ([]string, error)
}

type jobService struct {
	store *store.Store
}

func newJobService(st *store.Store) *jobService {
	return &jobService{store: st}
}

func (s *jobService) Trigger(ctx context.Context, job string) (int64, error) {
	job = strings.TrimSpace(job)
	command, ok := triggerableJobs[job]
	if !ok {
		return 0, apierr.InvalidInput(apierr.FieldError{Path: "job", Message: "未知的任务名"})
	}
	return s.store.CreateJobRun(ctx, job, command)
}

func (s *jobService) Stats(ctx context.Context, jobs []string) (*store.JobStats, error) {
	return s.store.JobRunStats(ctx, jobs)
}

func (s *jobService) Names(ctx context.Context) ([]string, error) {
	return s.store.ListJobNames(ctx)
}
