package service

import (
	"context"
	"time"

	"sage/internal/auth"
	"sage/internal/policy"
	"sage/internal/store"
)

type AnalyticService interface {
	// DailyStats 统计补全类事件；start/end 为 nil 时默认取过去一年。
	DailyStats(ctx context.Context, principal auth.Principal, users []int64, start, end *time.Time) ([]store.DailyStat, error)
	ChatDailyStats(ctx context.Context, principal auth.Principal, users []int64, start, end *time.Time) ([]store.ChatDailyStat, error)
	// RecordEvent 落一条用户事件（payload 为 JSON 文本）。
	RecordEvent(ctx context.Context, userID int64, kind, payload string) error
	ListEvents(ctx context.Context, users []int64, start, end *time.Time, afterID, beforeID *int64, limit int, backward bool) ([]store.UserEvent, error)
}

type analyticService struct {
	store  *store.Store
	policy *policy.AccessPolicy
}

func newAnalyticService(st *store.Store, pol *policy.AccessPolicy) *analyticService {
	return &analyticService{store: st, policy: pol}
}

// defaultRange 补全缺省时间窗：过去一年到现在。
func defaultRange(start, end *time.Time) (time.Time, time.Time) {
	now := time.Now().UTC()
	e := now
	if end != nil {
		e = end.UTC()
	}
	s := e.AddDate(-1, 0, 0)
	if start != nil {
		s = start.UTC()
	}
	return s, e
}

func (s *analyticService) DailyStats(ctx context.Context, principal auth.Principal, users []int64, start, end *time.Time) ([]store.DailyStat, error) {
	if err := s.policy.CheckReadAnalytic(principal, users); err != nil {
		return nil, err
	}
	from, to := defaultRange(start, end)
	return s.store.DailyStats(ctx, users, from, to)
}

func (s *analyticService) ChatDailyStats(ctx context.Context, principal auth.Principal, users []int64, start, end *time.Time) ([]store.ChatDailyStat, error) {
	if err := s.policy.CheckReadAnalytic(principal, users); err != nil {
		return nil, err
	}
	from, to := defaultRange(start, end)
	return s.store.ChatDailyStats(ctx, users, from, to)
}

func (s *analyticService) RecordEvent(ctx context.Context, userID int64, kind, payload string) error {
	return s.store.CreateUserEvent(ctx, userID, kind, payload)
}

func (s *analyticService) ListEvents(ctx context.Context, users []int64, start, end *time.Time, afterID, beforeID *int64, limit int, backward bool) ([]store.UserEvent, error) {
	from, to := defaultRange(start, end)
	return s.store.ListUserEvents(ctx, users, from, to, afterID, beforeID, limit, backward)
}
