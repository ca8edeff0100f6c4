package router

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/store"
)

func setAnalyticsAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/analytics/daily", dailyStatsHandler(opts))
	r.GET("/analytics/chat-daily", chatDailyStatsHandler(opts))
	r.GET("/user-events", listUserEventsHandler(opts))
}

// parseTimeQuery 接受 RFC3339 时间戳；解析失败计入校验错误。
func parseTimeQuery(c *gin.Context, key string, v *apierr.Validator) *time.Time {
	raw := c.Query(key)
	if raw == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		v.Fail(key, "时间必须是 RFC3339 格式")
		return nil
	}
	return &t
}

func dailyStatsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		users, err := parseIDList(c, "users")
		if err != nil {
			fail(c, err)
			return
		}
		var v apierr.Validator
		start := parseTimeQuery(c, "start", &v)
		end := parseTimeQuery(c, "end", &v)
		if err := v.Err(); err != nil {
			fail(c, err)
			return
		}
		stats, err := opts.Registry.Analytic.DailyStats(c.Request.Context(), au.Principal, users, start, end)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, stats)
	}
}

func chatDailyStatsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		users, err := parseIDList(c, "users")
		if err != nil {
			fail(c, err)
			return
		}
		var v apierr.Validator
		start := parseTimeQuery(c, "start", &v)
		end := parseTimeQuery(c, "end", &v)
		if err := v.Err(); err != nil {
			fail(c, err)
			return
		}
		stats, err := opts.Registry.Analytic.ChatDailyStats(c.Request.Context(), au.Principal, users, start, end)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, stats)
	}
}

type userEventView struct {
	ID        int64  `json:"id"`
	UserID    int64  `json:"user_id"`
	Kind      string `json:"kind"`
	Payload   string `json:"payload"`
	CreatedAt string `json:"created_at"`
}

func newUserEventView(e *store.UserEvent) userEventView {
	return userEventView{
		ID:        e.ID,
		UserID:    e.UserID,
		Kind:      e.Kind,
		Payload:   e.Payload,
		CreatedAt: e.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func listUserEventsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		users, err := parseIDList(c, "users")
		if err != nil {
			fail(c, err)
			return
		}
		var v apierr.Validator
		start := parseTimeQuery(c, "start", &v)
		end := parseTimeQuery(c, "end", &v)
		if err := v.Err(); err != nil {
			fail(c, err)
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[userEventView], error) {
				events, err := opts.Registry.Analytic.ListEvents(ctx, users, start, end, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[userEventView], 0, len(events))
				for i := range events {
					rows = append(rows, relay.Row[userEventView]{ID: events[i].ID, Node: newUserEventView(&events[i])})
				}
				return rows, nil
			})
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, conn)
	}
}
