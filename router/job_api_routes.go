package router

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/store"
)

type jobRunView struct {
	ID         int64   `json:"id"`
	Job        string  `json:"job"`
	ExitCode   *int    `json:"exit_code"`
	Stdout     string  `json:"stdout"`
	CreatedAt  string  `json:"created_at"`
	StartedAt  *string `json:"started_at"`
	FinishedAt *string `json:"finished_at"`
}

func newJobRunView(r *store.JobRun) jobRunView {
	v := jobRunView{
		ID:        r.ID,
		Job:       r.Job,
		ExitCode:  r.ExitCode,
		Stdout:    r.Stdout,
		CreatedAt: r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if r.StartedAt != nil {
		s := r.StartedAt.UTC().Format("2006-01-02T15:04:05Z")
		v.StartedAt = &s
	}
	if r.FinishedAt != nil {
		s := r.FinishedAt.UTC().Format("2006-01-02T15:04:05Z")
		v.FinishedAt = &s
	}
	return v
}

func setJobAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/jobs/runs", listJobRunsHandler(opts))
	r.GET("/jobs/stats", jobStatsHandler(opts))
	r.GET("/jobs/names", jobNamesHandler(opts))
	r.POST("/jobs/trigger", triggerJobHandler(opts))
}

func parseJobsFilter(c *gin.Context) []string {
	raw := strings.TrimSpace(c.Query("jobs"))
	if raw == "" {
		return nil
	}
	var out []string
	for _, j := range strings.Split(raw, ",") {
		if j = strings.TrimSpace(j); j != "" {
			out = append(out, j)
		}
	}
	return out
}

func listJobRunsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		ids, err := parseIDList(c, "ids")
		if err != nil {
			fail(c, err)
			return
		}
		jobs := parseJobsFilter(c)
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[jobRunView], error) {
				runs, err := opts.Registry.Store.ListJobRuns(ctx, ids, jobs, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[jobRunView], 0, len(runs))
				for i := range runs {
					rows = append(rows, relay.Row[jobRunView]{ID: runs[i].ID, Node: newJobRunView(&runs[i])})
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

func jobStatsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		stats, err := opts.Registry.Job.Stats(c.Request.Context(), parseJobsFilter(c))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, stats)
	}
}

func jobNamesHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		names, err := opts.Registry.Job.Names(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, names)
	}
}

func triggerJobHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Job string `json:"job"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		id, err := opts.Registry.Job.Trigger(c.Request.Context(), req.Job)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, gin.H{"job_run_id": id})
	}
}
