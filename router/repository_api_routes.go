package router

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/store"
)

type repositoryView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	GitURL    string `json:"git_url"`
	CreatedAt string `json:"created_at"`
}

func newRepositoryView(r *store.GitRepository) repositoryView {
	return repositoryView{
		ID:        r.ID,
		Name:      r.Name,
		GitURL:    r.GitURL,
		CreatedAt: r.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type integrationView struct {
	ID          int64   `json:"id"`
	Kind        string  `json:"kind"`
	DisplayName string  `json:"display_name"`
	APIBase     *string `json:"api_base,omitempty"`
	CreatedAt   string  `json:"created_at"`
}

func setRepositoryAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/repositories", listRepositoriesHandler(opts))
	r.POST("/repositories", createRepositoryHandler(opts))
	r.PUT("/repositories/:repo_id", updateRepositoryHandler(opts))
	r.DELETE("/repositories/:repo_id", deleteRepositoryHandler(opts))
	r.GET("/repositories/:repo_id/search", searchRepositoryHandler(opts))
	r.GET("/repositories/:repo_id/grep", grepRepositoryHandler(opts))

	r.GET("/integrations", listIntegrationsHandler(opts))
	r.POST("/integrations", createIntegrationHandler(opts))
	r.DELETE("/integrations/:integration_id", deleteIntegrationHandler(opts))
}

func listRepositoriesHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[repositoryView], error) {
				repos, err := opts.Registry.Store.ListGitRepositories(ctx, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[repositoryView], 0, len(repos))
				for i := range repos {
					rows = append(rows, relay.Row[repositoryView]{ID: repos[i].ID, Node: newRepositoryView(&repos[i])})
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

func createRepositoryHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Name   string `json:"name"`
		GitURL string `json:"git_url"`
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
		repo, err := opts.Registry.Repository.Create(c.Request.Context(), req.Name, req.GitURL)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, newRepositoryView(repo))
	}
}

func updateRepositoryHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Name   string `json:"name"`
		GitURL string `json:"git_url"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		id, err := parsePathID(c, "repo_id")
		if err != nil {
			fail(c, err)
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Repository.Update(c.Request.Context(), id, req.Name, req.GitURL); err != nil {
			fail(c, translateNotFound(err, "仓库不存在"))
			return
		}
		respond(c, nil)
	}
}

func deleteRepositoryHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		id, err := parsePathID(c, "repo_id")
		if err != nil {
			fail(c, err)
			return
		}
		if err := opts.Registry.Repository.Delete(c.Request.Context(), id); err != nil {
			fail(c, translateNotFound(err, "仓库不存在"))
			return
		}
		respond(c, nil)
	}
}

func searchRepositoryHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		id, err := parsePathID(c, "repo_id")
		if err != nil {
			fail(c, err)
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		matches, err := opts.Registry.Repository.SearchFiles(c.Request.Context(), au.Principal, id, c.Query("pattern"), limit)
		if err != nil {
			fail(c, translateNotFound(err, "仓库不存在"))
			return
		}
		respond(c, matches)
	}
}

func grepRepositoryHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		id, err := parsePathID(c, "repo_id")
		if err != nil {
			fail(c, err)
			return
		}
		limit, _ := strconv.Atoi(c.Query("limit"))
		lines, err := opts.Registry.Repository.Grep(c.Request.Context(), au.Principal, id, c.Query("query"), limit)
		if err != nil {
			fail(c, translateNotFound(err, "仓库不存在"))
			return
		}
		respond(c, lines)
	}
}

func listIntegrationsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		ids, err := parseIDList(c, "ids")
		if err != nil {
			fail(c, err)
			return
		}
		kind := c.Query("kind")
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[integrationView], error) {
				ins, err := opts.Registry.Store.ListIntegrations(ctx, ids, kind, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[integrationView], 0, len(ins))
				for i := range ins {
					rows = append(rows, relay.Row[integrationView]{ID: ins[i].ID, Node: integrationView{
						ID:          ins[i].ID,
						Kind:        ins[i].Kind,
						DisplayName: ins[i].DisplayName,
						APIBase:     ins[i].APIBase,
						CreatedAt:   ins[i].CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
					}})
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

func createIntegrationHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Kind        string  `json:"kind"`
		DisplayName string  `json:"display_name"`
		AccessToken string  `json:"access_token"`
		APIBase     *string `json:"api_base"`
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
		var v apierr.Validator
		switch req.Kind {
		case "github", "gitlab":
		default:
			v.Fail("kind", "集成类型只支持 github/gitlab")
		}
		if req.DisplayName == "" {
			v.Fail("displayName", "名称不能为空")
		}
		if req.AccessToken == "" {
			v.Fail("accessToken", "访问令牌不能为空")
		}
		if err := v.Err(); err != nil {
			fail(c, err)
			return
		}
		id, err := opts.Registry.Store.CreateIntegration(c.Request.Context(), req.Kind, req.DisplayName, req.AccessToken, req.APIBase)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, gin.H{"id": id})
	}
}

func deleteIntegrationHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		id, err := parsePathID(c, "integration_id")
		if err != nil {
			fail(c, err)
			return
		}
		if err := opts.Registry.Store.DeleteIntegration(c.Request.Context(), id); err != nil {
			fail(c, translateNotFound(err, "集成不存在"))
			return
		}
		respond(c, nil)
	}
}
