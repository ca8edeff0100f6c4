package router

import (
	"context"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/runstream"
	"sage/internal/store"
)

type pageView struct {
	ID        string `json:"id"`
	AuthorID  int64  `json:"author_id"`
	Title     string `json:"title"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

func newPageView(p *store.Page) pageView {
	return pageView{
		ID:        p.PublicID,
		AuthorID:  p.AuthorID,
		Title:     p.Title,
		Content:   p.Content,
		CreatedAt: p.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt: p.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type pageSectionView struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Content  string `json:"content"`
	Position int    `json:"position"`
}

func newPageSectionView(s *store.PageSection) pageSectionView {
	return pageSectionView{
		ID:       s.PublicID,
		Title:    s.Title,
		Content:  s.Content,
		Position: s.Position,
	}
}

func setPageAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/pages", listPagesHandler(opts))
	r.GET("/pages/:page_id", getPageHandler(opts))
	r.PUT("/pages/:page_id/title", updatePageTitleHandler(opts))
	r.PUT("/pages/:page_id/content", updatePageContentHandler(opts))
	r.DELETE("/pages/:page_id", deletePageHandler(opts))
	r.GET("/pages/:page_id/sections", listPageSectionsHandler(opts))
	r.PUT("/sections/:section_id", updatePageSectionHandler(opts))
	r.DELETE("/sections/:section_id", deletePageSectionHandler(opts))
	r.PUT("/sections/:section_id/move", movePageSectionHandler(opts))
}

// setPageRunRoutes 挂载页面生成的 SSE 端点；不经过 gzip。
func setPageRunRoutes(r gin.IRoutes, opts Options) {
	r.POST("/api/pages/run", createPageRunHandler(opts))
	r.POST("/api/pages/from-thread", createPageFromThreadHandler(opts))
	r.POST("/api/pages/:page_id/sections/run", appendPageSectionRunHandler(opts))
}

func listPagesHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, true); !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		ids, err := parseIDList(c, "ids")
		if err != nil {
			fail(c, err)
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[pageView], error) {
				pages, err := opts.Registry.Page.List(ctx, ids, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[pageView], 0, len(pages))
				for i := range pages {
					rows = append(rows, relay.Row[pageView]{ID: pages[i].ID, Node: newPageView(&pages[i])})
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

func getPageHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, true); !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		p, err := opts.Registry.Page.Resolve(c.Request.Context(), c.Param("page_id"))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, newPageView(p))
	}
}

func updatePageTitleHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Title string `json:"title"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Page.UpdateTitle(c.Request.Context(), au.Principal, c.Param("page_id"), req.Title); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func updatePageContentHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Content string `json:"content"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Page.UpdateContent(c.Request.Context(), au.Principal, c.Param("page_id"), req.Content); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func deletePageHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		if err := opts.Registry.Page.Delete(c.Request.Context(), au.Principal, c.Param("page_id")); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func listPageSectionsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, true); !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		args := parsePageArgs(c)
		pageID := c.Param("page_id")

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[pageSectionView], error) {
				secs, err := opts.Registry.Page.Sections(ctx, pageID, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[pageSectionView], 0, len(secs))
				for i := range secs {
					rows = append(rows, relay.Row[pageSectionView]{ID: secs[i].ID, Node: newPageSectionView(&secs[i])})
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

func updatePageSectionHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Title   string `json:"title"`
		Content string `json:"content"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Page.UpdateSection(c.Request.Context(), au.Principal, c.Param("section_id"), req.Title, req.Content); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func deletePageSectionHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		if err := opts.Registry.Page.DeleteSection(c.Request.Context(), au.Principal, c.Param("section_id")); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func movePageSectionHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Direction string `json:"direction"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Page.MoveSection(c.Request.Context(), au.Principal, c.Param("section_id"), req.Direction); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func createPageRunHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		TitlePrompt string `json:"title_prompt"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		_, stream, err := opts.Registry.Page.CreateRun(c.Request.Context(), au.Principal, req.TitlePrompt)
		if err != nil {
			fail(c, err)
			return
		}
		if err := runstream.ServeSSE(c.Request.Context(), c.Writer, stream); err != nil {
			fail(c, err)
		}
	}
}

func createPageFromThreadHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		ThreadID string `json:"thread_id"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		_, stream, err := opts.Registry.Page.CreateRunFromThread(c.Request.Context(), au.Principal, req.ThreadID)
		if err != nil {
			fail(c, err)
			return
		}
		if err := runstream.ServeSSE(c.Request.Context(), c.Writer, stream); err != nil {
			fail(c, err)
		}
	}
}

func appendPageSectionRunHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		TitlePrompt string `json:"title_prompt"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		if !requirePage(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		stream, err := opts.Registry.Page.AppendSectionRun(c.Request.Context(), au.Principal, c.Param("page_id"), req.TitlePrompt)
		if err != nil {
			fail(c, err)
			return
		}
		if err := runstream.ServeSSE(c.Request.Context(), c.Writer, stream); err != nil {
			fail(c, err)
		}
	}
}
