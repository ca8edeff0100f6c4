package router

import (
	"context"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
	"sage/internal/runstream"
	"sage/internal/store"
)

type threadView struct {
	ID          string `json:"id"`
	UserID      int64  `json:"user_id"`
	IsEphemeral bool   `json:"is_ephemeral"`
	CreatedAt   string `json:"created_at"`
	UpdatedAt   string `json:"updated_at"`
}

func newThreadView(t *store.Thread) threadView {
	return threadView{
		ID:          t.PublicID,
		UserID:      t.UserID,
		IsEphemeral: t.IsEphemeral,
		CreatedAt:   t.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
		UpdatedAt:   t.UpdatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type threadMessageView struct {
	ID        string `json:"id"`
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func newThreadMessageView(m *store.ThreadMessage) threadMessageView {
	return threadMessageView{
		ID:        m.PublicID,
		Role:      m.Role,
		Content:   m.Content,
		CreatedAt: m.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

func setThreadAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/threads", listThreadsHandler(opts, false))
	r.GET("/threads/mine", listThreadsHandler(opts, true))
	r.GET("/threads/:thread_id/messages", listThreadMessagesHandler(opts))
	r.DELETE("/threads/:thread_id", deleteThreadHandler(opts))
	r.PUT("/threads/:thread_id/persisted", setThreadPersistedHandler(opts))
	r.DELETE("/threads/:thread_id/message-pairs", deleteThreadMessagePairHandler(opts))
	r.PUT("/threads/:thread_id/messages/:message_id", updateThreadMessageHandler(opts))
}

// setThreadRunRoutes 挂载 SSE 运行端点；不经过 gzip。
func setThreadRunRoutes(r gin.IRoutes, opts Options) {
	r.POST("/api/threads/run", createThreadAndRunHandler(opts))
	r.POST("/api/threads/:thread_id/run", createThreadRunHandler(opts))
}

func listThreadsHandler(opts Options, onlyMine bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		ids, err := parseIDList(c, "ids")
		if err != nil {
			fail(c, err)
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[threadView], error) {
				threads, err := opts.Registry.Thread.List(ctx, au.Principal, ids, onlyMine, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[threadView], 0, len(threads))
				for i := range threads {
					rows = append(rows, relay.Row[threadView]{ID: threads[i].ID, Node: newThreadView(&threads[i])})
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

func listThreadMessagesHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		args := parsePageArgs(c)
		threadID := c.Param("thread_id")

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[threadMessageView], error) {
				msgs, err := opts.Registry.Thread.Messages(ctx, au.Principal, threadID, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[threadMessageView], 0, len(msgs))
				for i := range msgs {
					rows = append(rows, relay.Row[threadMessageView]{ID: msgs[i].ID, Node: newThreadMessageView(&msgs[i])})
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

func deleteThreadHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if err := opts.Registry.Thread.Delete(c.Request.Context(), au.Principal, c.Param("thread_id")); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func setThreadPersistedHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		if err := opts.Registry.Thread.SetPersisted(c.Request.Context(), au.Principal, c.Param("thread_id")); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func deleteThreadMessagePairHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		UserMessageID      string `json:"user_message_id"`
		AssistantMessageID string `json:"assistant_message_id"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		err := opts.Registry.Thread.DeleteMessagePair(c.Request.Context(), au.Principal,
			c.Param("thread_id"), req.UserMessageID, req.AssistantMessageID)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func updateThreadMessageHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Content string `json:"content"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		err := opts.Registry.Thread.UpdateMessageContent(c.Request.Context(), au.Principal,
			c.Param("thread_id"), c.Param("message_id"), req.Content)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func createThreadAndRunHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		UserMessage string `json:"user_message"`
		Persisted   bool   `json:"persisted"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		_, stream, err := opts.Registry.Thread.CreateRunForNewThread(c.Request.Context(), au.Principal, req.UserMessage, req.Persisted)
		if err != nil {
			fail(c, err)
			return
		}
		if err := runstream.ServeSSE(c.Request.Context(), c.Writer, stream); err != nil {
			fail(c, err)
		}
	}
}

func createThreadRunHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		UserMessage string `json:"user_message"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		stream, err := opts.Registry.Thread.CreateRun(c.Request.Context(), au.Principal, c.Param("thread_id"), req.UserMessage)
		if err != nil {
			fail(c, err)
			return
		}
		if err := runstream.ServeSSE(c.Request.Context(), c.Writer, stream); err != nil {
			fail(c, err)
		}
	}
}
