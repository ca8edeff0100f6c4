package router

import (
	"context"
	"database/sql"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/relay"
)

// 头像原始字节上限（解码后）。
const maxAvatarBytes = 512 * 1024

func setUserAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/users", listUsersHandler(opts))
	r.PUT("/users/:user_id/active", updateUserActiveHandler(opts))
	r.PUT("/users/:user_id/role", updateUserRoleHandler(opts))
	r.GET("/users/:user_id/avatar", getUserAvatarHandler(opts))
	r.PUT("/me/name", updateMyNameHandler(opts))
	r.PUT("/me/avatar", updateMyAvatarHandler(opts))
}

func listUsersHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		ids, err := parseIDList(c, "ids")
		if err != nil {
			fail(c, err)
			return
		}
		args := parsePageArgs(c)

		conn, err := relay.Paginate(c.Request.Context(), args.After, args.Before, args.First, args.Last,
			func(ctx context.Context, after, before *int64, limit int, backward bool) ([]relay.Row[userView], error) {
				users, err := opts.Registry.Store.ListUsers(ctx, ids, after, before, limit, backward)
				if err != nil {
					return nil, err
				}
				rows := make([]relay.Row[userView], 0, len(users))
				for i := range users {
					rows = append(rows, relay.Row[userView]{ID: users[i].ID, Node: newUserView(&users[i], false)})
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

func updateUserActiveHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Active bool `json:"active"`
	}

	return func(c *gin.Context) {
		au, ok := requireAdmin(c, opts)
		if !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		targetID, err := parsePathID(c, "user_id")
		if err != nil {
			fail(c, err)
			return
		}
		if !requireNotSelf(c, au, targetID) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Store.SetUserActive(c.Request.Context(), targetID, req.Active); err != nil {
			fail(c, translateNotFound(err, "用户不存在"))
			return
		}
		respond(c, nil)
	}
}

func updateUserRoleHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		IsAdmin bool `json:"is_admin"`
	}

	return func(c *gin.Context) {
		au, ok := requireAdmin(c, opts)
		if !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		targetID, err := parsePathID(c, "user_id")
		if err != nil {
			fail(c, err)
			return
		}
		if !requireNotSelf(c, au, targetID) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Store.SetUserRole(c.Request.Context(), targetID, req.IsAdmin); err != nil {
			fail(c, translateNotFound(err, "用户不存在"))
			return
		}
		respond(c, nil)
	}
}

func getUserAvatarHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, true); !ok {
			return
		}
		targetID, err := parsePathID(c, "user_id")
		if err != nil {
			fail(c, err)
			return
		}
		avatar, err := opts.Registry.Store.GetUserAvatar(c.Request.Context(), targetID)
		if err != nil {
			fail(c, translateNotFound(err, "用户不存在"))
			return
		}
		if len(avatar) == 0 {
			respond(c, gin.H{"avatar": nil})
			return
		}
		respond(c, gin.H{"avatar": base64.StdEncoding.EncodeToString(avatar)})
	}
}

func updateMyNameHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Name string `json:"name"`
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
		name := strings.TrimSpace(req.Name)
		if name == "" || len(name) > 64 {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "name", Message: "名字长度须在 1 到 64 之间"}))
			return
		}
		if err := opts.Registry.Store.SetUserName(c.Request.Context(), au.User.ID, name); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func updateMyAvatarHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		// Avatar 是 base64 的图片字节；空串表示清除。
		Avatar string `json:"avatar"`
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

		var avatar []byte
		if req.Avatar != "" {
			raw, err := base64.StdEncoding.DecodeString(req.Avatar)
			if err != nil {
				fail(c, apierr.InvalidInput(apierr.FieldError{Path: "avatar", Message: "头像必须是合法的 base64"}))
				return
			}
			if len(raw) > maxAvatarBytes {
				fail(c, apierr.InvalidInput(apierr.FieldError{Path: "avatar", Message: "头像不能超过 512KB"}))
				return
			}
			avatar = raw
		}
		if err := opts.Registry.Store.SetUserAvatar(c.Request.Context(), au.User.ID, avatar); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

// translateNotFound 把 sql.ErrNoRows 兜换为资源级 NOT_FOUND。
func translateNotFound(err error, msg string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return apierr.NotFound(msg)
	}
	return err
}
