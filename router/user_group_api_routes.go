package router

import (
	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/store"
)

type userGroupView struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	CreatedAt string `json:"created_at"`
}

func newUserGroupView(g *store.UserGroup) userGroupView {
	return userGroupView{
		ID:        g.ID,
		Name:      g.Name,
		CreatedAt: g.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
}

type membershipView struct {
	UserID       int64 `json:"user_id"`
	IsGroupAdmin bool  `json:"is_group_admin"`
}

func setUserGroupAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/user-groups", listUserGroupsHandler(opts))
	r.POST("/user-groups", createUserGroupHandler(opts))
	r.DELETE("/user-groups/:group_id", deleteUserGroupHandler(opts))
	r.GET("/user-groups/:group_id/memberships", listMembershipsHandler(opts))
	r.PUT("/user-groups/:group_id/memberships", upsertMembershipHandler(opts))
	r.DELETE("/user-groups/:group_id/memberships/:user_id", deleteMembershipHandler(opts))

	r.GET("/source-access/:source_id", listSourceAccessHandler(opts))
	r.POST("/source-access", grantSourceAccessHandler(opts))
	r.DELETE("/source-access", revokeSourceAccessHandler(opts))
}

func listUserGroupsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, false); !ok {
			return
		}
		groups, err := opts.Registry.UserGroup.List(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		out := make([]userGroupView, 0, len(groups))
		for i := range groups {
			out = append(out, newUserGroupView(&groups[i]))
		}
		respond(c, out)
	}
}

func createUserGroupHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Name string `json:"name"`
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
		g, err := opts.Registry.UserGroup.Create(c.Request.Context(), req.Name)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, newUserGroupView(g))
	}
}

func deleteUserGroupHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		id, err := parsePathID(c, "group_id")
		if err != nil {
			fail(c, err)
			return
		}
		if err := opts.Registry.UserGroup.Delete(c.Request.Context(), id); err != nil {
			fail(c, translateNotFound(err, "用户组不存在"))
			return
		}
		respond(c, nil)
	}
}

func listMembershipsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, false); !ok {
			return
		}
		id, err := parsePathID(c, "group_id")
		if err != nil {
			fail(c, err)
			return
		}
		members, err := opts.Registry.UserGroup.Memberships(c.Request.Context(), id)
		if err != nil {
			fail(c, translateNotFound(err, "用户组不存在"))
			return
		}
		out := make([]membershipView, 0, len(members))
		for _, m := range members {
			out = append(out, membershipView{UserID: m.UserID, IsGroupAdmin: m.IsGroupAdmin})
		}
		respond(c, out)
	}
}

func upsertMembershipHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		UserID       int64 `json:"user_id"`
		IsGroupAdmin bool  `json:"is_group_admin"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		groupID, err := parsePathID(c, "group_id")
		if err != nil {
			fail(c, err)
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.UserID <= 0 {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "userId", Message: "成员 id 不合法"}))
			return
		}
		err = opts.Registry.UserGroup.UpsertMembership(c.Request.Context(), au.Principal, groupID, req.UserID, req.IsGroupAdmin)
		if err != nil {
			fail(c, translateNotFound(err, "用户组或用户不存在"))
			return
		}
		respond(c, nil)
	}
}

func deleteMembershipHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		groupID, err := parsePathID(c, "group_id")
		if err != nil {
			fail(c, err)
			return
		}
		userID, err := parsePathID(c, "user_id")
		if err != nil {
			fail(c, err)
			return
		}
		err = opts.Registry.UserGroup.DeleteMembership(c.Request.Context(), au.Principal, groupID, userID)
		if err != nil {
			fail(c, translateNotFound(err, "成员关系不存在"))
			return
		}
		respond(c, nil)
	}
}

func listSourceAccessHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		groups, err := opts.Registry.UserGroup.SourceAccessGroups(c.Request.Context(), c.Param("source_id"))
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, gin.H{"user_group_ids": groups})
	}
}

func grantSourceAccessHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		SourceID    string `json:"source_id"`
		UserGroupID int64  `json:"user_group_id"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.SourceID == "" || req.UserGroupID <= 0 {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "sourceId", Message: "来源与用户组不能为空"}))
			return
		}
		if err := opts.Registry.UserGroup.GrantSourceAccess(c.Request.Context(), req.SourceID, req.UserGroupID); err != nil {
			fail(c, translateNotFound(err, "用户组不存在"))
			return
		}
		respond(c, nil)
	}
}

func revokeSourceAccessHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		SourceID    string `json:"source_id"`
		UserGroupID int64  `json:"user_group_id"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.SourceID == "" || req.UserGroupID <= 0 {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "sourceId", Message: "来源与用户组不能为空"}))
			return
		}
		if err := opts.Registry.UserGroup.RevokeSourceAccess(c.Request.Context(), req.SourceID, req.UserGroupID); err != nil {
			fail(c, translateNotFound(err, "授权不存在"))
			return
		}
		respond(c, nil)
	}
}
