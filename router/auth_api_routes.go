package router

import (
	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/store"
)

type userView struct {
	ID                       int64  `json:"id"`
	Email                    string `json:"email"`
	Name                     string `json:"name"`
	IsAdmin                  bool   `json:"is_admin"`
	Active                   bool   `json:"active"`
	AuthToken                string `json:"auth_token,omitempty"`
	IsGeneratedFromAuthToken bool   `json:"is_generated_from_auth_token,omitempty"`
	CreatedAt                string `json:"created_at"`
}

func newUserView(u *store.User, includeAuthToken bool) userView {
	v := userView{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		IsAdmin:   u.IsAdmin,
		Active:    u.Active,
		CreatedAt: u.CreatedAt.UTC().Format("2006-01-02T15:04:05Z"),
	}
	if includeAuthToken {
		v.AuthToken = u.AuthToken
	}
	return v
}

func setAuthAPIRoutes(r gin.IRoutes, opts Options) {
	r.POST("/auth/register", registerHandler(opts))
	r.POST("/auth/token", tokenHandler(opts))
	r.POST("/auth/refresh", refreshHandler(opts))
	r.GET("/auth/verify", verifyHandler(opts))
	r.PUT("/auth/password", updatePasswordHandler(opts))
	r.POST("/auth/logout-sessions", logoutSessionsHandler(opts))
	r.POST("/auth/reset-auth-token", resetAuthTokenHandler(opts))
	r.GET("/me", meHandler(opts))
}

func registerHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Email          string `json:"email"`
		Name           string `json:"name"`
		Password       string `json:"password"`
		InvitationCode string `json:"invitation_code"`
	}

	return func(c *gin.Context) {
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		pair, err := opts.Registry.Auth.Register(c.Request.Context(), req.Email, req.Name, req.Password, req.InvitationCode)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, pair)
	}
}

func tokenHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		Email     string `json:"email"`
		Password  string `json:"password"`
		AuthToken string `json:"auth_token"`
	}

	return func(c *gin.Context) {
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}

		// 长期凭据兑换：只发访问令牌，不发刷新令牌。
		if req.AuthToken != "" {
			access, err := opts.Registry.Auth.TokenFromAuthToken(c.Request.Context(), req.AuthToken)
			if err != nil {
				fail(c, err)
				return
			}
			respond(c, gin.H{"access_token": access})
			return
		}

		pair, err := opts.Registry.Auth.Token(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, pair)
	}
}

func refreshHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		RefreshToken string `json:"refresh_token"`
	}

	return func(c *gin.Context) {
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "refreshToken", Message: "刷新令牌不能为空"}))
			return
		}
		pair, err := opts.Registry.Auth.Refresh(c.Request.Context(), req.RefreshToken)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, pair)
	}
}

func verifyHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		respond(c, gin.H{
			"user_id":                      au.User.ID,
			"is_admin":                     au.User.IsAdmin,
			"is_generated_from_auth_token": au.Principal.IsGeneratedFromAuthToken,
		})
	}
}

func updatePasswordHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		OldPassword string `json:"old_password"`
		NewPassword string `json:"new_password"`
	}

	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Auth.UpdatePassword(c.Request.Context(), au.User.ID, req.OldPassword, req.NewPassword); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func logoutSessionsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if err := opts.Registry.Auth.LogoutSessions(c.Request.Context(), au.User.ID); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func resetAuthTokenHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, false)
		if !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		token, err := opts.Registry.Auth.ResetAuthToken(c.Request.Context(), au.User.ID)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, gin.H{"auth_token": token})
	}
}

func meHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		au, ok := requireAuthed(c, opts, true)
		if !ok {
			return
		}
		v := newUserView(au.User, true)
		v.IsGeneratedFromAuthToken = au.Principal.IsGeneratedFromAuthToken
		respond(c, v)
	}
}
