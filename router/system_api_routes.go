package router

import (
	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
)

func setSystemAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/server-info", serverInfoHandler(opts))
	r.GET("/license", getLicenseHandler(opts))
	r.PUT("/license", applyLicenseHandler(opts))
	r.DELETE("/license", resetLicenseHandler(opts))
	r.GET("/diagnostics/model", modelDiagnosticsHandler(opts))
}

// serverInfoHandler 是唯一允许匿名访问的只读端点，供前端在登录前探测实例形态。
func serverInfoHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		count, err := opts.Registry.Store.CountUsers(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		emailConfigured, err := opts.Registry.Email.Configured(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		sec, err := opts.Registry.Setting.Security(ctx)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, gin.H{
			"is_admin_initialized":   count > 0,
			"is_demo_mode":           opts.DemoMode,
			"is_chat_enabled":        opts.Registry.Chat != nil,
			"is_pages_enabled":       opts.Registry.Page != nil,
			"is_email_configured":    emailConfigured,
			"allow_self_signup":      opts.AllowSelfSignup,
			"disable_password_login": sec.DisablePasswordLogin,
			"version":                opts.Version,
		})
	}
}

func getLicenseHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAuthed(c, opts, false); !ok {
			return
		}
		info, err := opts.Registry.License.Resolve(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, info)
	}
}

func applyLicenseHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		License string `json:"license"`
	}

	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.License == "" {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "license", Message: "许可证不能为空"}))
			return
		}
		if err := opts.Registry.License.Apply(c.Request.Context(), req.License); err != nil {
			fail(c, err)
			return
		}
		info, err := opts.Registry.License.Resolve(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, info)
	}
}

func resetLicenseHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		if err := opts.Registry.License.Reset(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		info, err := opts.Registry.License.Resolve(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, info)
	}
}

// modelDiagnosticsHandler 对推理后端做一次探活，管理员用于定位连通性问题。
func modelDiagnosticsHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if opts.Registry.Chat == nil {
			fail(c, apierr.NotEnabled("对话服务未启用"))
			return
		}
		if err := opts.Registry.Chat.TestConnection(c.Request.Context()); err != nil {
			respond(c, gin.H{"model": opts.Registry.Chat.Model(), "healthy": false, "error": err.Error()})
			return
		}
		respond(c, gin.H{"model": opts.Registry.Chat.Model(), "healthy": true})
	}
}
