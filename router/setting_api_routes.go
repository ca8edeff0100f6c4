package router

import (
	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/email"
	"sage/internal/license"
	"sage/internal/service"
)

func setSettingAPIRoutes(r gin.IRoutes, opts Options) {
	r.GET("/settings/email", getEmailSettingHandler(opts))
	r.PUT("/settings/email", updateEmailSettingHandler(opts))
	r.DELETE("/settings/email", deleteEmailSettingHandler(opts))
	r.POST("/settings/email/test", testEmailSettingHandler(opts))
	r.GET("/settings/network", getNetworkSettingHandler(opts))
	r.PUT("/settings/network", updateNetworkSettingHandler(opts))
	r.GET("/settings/security", getSecuritySettingHandler(opts))
	r.PUT("/settings/security", updateSecuritySettingHandler(opts))
}

func getEmailSettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		set, err := opts.Registry.Email.Setting(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, set)
	}
}

func updateEmailSettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		var req email.Setting
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Email.UpdateSetting(c.Request.Context(), req); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func deleteEmailSettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		if err := opts.Registry.Email.DeleteSetting(c.Request.Context()); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func testEmailSettingHandler(opts Options) gin.HandlerFunc {
	type reqBody struct {
		To string `json:"to"`
	}

	return func(c *gin.Context) {
		au, ok := requireAdmin(c, opts)
		if !ok {
			return
		}
		var req reqBody
		if err := c.ShouldBindJSON(&req); err != nil || req.To == "" {
			req.To = au.User.Email
		}
		if err := opts.Registry.Email.SendTest(c.Request.Context(), req.To); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func getNetworkSettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		set, err := opts.Registry.Setting.Network(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, set)
	}
}

func updateNetworkSettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		var req service.NetworkSetting
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		if err := opts.Registry.Setting.UpdateNetwork(c.Request.Context(), req); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}

func getSecuritySettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		set, err := opts.Registry.Setting.Security(c.Request.Context())
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, set)
	}
}

func updateSecuritySettingHandler(opts Options) gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := requireAdmin(c, opts); !ok {
			return
		}
		if !requireNotDemo(c, opts) {
			return
		}
		var req service.SecuritySetting
		if err := c.ShouldBindJSON(&req); err != nil {
			fail(c, apierr.InvalidInput(apierr.FieldError{Path: "body", Message: "请求体不是合法 JSON"}))
			return
		}
		// 关闭密码登录是付费能力：没有团队级许可证时实例可能把自己锁在门外。
		if req.DisablePasswordLogin && !requireLicense(c, opts, license.TierTeam) {
			return
		}
		if err := opts.Registry.Setting.UpdateSecurity(c.Request.Context(), req); err != nil {
			fail(c, err)
			return
		}
		respond(c, nil)
	}
}
