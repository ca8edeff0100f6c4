package router

import (
	"sage/internal/service"
)

type Options struct {
	Registry *service.Registry

	// JWTSecret 供路由层校验 Bearer 访问令牌。
	JWTSecret []byte
	Env       string

	// DemoMode 下危险变更接口直接拒绝。
	DemoMode bool

	// AllowSelfSignup 放开无邀请码注册（仍受域名白名单约束）。
	AllowSelfSignup bool

	// Version 在 server-info 中回传。
	Version string
}
