// Package service 按能力拆分业务接口，并在启动时装配一次成 Registry。
// 可选能力（页面、对话）在未启用时保持 nil，由路由层统一翻译为 FORBIDDEN。
package service

import (
	"sage/internal/chat"
	"sage/internal/config"
	"sage/internal/email"
	"sage/internal/license"
	"sage/internal/policy"
	"sage/internal/store"
)

type Registry struct {
	Store   *store.Store
	Policy  *policy.AccessPolicy
	License *license.Manager
	Email   *email.Service

	Auth       AuthService
	Setting    SettingService
	Repository RepositoryService
	Analytic   AnalyticService
	Job        JobService
	UserGroup  UserGroupService
	Thread     ThreadService

	// Page 为 nil 表示页面能力未启用。
	Page PageService
	// Chat 为 nil 表示未配置推理后端。
	Chat ChatService

	DemoMode bool
}

// NewRegistry 按配置装配全部能力。
func NewRegistry(cfg *config.Config, st *store.Store) (*Registry, error) {
	lic, err := license.NewManager(cfg.LicensePublicKeyPEM, st)
	if err != nil {
		return nil, err
	}

	pol := policy.New(st)
	mailer := email.NewService(st)

	r := &Registry{
		Store:    st,
		Policy:   pol,
		License:  lic,
		Email:    mailer,
		DemoMode: cfg.DemoMode,
	}

	var chatClient ChatService
	if cfg.Chat.BaseURL != "" {
		c := chat.NewClient(cfg.Chat)
		chatClient = c
		r.Chat = c
	}

	r.Auth = newAuthService(st, mailer, cfg)
	r.Setting = newSettingService(st)
	r.Repository = newRepositoryService(st, pol, cfg.RepoRoot)
	r.Analytic = newAnalyticService(st, pol)
	r.Job = newJobService(st)
	r.UserGroup = newUserGroupService(st, pol)
	r.Thread = newThreadService(st, pol, chatClient)

	if cfg.PagesEnabled {
		r.Page = newPageService(st, pol, chatClient)
	}
	return r, nil
}
