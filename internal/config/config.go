// Package config 负责读取并校验服务配置（环境变量为主，.env 由入口预加载），
// 避免在业务代码里散落解析逻辑。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

type Config struct {
	// Env 为 dev/prod；dev 下日志降到 Debug 级。
	Env  string
	Addr string

	DB       DBConfig
	Security SecurityConfig
	Chat     ChatConfig

	// PagesEnabled 控制页面能力是否装配；关闭时相关接口统一返回 FORBIDDEN。
	PagesEnabled bool
	// DemoMode 下禁止危险变更（改密码、改邮箱设置、升级角色等）。
	DemoMode bool

	// LicensePublicKeyPEM 为空时不启用许可证校验，按社区版处理。
	LicensePublicKeyPEM string

	// RepoRoot 是代码仓库检索（search/grep）的本地根目录。
	RepoRoot string

	CORSOrigins []string
}

type DBConfig struct {
	// Driver 支持 mysql/sqlite；为空时会根据 DSN 自动推断（DSN 非空则 mysql）。
	Driver     string
	DSN        string
	SQLitePath string
}

type SecurityConfig struct {
	// JWTSecret 用于访问令牌签名，prod 下必须显式配置。
	JWTSecret string
	// AllowSelfSignup 关闭时注册必须携带邀请码。
	AllowSelfSignup bool
}

type ChatConfig struct {
	// BaseURL 指向 OpenAI 兼容服务；为空时对话能力不装配。
	BaseURL string
	APIKey  string
	Model   string
}

// LoadFromEnv 读取 SAGE_* 环境变量并做基础校验。
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Env:  envOr("SAGE_ENV", "dev"),
		Addr: envOr("SAGE_ADDR", ":8080"),
		DB: DBConfig{
			Driver:     strings.ToLower(strings.TrimSpace(os.Getenv("SAGE_DB_DRIVER"))),
			DSN:        strings.TrimSpace(os.Getenv("SAGE_DB_DSN")),
			SQLitePath: envOr("SAGE_SQLITE_PATH", "data/sage.db"),
		},
		Security: SecurityConfig{
			JWTSecret:       strings.TrimSpace(os.Getenv("SAGE_JWT_SECRET")),
			AllowSelfSignup: envBool("SAGE_ALLOW_SELF_SIGNUP", false),
		},
		Chat: ChatConfig{
			BaseURL: strings.TrimSpace(os.Getenv("SAGE_CHAT_BASE_URL")),
			APIKey:  strings.TrimSpace(os.Getenv("SAGE_CHAT_API_KEY")),
			Model:   envOr("SAGE_CHAT_MODEL", "gpt-4o-mini"),
		},
		PagesEnabled:        envBool("SAGE_PAGES_ENABLED", true),
		DemoMode:            envBool("SAGE_DEMO_MODE", false),
		LicensePublicKeyPEM: os.Getenv("SAGE_LICENSE_PUBLIC_KEY"),
		RepoRoot:            strings.TrimSpace(os.Getenv("SAGE_REPO_ROOT")),
	}

	if origins := strings.TrimSpace(os.Getenv("SAGE_CORS_ORIGINS")); origins != "" {
		for _, o := range strings.Split(origins, ",") {
			if o = strings.TrimSpace(o); o != "" {
				cfg.CORSOrigins = append(cfg.CORSOrigins, o)
			}
		}
	}

	if cfg.DB.Driver == "" {
		if cfg.DB.DSN != "" {
			cfg.DB.Driver = "mysql"
		} else {
			cfg.DB.Driver = "sqlite"
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.Env != "dev" && c.Env != "prod" {
		return fmt.Errorf("SAGE_ENV 只支持 dev/prod，当前为 %q", c.Env)
	}
	switch c.DB.Driver {
	case "sqlite":
		if c.DB.SQLitePath == "" {
			return errors.New("SAGE_SQLITE_PATH 不能为空")
		}
	case "mysql":
		if c.DB.DSN == "" {
			return errors.New("SAGE_DB_DRIVER=mysql 时必须配置 SAGE_DB_DSN")
		}
	default:
		return fmt.Errorf("不支持的 SAGE_DB_DRIVER：%s", c.DB.Driver)
	}
	if c.Env == "prod" && c.Security.JWTSecret == "" {
		return errors.New("prod 环境必须配置 SAGE_JWT_SECRET")
	}
	return nil
}

func (c *Config) IsDev() bool { return c.Env == "dev" }

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}
