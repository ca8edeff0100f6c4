// sage 是多租户知识助理后端的授权网关入口，提供鉴权、游标分页查询与流式运行下发。
package main

import (
	"context"
	"expvar"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"sage/internal/config"
	"sage/internal/middleware"
	"sage/internal/obs"
	"sage/internal/service"
	"sage/internal/store"
	"sage/router"
)

const version = "0.4.0"

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadFromEnv()
	if err != nil {
		slog.Error("加载配置失败", "err", err)
		os.Exit(1)
	}

	logger := obs.NewLogger(cfg.Env)
	slog.SetDefault(logger)

	db, dialect, err := store.OpenDB(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.SQLitePath)
	if err != nil {
		slog.Error("连接数据库失败", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	if err := store.EnsureSchema(db, dialect); err != nil {
		slog.Error("初始化 schema 失败", "err", err)
		os.Exit(1)
	}

	st := store.New(db)
	st.SetDialect(dialect)

	registry, err := service.NewRegistry(cfg, st)
	if err != nil {
		slog.Error("装配服务失败", "err", err)
		os.Exit(1)
	}

	if !cfg.IsDev() {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	if len(cfg.CORSOrigins) > 0 {
		corsCfg := cors.DefaultConfig()
		corsCfg.AllowOrigins = cfg.CORSOrigins
		corsCfg.AllowHeaders = append(corsCfg.AllowHeaders, "Authorization")
		engine.Use(cors.New(corsCfg))
	}

	engine.GET("/healthz", func(c *gin.Context) {
		c.String(http.StatusOK, "ok")
	})
	engine.GET("/debug/vars", gin.WrapH(expvar.Handler()))

	router.SetRouter(engine, router.Options{
		Registry:  registry,
		JWTSecret: []byte(cfg.Security.JWTSecret),
		Env:       cfg.Env,
		DemoMode:  cfg.DemoMode,

		AllowSelfSignup: cfg.Security.AllowSelfSignup,
		Version:         version,
	})

	handler := middleware.Chain(engine,
		middleware.RequestID,
		middleware.AccessLog,
		middleware.BearerAuth([]byte(cfg.Security.JWTSecret)),
		middleware.MaxBytes(2<<20),
	)

	// WriteTimeout 保持为 0，SSE 长连接不能被写超时掐断。
	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
	}

	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		slog.Error("HTTP 服务监听启动失败", "addr", cfg.Addr, "err", err)
		os.Exit(1)
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("服务启动", "addr", cfg.Addr, "env", cfg.Env, "db", string(dialect))
		serverErr <- httpServer.Serve(ln)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP 服务异常退出", "err", err)
			os.Exit(1)
		}
	case sig := <-quit:
		slog.Info("收到退出信号，开始优雅关停", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			slog.Error("优雅关停失败", "err", err)
		}
	}
}
