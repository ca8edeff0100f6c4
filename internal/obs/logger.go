// Package obs 提供最小的可观测能力：结构化日志与 expvar 运行指标，默认不记录敏感信息。
package obs

import (
	"log/slog"
	"os"
)

// NewLogger 构造进程级日志器：生产环境输出 JSON 便于采集，
// dev 下放开 debug 级别并改用文本格式方便肉眼排查。
func NewLogger(env string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	var h slog.Handler
	if env == "dev" {
		opts.Level = slog.LevelDebug
		h = slog.NewTextHandler(os.Stderr, opts)
	} else {
		h = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(h).With("service", "sage")
}
