// Package middleware 是 gin 引擎之外的 net/http 外环：请求 id、访问日志
// 等横切逻辑在这里组合，入站先过外环再进路由。
package middleware

import "net/http"

// Middleware 包装一层 http.Handler。
type Middleware func(http.Handler) http.Handler

// Chain 按声明顺序套接中间件，列表首位位于最外层。
func Chain(h http.Handler, mws ...Middleware) http.Handler {
	for i := len(mws) - 1; i >= 0; i-- {
		h = mws[i](h)
	}
	return h
}
