// Package auth 提供请求主体（Principal）的定义与上下文透传，以及密码/随机 Token 工具。
package auth

import (
	"context"
)

// Principal 是一次请求（或一条订阅）期间的已验证身份；匿名请求没有 Principal。
// 创建后不可变。
type Principal struct {
	UserID  int64
	IsAdmin bool
	// IsGeneratedFromAuthToken 标记该 JWT 由长期 auth token 兑换而来；
	// 部分操作（如修改密码）禁止这类主体调用。
	IsGeneratedFromAuthToken bool
}

type ctxKey int

const principalKey ctxKey = 1

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey, p)
}

func PrincipalFromContext(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalKey)
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}
