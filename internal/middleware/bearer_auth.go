package middleware

import (
	"net/http"
	"strings"

	"sage/internal/auth"
)

// BearerAuth 解析 Authorization 头并把 Principal 放入上下文。匿名请求不在
// 这里拒绝，是否要求登录由各操作的鉴权守卫决定。
func BearerAuth(secret []byte) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := extractBearer(r.Header.Get("Authorization"))
			if raw == "" {
				next.ServeHTTP(w, r)
				return
			}
			claims, err := auth.VerifyAccessToken(secret, raw)
			if err != nil {
				// 带了凭据但无效：按匿名继续，由守卫统一返回 UNAUTHORIZED，
				// 避免此处旁路产生第二套错误外壳。
				next.ServeHTTP(w, r)
				return
			}
			userID, err := claims.SubjectUserID()
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			p := auth.Principal{
				UserID:                   userID,
				IsAdmin:                  claims.IsAdmin,
				IsGeneratedFromAuthToken: claims.IsGeneratedFromAuthToken,
			}
			next.ServeHTTP(w, r.WithContext(auth.WithPrincipal(r.Context(), p)))
		})
	}
}

func extractBearer(v string) string {
	if v == "" {
		return ""
	}
	parts := strings.SplitN(v, " ", 2)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
