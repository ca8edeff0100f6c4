package router

import (
	"database/sql"
	"errors"

	"github.com/gin-gonic/gin"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/license"
	"sage/internal/store"
)

// AuthorizedUser 是通过守卫后的请求主体：身份声明加上数据库里的当前用户行。
type AuthorizedUser struct {
	Principal auth.Principal
	User      *store.User
}

// requireAuthed 校验请求主体：没有有效令牌、用户已被删除或停用都按 UNAUTHORIZED 收口；
// allowAuthToken 为假时拒绝由长期凭据兑换出的访问令牌。
// 返回 false 时响应已写出。
func requireAuthed(c *gin.Context, opts Options, allowAuthToken bool) (*AuthorizedUser, bool) {
	principal, ok := auth.PrincipalFromContext(c.Request.Context())
	if !ok {
		fail(c, apierr.Unauthorized("未登录"))
		return nil, false
	}
	if principal.IsGeneratedFromAuthToken && !allowAuthToken {
		fail(c, apierr.Forbidden("该接口不允许使用长期凭据访问"))
		return nil, false
	}

	u, err := opts.Registry.Store.GetUserByID(c.Request.Context(), principal.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		fail(c, apierr.Unauthorized("用户不存在"))
		return nil, false
	}
	if err != nil {
		fail(c, err)
		return nil, false
	}
	if !u.Active {
		fail(c, apierr.Unauthorized("账号已被停用"))
		return nil, false
	}
	// 角色以数据库为准，令牌签发后被降权也立即生效。
	principal.IsAdmin = u.IsAdmin
	return &AuthorizedUser{Principal: principal, User: u}, true
}

func requireAdmin(c *gin.Context, opts Options) (*AuthorizedUser, bool) {
	au, ok := requireAuthed(c, opts, false)
	if !ok {
		return nil, false
	}
	if !au.User.IsAdmin {
		fail(c, apierr.Forbidden("需要管理员权限"))
		return nil, false
	}
	return au, true
}

// requireLicense 校验许可证级别，INVALID_LICENSE 统一由 fail 翻译。
func requireLicense(c *gin.Context, opts Options, tier license.Tier) bool {
	if err := opts.Registry.License.Ensure(c.Request.Context(), tier); err != nil {
		fail(c, err)
		return false
	}
	return true
}

// requireNotDemo 拦截演示实例上的危险变更。
func requireNotDemo(c *gin.Context, opts Options) bool {
	if opts.DemoMode {
		fail(c, apierr.Forbidden("演示模式下禁止该操作"))
		return false
	}
	return true
}

// requirePage 在页面能力未装配时统一拒绝。
func requirePage(c *gin.Context, opts Options) bool {
	if opts.Registry.Page == nil {
		fail(c, apierr.Forbidden("页面功能未启用"))
		return false
	}
	return true
}

// requireNotSelf 拦截管理员对自身的角色与状态变更。
func requireNotSelf(c *gin.Context, au *AuthorizedUser, targetID int64) bool {
	if targetID == au.User.ID {
		fail(c, apierr.Forbidden("不能对自己执行该操作"))
		return false
	}
	return true
}
