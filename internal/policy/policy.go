// Package policy 收敛资源级访问判定。约定：读不到的资源对外表现为 NOT_FOUND，
// 读得到但不许操作的资源表现为 FORBIDDEN；判定函数只回答“能不能”，不做变更。
package policy

import (
	"context"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/store"
)

type AccessPolicy struct {
	store *store.Store
}

func New(st *store.Store) *AccessPolicy {
	return &AccessPolicy{store: st}
}

// CheckReadAnalytic 限制普通用户只能查询自己的统计；users 为空表示全量，仅管理员可用。
func (p *AccessPolicy) CheckReadAnalytic(principal auth.Principal, users []int64) error {
	if principal.IsAdmin {
		return nil
	}
	if len(users) == 0 {
		return apierr.Forbidden("只能查询自己的统计数据")
	}
	for _, id := range users {
		if id != principal.UserID {
			return apierr.Forbidden("只能查询自己的统计数据")
		}
	}
	return nil
}

// CheckReadThread 判定线程可读性：临时线程仅所有者可见（对外 NOT_FOUND 以免泄露存在性），
// 持久线程对所有登录用户可读。
func (p *AccessPolicy) CheckReadThread(principal auth.Principal, ownerID int64, isEphemeral bool) error {
	if !isEphemeral {
		return nil
	}
	if ownerID == principal.UserID {
		return nil
	}
	return apierr.NotFound("线程不存在")
}

// CheckDeleteThread 仅所有者可删除线程；管理员也不例外。
func (p *AccessPolicy) CheckDeleteThread(principal auth.Principal, ownerID int64) error {
	if ownerID != principal.UserID {
		return apierr.Forbidden("只有线程所有者可以删除线程")
	}
	return nil
}

// CheckUpdateThreadMessage 消息内容修订仅限线程所有者。
func (p *AccessPolicy) CheckUpdateThreadMessage(principal auth.Principal, ownerID int64) error {
	if ownerID != principal.UserID {
		return apierr.Forbidden("只有线程所有者可以修改消息")
	}
	return nil
}

// CheckUpdatePage 页面编辑仅限作者。
func (p *AccessPolicy) CheckUpdatePage(principal auth.Principal, authorID int64) error {
	if authorID != principal.UserID {
		return apierr.Forbidden("只有页面作者可以编辑页面")
	}
	return nil
}

// CheckUpsertUserGroupMembership 站点管理员或该组的组管理员可以调整成员关系。
func (p *AccessPolicy) CheckUpsertUserGroupMembership(ctx context.Context, principal auth.Principal, groupID int64) error {
	if principal.IsAdmin {
		return nil
	}
	isGroupAdmin, err := p.store.IsGroupAdmin(ctx, groupID, principal.UserID)
	if err != nil {
		return err
	}
	if !isGroupAdmin {
		return apierr.Forbidden("需要组管理员权限")
	}
	return nil
}

// CheckReadSource 判定用户是否可读某代码来源；不可读对外表现为 FORBIDDEN。
func (p *AccessPolicy) CheckReadSource(ctx context.Context, principal auth.Principal, sourceID string) error {
	if principal.IsAdmin {
		return nil
	}
	ok, err := p.store.SourceIDReadable(ctx, sourceID, principal.UserID)
	if err != nil {
		return err
	}
	if !ok {
		return apierr.Forbidden("没有该来源的读取权限")
	}
	return nil
}
