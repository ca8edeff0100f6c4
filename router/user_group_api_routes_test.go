package router

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/tidwall/gjson"
)

func TestUserGroupLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")
	code := app.invite(admin.AccessToken, "lead@example.com")
	lead := app.register("lead@example.com", "password123", code)
	code = app.invite(admin.AccessToken, "dev@example.com")
	dev := app.register("dev@example.com", "password123", code)

	// 组名是小写标识符。
	app.do(http.MethodPost, "/api/user-groups", admin.AccessToken, map[string]string{"name": "Bad Name"}).
		mustFail(t, http.StatusBadRequest, "INVALID_INPUT")
	app.do(http.MethodPost, "/api/user-groups", lead.AccessToken, map[string]string{"name": "backend"}).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")

	created := app.do(http.MethodPost, "/api/user-groups", admin.AccessToken, map[string]string{"name": "backend"}).mustOK(t)
	groupID := gjson.GetBytes(created.Data, "id").Int()
	if groupID == 0 || gjson.GetBytes(created.Data, "name").String() != "backend" {
		t.Fatalf("建组响应不符: %s", created.Data)
	}

	// 组列表对所有登录用户可见。
	list := app.do(http.MethodGet, "/api/user-groups", dev.AccessToken, nil).mustOK(t)
	groups := gjson.GetBytes(list.Data, "@this").Array()
	if len(groups) != 1 || groups[0].Get("name").String() != "backend" {
		t.Fatalf("组列表不符: %s", list.Data)
	}

	// 站点管理员任命组管理员，组管理员再拉普通成员。
	app.do(http.MethodPut, fmt.Sprintf("/api/user-groups/%d/memberships", groupID), admin.AccessToken,
		map[string]any{"user_id": lead.ID, "is_group_admin": true}).mustOK(t)
	app.do(http.MethodPut, fmt.Sprintf("/api/user-groups/%d/memberships", groupID), lead.AccessToken,
		map[string]any{"user_id": dev.ID, "is_group_admin": false}).mustOK(t)

	members := app.do(http.MethodGet, fmt.Sprintf("/api/user-groups/%d/memberships", groupID), dev.AccessToken, nil).mustOK(t)
	byUser := map[int64]bool{}
	for _, m := range gjson.GetBytes(members.Data, "@this").Array() {
		byUser[m.Get("user_id").Int()] = m.Get("is_group_admin").Bool()
	}
	if len(byUser) != 2 || !byUser[lead.ID] || byUser[dev.ID] {
		t.Fatalf("成员关系不符: %s", members.Data)
	}

	// 普通组员无权调整成员。
	app.do(http.MethodPut, fmt.Sprintf("/api/user-groups/%d/memberships", groupID), dev.AccessToken,
		map[string]any{"user_id": admin.ID, "is_group_admin": false}).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")

	// 组管理员可移除成员；重复移除报不存在。
	app.do(http.MethodDelete, fmt.Sprintf("/api/user-groups/%d/memberships/%d", groupID, dev.ID), lead.AccessToken, nil).mustOK(t)
	app.do(http.MethodDelete, fmt.Sprintf("/api/user-groups/%d/memberships/%d", groupID, dev.ID), lead.AccessToken, nil).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")

	app.do(http.MethodDelete, fmt.Sprintf("/api/user-groups/%d", groupID), admin.AccessToken, nil).mustOK(t)
	app.do(http.MethodDelete, fmt.Sprintf("/api/user-groups/%d", groupID), admin.AccessToken, nil).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")
	app.do(http.MethodGet, fmt.Sprintf("/api/user-groups/%d/memberships", groupID), admin.AccessToken, nil).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")
}

func TestSourceAccessGrantRevoke(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")
	code := app.invite(admin.AccessToken, "member@example.com")
	member := app.register("member@example.com", "password123", code)

	created := app.do(http.MethodPost, "/api/user-groups", admin.AccessToken, map[string]string{"name": "readers"}).mustOK(t)
	groupID := gjson.GetBytes(created.Data, "id").Int()

	app.do(http.MethodPost, "/api/source-access", admin.AccessToken,
		map[string]any{"source_id": "acme", "user_group_id": groupID}).mustOK(t)
	app.do(http.MethodPost, "/api/source-access", admin.AccessToken,
		map[string]any{"source_id": "acme", "user_group_id": 9999}).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")

	got := app.do(http.MethodGet, "/api/source-access/acme", admin.AccessToken, nil).mustOK(t)
	ids := gjson.GetBytes(got.Data, "user_group_ids").Array()
	if len(ids) != 1 || ids[0].Int() != groupID {
		t.Fatalf("授权列表不符: %s", got.Data)
	}

	// 授权管理仅限站点管理员。
	app.do(http.MethodGet, "/api/source-access/acme", member.AccessToken, nil).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")

	app.do(http.MethodDelete, "/api/source-access", admin.AccessToken,
		map[string]any{"source_id": "acme", "user_group_id": groupID}).mustOK(t)
	got = app.do(http.MethodGet, "/api/source-access/acme", admin.AccessToken, nil).mustOK(t)
	if n := len(gjson.GetBytes(got.Data, "user_group_ids").Array()); n != 0 {
		t.Fatalf("撤销后不应有授权，得到 %d", n)
	}
	app.do(http.MethodDelete, "/api/source-access", admin.AccessToken,
		map[string]any{"source_id": "acme", "user_group_id": groupID}).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")
}

func TestInvitationListAndDelete(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")
	code := app.invite(admin.AccessToken, "member@example.com")
	member := app.register("member@example.com", "password123", code)

	app.invite(admin.AccessToken, "a@example.com")
	app.invite(admin.AccessToken, "b@example.com")

	list := app.do(http.MethodGet, "/api/invitations?first=10", admin.AccessToken, nil).mustOK(t)
	edges := gjson.GetBytes(list.Data, "edges").Array()
	if len(edges) != 2 {
		t.Fatalf("应列出 2 条待用邀请，得到 %d: %s", len(edges), list.Data)
	}
	if edges[0].Get("node.email").String() != "a@example.com" || edges[0].Get("node.code").String() == "" {
		t.Fatalf("邀请视图不符: %s", list.Data)
	}

	invID := edges[0].Get("node.id").Int()
	app.do(http.MethodDelete, fmt.Sprintf("/api/invitations/%d", invID), admin.AccessToken, nil).mustOK(t)
	app.do(http.MethodDelete, fmt.Sprintf("/api/invitations/%d", invID), admin.AccessToken, nil).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")

	app.do(http.MethodGet, "/api/invitations?first=10", member.AccessToken, nil).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")
}
