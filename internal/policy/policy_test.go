package policy

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db, store.DialectSQLite); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store.New(db)
}

func kindOf(t *testing.T, err error) apierr.Kind {
	t.Helper()
	var ae *apierr.Error
	if !errors.As(err, &ae) {
		t.Fatalf("应为归类错误，得到 %v", err)
	}
	return ae.Kind
}

func TestCheckReadAnalytic(t *testing.T) {
	p := New(newTestStore(t))
	admin := auth.Principal{UserID: 1, IsAdmin: true}
	member := auth.Principal{UserID: 2}

	if err := p.CheckReadAnalytic(admin, nil); err != nil {
		t.Fatalf("管理员全量查询应放行: %v", err)
	}
	if err := p.CheckReadAnalytic(member, []int64{2}); err != nil {
		t.Fatalf("普通用户查自己应放行: %v", err)
	}
	if kindOf(t, p.CheckReadAnalytic(member, nil)) != apierr.KindForbidden {
		t.Fatal("普通用户全量查询应为 FORBIDDEN")
	}
	if kindOf(t, p.CheckReadAnalytic(member, []int64{2, 3})) != apierr.KindForbidden {
		t.Fatal("普通用户查他人应为 FORBIDDEN")
	}
}

func TestCheckReadThreadHidesEphemeral(t *testing.T) {
	p := New(newTestStore(t))
	owner := auth.Principal{UserID: 1}
	other := auth.Principal{UserID: 2, IsAdmin: true}

	if err := p.CheckReadThread(owner, 1, true); err != nil {
		t.Fatalf("所有者读临时线程应放行: %v", err)
	}
	// 临时线程对非所有者（即使是管理员）报 NOT_FOUND，不泄露存在性。
	if kindOf(t, p.CheckReadThread(other, 1, true)) != apierr.KindNotFound {
		t.Fatal("非所有者读临时线程应为 NOT_FOUND")
	}
	if err := p.CheckReadThread(other, 1, false); err != nil {
		t.Fatalf("持久线程对登录用户可读: %v", err)
	}
}

func TestCheckDeleteThreadOwnerOnly(t *testing.T) {
	p := New(newTestStore(t))
	admin := auth.Principal{UserID: 9, IsAdmin: true}

	if err := p.CheckDeleteThread(auth.Principal{UserID: 1}, 1); err != nil {
		t.Fatalf("所有者删除应放行: %v", err)
	}
	if kindOf(t, p.CheckDeleteThread(admin, 1)) != apierr.KindForbidden {
		t.Fatal("管理员也不能删除他人线程")
	}
}

func TestCheckUpsertUserGroupMembership(t *testing.T) {
	st := newTestStore(t)
	p := New(st)
	ctx := context.Background()

	groupID, err := st.CreateUserGroup(ctx, "backend")
	if err != nil {
		t.Fatalf("CreateUserGroup: %v", err)
	}
	if err := st.UpsertUserGroupMembership(ctx, groupID, 2, true); err != nil {
		t.Fatalf("UpsertUserGroupMembership: %v", err)
	}
	if err := st.UpsertUserGroupMembership(ctx, groupID, 3, false); err != nil {
		t.Fatalf("UpsertUserGroupMembership: %v", err)
	}

	if err := p.CheckUpsertUserGroupMembership(ctx, auth.Principal{UserID: 99, IsAdmin: true}, groupID); err != nil {
		t.Fatalf("站点管理员应放行: %v", err)
	}
	if err := p.CheckUpsertUserGroupMembership(ctx, auth.Principal{UserID: 2}, groupID); err != nil {
		t.Fatalf("组管理员应放行: %v", err)
	}
	if kindOf(t, p.CheckUpsertUserGroupMembership(ctx, auth.Principal{UserID: 3}, groupID)) != apierr.KindForbidden {
		t.Fatal("普通组员应为 FORBIDDEN")
	}
	if kindOf(t, p.CheckUpsertUserGroupMembership(ctx, auth.Principal{UserID: 4}, groupID)) != apierr.KindForbidden {
		t.Fatal("非组员应为 FORBIDDEN")
	}
}

func TestCheckReadSource(t *testing.T) {
	st := newTestStore(t)
	p := New(st)
	ctx := context.Background()

	// 未配置任何访问组的来源默认对所有人可读。
	if err := p.CheckReadSource(ctx, auth.Principal{UserID: 5}, "repo-open"); err != nil {
		t.Fatalf("无访问组配置应默认放行: %v", err)
	}

	groupID, err := st.CreateUserGroup(ctx, "readers")
	if err != nil {
		t.Fatalf("CreateUserGroup: %v", err)
	}
	if err := st.UpsertUserGroupMembership(ctx, groupID, 5, false); err != nil {
		t.Fatalf("UpsertUserGroupMembership: %v", err)
	}
	if err := st.GrantSourceIDReadAccess(ctx, "repo-private", groupID); err != nil {
		t.Fatalf("GrantSourceIDReadAccess: %v", err)
	}

	if err := p.CheckReadSource(ctx, auth.Principal{UserID: 5}, "repo-private"); err != nil {
		t.Fatalf("组员应可读受限来源: %v", err)
	}
	if kindOf(t, p.CheckReadSource(ctx, auth.Principal{UserID: 6}, "repo-private")) != apierr.KindForbidden {
		t.Fatal("非组员应为 FORBIDDEN")
	}
	if err := p.CheckReadSource(ctx, auth.Principal{UserID: 6, IsAdmin: true}, "repo-private"); err != nil {
		t.Fatalf("管理员应放行: %v", err)
	}
}
