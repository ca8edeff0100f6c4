package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := EnsureSchema(db, DialectSQLite); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return New(db)
}

func i64(v int64) *int64 { return &v }

func TestUserLifecycle(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	id, err := st.CreateUser(ctx, "a@example.com", "甲", []byte("hash-a"), true, "auth_a")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	u, err := st.GetUserByEmail(ctx, "a@example.com")
	if err != nil {
		t.Fatalf("GetUserByEmail: %v", err)
	}
	if u.ID != id || !u.IsAdmin || !u.Active {
		t.Fatalf("用户字段不符: %+v", u)
	}

	if _, err := st.GetUserByEmail(ctx, "missing@example.com"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("不存在的用户应返回 sql.ErrNoRows，得到 %v", err)
	}

	if err := st.SetUserActive(ctx, id, false); err != nil {
		t.Fatalf("SetUserActive: %v", err)
	}
	u, err = st.GetUserByID(ctx, id)
	if err != nil {
		t.Fatalf("GetUserByID: %v", err)
	}
	if u.Active {
		t.Fatal("停用后 Active 应为 false")
	}

	if err := st.SetUserActive(ctx, 9999, false); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("更新不存在的用户应返回 sql.ErrNoRows，得到 %v", err)
	}
}

func TestListThreadsWindow(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	owner, err := st.CreateUser(ctx, "o@example.com", "所有者", []byte("h"), false, "auth_o")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	var ids []int64
	for i := 0; i < 5; i++ {
		id, err := st.CreateThread(ctx, fmt.Sprintf("t-%d", i), owner, i%2 == 0)
		if err != nil {
			t.Fatalf("CreateThread: %v", err)
		}
		ids = append(ids, id)
	}

	// 正向窗口：after 之后最多 limit 条，升序。
	rows, err := st.ListThreads(ctx, nil, nil, false, i64(ids[1]), nil, 10, false)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(rows) != 3 || rows[0].ID != ids[2] {
		t.Fatalf("after 窗口应为后 3 条，得到 %d 条", len(rows))
	}

	// 反向窗口：降序取尾部。
	rows, err = st.ListThreads(ctx, nil, nil, false, nil, nil, 2, true)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(rows) != 2 || rows[0].ID != ids[4] || rows[1].ID != ids[3] {
		t.Fatalf("反向窗口应为 [5号 4号]，得到 %+v", rows)
	}

	// 排除临时线程（0、2、4 号为临时）。
	rows, err = st.ListThreads(ctx, nil, nil, true, nil, nil, 10, false)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("排除临时后应剩 2 条，得到 %d", len(rows))
	}

	// 仅看指定所有者。
	other, err := st.CreateUser(ctx, "x@example.com", "乙", []byte("h"), false, "auth_x")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	if _, err := st.CreateThread(ctx, "t-x", other, false); err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	rows, err = st.ListThreads(ctx, nil, &other, false, nil, nil, 10, false)
	if err != nil {
		t.Fatalf("ListThreads: %v", err)
	}
	if len(rows) != 1 || rows[0].UserID != other {
		t.Fatalf("所有者过滤失效: %+v", rows)
	}
}

func TestLastAssistantMessagePair(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tid, err := st.CreateThread(ctx, "t-pair", 1, false)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}

	if _, _, err := st.LastAssistantMessagePair(ctx, tid); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("空线程应返回 sql.ErrNoRows，得到 %v", err)
	}

	if _, err := st.CreateThreadMessage(ctx, "m-1", tid, "user", "问题一"); err != nil {
		t.Fatalf("CreateThreadMessage: %v", err)
	}
	// 尾部只有 user 消息时不构成消息对。
	if _, _, err := st.LastAssistantMessagePair(ctx, tid); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("不完整尾部应返回 sql.ErrNoRows，得到 %v", err)
	}

	if _, err := st.CreateThreadMessage(ctx, "m-2", tid, "assistant", "回答一"); err != nil {
		t.Fatalf("CreateThreadMessage: %v", err)
	}
	userMsg, assistantMsg, err := st.LastAssistantMessagePair(ctx, tid)
	if err != nil {
		t.Fatalf("LastAssistantMessagePair: %v", err)
	}
	if userMsg.PublicID != "m-1" || assistantMsg.PublicID != "m-2" {
		t.Fatalf("消息对不符: %s / %s", userMsg.PublicID, assistantMsg.PublicID)
	}
}

func TestDeleteThreadCascades(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tid, err := st.CreateThread(ctx, "t-del", 1, false)
	if err != nil {
		t.Fatalf("CreateThread: %v", err)
	}
	if _, err := st.CreateThreadMessage(ctx, "m-del", tid, "user", "hi"); err != nil {
		t.Fatalf("CreateThreadMessage: %v", err)
	}
	if err := st.DeleteThread(ctx, tid); err != nil {
		t.Fatalf("DeleteThread: %v", err)
	}
	if _, err := st.GetThreadByPublicID(ctx, "t-del"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("线程应已删除，得到 %v", err)
	}
	if _, err := st.GetThreadMessageByPublicID(ctx, "m-del"); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("消息应随线程级联删除，得到 %v", err)
	}
}

func TestMovePageSection(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	pid, err := st.CreatePage(ctx, "p-1", 1, "标题", "")
	if err != nil {
		t.Fatalf("CreatePage: %v", err)
	}
	var secs []int64
	for i := 0; i < 3; i++ {
		id, err := st.CreatePageSection(ctx, fmt.Sprintf("s-%d", i), pid, fmt.Sprintf("节%d", i), "")
		if err != nil {
			t.Fatalf("CreatePageSection: %v", err)
		}
		secs = append(secs, id)
	}

	positions := func() map[int64]int {
		rows, err := st.ListPageSections(ctx, pid, nil, nil, 10, false)
		if err != nil {
			t.Fatalf("ListPageSections: %v", err)
		}
		out := make(map[int64]int, len(rows))
		for _, r := range rows {
			out[r.ID] = r.Position
		}
		return out
	}

	before := positions()

	// 中间节上移：与前一节交换位置。
	if err := st.MovePageSection(ctx, secs[1], -1); err != nil {
		t.Fatalf("MovePageSection: %v", err)
	}
	after := positions()
	if after[secs[1]] != before[secs[0]] || after[secs[0]] != before[secs[1]] {
		t.Fatalf("位置应互换: before=%v after=%v", before, after)
	}

	// 已在顶部再上移：无操作。
	if err := st.MovePageSection(ctx, secs[1], -1); err != nil {
		t.Fatalf("边界上移应为无操作: %v", err)
	}
	if top := positions()[secs[1]]; top != after[secs[1]] {
		t.Fatal("边界上移不应改变位置")
	}
}

func TestSettingsUpsert(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	if _, err := st.GetSetting(ctx, SettingNetwork); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("未写入的设置应返回 sql.ErrNoRows，得到 %v", err)
	}
	if err := st.SetSetting(ctx, SettingNetwork, `{"external_url":"https://a"}`); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := st.SetSetting(ctx, SettingNetwork, `{"external_url":"https://b"}`); err != nil {
		t.Fatalf("SetSetting 覆盖: %v", err)
	}
	v, err := st.GetSetting(ctx, SettingNetwork)
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != `{"external_url":"https://b"}` {
		t.Fatalf("设置应被覆盖，得到 %q", v)
	}
}

func TestRefreshTokenRotation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	uid, err := st.CreateUser(ctx, "r@example.com", "丙", []byte("h"), false, "auth_r")
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}

	oldHash := []byte("hash-old")
	newHash := []byte("hash-new")
	exp := time.Now().Add(time.Hour)
	if err := st.CreateRefreshToken(ctx, uid, oldHash, exp); err != nil {
		t.Fatalf("CreateRefreshToken: %v", err)
	}
	if err := st.RotateRefreshToken(ctx, oldHash, newHash, exp); err != nil {
		t.Fatalf("RotateRefreshToken: %v", err)
	}
	if _, err := st.GetRefreshToken(ctx, oldHash); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("旧 token 应失效，得到 %v", err)
	}
	rt, err := st.GetRefreshToken(ctx, newHash)
	if err != nil {
		t.Fatalf("GetRefreshToken: %v", err)
	}
	if rt.UserID != uid {
		t.Fatalf("轮换后 user_id 不符: %d", rt.UserID)
	}

	if err := st.DeleteRefreshTokensByUser(ctx, uid); err != nil {
		t.Fatalf("DeleteRefreshTokensByUser: %v", err)
	}
	if _, err := st.GetRefreshToken(ctx, newHash); !errors.Is(err, sql.ErrNoRows) {
		t.Fatalf("吊销后 token 应不存在，得到 %v", err)
	}
}
