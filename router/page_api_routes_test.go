package router

import (
	"net/http"
	"strings"
	"testing"

	"github.com/tidwall/gjson"

	"sage/internal/config"
)

func TestPagesDisabled(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) { cfg.PagesEnabled = false })
	u := app.register("admin@example.com", "password123", "")

	app.do(http.MethodGet, "/api/pages?first=10", u.AccessToken, nil).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")
	app.do(http.MethodPost, "/api/pages/run", u.AccessToken, map[string]string{"title_prompt": "主题"}).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")

	// 实例形态对外可见。
	info := app.do(http.MethodGet, "/api/server-info", "", nil).mustOK(t)
	if gjson.GetBytes(info.Data, "is_pages_enabled").Bool() {
		t.Fatalf("server-info 应报告页面能力关闭: %s", info.Data)
	}
}

func TestCreatePageRunAndEdit(t *testing.T) {
	app := newChatApp(t, []string{"第一段。", "第二段。"})
	author := app.register("author@example.com", "password123", "")
	code := app.invite(author.AccessToken, "other@example.com")
	other := app.register("other@example.com", "password123", code)

	status, body := app.sse("/api/pages/run", author.AccessToken, map[string]string{
		"title_prompt": "分布式缓存",
	})
	if status != http.StatusOK {
		t.Fatalf("SSE 应为 200，得到 %d:\n%s", status, body)
	}
	pageID := gjson.Get(sseField(t, body, "page_created"), "page_id").String()
	if pageID == "" {
		t.Fatalf("page_created 帧缺少 page_id:\n%s", body)
	}
	if !strings.Contains(body, "event: done") {
		t.Fatalf("流应以 done 收尾:\n%s", body)
	}

	// 流结束后页面正文已落库。
	page := app.do(http.MethodGet, "/api/pages/"+pageID, author.AccessToken, nil).mustOK(t)
	if gjson.GetBytes(page.Data, "content").String() != "第一段。第二段。" {
		t.Fatalf("页面正文应为全部增量拼接: %s", page.Data)
	}
	if gjson.GetBytes(page.Data, "title").String() != "分布式缓存" {
		t.Fatalf("页面标题不符: %s", page.Data)
	}

	// 页面对所有登录用户可读，但只有作者可编辑。
	app.do(http.MethodGet, "/api/pages/"+pageID, other.AccessToken, nil).mustOK(t)
	app.do(http.MethodPut, "/api/pages/"+pageID+"/title", other.AccessToken,
		map[string]string{"title": "篡改"}).mustFail(t, http.StatusForbidden, "FORBIDDEN")
	app.do(http.MethodPut, "/api/pages/"+pageID+"/title", author.AccessToken,
		map[string]string{"title": "缓存实践"}).mustOK(t)

	// 作者可删除，删除后不可见。
	app.do(http.MethodDelete, "/api/pages/"+pageID, other.AccessToken, nil).
		mustFail(t, http.StatusForbidden, "FORBIDDEN")
	app.do(http.MethodDelete, "/api/pages/"+pageID, author.AccessToken, nil).mustOK(t)
	app.do(http.MethodGet, "/api/pages/"+pageID, author.AccessToken, nil).
		mustFail(t, http.StatusNotFound, "NOT_FOUND")
}

func TestAppendAndMovePageSections(t *testing.T) {
	app := newChatApp(t, []string{"小节正文"})
	u := app.register("author@example.com", "password123", "")

	_, body := app.sse("/api/pages/run", u.AccessToken, map[string]string{"title_prompt": "主题"})
	pageID := gjson.Get(sseField(t, body, "page_created"), "page_id").String()

	var sectionIDs []string
	for _, title := range []string{"背景", "方案"} {
		_, secBody := app.sse("/api/pages/"+pageID+"/sections/run", u.AccessToken,
			map[string]string{"title_prompt": title})
		id := gjson.Get(sseField(t, secBody, "section_created"), "section_id").String()
		if id == "" {
			t.Fatalf("section_created 帧缺少 section_id:\n%s", secBody)
		}
		sectionIDs = append(sectionIDs, id)
	}

	list := app.do(http.MethodGet, "/api/pages/"+pageID+"/sections?first=10", u.AccessToken, nil).mustOK(t)
	edges := gjson.GetBytes(list.Data, "edges").Array()
	if len(edges) != 2 {
		t.Fatalf("应有 2 个小节，得到 %d", len(edges))
	}
	if edges[0].Get("node.content").String() != "小节正文" {
		t.Fatalf("小节正文应已落库: %s", list.Data)
	}

	// 第二节上移后位置互换（列表按游标全序返回，排版顺序看 position）。
	app.do(http.MethodPut, "/api/sections/"+sectionIDs[1]+"/move", u.AccessToken,
		map[string]string{"direction": "up"}).mustOK(t)
	list = app.do(http.MethodGet, "/api/pages/"+pageID+"/sections?first=10", u.AccessToken, nil).mustOK(t)
	edges = gjson.GetBytes(list.Data, "edges").Array()
	byID := map[string]int64{}
	for _, e := range edges {
		byID[e.Get("node.id").String()] = e.Get("node.position").Int()
	}
	if byID[sectionIDs[1]] >= byID[sectionIDs[0]] {
		t.Fatalf("上移后第二节应排在前面: %v", byID)
	}

	app.do(http.MethodPut, "/api/sections/"+sectionIDs[1]+"/move", u.AccessToken,
		map[string]string{"direction": "sideways"}).mustFail(t, http.StatusBadRequest, "INVALID_INPUT")
}

func TestCreatePageFromThread(t *testing.T) {
	app := newChatApp(t, []string{"沉淀的内容"})
	u := app.register("author@example.com", "password123", "")

	_, body := app.sse("/api/threads/run", u.AccessToken, map[string]any{
		"user_message": "聊点什么", "persisted": true,
	})
	threadID := gjson.Get(sseField(t, body, "run_created"), "thread_id").String()

	status, pageBody := app.sse("/api/pages/from-thread", u.AccessToken, map[string]string{
		"thread_id": threadID,
	})
	if status != http.StatusOK {
		t.Fatalf("SSE 应为 200，得到 %d:\n%s", status, pageBody)
	}
	pageID := gjson.Get(sseField(t, pageBody, "page_created"), "page_id").String()

	page := app.do(http.MethodGet, "/api/pages/"+pageID, u.AccessToken, nil).mustOK(t)
	if gjson.GetBytes(page.Data, "content").String() != "沉淀的内容" {
		t.Fatalf("页面内容应来自生成流: %s", page.Data)
	}

	// 不存在的线程。
	app.do(http.MethodPost, "/api/pages/from-thread", u.AccessToken, map[string]string{
		"thread_id": "missing",
	}).mustFail(t, http.StatusNotFound, "NOT_FOUND")
}
