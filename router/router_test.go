package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"sage/internal/config"
	"sage/internal/middleware"
	"sage/internal/service"
	"sage/internal/store"
)

const testJWTSecret = "router-test-secret"

type testApp struct {
	t        *testing.T
	srv      *httptest.Server
	store    *store.Store
	registry *service.Registry
}

// newTestApp 以真实 SQLite 库与完整路由装配一个可收发请求的实例；
// mutate 可在装配前调整配置（关页面、开演示模式、指定推理后端等）。
func newTestApp(t *testing.T, mutate func(cfg *config.Config)) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := &config.Config{
		Env:  "dev",
		Addr: ":0",
		DB: config.DBConfig{
			Driver:     "sqlite",
			SQLitePath: filepath.Join(t.TempDir(), "test.db"),
		},
		Security:     config.SecurityConfig{JWTSecret: testJWTSecret},
		PagesEnabled: true,
	}
	if mutate != nil {
		mutate(cfg)
	}

	db, dialect, err := store.OpenDB(cfg.DB.Driver, cfg.DB.DSN, cfg.DB.SQLitePath)
	if err != nil {
		t.Fatalf("OpenDB: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db, dialect); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	st := store.New(db)
	st.SetDialect(dialect)

	registry, err := service.NewRegistry(cfg, st)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}

	engine := gin.New()
	SetRouter(engine, Options{
		Registry:  registry,
		JWTSecret: []byte(cfg.Security.JWTSecret),
		Env:       cfg.Env,
		DemoMode:  cfg.DemoMode,

		AllowSelfSignup: cfg.Security.AllowSelfSignup,
		Version:         "test",
	})

	srv := httptest.NewServer(middleware.Chain(engine,
		middleware.BearerAuth([]byte(cfg.Security.JWTSecret)),
		middleware.MaxBytes(2<<20),
	))
	t.Cleanup(srv.Close)

	return &testApp{t: t, srv: srv, store: st, registry: registry}
}

type apiResponse struct {
	Status  int
	Success bool
	Message string
	Code    string
	Errors []struct {
		Path    string `json:"path"`
		Message string `json:"message"`
	}
	Data json.RawMessage
	Body []byte
}

// do 发一次 JSON 请求并解包统一响应外壳。
func (a *testApp) do(method, path, token string, body any) *apiResponse {
	a.t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			a.t.Fatalf("marshal 请求体失败: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequest(method, a.srv.URL+path, reader)
	if err != nil {
		a.t.Fatalf("构造请求失败: %v", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := a.srv.Client().Do(req)
	if err != nil {
		a.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		a.t.Fatalf("读取响应失败: %v", err)
	}

	out := &apiResponse{Status: resp.StatusCode, Body: raw}
	if err := json.Unmarshal(raw, out); err != nil {
		a.t.Fatalf("%s %s 响应不是合法 JSON: %v\n%s", method, path, err, raw)
	}
	return out
}

func (r *apiResponse) mustOK(t *testing.T) *apiResponse {
	t.Helper()
	if r.Status != http.StatusOK || !r.Success {
		t.Fatalf("应成功，得到 %d %s", r.Status, r.Body)
	}
	return r
}

func (r *apiResponse) mustFail(t *testing.T, status int, code string) *apiResponse {
	t.Helper()
	if r.Status != status || r.Code != code {
		t.Fatalf("应为 %d %s，得到 %d %s（%s）", status, code, r.Status, r.Code, r.Body)
	}
	return r
}

type testUser struct {
	ID          int64
	Email       string
	AccessToken string
	Refresh     string
}

// register 注册并返回登录态；首个注册用户自动是管理员。
func (a *testApp) register(email, password, invitationCode string) *testUser {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email":           email,
		"name":            strings.SplitN(email, "@", 2)[0],
		"password":        password,
		"invitation_code": invitationCode,
	}).mustOK(a.t)

	u := &testUser{
		Email:       email,
		AccessToken: gjson.GetBytes(resp.Data, "access_token").String(),
		Refresh:     gjson.GetBytes(resp.Data, "refresh_token").String(),
	}
	if u.AccessToken == "" || u.Refresh == "" {
		a.t.Fatalf("注册应返回令牌对: %s", resp.Data)
	}

	me := a.do(http.MethodGet, "/api/me", u.AccessToken, nil).mustOK(a.t)
	u.ID = gjson.GetBytes(me.Data, "id").Int()
	return u
}

// invite 由管理员创建邀请并返回邀请码。
func (a *testApp) invite(adminToken, email string) string {
	a.t.Helper()
	resp := a.do(http.MethodPost, "/api/invitations", adminToken, map[string]string{"email": email}).mustOK(a.t)
	code := gjson.GetBytes(resp.Data, "code").String()
	if code == "" {
		a.t.Fatalf("邀请应携带 code: %s", resp.Data)
	}
	return code
}

// sse 发起一次流式请求并读完整个响应体。
func (a *testApp) sse(path, token string, body any) (int, string) {
	a.t.Helper()
	raw, err := json.Marshal(body)
	if err != nil {
		a.t.Fatalf("marshal 请求体失败: %v", err)
	}
	req, err := http.NewRequest(http.MethodPost, a.srv.URL+path, bytes.NewReader(raw))
	if err != nil {
		a.t.Fatalf("构造请求失败: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := a.srv.Client().Do(req)
	if err != nil {
		a.t.Fatalf("POST %s: %v", path, err)
	}
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		a.t.Fatalf("读取 SSE 响应失败: %v", err)
	}
	return resp.StatusCode, string(b)
}

// newChatStub 起一个 OpenAI 兼容的假推理后端，流式请求按 deltas 逐帧下发。
func newChatStub(t *testing.T, deltas []string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			http.NotFound(w, r)
			return
		}
		body, _ := io.ReadAll(r.Body)
		if gjson.GetBytes(body, "stream").Bool() {
			w.Header().Set("Content-Type", "text/event-stream")
			for _, d := range deltas {
				payload, _ := sjson.Set("{}", "choices.0.delta.content", d)
				fmt.Fprintf(w, "data: %s\n\n", payload)
			}
			fmt.Fprint(w, "data: [DONE]\n\n")
			return
		}
		payload, _ := sjson.Set("{}", "choices.0.message.content", strings.Join(deltas, ""))
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, payload)
	}))
	t.Cleanup(srv.Close)
	return srv
}
