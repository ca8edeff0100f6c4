package router

import (
	"net/http"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"sage/internal/config"
)

func TestEmailSettingLifecycle(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")

	// 未配置时统一返回 EMAIL_NOT_CONFIGURED。
	app.do(http.MethodGet, "/api/settings/email", admin.AccessToken, nil).
		mustFail(t, http.StatusBadRequest, "EMAIL_NOT_CONFIGURED")
	app.do(http.MethodPost, "/api/settings/email/test", admin.AccessToken, nil).
		mustFail(t, http.StatusBadRequest, "EMAIL_NOT_CONFIGURED")

	// 校验逐字段聚合。
	resp := app.do(http.MethodPut, "/api/settings/email", admin.AccessToken, map[string]any{
		"smtp_server": "", "smtp_port": 0, "from_address": "bad", "encryption": "tls13",
	}).mustFail(t, http.StatusBadRequest, "INVALID_INPUT")
	if len(resp.Errors) != 4 {
		t.Fatalf("应聚合 4 个字段错误，得到 %d: %s", len(resp.Errors), resp.Body)
	}

	app.do(http.MethodPut, "/api/settings/email", admin.AccessToken, map[string]any{
		"smtp_server":   "smtp.example.com",
		"smtp_port":     587,
		"from_address":  "noreply@example.com",
		"smtp_username": "noreply",
		"smtp_password": "secret",
		"encryption":    "starttls",
	}).mustOK(t)

	// 读出时不回传密码。
	got := app.do(http.MethodGet, "/api/settings/email", admin.AccessToken, nil).mustOK(t)
	if gjson.GetBytes(got.Data, "smtp_password").String() != "" {
		t.Fatalf("设置读出不应包含密码: %s", got.Data)
	}
	if gjson.GetBytes(got.Data, "smtp_server").String() != "smtp.example.com" {
		t.Fatalf("设置内容不符: %s", got.Data)
	}

	app.do(http.MethodDelete, "/api/settings/email", admin.AccessToken, nil).mustOK(t)
	app.do(http.MethodGet, "/api/settings/email", admin.AccessToken, nil).
		mustFail(t, http.StatusBadRequest, "EMAIL_NOT_CONFIGURED")
}

func TestNetworkSettingValidation(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")

	// 未配置时回落默认地址。
	got := app.do(http.MethodGet, "/api/settings/network", admin.AccessToken, nil).mustOK(t)
	if gjson.GetBytes(got.Data, "external_url").String() != "http://localhost:8080" {
		t.Fatalf("默认外部地址不符: %s", got.Data)
	}

	app.do(http.MethodPut, "/api/settings/network", admin.AccessToken, map[string]string{
		"external_url": "ftp://sage.example.com",
	}).mustFail(t, http.StatusBadRequest, "INVALID_INPUT")

	app.do(http.MethodPut, "/api/settings/network", admin.AccessToken, map[string]string{
		"external_url": "https://sage.example.com/",
	}).mustOK(t)
	got = app.do(http.MethodGet, "/api/settings/network", admin.AccessToken, nil).mustOK(t)
	if gjson.GetBytes(got.Data, "external_url").String() != "https://sage.example.com" {
		t.Fatalf("外部地址应去掉尾部斜杠: %s", got.Data)
	}
}

func TestSecuritySettingGovernsRegistration(t *testing.T) {
	app := newTestApp(t, func(cfg *config.Config) { cfg.Security.AllowSelfSignup = true })
	admin := app.register("admin@corp.com", "password123", "")

	app.do(http.MethodPut, "/api/settings/security", admin.AccessToken, map[string]any{
		"allowed_register_domains": []string{"corp.com"},
	}).mustOK(t)

	// 白名单外的域名拒绝自助注册。
	app.do(http.MethodPost, "/api/auth/register", "", map[string]string{
		"email": "outsider@gmail.com", "name": "外人", "password": "password123",
	}).mustFail(t, http.StatusBadRequest, "INVALID_INPUT")

	// 白名单内放行。
	app.register("colleague@corp.com", "password123", "")

	// 邀请码不受域名白名单限制。
	code := app.invite(admin.AccessToken, "guest@gmail.com")
	app.register("guest@gmail.com", "password123", code)

	app.do(http.MethodPut, "/api/settings/security", admin.AccessToken, map[string]any{
		"allowed_register_domains": []string{"bad domain"},
	}).mustFail(t, http.StatusBadRequest, "INVALID_INPUT")
}

func TestDisablePasswordLoginRequiresLicense(t *testing.T) {
	signer := newLicenseSigner(t)
	app := newTestApp(t, func(cfg *config.Config) { cfg.LicensePublicKeyPEM = signer.pem })
	admin := app.register("admin@example.com", "password123", "")

	// 社区版不能关闭密码登录。
	app.do(http.MethodPut, "/api/settings/security", admin.AccessToken, map[string]any{
		"disable_password_login": true,
	}).mustFail(t, http.StatusForbidden, "INVALID_LICENSE")

	raw := signer.sign(t, "TEAM", 10, time.Now().Add(24*time.Hour))
	app.do(http.MethodPut, "/api/license", admin.AccessToken, map[string]string{"license": raw}).mustOK(t)
	app.do(http.MethodPut, "/api/settings/security", admin.AccessToken, map[string]any{
		"disable_password_login": true,
	}).mustOK(t)

	got := app.do(http.MethodGet, "/api/settings/security", admin.AccessToken, nil).mustOK(t)
	if !gjson.GetBytes(got.Data, "disable_password_login").Bool() {
		t.Fatalf("设置应已生效: %s", got.Data)
	}

	// 停用后普通用户无法密码登录，管理员保留入口以免实例锁死。
	code := app.invite(admin.AccessToken, "member@example.com")
	app.register("member@example.com", "password123", code)
	app.do(http.MethodPost, "/api/auth/token", "", map[string]string{
		"email": "member@example.com", "password": "password123",
	}).mustFail(t, http.StatusUnauthorized, "UNAUTHORIZED")
	app.do(http.MethodPost, "/api/auth/token", "", map[string]string{
		"email": "admin@example.com", "password": "password123",
	}).mustOK(t)
}

func TestSettingsRequireAdmin(t *testing.T) {
	app := newTestApp(t, nil)
	admin := app.register("admin@example.com", "password123", "")
	code := app.invite(admin.AccessToken, "member@example.com")
	member := app.register("member@example.com", "password123", code)

	for _, path := range []string{"/api/settings/email", "/api/settings/network", "/api/settings/security"} {
		app.do(http.MethodGet, path, member.AccessToken, nil).
			mustFail(t, http.StatusForbidden, "FORBIDDEN")
	}
}
