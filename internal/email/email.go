// Package email 提供邮件发送能力（当前仅实现 SMTP），配置保存在设置表而非环境变量，
// 管理员可在线修改并即时生效。
package email

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"sage/internal/apierr"
	"sage/internal/store"
)

// Setting 是 email_setting 的 JSON 视图；密码读出时不回传。
type Setting struct {
	SMTPServer   string `json:"smtp_server"`
	SMTPPort     int    `json:"smtp_port"`
	FromAddress  string `json:"from_address"`
	SMTPUsername string `json:"smtp_username"`
	SMTPPassword string `json:"smtp_password,omitempty"`
	Encryption   string `json:"encryption"`
}

// Service 管理邮件设置并对外发送模板邮件。
type Service struct {
	store *store.Store
}

func NewService(st *store.Store) *Service {
	return &Service{store: st}
}

// Setting 返回当前设置；未配置时返回 EMAIL_NOT_CONFIGURED。
func (s *Service) Setting(ctx context.Context) (*Setting, error) {
	set, err := s.load(ctx)
	if err != nil {
		return nil, err
	}
	out := *set
	out.SMTPPassword = ""
	return &out, nil
}

func (s *Service) load(ctx context.Context) (*Setting, error) {
	raw, err := s.store.GetSetting(ctx, store.SettingEmail)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.EmailNotConfigured()
	}
	if err != nil {
		return nil, err
	}
	set := &Setting{
		SMTPServer:   gjson.Get(raw, "smtp_server").String(),
		SMTPPort:     int(gjson.Get(raw, "smtp_port").Int()),
		FromAddress:  gjson.Get(raw, "from_address").String(),
		SMTPUsername: gjson.Get(raw, "smtp_username").String(),
		SMTPPassword: gjson.Get(raw, "smtp_password").String(),
		Encryption:   gjson.Get(raw, "encryption").String(),
	}
	return set, nil
}

// UpdateSetting 覆盖写入设置；password 为空表示沿用已存密码。
func (s *Service) UpdateSetting(ctx context.Context, set Setting) error {
	var v apierr.Validator
	if strings.TrimSpace(set.SMTPServer) == "" {
		v.Fail("smtpServer", "SMTP 服务器不能为空")
	}
	if set.SMTPPort <= 0 || set.SMTPPort > 65535 {
		v.Fail("smtpPort", "SMTP 端口不合法")
	}
	if _, err := mail.ParseAddress(strings.TrimSpace(set.FromAddress)); err != nil {
		v.Fail("fromAddress", "发件人邮箱不合法")
	}
	switch set.Encryption {
	case "ssltls", "starttls", "none":
	default:
		v.Fail("encryption", "加密方式只支持 ssltls/starttls/none")
	}
	if err := v.Err(); err != nil {
		return err
	}

	if set.SMTPPassword == "" {
		if old, err := s.load(ctx); err == nil {
			set.SMTPPassword = old.SMTPPassword
		}
	}

	raw := "{}"
	raw, _ = sjson.Set(raw, "smtp_server", strings.TrimSpace(set.SMTPServer))
	raw, _ = sjson.Set(raw, "smtp_port", set.SMTPPort)
	raw, _ = sjson.Set(raw, "from_address", strings.TrimSpace(set.FromAddress))
	raw, _ = sjson.Set(raw, "smtp_username", strings.TrimSpace(set.SMTPUsername))
	raw, _ = sjson.Set(raw, "smtp_password", set.SMTPPassword)
	raw, _ = sjson.Set(raw, "encryption", set.Encryption)
	return s.store.SetSetting(ctx, store.SettingEmail, raw)
}

func (s *Service) DeleteSetting(ctx context.Context) error {
	return s.store.DeleteSetting(ctx, store.SettingEmail)
}

// Configured 报告是否已有可用的邮件设置。
func (s *Service) Configured(ctx context.Context) (bool, error) {
	_, err := s.load(ctx)
	if err == nil {
		return true, nil
	}
	var ae *apierr.Error
	if errors.As(err, &ae) && ae.Kind == apierr.KindEmailNotConfigured {
		return false, nil
	}
	return false, err
}

// SendTest 用当前设置给指定地址发送一封测试邮件。
func (s *Service) SendTest(ctx context.Context, to string) error {
	return s.send(ctx, to, "Sage 测试邮件", "<p>如果你收到了这封邮件，说明 SMTP 设置工作正常。</p>")
}

// SendInvitation 发送注册邀请，link 由调用方拼好完整 URL。
func (s *Service) SendInvitation(ctx context.Context, to, link string) error {
	html := fmt.Sprintf("<p>你被邀请加入 Sage，点击链接完成注册：</p><p><a href=%q>%s</a></p>", link, link)
	return s.send(ctx, to, "Sage 注册邀请", html)
}

// SendPasswordReset 发送找回密码邮件。
func (s *Service) SendPasswordReset(ctx context.Context, to, link string) error {
	html := fmt.Sprintf("<p>点击链接重置密码（如非本人操作请忽略）：</p><p><a href=%q>%s</a></p>", link, link)
	return s.send(ctx, to, "Sage 密码重置", html)
}

func (s *Service) send(ctx context.Context, to, subject, html string) error {
	set, err := s.load(ctx)
	if err != nil {
		return err
	}
	toAddr, err := normalizeAddress(to)
	if err != nil {
		return fmt.Errorf("收件人邮箱不合法: %w", err)
	}
	return sendSMTP(ctx, set, toAddr, subject, html)
}

func normalizeAddress(s string) (string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", errors.New("邮箱为空")
	}
	a, err := mail.ParseAddress(s)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(a.Address), nil
}
