package service

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"sage/internal/apierr"
	"sage/internal/store"
)

// NetworkSetting 控制对外可见地址，邀请链接等出站内容依赖它。
type NetworkSetting struct {
	ExternalURL string `json:"external_url"`
}

type SecuritySetting struct {
	// AllowedRegisterDomains 为空表示不限制注册域名。
	AllowedRegisterDomains     []string `json:"allowed_register_domains"`
	DisableClientSideTelemetry bool     `json:"disable_client_side_telemetry"`
	DisablePasswordLogin       bool     `json:"disable_password_login"`
}

type SettingService interface {
	Network(ctx context.Context) (*NetworkSetting, error)
	UpdateNetwork(ctx context.Context, set NetworkSetting) error
	Security(ctx context.Context) (*SecuritySetting, error)
	UpdateSecurity(ctx context.Context, set SecuritySetting) error
}

type settingService struct {
	store *store.Store
}

func newSettingService(st *store.Store) *settingService {
	return &settingService{store: st}
}

func (s *settingService) Network(ctx context.Context) (*NetworkSetting, error) {
	raw, err := s.store.GetSetting(ctx, store.SettingNetwork)
	if errors.Is(err, sql.ErrNoRows) {
		return &NetworkSetting{ExternalURL: "http://localhost:8080"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &NetworkSetting{ExternalURL: gjson.Get(raw, "external_url").String()}, nil
}

func (s *settingService) UpdateNetwork(ctx context.Context, set NetworkSetting) error {
	set.ExternalURL = strings.TrimRight(strings.TrimSpace(set.ExternalURL), "/")
	u, err := url.Parse(set.ExternalURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return apierr.InvalidInput(apierr.FieldError{Path: "externalUrl", Message: "外部地址必须是完整的 http(s) URL"})
	}
	raw, _ := sjson.Set("{}", "external_url", set.ExternalURL)
	return s.store.SetSetting(ctx, store.SettingNetwork, raw)
}

func (s *settingService) Security(ctx context.Context) (*SecuritySetting, error) {
	raw, err := s.store.GetSetting(ctx, store.SettingSecurity)
	if errors.Is(err, sql.ErrNoRows) {
		return &SecuritySetting{}, nil
	}
	if err != nil {
		return nil, err
	}
	out := &SecuritySetting{
		DisableClientSideTelemetry: gjson.Get(raw, "disable_client_side_telemetry").Bool(),
		DisablePasswordLogin:       gjson.Get(raw, "disable_password_login").Bool(),
	}
	for _, d := range gjson.Get(raw, "allowed_register_domains").Array() {
		out.AllowedRegisterDomains = append(out.AllowedRegisterDomains, d.String())
	}
	return out, nil
}

func (s *settingService) UpdateSecurity(ctx context.Context, set SecuritySetting) error {
	var v apierr.Validator
	for i, d := range set.AllowedRegisterDomains {
		d = strings.ToLower(strings.TrimSpace(d))
		if d == "" || strings.ContainsAny(d, "@/ ") {
			v.Fail("allowedRegisterDomains", "域名格式不合法")
			continue
		}
		set.AllowedRegisterDomains[i] = d
	}
	if err := v.Err(); err != nil {
		return err
	}

	raw := "{}"
	raw, _ = sjson.Set(raw, "allowed_register_domains", set.AllowedRegisterDomains)
	raw, _ = sjson.Set(raw, "disable_client_side_telemetry", set.DisableClientSideTelemetry)
	raw, _ = sjson.Set(raw, "disable_password_login", set.DisablePasswordLogin)
	return s.store.SetSetting(ctx, store.SettingSecurity, raw)
}
