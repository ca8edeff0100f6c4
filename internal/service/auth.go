package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/tidwall/gjson"

	"sage/internal/apierr"
	"sage/internal/auth"
	"sage/internal/config"
	"sage/internal/email"
	"sage/internal/store"
)

const refreshTokenTTL = 7 * 24 * time.Hour

type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type AuthService interface {
	// Register 创建用户并直接登录；首个注册用户自动成为管理员。
	Register(ctx context.Context, emailAddr, name, password, invitationCode string) (*TokenPair, error)
	// Token 密码登录。
	Token(ctx context.Context, emailAddr, password string) (*TokenPair, error)
	// Refresh 轮换刷新令牌并签发新访问令牌。
	Refresh(ctx context.Context, refreshToken string) (*TokenPair, error)
	// TokenFromAuthToken 用长期凭据兑换访问令牌，签发的令牌带有受限标记。
	TokenFromAuthToken(ctx context.Context, authToken string) (string, error)
	UpdatePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error
	// LogoutSessions 吊销用户全部刷新令牌。
	LogoutSessions(ctx context.Context, userID int64) error
	ResetAuthToken(ctx context.Context, userID int64) (string, error)
	// CreateInvitation 创建邀请并尽力发送邀请邮件；邮件失败不阻塞创建。
	CreateInvitation(ctx context.Context, emailAddr string) (*store.Invitation, error)
}

type authService struct {
	store           *store.Store
	email           *email.Service
	jwtSecret       []byte
	allowSelfSignup bool
}

func newAuthService(st *store.Store, mailer *email.Service, cfg *config.Config) *authService {
	return &authService{
		store:           st,
		email:           mailer,
		jwtSecret:       []byte(cfg.Security.JWTSecret),
		allowSelfSignup: cfg.Security.AllowSelfSignup,
	}
}

func (s *authService) Register(ctx context.Context, emailAddr, name, password, invitationCode string) (*TokenPair, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	name = strings.TrimSpace(name)

	var v apierr.Validator
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		v.Fail("email", "邮箱格式不合法")
	}
	if len(password) < 8 {
		v.Fail("password", "密码长度至少 8 位")
	}
	if len(password) > 64 {
		v.Fail("password", "密码长度不能超过 64 位")
	}
	if err := v.Err(); err != nil {
		return nil, err
	}

	if _, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "email", Message: "邮箱已被注册"})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	total, err := s.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}
	isFirst := total == 0

	// 首个用户豁免邀请；其余用户要么携带有效邀请码，要么依赖开放注册开关与域名白名单。
	if !isFirst {
		if invitationCode != "" {
			inv, err := s.store.GetInvitationByCode(ctx, invitationCode)
			if errors.Is(err, sql.ErrNoRows) {
				return nil, apierr.InvalidInput(apierr.FieldError{Path: "invitationCode", Message: "邀请码无效"})
			}
			if err != nil {
				return nil, err
			}
			if !strings.EqualFold(inv.Email, emailAddr) {
				return nil, apierr.InvalidInput(apierr.FieldError{Path: "invitationCode", Message: "邀请码与邮箱不匹配"})
			}
			defer func() { _ = s.store.DeleteInvitationByEmail(ctx, emailAddr) }()
		} else {
			if !s.allowSelfSignup {
				return nil, apierr.Forbidden("当前不允许自助注册")
			}
			if err := s.checkRegisterDomain(ctx, emailAddr); err != nil {
				return nil, err
			}
		}
	}

	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}
	token, err := auth.NewRandomToken("auth_", 24)
	if err != nil {
		return nil, err
	}
	userID, err := s.store.CreateUser(ctx, emailAddr, name, hash, isFirst, token)
	if err != nil {
		return nil, err
	}
	return s.issuePair(ctx, userID, isFirst)
}

func (s *authService) checkRegisterDomain(ctx context.Context, emailAddr string) error {
	raw, err := s.store.GetSetting(ctx, store.SettingSecurity)
	if errors.Is(err, sql.ErrNoRows) {
		return nil
	}
	if err != nil {
		return err
	}
	domains := gjson.Get(raw, "allowed_register_domains").Array()
	if len(domains) == 0 {
		return nil
	}
	at := strings.LastIndexByte(emailAddr, '@')
	domain := emailAddr[at+1:]
	for _, d := range domains {
		if strings.EqualFold(d.String(), domain) {
			return nil
		}
	}
	return apierr.InvalidInput(apierr.FieldError{Path: "email", Message: "该邮箱域名不在允许注册的名单内"})
}

func (s *authService) Token(ctx context.Context, emailAddr, password string) (*TokenPair, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	u, err := s.store.GetUserByEmail(ctx, emailAddr)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Unauthorized("邮箱或密码错误")
	}
	if err != nil {
		return nil, err
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, apierr.Unauthorized("邮箱或密码错误")
	}
	if !u.Active {
		return nil, apierr.Unauthorized("账号已被停用")
	}
	// 密码登录停用后管理员仍可进入，否则实例会把自己锁死。
	if !u.IsAdmin {
		raw, err := s.store.GetSetting(ctx, store.SettingSecurity)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		if err == nil && gjson.Get(raw, "disable_password_login").Bool() {
			return nil, apierr.Unauthorized("密码登录已被管理员停用")
		}
	}
	return s.issuePair(ctx, u.ID, u.IsAdmin)
}

func (s *authService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	oldHash := auth.TokenHash(refreshToken)
	rec, err := s.store.GetRefreshToken(ctx, oldHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Unauthorized("刷新令牌无效")
	}
	if err != nil {
		return nil, err
	}
	if time.Now().After(rec.ExpiresAt) {
		return nil, apierr.Unauthorized("刷新令牌已过期")
	}

	u, err := s.store.GetUserByID(ctx, rec.UserID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apierr.Unauthorized("用户不存在")
	}
	if err != nil {
		return nil, err
	}
	if !u.Active {
		return nil, apierr.Unauthorized("账号已被停用")
	}

	newToken, err := auth.NewRandomToken("", 32)
	if err != nil {
		return nil, err
	}
	if err := s.store.RotateRefreshToken(ctx, oldHash, auth.TokenHash(newToken), time.Now().Add(refreshTokenTTL)); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apierr.Unauthorized("刷新令牌无效")
		}
		return nil, err
	}
	access, err := auth.GenerateAccessToken(s.jwtSecret, u.ID, u.IsAdmin, false)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: newToken}, nil
}

func (s *authService) TokenFromAuthToken(ctx context.Context, authToken string) (string, error) {
	u, err := s.store.GetUserByAuthToken(ctx, authToken)
	if errors.Is(err, sql.ErrNoRows) {
		return "", apierr.Unauthorized("凭据无效")
	}
	if err != nil {
		return "", err
	}
	if !u.Active {
		return "", apierr.Unauthorized("账号已被停用")
	}
	return auth.GenerateAccessToken(s.jwtSecret, u.ID, u.IsAdmin, true)
}

func (s *authService) UpdatePassword(ctx context.Context, userID int64, oldPassword, newPassword string) error {
	u, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.CheckPassword(u.PasswordHash, oldPassword) {
		return apierr.InvalidInput(apierr.FieldError{Path: "oldPassword", Message: "原密码错误"})
	}
	if len(newPassword) < 8 || len(newPassword) > 64 {
		return apierr.InvalidInput(apierr.FieldError{Path: "newPassword", Message: "密码长度须在 8 到 64 位之间"})
	}
	hash, err := auth.HashPassword(newPassword)
	if err != nil {
		return err
	}
	if err := s.store.SetUserPassword(ctx, userID, hash); err != nil {
		return err
	}
	// 改密后吊销既有会话，旧刷新令牌全部作废。
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

func (s *authService) LogoutSessions(ctx context.Context, userID int64) error {
	return s.store.DeleteRefreshTokensByUser(ctx, userID)
}

func (s *authService) ResetAuthToken(ctx context.Context, userID int64) (string, error) {
	token, err := auth.NewRandomToken("auth_", 24)
	if err != nil {
		return "", err
	}
	if err := s.store.SetUserAuthToken(ctx, userID, token); err != nil {
		return "", err
	}
	return token, nil
}

func (s *authService) CreateInvitation(ctx context.Context, emailAddr string) (*store.Invitation, error) {
	emailAddr = strings.ToLower(strings.TrimSpace(emailAddr))
	if _, err := mail.ParseAddress(emailAddr); err != nil {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "email", Message: "邮箱格式不合法"})
	}
	if _, err := s.store.GetUserByEmail(ctx, emailAddr); err == nil {
		return nil, apierr.InvalidInput(apierr.FieldError{Path: "email", Message: "该邮箱已注册"})
	} else if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	code, err := auth.NewRandomToken("", 16)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.CreateInvitation(ctx, emailAddr, code); err != nil {
		return nil, err
	}

	if link, err := s.invitationLink(ctx, emailAddr, code); err == nil {
		if err := s.email.SendInvitation(ctx, emailAddr, link); err != nil {
			slog.Warn("发送邀请邮件失败", "email", emailAddr, "err", err)
		}
	}

	return s.store.GetInvitationByCode(ctx, code)
}

func (s *authService) invitationLink(ctx context.Context, emailAddr, code string) (string, error) {
	raw, err := s.store.GetSetting(ctx, store.SettingNetwork)
	if err != nil {
		return "", err
	}
	base := strings.TrimRight(gjson.Get(raw, "external_url").String(), "/")
	if base == "" {
		return "", errors.New("external_url 未配置")
	}
	return fmt.Sprintf("%s/auth/signup?invitationCode=%s&email=%s", base, code, emailAddr), nil
}

func (s *authService) issuePair(ctx context.Context, userID int64, isAdmin bool) (*TokenPair, error) {
	access, err := auth.GenerateAccessToken(s.jwtSecret, userID, isAdmin, false)
	if err != nil {
		return nil, err
	}
	refresh, err := auth.NewRandomToken("", 32)
	if err != nil {
		return nil, err
	}
	if err := s.store.CreateRefreshToken(ctx, userID, auth.TokenHash(refresh), time.Now().Add(refreshTokenTTL)); err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}
