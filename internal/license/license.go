// Package license 负责企业许可证的解析与校验。许可证是一个 RS512 签名的 JWT，
// 由部署方通过管理接口写入，公钥随服务配置下发。
package license

import (
	"context"
	"crypto/rsa"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sage/internal/apierr"
	"sage/internal/store"
)

type Tier string

const (
	TierCommunity  Tier = "COMMUNITY"
	TierTeam       Tier = "TEAM"
	TierEnterprise Tier = "ENTERPRISE"
)

type Status string

const (
	StatusOK            Status = "OK"
	StatusExpired       Status = "EXPIRED"
	StatusSeatsExceeded Status = "SEATS_EXCEEDED"
)

// 社区版免费席位上限。
const communitySeats = 5

// Info 是对外返回的许可证视图。
type Info struct {
	Tier      Tier       `json:"type"`
	Status    Status     `json:"status"`
	Seats     int64      `json:"seats"`
	SeatsUsed int64      `json:"seats_used"`
	IssuedAt  *time.Time `json:"issued_at,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type claims struct {
	Tier  string `json:"typ"`
	Seats int64  `json:"num"`
	jwt.RegisteredClaims
}

// Manager 持有验证公钥并从设置表读取当前许可证。
type Manager struct {
	publicKey *rsa.PublicKey
	store     *store.Store
}

// NewManager 解析 PEM 公钥；pem 为空时返回只支持社区版的管理器。
func NewManager(pemKey string, st *store.Store) (*Manager, error) {
	m := &Manager{store: st}
	if pemKey == "" {
		return m, nil
	}
	key, err := jwt.ParseRSAPublicKeyFromPEM([]byte(pemKey))
	if err != nil {
		return nil, fmt.Errorf("解析许可证公钥失败: %w", err)
	}
	m.publicKey = key
	return m, nil
}

// parse 验签并展开许可证；不检查过期与席位，状态由 Resolve 统一判定。
func (m *Manager) parse(raw string) (*claims, error) {
	if m.publicKey == nil {
		return nil, apierr.InvalidLicense("未配置许可证公钥")
	}
	tok, err := jwt.ParseWithClaims(raw, &claims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("不支持的签名算法：%v", t.Header["alg"])
		}
		return m.publicKey, nil
	}, jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, apierr.InvalidLicense("许可证无效")
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return nil, apierr.InvalidLicense("许可证无效")
	}
	switch Tier(c.Tier) {
	case TierTeam, TierEnterprise:
	default:
		return nil, apierr.InvalidLicense("许可证无效")
	}
	return c, nil
}

// Apply 验签后把许可证存入设置表。
func (m *Manager) Apply(ctx context.Context, raw string) error {
	if _, err := m.parse(raw); err != nil {
		return err
	}
	return m.store.SetSetting(ctx, store.SettingLicense, raw)
}

// Reset 删除已存的许可证，实例回落社区版。
func (m *Manager) Reset(ctx context.Context) error {
	return m.store.DeleteSetting(ctx, store.SettingLicense)
}

// Resolve 返回当前生效的许可证视图：无许可证时回落社区版，
// 过期或超席位的许可证保留原级别但状态置为对应异常。
func (m *Manager) Resolve(ctx context.Context) (*Info, error) {
	seatsUsed, err := m.store.CountUsers(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := m.store.GetSetting(ctx, store.SettingLicense)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if errors.Is(err, sql.ErrNoRows) || raw == "" {
		info := &Info{Tier: TierCommunity, Status: StatusOK, Seats: communitySeats, SeatsUsed: seatsUsed}
		if seatsUsed > communitySeats {
			info.Status = StatusSeatsExceeded
		}
		return info, nil
	}

	c, err := m.parse(raw)
	if err != nil {
		return nil, err
	}
	info := &Info{Tier: Tier(c.Tier), Status: StatusOK, Seats: c.Seats, SeatsUsed: seatsUsed}
	if c.IssuedAt != nil {
		t := c.IssuedAt.Time
		info.IssuedAt = &t
	}
	if c.ExpiresAt != nil {
		t := c.ExpiresAt.Time
		info.ExpiresAt = &t
		if time.Now().After(t) {
			info.Status = StatusExpired
			return info, nil
		}
	}
	if seatsUsed > c.Seats {
		info.Status = StatusSeatsExceeded
	}
	return info, nil
}

// Ensure 校验当前许可证至少满足 required 级别且状态正常。
func (m *Manager) Ensure(ctx context.Context, required Tier) error {
	info, err := m.Resolve(ctx)
	if err != nil {
		return err
	}
	if info.Status != StatusOK {
		return apierr.InvalidLicense("许可证已失效")
	}
	if rank(info.Tier) < rank(required) {
		return apierr.InvalidLicense("当前许可证级别不足")
	}
	return nil
}

func rank(t Tier) int {
	switch t {
	case TierEnterprise:
		return 2
	case TierTeam:
		return 1
	default:
		return 0
	}
}
