package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const accessTokenTTL = 6 * time.Hour

// Claims 是访问令牌的载荷；IsGeneratedFromAuthToken 跟随令牌整个生命周期。
type Claims struct {
	IsAdmin                  bool `json:"adm"`
	IsGeneratedFromAuthToken bool `json:"gat,omitempty"`
	jwt.RegisteredClaims
}

func GenerateAccessToken(secret []byte, userID int64, isAdmin bool, fromAuthToken bool) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("jwt secret 未配置")
	}
	now := time.Now()
	claims := Claims{
		IsAdmin:                  isAdmin,
		IsGeneratedFromAuthToken: fromAuthToken,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   fmt.Sprintf("%d", userID),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(accessTokenTTL)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(secret)
	if err != nil {
		return "", fmt.Errorf("签发访问令牌失败: %w", err)
	}
	return signed, nil
}

func VerifyAccessToken(secret []byte, raw string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("不支持的签名算法: %v", t.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("校验访问令牌失败: %w", err)
	}
	if !token.Valid {
		return nil, errors.New("访问令牌无效")
	}
	return claims, nil
}

// SubjectUserID 把 sub 声明还原为用户 id；格式不合法按令牌无效处理。
func (c *Claims) SubjectUserID() (int64, error) {
	var id int64
	if _, err := fmt.Sscanf(c.Subject, "%d", &id); err != nil || id <= 0 {
		return 0, errors.New("访问令牌 subject 不合法")
	}
	return id, nil
}
