package auth

import (
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v5"
)

func TestAccessTokenRoundTrip(t *testing.T) {
	secret := []byte("test-secret")

	raw, err := GenerateAccessToken(secret, 42, true, false)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := VerifyAccessToken(secret, raw)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	id, err := claims.SubjectUserID()
	if err != nil {
		t.Fatalf("SubjectUserID: %v", err)
	}
	if id != 42 {
		t.Fatalf("subject 应为 42，得到 %d", id)
	}
	if !claims.IsAdmin {
		t.Fatal("adm 声明应为 true")
	}
	if claims.IsGeneratedFromAuthToken {
		t.Fatal("非 auth token 签发的令牌 gat 应为 false")
	}
}

func TestAccessTokenCarriesAuthTokenOrigin(t *testing.T) {
	secret := []byte("test-secret")
	raw, err := GenerateAccessToken(secret, 7, false, true)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	claims, err := VerifyAccessToken(secret, raw)
	if err != nil {
		t.Fatalf("VerifyAccessToken: %v", err)
	}
	if !claims.IsGeneratedFromAuthToken {
		t.Fatal("gat 声明应随令牌保留")
	}
}

func TestVerifyRejectsWrongSecret(t *testing.T) {
	raw, err := GenerateAccessToken([]byte("secret-a"), 1, false, false)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := VerifyAccessToken([]byte("secret-b"), raw); err == nil {
		t.Fatal("错误密钥签名的令牌必须被拒绝")
	}
}

func TestVerifyRejectsNoneAlgorithm(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "1"})
	raw, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	if _, err := VerifyAccessToken([]byte("secret"), raw); err == nil {
		t.Fatal("alg=none 的令牌必须被拒绝")
	}
}

func TestGenerateRequiresSecret(t *testing.T) {
	if _, err := GenerateAccessToken(nil, 1, false, false); err == nil {
		t.Fatal("空密钥不允许签发令牌")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("password123")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	if !CheckPassword(hash, "password123") {
		t.Fatal("正确密码应校验通过")
	}
	if CheckPassword(hash, "password124") {
		t.Fatal("错误密码不应校验通过")
	}
	if _, err := HashPassword("short"); err == nil {
		t.Fatal("过短密码应被拒绝")
	}
}

func TestNewRandomToken(t *testing.T) {
	a, err := NewRandomToken("auth_", 24)
	if err != nil {
		t.Fatalf("NewRandomToken: %v", err)
	}
	b, err := NewRandomToken("auth_", 24)
	if err != nil {
		t.Fatalf("NewRandomToken: %v", err)
	}
	if !strings.HasPrefix(a, "auth_") {
		t.Fatalf("token 应携带前缀: %q", a)
	}
	if a == b {
		t.Fatal("两次生成的 token 不应相同")
	}
}

func TestTokenHashStable(t *testing.T) {
	if string(TokenHash("abc")) != string(TokenHash("abc")) {
		t.Fatal("同一 token 的散列必须稳定")
	}
	if string(TokenHash("abc")) == string(TokenHash("abd")) {
		t.Fatal("不同 token 的散列不应碰撞")
	}
}
