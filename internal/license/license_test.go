package license

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"sage/internal/apierr"
	"sage/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	db, err := store.OpenSQLite(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := store.EnsureSchema(db, store.DialectSQLite); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return store.New(db)
}

func addUsers(t *testing.T, st *store.Store, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := st.CreateUser(context.Background(),
			fmt.Sprintf("u%d@example.com", i), fmt.Sprintf("用户%d", i),
			[]byte("$2a$10$fakefakefakefakefakefake"), i == 0, fmt.Sprintf("auth_u%d", i))
		if err != nil {
			t.Fatalf("CreateUser: %v", err)
		}
	}
}

type testSigner struct {
	key *rsa.PrivateKey
	pem string
}

func newSigner(t *testing.T) *testSigner {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("MarshalPKIXPublicKey: %v", err)
	}
	pub := pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der})
	return &testSigner{key: key, pem: string(pub)}
}

func (s *testSigner) sign(t *testing.T, tier string, seats int64, expiresAt time.Time) string {
	t.Helper()
	c := claims{
		Tier:  tier,
		Seats: seats,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodRS512, c).SignedString(s.key)
	if err != nil {
		t.Fatalf("SignedString: %v", err)
	}
	return raw
}

func TestResolveCommunityFallback(t *testing.T) {
	st := newTestStore(t)
	addUsers(t, st, 2)

	m, err := NewManager("", st)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	info, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Tier != TierCommunity || info.Status != StatusOK {
		t.Fatalf("无许可证应回落社区版 OK，得到 %+v", info)
	}
	if info.Seats != 5 || info.SeatsUsed != 2 {
		t.Fatalf("席位应为 5/2，得到 %d/%d", info.Seats, info.SeatsUsed)
	}
}

func TestResolveCommunitySeatsExceeded(t *testing.T) {
	st := newTestStore(t)
	addUsers(t, st, 6)

	m, _ := NewManager("", st)
	info, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Status != StatusSeatsExceeded {
		t.Fatalf("超出社区席位应为 SEATS_EXCEEDED，得到 %s", info.Status)
	}
}

func TestApplyAndResolveTeamLicense(t *testing.T) {
	st := newTestStore(t)
	addUsers(t, st, 3)
	signer := newSigner(t)

	m, err := NewManager(signer.pem, st)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}

	raw := signer.sign(t, "TEAM", 10, time.Now().Add(24*time.Hour))
	if err := m.Apply(context.Background(), raw); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	info, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Tier != TierTeam || info.Status != StatusOK || info.Seats != 10 {
		t.Fatalf("TEAM 许可证解析错误: %+v", info)
	}
	if info.ExpiresAt == nil || info.IssuedAt == nil {
		t.Fatal("应携带签发与过期时间")
	}

	if err := m.Ensure(context.Background(), TierTeam); err != nil {
		t.Fatalf("Ensure(TEAM): %v", err)
	}
	err = m.Ensure(context.Background(), TierEnterprise)
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindInvalidLicense {
		t.Fatalf("级别不足应为 INVALID_LICENSE，得到 %v", err)
	}
}

func TestResolveExpiredKeepsTier(t *testing.T) {
	st := newTestStore(t)
	addUsers(t, st, 1)
	signer := newSigner(t)

	m, _ := NewManager(signer.pem, st)
	raw := signer.sign(t, "ENTERPRISE", 100, time.Now().Add(-time.Hour))
	if err := st.SetSetting(context.Background(), store.SettingLicense, raw); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	info, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Tier != TierEnterprise || info.Status != StatusExpired {
		t.Fatalf("过期许可证应保留级别并置 EXPIRED，得到 %+v", info)
	}
	if err := m.Ensure(context.Background(), TierTeam); err == nil {
		t.Fatal("过期许可证不应通过 Ensure")
	}
}

func TestResolveLicenseSeatsExceeded(t *testing.T) {
	st := newTestStore(t)
	addUsers(t, st, 3)
	signer := newSigner(t)

	m, _ := NewManager(signer.pem, st)
	raw := signer.sign(t, "TEAM", 2, time.Now().Add(24*time.Hour))
	if err := st.SetSetting(context.Background(), store.SettingLicense, raw); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}

	info, err := m.Resolve(context.Background())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if info.Status != StatusSeatsExceeded {
		t.Fatalf("席位不足应为 SEATS_EXCEEDED，得到 %s", info.Status)
	}
}

func TestApplyRejectsInvalidLicense(t *testing.T) {
	st := newTestStore(t)
	signer := newSigner(t)
	other := newSigner(t)

	m, _ := NewManager(signer.pem, st)

	cases := map[string]string{
		"伪造签名":  other.sign(t, "TEAM", 10, time.Now().Add(time.Hour)),
		"社区版不可签": signer.sign(t, "COMMUNITY", 10, time.Now().Add(time.Hour)),
		"乱码":    "not-a-jwt",
	}
	for name, raw := range cases {
		err := m.Apply(context.Background(), raw)
		var ae *apierr.Error
		if !errors.As(err, &ae) || ae.Kind != apierr.KindInvalidLicense {
			t.Errorf("%s: 应为 INVALID_LICENSE，得到 %v", name, err)
		}
	}
}

func TestApplyWithoutPublicKey(t *testing.T) {
	st := newTestStore(t)
	signer := newSigner(t)
	m, _ := NewManager("", st)

	err := m.Apply(context.Background(), signer.sign(t, "TEAM", 10, time.Now().Add(time.Hour)))
	var ae *apierr.Error
	if !errors.As(err, &ae) || ae.Kind != apierr.KindInvalidLicense {
		t.Fatalf("未配置公钥时 Apply 应失败，得到 %v", err)
	}
}
