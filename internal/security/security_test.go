package security

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	jwtv5 "github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"kidcheck/internal/config"
)

func TestQRSignerRoundTrip(t *testing.T) {
	signer := NewQRSigner("qr-secret-for-unit-tests")
	payload := signer.Encode("abc123")

	if !strings.HasPrefix(payload, "kc1.abc123.") {
		t.Errorf("unexpected payload format %q", payload)
	}

	token, err := signer.Decode(payload)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if token != "abc123" {
		t.Errorf("Decode() = %q, want abc123", token)
	}
}

func TestQRSignerRejectsForgeries(t *testing.T) {
	signer := NewQRSigner("qr-secret-for-unit-tests")
	other := NewQRSigner("another-secret-entirely")
	valid := signer.Encode("abc123")

	tests := []struct {
		name    string
		payload string
	}{
		{name: "empty", payload: ""},
		{name: "raw token", payload: "abc123"},
		{name: "wrong version", payload: strings.Replace(valid, "kc1.", "kc2.", 1)},
		{name: "swapped token", payload: strings.Replace(valid, "abc123", "abc124", 1)},
		{name: "other secret", payload: other.Encode("abc123")},
		{name: "missing mac", payload: "kc1.abc123."},
		{name: "extra segment", payload: valid + ".x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := signer.Decode(tt.payload); !errors.Is(err, ErrInvalidQRPayload) {
				t.Errorf("Decode(%q) error = %v, want ErrInvalidQRPayload", tt.payload, err)
			}
		})
	}
}

func TestPINHasher(t *testing.T) {
	h := NewPINHasher(bcrypt.MinCost)
	hash, err := h.Hash("4321")
	if err != nil {
		t.Fatalf("Hash() error = %v", err)
	}
	if hash == "4321" {
		t.Fatal("hash must not equal the PIN")
	}

	tests := []struct {
		name string
		hash string
		pin  string
		want bool
	}{
		{name: "match", hash: hash, pin: "4321", want: true},
		{name: "mismatch", hash: hash, pin: "1234", want: false},
		{name: "prefix", hash: hash, pin: "432", want: false},
		{name: "empty pin", hash: hash, pin: "", want: false},
		{name: "empty hash", hash: "", pin: "4321", want: false},
		{name: "garbage hash", hash: "not-a-hash", pin: "4321", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := h.Verify(tt.hash, tt.pin); got != tt.want {
				t.Errorf("Verify() = %v, want %v", got, tt.want)
			}
		})
	}
}

func newTestTokenManager() *TokenManager {
	return NewTokenManager(config.AuthConfig{
		JWTSecret: "test-secret-key-for-unit-testing-2026",
		Issuer:    "kidcheck",
		TokenTTL:  15 * time.Minute,
	})
}

func TestTokenManagerIssueAndParse(t *testing.T) {
	m := newTestTokenManager()

	token, err := m.Issue("leader-7", []string{"staff", "leader"}, 0)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	claims, err := m.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims.Subject != "leader-7" {
		t.Errorf("Subject = %q, want leader-7", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[1] != "leader" {
		t.Errorf("Roles = %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Error("token id should be set")
	}
}

func TestTokenManagerRejects(t *testing.T) {
	m := newTestTokenManager()

	past := time.Now().Add(-time.Hour)
	expired, err := jwtv5.NewWithClaims(jwtv5.SigningMethodHS256, Claims{
		RegisteredClaims: jwtv5.RegisteredClaims{
			Subject:   "u1",
			Issuer:    "kidcheck",
			ExpiresAt: jwtv5.NewNumericDate(past),
		},
	}).SignedString([]byte("test-secret-key-for-unit-testing-2026"))
	if err != nil {
		t.Fatalf("sign expired token: %v", err)
	}

	foreign := NewTokenManager(config.AuthConfig{JWTSecret: "a-completely-different-secret", Issuer: "kidcheck", TokenTTL: time.Minute})
	forged, _ := foreign.Issue("u1", []string{"admin"}, 0)

	otherIssuer := NewTokenManager(config.AuthConfig{JWTSecret: "test-secret-key-for-unit-testing-2026", Issuer: "someone-else", TokenTTL: time.Minute})
	wrongIssuer, _ := otherIssuer.Issue("u1", nil, 0)

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{name: "expired", token: expired, want: ErrTokenExpired},
		{name: "forged", token: forged, want: ErrTokenInvalid},
		{name: "wrong issuer", token: wrongIssuer, want: ErrTokenInvalid},
		{name: "garbage", token: "not.a.token", want: ErrTokenInvalid},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := m.Parse(tt.token); !errors.Is(err, tt.want) {
				t.Errorf("Parse() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{header: "Bearer abc", want: "abc"},
		{header: "bearer abc", want: "abc"},
		{header: "Basic abc", want: ""},
		{header: "", want: ""},
	}
	for _, tt := range tests {
		req := httptest.NewRequest("GET", "/", nil)
		if tt.header != "" {
			req.Header.Set("Authorization", tt.header)
		}
		if got := BearerToken(req); got != tt.want {
			t.Errorf("BearerToken(%q) = %q, want %q", tt.header, got, tt.want)
		}
	}
}

func TestRateLimiter(t *testing.T) {
	rl := NewRateLimiter(3, time.Minute)
	defer rl.Stop()

	for i := 0; i < 3; i++ {
		if !rl.Allow("10.0.0.1") {
			t.Fatalf("request %d should be allowed", i+1)
		}
	}
	if rl.Allow("10.0.0.1") {
		t.Error("fourth request should be limited")
	}
	if !rl.Allow("10.0.0.2") {
		t.Error("other clients have their own bucket")
	}
}

func TestGetClientIP(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "forwarded chain", headers: map[string]string{"X-Forwarded-For": "203.0.113.5, 10.0.0.1"}, remote: "10.0.0.1:1234", want: "203.0.113.5"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "203.0.113.9"}, remote: "10.0.0.1:1234", want: "203.0.113.9"},
		{name: "remote addr", remote: "192.0.2.1:5555", want: "192.0.2.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := GetClientIP(req); got != tt.want {
				t.Errorf("GetClientIP() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestMemoryAttemptLimiter(t *testing.T) {
	ctx := context.Background()
	l := NewMemoryAttemptLimiter(time.Minute)
	now := time.Date(2026, 10, 18, 9, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return now }

	for i := 1; i <= 3; i++ {
		n, err := l.RecordFailure(ctx, "record:1")
		if err != nil || n != i {
			t.Fatalf("RecordFailure() = %d, %v, want %d", n, err, i)
		}
	}
	if n, _ := l.Failures(ctx, "record:1"); n != 3 {
		t.Errorf("Failures() = %d, want 3", n)
	}
	if n, _ := l.Failures(ctx, "record:2"); n != 0 {
		t.Errorf("Failures() for other key = %d, want 0", n)
	}

	now = now.Add(time.Minute)
	if n, _ := l.Failures(ctx, "record:1"); n != 0 {
		t.Errorf("Failures() after window = %d, want 0", n)
	}

	l.RecordFailure(ctx, "record:1")
	if err := l.Reset(ctx, "record:1"); err != nil {
		t.Fatalf("Reset() error = %v", err)
	}
	if n, _ := l.Failures(ctx, "record:1"); n != 0 {
		t.Errorf("Failures() after reset = %d, want 0", n)
	}
}

// TestRedisAttemptLimiter runs against a real server when KIDCHECK_TEST_REDIS_ADDR is set
func TestRedisAttemptLimiter(t *testing.T) {
	addr := os.Getenv("KIDCHECK_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("KIDCHECK_TEST_REDIS_ADDR not set")
	}
	rdb, err := NewRedisClient(config.RedisConfig{Addr: addr}, zap.NewNop())
	if err != nil {
		t.Fatalf("NewRedisClient() error = %v", err)
	}
	defer rdb.Close()

	ctx := context.Background()
	l := NewRedisAttemptLimiter(rdb, time.Minute)
	key := "test:" + GenerateRequestID()
	defer l.Reset(ctx, key)

	for i := 1; i <= 2; i++ {
		if n, err := l.RecordFailure(ctx, key); err != nil || n != i {
			t.Fatalf("RecordFailure() = %d, %v", n, err)
		}
	}
	if n, _ := l.Failures(ctx, key); n != 2 {
		t.Errorf("Failures() = %d, want 2", n)
	}
	if ttl := rdb.TTL(ctx, attemptPrefix+key).Val(); ttl <= 0 {
		t.Errorf("counter should expire, TTL = %v", ttl)
	}
}
