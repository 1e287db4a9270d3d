package auth

import (
	"testing"
	"time"
)

func testConfig() Config {
	cfg := DefaultConfig([]byte("test-secret-at-least-32-bytes-long!"))
	cfg.AccessTTL = time.Minute
	cfg.RefreshTTL = time.Hour
	return cfg
}

func TestGenerateAndValidateTokenPair(t *testing.T) {
	m := NewJWTManager(testConfig())
	pair, err := m.GenerateTokenPair("user-1", "u1@example.com", RoleVendor)
	if err != nil {
		t.Fatalf("GenerateTokenPair: %v", err)
	}

	claims, err := m.ValidateToken(pair.AccessToken)
	if err != nil {
		t.Fatalf("ValidateToken: %v", err)
	}
	if claims.UserID != "user-1" || claims.Role != RoleVendor {
		t.Errorf("got claims %+v", claims)
	}
}

func TestValidateTokenRejectsWrongSecret(t *testing.T) {
	m1 := NewJWTManager(testConfig())
	other := testConfig()
	other.Secret = []byte("a-completely-different-secret-value")
	m2 := NewJWTManager(other)

	pair, err := m1.GenerateTokenPair("user-1", "u1@example.com", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m2.ValidateToken(pair.AccessToken); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken across secrets, got %v", err)
	}
}

func TestValidateTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.AccessTTL = -time.Minute
	m := NewJWTManager(cfg)

	pair, err := m.GenerateTokenPair("user-1", "u1@example.com", RoleUser)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.ValidateToken(pair.AccessToken); err != ErrExpiredToken {
		t.Errorf("expected ErrExpiredToken, got %v", err)
	}
}

func TestRefreshTokensMintsNewPair(t *testing.T) {
	m := NewJWTManager(testConfig())
	pair, err := m.GenerateTokenPair("user-1", "u1@example.com", RoleUser)
	if err != nil {
		t.Fatal(err)
	}

	lookup := func(userID string) (Role, string, error) {
		return RoleAdmin, "u1@example.com", nil
	}
	refreshed, err := m.RefreshTokens(pair.RefreshToken, lookup)
	if err != nil {
		t.Fatalf("RefreshTokens: %v", err)
	}
	claims, err := m.ValidateToken(refreshed.AccessToken)
	if err != nil {
		t.Fatal(err)
	}
	if claims.Role != RoleAdmin {
		t.Errorf("expected refreshed token to carry the looked-up role, got %v", claims.Role)
	}
}

func TestExtractTokenFromHeader(t *testing.T) {
	tok, err := ExtractTokenFromHeader("Bearer abc.def.ghi")
	if err != nil || tok != "abc.def.ghi" {
		t.Errorf("got %q, %v", tok, err)
	}
	if _, err := ExtractTokenFromHeader("abc.def.ghi"); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for a header without a scheme, got %v", err)
	}
	if _, err := ExtractTokenFromHeader(""); err != ErrInvalidToken {
		t.Errorf("expected ErrInvalidToken for an empty header, got %v", err)
	}
}
