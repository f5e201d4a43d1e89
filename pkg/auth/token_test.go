package auth

import (
	"strings"
	"testing"
	"time"

	"github.com/sourcelane/negotiator-backend/pkg/config"
)

func jwtConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "test-secret",
		Issuer:            "negotiator-backend",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseServiceToken(t *testing.T) {
	cfg := jwtConfig()
	now := time.Now()

	signed, err := MintServiceToken(cfg, now, ServiceTokenPayload{
		Service: "procurement-ui",
		Scopes:  []string{"negotiations:read", "negotiations:write"},
	})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	claims, err := ParseServiceToken(cfg, signed)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.Service != "procurement-ui" {
		t.Fatalf("unexpected service %q", claims.Service)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatal("jti should be auto-generated")
	}
	if !claims.HasScope("negotiations:read") {
		t.Fatal("expected negotiations:read scope")
	}
	if claims.HasScope("admin") {
		t.Fatal("scoped token must not grant unlisted scopes")
	}
}

func TestUnscopedTokenGrantsEverything(t *testing.T) {
	claims := &ServiceTokenClaims{Service: "worker"}
	if !claims.HasScope("negotiations:write") {
		t.Fatal("unscoped token should grant all scopes")
	}
}

func TestParseRejectsWrongSecret(t *testing.T) {
	cfg := jwtConfig()
	signed, err := MintServiceToken(cfg, time.Now(), ServiceTokenPayload{Service: "worker"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}

	bad := cfg
	bad.Secret = "other-secret"
	if _, err := ParseServiceToken(bad, signed); err == nil {
		t.Fatal("expected signature validation failure")
	}
}

func TestParseRejectsExpiredToken(t *testing.T) {
	cfg := jwtConfig()
	signed, err := MintServiceToken(cfg, time.Now().Add(-2*time.Hour), ServiceTokenPayload{Service: "worker"})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseServiceToken(cfg, signed); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expiry error, got %v", err)
	}
}

func TestMintRequiresServiceName(t *testing.T) {
	if _, err := MintServiceToken(jwtConfig(), time.Now(), ServiceTokenPayload{}); err == nil {
		t.Fatal("expected error for empty service name")
	}
}
