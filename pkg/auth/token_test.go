package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/config"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

func testJWTConfig() config.JWTConfig {
	return config.JWTConfig{
		Secret:            "secret",
		Issuer:            "rental-identity",
		ExpirationMinutes: 30,
	}
}

func TestMintAndParseAccessToken(t *testing.T) {
	cfg := testJWTConfig()
	now := time.Now().UTC()
	userID := uuid.New()

	token, err := MintAccessToken(cfg, now, AccessTokenPayload{UserID: userID, Role: enums.RoleAdmin})
	if err != nil {
		t.Fatalf("mint access token: %v", err)
	}

	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse access token: %v", err)
	}
	if claims.UserID != userID {
		t.Fatalf("expected user_id %s, got %s", userID, claims.UserID)
	}
	if claims.Role != enums.RoleAdmin {
		t.Fatalf("unexpected role %s", claims.Role)
	}
	if claims.Issuer != cfg.Issuer {
		t.Fatalf("unexpected issuer %s", claims.Issuer)
	}
	if claims.ID == "" {
		t.Fatalf("expected jti to be generated")
	}
	if actor := claims.Actor(); !actor.IsAdmin() || actor.UserID != userID {
		t.Fatalf("unexpected actor %+v", actor)
	}
}

func TestMintRejectsInvalidPayload(t *testing.T) {
	cfg := testJWTConfig()
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: "owner"}); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected invalid role to fail, got %v", err)
	}
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{Role: enums.RoleUser}); !errors.Is(err, ErrInvalidClaims) {
		t.Fatalf("expected missing user id to fail, got %v", err)
	}

	noTTL := cfg
	noTTL.ExpirationMinutes = 0
	if _, err := MintAccessToken(noTTL, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser}); !errors.Is(err, ErrInvalidTTL) {
		t.Fatalf("expected zero ttl to fail, got %v", err)
	}

	cfg.Secret = ""
	if _, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser}); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected missing secret to fail, got %v", err)
	}
	if _, err := ParseAccessToken(cfg, "whatever"); !errors.Is(err, ErrMissingSecret) {
		t.Fatalf("expected parse without secret to fail, got %v", err)
	}
}

func TestMintKeepsProvidedJTI(t *testing.T) {
	cfg := testJWTConfig()
	token, err := MintAccessToken(cfg, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser, JTI: " fixed-id "})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	claims, err := ParseAccessToken(cfg, token)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if claims.ID != "fixed-id" {
		t.Fatalf("expected trimmed jti, got %q", claims.ID)
	}
	if got := claims.ExpiresAt.Sub(claims.IssuedAt.Time); got != 30*time.Minute {
		t.Fatalf("unexpected lifetime %s", got)
	}
}

func TestParseRejectsExpiredAndForeignTokens(t *testing.T) {
	cfg := testJWTConfig()
	expired, err := MintAccessToken(cfg, time.Now().Add(-2*time.Hour), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, expired); err == nil {
		t.Fatal("expected expired token to fail")
	}

	other := cfg
	other.Issuer = "someone-else"
	foreign, err := MintAccessToken(other, time.Now(), AccessTokenPayload{UserID: uuid.New(), Role: enums.RoleUser})
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if _, err := ParseAccessToken(cfg, foreign); err == nil {
		t.Fatal("expected issuer mismatch to fail")
	}

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AccessTokenClaims{UserID: uuid.New(), Role: enums.RoleAdmin})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	if err != nil {
		t.Fatalf("sign none: %v", err)
	}
	if _, err := ParseAccessToken(cfg, unsigned); err == nil || !strings.Contains(err.Error(), "signing method") {
		t.Fatalf("expected alg none to be rejected, got %v", err)
	}
}

func TestActorHelpers(t *testing.T) {
	owner := uuid.New()
	user := Actor{UserID: owner, Role: enums.RoleUser}
	if user.IsAdmin() {
		t.Fatal("user must not be admin")
	}
	if !user.Owns(owner) || user.Owns(uuid.New()) {
		t.Fatal("ownership check mismatch")
	}
	if !user.Valid() {
		t.Fatal("expected valid user actor")
	}
	if (Actor{Role: enums.RoleUser}).Valid() {
		t.Fatal("user actor without id must be invalid")
	}
	if !SystemActor.Valid() || !SystemActor.IsAdmin() {
		t.Fatal("system actor must be a valid admin")
	}
	if SystemActor.Owns(uuid.Nil) {
		t.Fatal("nil user id owns nothing")
	}
}
