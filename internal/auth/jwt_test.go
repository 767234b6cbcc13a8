package auth_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/artdex/api/internal/auth"
	"github.com/artdex/api/internal/model"
)

const testSecret = "test-secret"

func TestAccessTokenRoundtrip(t *testing.T) {
	user := &model.User{ID: 42, Username: "alice", Role: model.RoleAdmin, AvatarURL: "https://cdn.example/a.png"}

	token, err := auth.GenerateAccessToken(user, testSecret)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}

	claims, err := auth.ValidateAccessToken(token, testSecret)
	if err != nil {
		t.Fatalf("ValidateAccessToken: %v", err)
	}
	if claims.UserID != 42 || claims.Username != "alice" || claims.Role != model.RoleAdmin {
		t.Fatalf("claims = %+v", claims)
	}
	if claims.Issuer != "artdex" {
		t.Fatalf("Issuer = %q, want artdex", claims.Issuer)
	}
}

func TestValidateRejectsWrongSecret(t *testing.T) {
	token, err := auth.GenerateAccessToken(&model.User{ID: 1, Username: "bob"}, testSecret)
	if err != nil {
		t.Fatalf("GenerateAccessToken: %v", err)
	}
	if _, err := auth.ValidateAccessToken(token, "other-secret"); err == nil {
		t.Fatal("expected validation failure with wrong secret")
	}
}

func TestValidateRejectsGarbage(t *testing.T) {
	if _, err := auth.ValidateAccessToken("not.a.token", testSecret); err == nil {
		t.Fatal("expected validation failure")
	}
}

func TestValidateRejectsExpiredToken(t *testing.T) {
	claims := auth.Claims{
		UserID:   7,
		Username: "late",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now().Add(-2 * time.Hour)),
			Issuer:    "artdex",
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := auth.ValidateAccessToken(token, testSecret); err == nil {
		t.Fatal("expected expired token to fail validation")
	}
}

func TestGenerateRefreshTokenUnique(t *testing.T) {
	a, err := auth.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	b, err := auth.GenerateRefreshToken()
	if err != nil {
		t.Fatalf("GenerateRefreshToken: %v", err)
	}
	if a == b {
		t.Fatal("refresh tokens should not repeat")
	}
	if len(a) == 0 {
		t.Fatal("empty refresh token")
	}
}
