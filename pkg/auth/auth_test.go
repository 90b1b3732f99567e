package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

func TestJWTGenerateValidate(t *testing.T) {
	secret := []byte("s3cr3t")
	token, err := GenerateJWT("dealer-1", RoleDealer, "+91 98765 43210", "", secret, 0)
	if err != nil {
		t.Fatalf("generate jwt: %v", err)
	}
	claims, err := ValidateJWT(token, secret)
	if err != nil {
		t.Fatalf("validate jwt: %v", err)
	}
	if claims.UserID != "dealer-1" || claims.Role != RoleDealer {
		t.Fatalf("claims mismatch: %+v", claims)
	}
	if claims.Phone != "+91 98765 43210" {
		t.Fatalf("expected phone claim, got %q", claims.Phone)
	}
}

func TestJWTValidationEdgeCases(t *testing.T) {
	secret := []byte("correct-secret")
	tests := []struct {
		name      string
		token     func() string
		secret    []byte
		wantError error
	}{
		{
			name: "wrong secret",
			token: func() string {
				tok, _ := GenerateJWT("u1", RoleBuyer, "", "", secret, time.Minute)
				return tok
			},
			secret:    []byte("wrong-secret"),
			wantError: ErrInvalidJWT,
		},
		{
			name: "expired",
			token: func() string {
				claims := &Claims{
					UserID: "u1",
					Role:   RoleBuyer,
					RegisteredClaims: jwt.RegisteredClaims{
						ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
					},
				}
				tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
				return tok
			},
			secret:    secret,
			wantError: ErrExpiredJWT,
		},
		{
			name: "missing user id",
			token: func() string {
				claims := &Claims{Role: RoleBuyer}
				tok, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
				return tok
			},
			secret:    secret,
			wantError: ErrInvalidJWT,
		},
		{
			name:      "garbage",
			token:     func() string { return "not.a.jwt" },
			secret:    secret,
			wantError: ErrInvalidJWT,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ValidateJWT(tt.token(), tt.secret)
			if !errors.Is(err, tt.wantError) {
				t.Fatalf("expected %v, got %v", tt.wantError, err)
			}
		})
	}
}

func TestGenerateJWTRequiresUser(t *testing.T) {
	if _, err := GenerateJWT("", RoleBuyer, "", "", []byte("s"), 0); err == nil {
		t.Fatalf("expected error for empty user id")
	}
}
