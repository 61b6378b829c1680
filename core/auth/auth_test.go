package auth

import (
	"errors"
	"testing"
	"time"
)

func TestPasswordHash(t *testing.T) {
	hash, err := HashPassword("s3cret")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if !CheckPasswordHash("s3cret", hash) {
		t.Error("expected password to match")
	}
	if CheckPasswordHash("wrong", hash) {
		t.Error("expected wrong password to fail")
	}
	if CheckPasswordHash("s3cret", "") {
		t.Error("expected empty hash to fail")
	}
}

func TestTokenIssuer(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		issuer := NewTokenIssuer("secret", time.Minute)
		token, expires, err := issuer.GenerateToken("admin")
		if err != nil {
			t.Fatalf("generate: %v", err)
		}
		if time.Until(expires) > time.Minute {
			t.Errorf("unexpected expiry %v", expires)
		}
		claims, err := issuer.ParseToken(token)
		if err != nil {
			t.Fatalf("parse: %v", err)
		}
		if claims.Subject != "admin" || claims.Role != RoleAdmin {
			t.Errorf("unexpected claims %+v", claims)
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		token, _, _ := NewTokenIssuer("a", time.Minute).GenerateToken("admin")
		if _, err := NewTokenIssuer("b", time.Minute).ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("expired", func(t *testing.T) {
		issuer := NewTokenIssuer("secret", time.Minute)
		issuer.now = func() time.Time { return time.Now().Add(-time.Hour) }
		token, _, _ := issuer.GenerateToken("admin")
		issuer.now = time.Now
		if _, err := issuer.ParseToken(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})

	t.Run("garbage", func(t *testing.T) {
		if _, err := NewTokenIssuer("", 0).ParseToken("not.a.token"); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("expected ErrInvalidToken, got %v", err)
		}
	})
}
