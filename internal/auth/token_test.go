package auth

import (
	"errors"
	"testing"
	"time"

	"auditoria.org/internal/rbac"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)

	token, err := issuer.Issue("u1", []rbac.Role{rbac.RoleAdmin, rbac.RoleAuditor})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	claims, err := issuer.Parse(token)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if claims.Subject != "u1" {
		t.Fatalf("subject = %q", claims.Subject)
	}
	if len(claims.Roles) != 2 || claims.Roles[0] != "ADMIN" {
		t.Fatalf("roles = %v", claims.Roles)
	}
	if claims.ID == "" {
		t.Fatal("token must carry a jti")
	}
}

func TestTokenUniqueJTI(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)
	a, _ := issuer.Issue("u1", nil)
	b, _ := issuer.Issue("u1", nil)
	ca, _ := issuer.Parse(a)
	cb, _ := issuer.Parse(b)
	if ca.ID == cb.ID {
		t.Fatal("two tokens for the same user must have distinct jti")
	}
}

func TestTokenWrongSecret(t *testing.T) {
	token, err := NewTokenIssuer([]byte("secret-a"), time.Hour).Issue("u1", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	_, err = NewTokenIssuer([]byte("secret-b"), time.Hour).Parse(token)
	if !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken, got %v", err)
	}
}

func TestTokenExpiry(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Minute)
	token, err := issuer.Issue("u1", nil)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	late := NewTokenIssuer([]byte("test-secret"), time.Minute)
	late.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	if _, err := late.Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("want ErrInvalidToken for expired token, got %v", err)
	}
}

func TestTokenGarbage(t *testing.T) {
	issuer := NewTokenIssuer([]byte("test-secret"), time.Hour)
	for _, bad := range []string{"", "not-a-token", "a.b.c"} {
		if _, err := issuer.Parse(bad); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("%q: want ErrInvalidToken, got %v", bad, err)
		}
	}
}
