package identity_test

import (
	"strings"
	"testing"
	"time"

	"github.com/genesis-gov/genesis/internal/identity"
)

func TestTokenIssueVerify(t *testing.T) {
	issuer := identity.NewTokenIssuer([]byte("test-secret"), "genesisd", time.Minute)

	tok, err := issuer.Issue("ops-alice")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if strings.Count(tok, ".") != 2 {
		t.Fatalf("token is not a compact JWT: %q", tok)
	}

	claims, err := issuer.Verify(tok)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	if claims.Operator != "ops-alice" || claims.Subject != "ops-alice" {
		t.Errorf("claims = %+v", claims)
	}
	if claims.Issuer != "genesisd" {
		t.Errorf("issuer = %q", claims.Issuer)
	}
	if claims.ID == "" {
		t.Error("token id missing")
	}
}

func TestTokenVerify_WrongSecret(t *testing.T) {
	issuer := identity.NewTokenIssuer([]byte("secret-a"), "genesisd", time.Minute)
	other := identity.NewTokenIssuer([]byte("secret-b"), "genesisd", time.Minute)

	tok, err := issuer.Issue("ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := other.Verify(tok); err == nil {
		t.Error("token verified with wrong secret")
	}
}

func TestTokenVerify_WrongIssuer(t *testing.T) {
	a := identity.NewTokenIssuer([]byte("secret"), "daemon-a", time.Minute)
	b := identity.NewTokenIssuer([]byte("secret"), "daemon-b", time.Minute)

	tok, err := a.Issue("ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := b.Verify(tok); err == nil {
		t.Error("token from another issuer verified")
	}
}

func TestTokenVerify_Expired(t *testing.T) {
	issuer := identity.NewTokenIssuer([]byte("secret"), "genesisd", -time.Minute)

	tok, err := issuer.Issue("ops")
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Verify(tok); err == nil {
		t.Error("expired token verified")
	}
}

func TestTokenVerify_Garbage(t *testing.T) {
	issuer := identity.NewTokenIssuer([]byte("secret"), "genesisd", time.Minute)
	if _, err := issuer.Verify("not.a.token"); err == nil {
		t.Error("garbage token verified")
	}
}
