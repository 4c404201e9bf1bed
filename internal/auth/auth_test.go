package auth

import (
	"errors"
	"testing"
)

func setSecret(t *testing.T) {
	t.Helper()
	t.Setenv("ACCESSGOV_AUTH_SECRET", "test-secret-value")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)
}

func TestIssueAndValidatePair(t *testing.T) {
	setSecret(t)

	pair, err := IssuePair("citizen-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	claims, err := ParseAndValidate(pair.Access, TokenTypeAccess)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if claims.Subject != "citizen-1" {
		t.Fatalf("subject = %q", claims.Subject)
	}

	claims, err = ParseAndValidate(pair.Refresh, TokenTypeRefresh)
	if err != nil {
		t.Fatalf("validate refresh: %v", err)
	}
	if claims.TokenType != TokenTypeRefresh {
		t.Fatalf("token type = %q", claims.TokenType)
	}
}

func TestTokenTypeMismatchRejected(t *testing.T) {
	setSecret(t)

	pair, err := IssuePair("citizen-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if _, err := ParseAndValidate(pair.Refresh, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("refresh-as-access: got %v, want ErrInvalidToken", err)
	}
	if _, err := ParseAndValidate(pair.Access, TokenTypeRefresh); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("access-as-refresh: got %v, want ErrInvalidToken", err)
	}
}

func TestGarbageTokenRejected(t *testing.T) {
	setSecret(t)
	for _, token := range []string{"", "   ", "not.a.jwt", "a.b.c"} {
		if _, err := ParseAndValidate(token, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("token %q: got %v, want ErrInvalidToken", token, err)
		}
	}
}

func TestTamperedTokenRejected(t *testing.T) {
	setSecret(t)
	pair, err := IssuePair("citizen-1")
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	tampered := pair.Access[:len(pair.Access)-2] + "xx"
	if _, err := ParseAndValidate(tampered, TokenTypeAccess); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("tampered token: got %v, want ErrInvalidToken", err)
	}
}

func TestMissingSecret(t *testing.T) {
	t.Setenv("ACCESSGOV_AUTH_SECRET", "")
	ResetSecretForTests()
	t.Cleanup(ResetSecretForTests)

	if _, err := IssuePair("citizen-1"); err == nil {
		t.Fatal("issuing without a secret must fail")
	}
}

func TestPasswordHashing(t *testing.T) {
	hash, err := HashPassword("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if err := VerifyPassword(hash, "correct horse battery staple"); err != nil {
		t.Fatalf("verify: %v", err)
	}
	if err := VerifyPassword(hash, "wrong"); err == nil {
		t.Fatal("wrong password accepted")
	}
}
