package auth

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestIssueAndParse(t *testing.T) {
	signer := NewSigner("secret")
	token, issued, err := signer.Issue(Claims{Sub: "usr-1", Email: "owner@example.com", Role: "admin", JTI: "jti-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if issued.Exp-issued.Iat != int64(time.Hour/time.Second) {
		t.Fatalf("unexpected lifetime: iat=%d exp=%d", issued.Iat, issued.Exp)
	}

	claims, err := signer.Parse(token)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if claims != issued {
		t.Fatalf("parsed claims %+v differ from issued %+v", claims, issued)
	}
}

func TestParseRejectsExpired(t *testing.T) {
	signer := NewSigner("secret")
	start := time.Now()
	signer.now = func() time.Time { return start }
	token, _, err := signer.Issue(Claims{Sub: "usr-1", Email: "owner@example.com", JTI: "jti-1"}, time.Minute)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}

	signer.now = func() time.Time { return start.Add(2 * time.Minute) }
	if _, err := signer.Parse(token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestParseRejectsForeignSignature(t *testing.T) {
	token, _, err := NewSigner("one").Issue(Claims{Sub: "usr-1", Email: "owner@example.com", JTI: "jti-1"}, time.Hour)
	if err != nil {
		t.Fatalf("Issue() error = %v", err)
	}
	if _, err := NewSigner("two").Parse(token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
	for _, malformed := range []string{"", "no-dot", token + ".extra", strings.Replace(token, ".", "x.", 1)} {
		if _, err := NewSigner("one").Parse(malformed); !errors.Is(err, ErrInvalidToken) {
			t.Fatalf("Parse(%q) = %v, want ErrInvalidToken", malformed, err)
		}
	}
}

func TestHashTokenIsStableHex(t *testing.T) {
	first := HashToken("refresh-value")
	if first != HashToken("refresh-value") || len(first) != 64 {
		t.Fatalf("unexpected hash %q", first)
	}
	if first == HashToken("other") {
		t.Fatal("distinct inputs must not share a hash")
	}
}
