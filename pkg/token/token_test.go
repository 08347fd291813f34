package token

import (
	"testing"
	"time"
)

func TestMintAndVerify(t *testing.T) {
	iss, err := NewIssuer()
	if err != nil {
		t.Fatalf("NewIssuer() error = %v", err)
	}

	subject := Subject{Bank: "first-national", Username: "alice"}
	tok, expiresAt, err := iss.Mint(subject, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}
	if expiresAt.Before(time.Now()) {
		t.Fatal("Mint() returned an already-expired expiry")
	}

	got, err := iss.Verify(tok)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got != subject {
		t.Fatalf("Verify() subject = %+v, want %+v", got, subject)
	}
}

func TestVerifyExpired(t *testing.T) {
	iss, _ := NewIssuer()
	tok, _, _ := iss.Mint(Subject{Bank: "b", Username: "u"}, -time.Second)

	if _, err := iss.Verify(tok); err != ErrExpired {
		t.Fatalf("Verify() error = %v, want %v", err, ErrExpired)
	}
}

func TestVerifyTamperedSignature(t *testing.T) {
	iss, _ := NewIssuer()
	tok, _, _ := iss.Mint(Subject{Bank: "b", Username: "u"}, time.Hour)

	tampered := tok[:len(tok)-1] + "x"
	if tampered == tok {
		t.Skip("tamper did not change token")
	}
	if _, err := iss.Verify(tampered); err == nil {
		t.Fatal("Verify() accepted a tampered token")
	}
}

func TestVerifyMalformed(t *testing.T) {
	iss, _ := NewIssuer()
	if _, err := iss.Verify("not-a-token"); err != ErrMalformed {
		t.Fatalf("Verify() error = %v, want %v", err, ErrMalformed)
	}
}

func TestDifferentIssuersRejectEachOthersTokens(t *testing.T) {
	a, _ := NewIssuer()
	b, _ := NewIssuer()

	tok, _, _ := a.Mint(Subject{Bank: "b", Username: "u"}, time.Hour)
	if _, err := b.Verify(tok); err != ErrBadSignature {
		t.Fatalf("Verify() error = %v, want %v", err, ErrBadSignature)
	}
}
