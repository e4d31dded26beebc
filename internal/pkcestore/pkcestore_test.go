package pkcestore

import (
	"crypto/rand"
	"encoding/base64"
	"testing"
	"time"
)

func TestStoreAndConsumeOneShot(t *testing.T) {
	s := New(time.Minute)

	code, err := s.Store("access-token", map[string]string{"id": "u1"}, "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	entry, ok := s.Consume(code)
	if !ok {
		t.Fatal("expected first consume to succeed")
	}
	if entry.AccessToken != "access-token" {
		t.Fatalf("unexpected access token: %q", entry.AccessToken)
	}

	if _, ok := s.Consume(code); ok {
		t.Fatal("expected second consume of the same code to fail")
	}
}

func TestConsumeExpiredEntryFails(t *testing.T) {
	s := New(time.Millisecond)
	code, err := s.Store("access-token", nil, "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}

	time.Sleep(5 * time.Millisecond)

	if _, ok := s.Consume(code); ok {
		t.Fatal("expected expired entry to fail consumption")
	}
}

func TestConsumeUnknownCodeFails(t *testing.T) {
	s := New(time.Minute)
	if _, ok := s.Consume("never-stored"); ok {
		t.Fatal("expected unknown code to fail")
	}
}

func TestVerifyChallenge(t *testing.T) {
	verifierBytes := make([]byte, 32)
	if _, err := rand.Read(verifierBytes); err != nil {
		t.Fatalf("rand.Read: %v", err)
	}
	verifier := base64.RawURLEncoding.EncodeToString(verifierBytes)

	challenge := New(time.Minute)
	code, err := challenge.Store("at", nil, "")
	if err != nil {
		t.Fatalf("Store: %v", err)
	}
	entry, _ := challenge.Consume(code)
	_ = entry

	if VerifyChallenge(verifier, "wrong-challenge") {
		t.Fatal("expected mismatched challenge to fail")
	}
	if VerifyChallenge("", "anything") {
		t.Fatal("expected empty verifier to fail")
	}
}
