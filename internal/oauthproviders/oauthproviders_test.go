package oauthproviders

import (
	"testing"
	"time"
)

func TestSynthesizeEmail(t *testing.T) {
	got := synthesizeEmail("alice", "github")
	want := "alice@users.noreply.github.local"
	if got != want {
		t.Fatalf("synthesizeEmail() = %q, want %q", got, want)
	}
}

func TestVerifierStoreRoundTrip(t *testing.T) {
	s := newVerifierStore()
	s.put("state-1", "verifier-1", time.Minute)

	v, ok := s.take("state-1")
	if !ok || v != "verifier-1" {
		t.Fatalf("take() = (%q, %v), want (verifier-1, true)", v, ok)
	}

	if _, ok := s.take("state-1"); ok {
		t.Fatal("expected state to be consumed after first take")
	}
}

func TestVerifierStoreExpiry(t *testing.T) {
	s := newVerifierStore()
	s.put("state-1", "verifier-1", time.Millisecond)
	time.Sleep(5 * time.Millisecond)

	if _, ok := s.take("state-1"); ok {
		t.Fatal("expected expired verifier to be rejected")
	}
}

func TestNewSetOnlyRegistersConfiguredProviders(t *testing.T) {
	set := NewSet(Config{
		RedirectBaseURL: "http://localhost:8080",
		Google:          ProviderCredentials{ClientID: "g-id", ClientSecret: "g-secret"},
	})

	if _, err := set.Get("google"); err != nil {
		t.Fatalf("expected google to be configured: %v", err)
	}
	if _, err := set.Get("github"); err == nil {
		t.Fatal("expected github to be unconfigured")
	}
}
