package csrf

import "testing"

func TestDeriveIsDeterministic(t *testing.T) {
	m := New("key")
	a := m.Derive("refresh-token")
	b := m.Derive("refresh-token")
	if a != b {
		t.Fatalf("expected deterministic derivation, got %q and %q", a, b)
	}
}

func TestVerifySucceedsWhenAllThreeMatch(t *testing.T) {
	m := New("key")
	refresh := "refresh-token"
	tok := m.Derive(refresh)

	if !m.Verify(tok, tok, refresh) {
		t.Fatal("expected verify to succeed")
	}
}

func TestVerifyFailsOnMismatch(t *testing.T) {
	m := New("key")
	refresh := "refresh-token"
	tok := m.Derive(refresh)

	cases := []struct {
		name                            string
		header, cookie, refreshForCheck string
	}{
		{"empty header", "", tok, refresh},
		{"empty cookie", tok, "", refresh},
		{"empty refresh", tok, tok, ""},
		{"header != cookie", tok, "other", refresh},
		{"wrong refresh", tok, tok, "different-refresh"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if m.Verify(tc.header, tc.cookie, tc.refreshForCheck) {
				t.Fatal("expected verify to fail")
			}
		})
	}
}

func TestDifferentKeysProduceDifferentTokens(t *testing.T) {
	refresh := "refresh-token"
	a := New("key-a").Derive(refresh)
	b := New("key-b").Derive(refresh)
	if a == b {
		t.Fatal("expected different keys to produce different tokens")
	}
}
