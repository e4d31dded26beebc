// Package pkcestore implements C3: an in-memory, one-shot store of
// authorization codes carrying an access token, user record, and optional
// PKCE code challenge. Grounded on the teacher's redis-backed OAuth-state
// store (internal/auth/oidc_flow.go) but kept in-process per spec.md §4.3/
// §9 ("acceptable because codes/verifiers are short-lived and per-process").
package pkcestore

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"sync"
	"time"
)

// DefaultTTL is the maximum lifetime of a stored authorization code.
const DefaultTTL = 10 * time.Minute

// Entry is the payload an authorization code resolves to.
type Entry struct {
	AccessToken   string
	User          any
	CodeChallenge string
	expiresAt     time.Time
}

// Store is a mutex-guarded map of opaque code -> Entry with a background
// sweeper, mirroring the teacher's pattern for short-lived per-process state.
type Store struct {
	mu      sync.Mutex
	entries map[string]Entry
	ttl     time.Duration
}

// New constructs a store. It does not start the background sweeper; the
// caller launches Run for that.
func New(ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	s := &Store{entries: make(map[string]Entry), ttl: ttl}
	return s
}

// Run sweeps expired entries once a minute until done is closed; launch it
// with `go s.Run(ctx.Done())`.
func (s *Store) Run(done <-chan struct{}) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

func (s *Store) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for code, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, code)
		}
	}
}

// Store creates a new opaque code for entry and records it with the
// configured TTL. A lazy sweep runs on every insert per spec.md §9.
func (s *Store) Store(accessToken string, user any, codeChallenge string) (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating authorization code: %w", err)
	}
	code := base64.RawURLEncoding.EncodeToString(buf)

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for c, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, c)
		}
	}

	s.entries[code] = Entry{
		AccessToken:   accessToken,
		User:          user,
		CodeChallenge: codeChallenge,
		expiresAt:     now.Add(s.ttl),
	}

	return code, nil
}

// Consume atomically deletes and returns the entry for code, or ok=false if
// it is absent or expired.
func (s *Store) Consume(code string) (Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, found := s.entries[code]
	if !found {
		return Entry{}, false
	}
	delete(s.entries, code)

	if time.Now().After(e.expiresAt) {
		return Entry{}, false
	}
	return e, true
}

// VerifyChallenge reports whether verifier satisfies challenge under the
// S256 PKCE method: base64url(sha256(verifier)) == challenge.
func VerifyChallenge(verifier, challenge string) bool {
	if verifier == "" || challenge == "" {
		return false
	}
	sum := sha256.Sum256([]byte(verifier))
	computed := base64.RawURLEncoding.EncodeToString(sum[:])
	return computed == challenge
}
