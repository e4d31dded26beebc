// Package oauthproviders implements C5: per-provider authorize-URL
// construction and code/token exchange, normalized to a common Identity
// record. Grounded on the teacher's internal/auth/oidc_flow.go (redis-backed
// state storage, oauth2.Config exchange, id_token verification) generalized
// from a single OIDC provider to the eight providers spec.md §4.5 names.
package oauthproviders

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/insforge/core/internal/apperror"
)

// Identity is the normalized record every provider's callback produces.
type Identity struct {
	Provider     string
	ProviderID   string
	Email        string
	UserName     string
	AvatarURL    string
	IdentityData map[string]any
}

// CallbackParams carries whatever the provider's callback redirect supplied.
type CallbackParams struct {
	Code    string
	Token   string // Apple's id_token, delivered via form_post
	State   string
	Payload map[string]any // shared-broker signed payload
}

// Provider is the two-method contract every OAuth integration implements,
// plus an optional shared-broker path (spec.md §4.5, §9 "tagged variant").
type Provider interface {
	Name() string
	AuthorizeURL(ctx context.Context, state string) (string, error)
	Callback(ctx context.Context, params CallbackParams) (Identity, error)
}

// SharedCallbackProvider is implemented by providers that can normalize a
// cloud-broker-signed payload instead of driving the flow locally.
type SharedCallbackProvider interface {
	SharedCallback(ctx context.Context, payload map[string]any) (Identity, error)
}

var httpClient = &http.Client{Timeout: 10 * time.Second}

// verifierStore is a mutex-guarded map from OAuth `state` to a PKCE code
// verifier, mirroring the teacher's redis state store but kept in-process
// (state/verifier pairs are short-lived and per-flow, same rationale as C3).
type verifierStore struct {
	mu      sync.Mutex
	entries map[string]verifierEntry
}

type verifierEntry struct {
	verifier  string
	expiresAt time.Time
}

func newVerifierStore() *verifierStore {
	return &verifierStore{entries: make(map[string]verifierEntry)}
}

func (s *verifierStore) put(state, verifier string, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for k, e := range s.entries {
		if now.After(e.expiresAt) {
			delete(s.entries, k)
		}
	}
	s.entries[state] = verifierEntry{verifier: verifier, expiresAt: now.Add(ttl)}
}

func (s *verifierStore) take(state string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[state]
	delete(s.entries, state)
	if !ok || time.Now().After(e.expiresAt) {
		return "", false
	}
	return e.verifier, true
}

// newState returns a random URL-safe state/verifier value.
func newState() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generating oauth state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// NewState exposes newState for callers outside this package that need to
// pre-generate a state value before AuthorizeURL is invoked.
func NewState() (string, error) {
	return newState()
}

// challengeFromVerifier computes the S256 PKCE challenge for verifier.
func challengeFromVerifier(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// Set holds every configured provider, keyed by name.
type Set struct {
	providers map[string]Provider
}

// NewSet builds the provider set from configuration, registering only
// providers whose credentials are present.
func NewSet(cfg Config) *Set {
	s := &Set{providers: make(map[string]Provider)}

	register := func(p Provider, configured bool) {
		if configured {
			s.providers[p.Name()] = p
		}
	}

	redirectBase := cfg.RedirectBaseURL

	register(newGenericProvider("google", cfg.Google, redirectBase, googleEndpoint, googleUserInfo), cfg.Google.ClientID != "")
	register(newGenericProvider("github", cfg.GitHub, redirectBase, githubEndpoint, githubUserInfo), cfg.GitHub.ClientID != "")
	register(newGenericProvider("discord", cfg.Discord, redirectBase, discordEndpoint, discordUserInfo), cfg.Discord.ClientID != "")
	register(newGenericProvider("linkedin", cfg.LinkedIn, redirectBase, linkedinEndpoint, linkedinUserInfo), cfg.LinkedIn.ClientID != "")
	register(newGenericProvider("facebook", cfg.Facebook, redirectBase, facebookEndpoint, facebookUserInfo), cfg.Facebook.ClientID != "")
	register(newGenericProvider("microsoft", cfg.Microsoft, redirectBase, microsoftEndpoint, microsoftUserInfo), cfg.Microsoft.ClientID != "")
	register(newXProvider(cfg.X, redirectBase), cfg.X.ClientID != "")

	if cfg.Apple.ClientID != "" {
		if p, err := newAppleProvider(cfg.Apple, redirectBase); err == nil {
			s.providers["apple"] = p
		}
	}

	if cfg.BrokerURL != "" {
		s.providers["broker"] = newBrokerProvider(cfg.BrokerURL)
	}

	return s
}

// Get returns the provider registered under name.
func (s *Set) Get(name string) (Provider, error) {
	p, ok := s.providers[name]
	if !ok {
		return nil, apperror.NotFound(fmt.Sprintf("oauth provider %q is not configured", name))
	}
	return p, nil
}

// ProviderCredentials is the client id/secret pair shared by the six
// standard authorization-code providers.
type ProviderCredentials struct {
	ClientID     string
	ClientSecret string
}

// AppleCredentials carries Apple's JWT-signed-client-secret parameters.
type AppleCredentials struct {
	ClientID      string
	TeamID        string
	KeyID         string
	PrivateKeyPEM string
}

// Config is the subset of process configuration C5 needs, decoupled from
// internal/config to avoid an import cycle with internal/app's wiring.
type Config struct {
	RedirectBaseURL string
	BrokerURL       string

	Google    ProviderCredentials
	GitHub    ProviderCredentials
	Discord   ProviderCredentials
	LinkedIn  ProviderCredentials
	Facebook  ProviderCredentials
	Microsoft ProviderCredentials
	X         ProviderCredentials
	Apple     AppleCredentials
}
