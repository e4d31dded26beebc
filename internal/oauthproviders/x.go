package oauthproviders

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/insforge/core/internal/apperror"
)

var xEndpoint = oauth2.Endpoint{
	AuthURL:  "https://twitter.com/i/oauth2/authorize",
	TokenURL: "https://api.twitter.com/2/oauth2/token",
}

const xVerifierTTL = 10 * time.Minute

// xProvider implements the X (Twitter) flow, which mandates PKCE and a
// required state parameter per spec.md §4.5.
type xProvider struct {
	oauthCfg *oauth2.Config
	states   *verifierStore
}

func newXProvider(creds ProviderCredentials, redirectBase string) *xProvider {
	return &xProvider{
		oauthCfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     xEndpoint,
			RedirectURL:  fmt.Sprintf("%s/auth/oauth/x/callback", redirectBase),
			Scopes:       []string{"tweet.read", "users.read", "offline.access"},
		},
		states: newVerifierStore(),
	}
}

func (p *xProvider) Name() string { return "x" }

func (p *xProvider) AuthorizeURL(_ context.Context, state string) (string, error) {
	if state == "" {
		return "", apperror.Invalid("x requires a state parameter")
	}

	verifier := oauth2.GenerateVerifier()
	p.states.put(state, verifier, xVerifierTTL)

	return p.oauthCfg.AuthCodeURL(state,
		oauth2.S256ChallengeOption(verifier),
	), nil
}

func (p *xProvider) Callback(ctx context.Context, params CallbackParams) (Identity, error) {
	if params.Code == "" || params.State == "" {
		return Identity{}, apperror.Invalid("missing code or state")
	}

	verifier, ok := p.states.take(params.State)
	if !ok {
		return Identity{}, apperror.Unauthorized("unknown or expired oauth state")
	}

	tok, err := p.oauthCfg.Exchange(ctx, params.Code, oauth2.VerifierOption(verifier))
	if err != nil {
		return Identity{}, apperror.Unauthorized("exchanging authorization code failed")
	}

	client := p.oauthCfg.Client(ctx, tok)

	var info struct {
		Data struct {
			ID       string `json:"id"`
			Username string `json:"username"`
			Name     string `json:"name"`
		} `json:"data"`
	}
	if err := getJSON(ctx, client, "https://api.twitter.com/2/users/me", &info); err != nil {
		return Identity{}, err
	}

	return Identity{
		Provider:     "x",
		ProviderID:   info.Data.ID,
		Email:        synthesizeEmail(info.Data.Username, "x"),
		UserName:     info.Data.Name,
		IdentityData: map[string]any{"username": info.Data.Username},
	}, nil
}
