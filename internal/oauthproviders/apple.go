package oauthproviders

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"sync"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/go-jose/go-jose/v4"
	josejwt "github.com/go-jose/go-jose/v4/jwt"
	"golang.org/x/oauth2"

	"github.com/insforge/core/internal/apperror"
)

const appleIssuer = "https://appleid.apple.com"

var appleEndpoint = oauth2.Endpoint{
	AuthURL:  "https://appleid.apple.com/auth/authorize",
	TokenURL: "https://appleid.apple.com/auth/token",
}

// appleProvider implements Sign in with Apple: response_mode=form_post and
// a per-request ES256-signed JWT in place of a static client secret.
type appleProvider struct {
	cfg        AppleCredentials
	signingKey any // *ecdsa.PrivateKey, parsed once at construction
	oauthCfg   *oauth2.Config

	verifierOnce sync.Once
	verifier     *oidc.IDTokenVerifier
	verifierErr  error
}

func newAppleProvider(creds AppleCredentials, redirectBase string) (*appleProvider, error) {
	block, _ := pem.Decode([]byte(creds.PrivateKeyPEM))
	if block == nil {
		return nil, fmt.Errorf("apple: invalid PKCS8 private key PEM")
	}
	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("apple: parsing PKCS8 private key: %w", err)
	}

	return &appleProvider{
		cfg:        creds,
		signingKey: key,
		oauthCfg: &oauth2.Config{
			ClientID: creds.ClientID,
			Endpoint: appleEndpoint,
			RedirectURL: fmt.Sprintf("%s/auth/oauth/apple/callback", redirectBase),
			Scopes:      []string{"name", "email"},
		},
	}, nil
}

func (p *appleProvider) Name() string { return "apple" }

func (p *appleProvider) AuthorizeURL(_ context.Context, state string) (string, error) {
	return p.oauthCfg.AuthCodeURL(state,
		oauth2.SetAuthURLParam("response_mode", "form_post"),
	), nil
}

// clientSecret mints a fresh ES256 client-secret JWT per spec.md §4.5:
// iss=teamId, sub=clientId, aud=https://appleid.apple.com, exp <= 6 months.
func (p *appleProvider) clientSecret() (string, error) {
	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.ES256,
		Key:       p.signingKey,
	}, (&jose.SignerOptions{}).WithHeader("kid", p.cfg.KeyID))
	if err != nil {
		return "", fmt.Errorf("apple: creating client-secret signer: %w", err)
	}

	now := time.Now()
	claims := struct {
		Issuer    string `json:"iss"`
		Subject   string `json:"sub"`
		Audience  string `json:"aud"`
		IssuedAt  int64  `json:"iat"`
		ExpiresAt int64  `json:"exp"`
	}{
		Issuer:    p.cfg.TeamID,
		Subject:   p.cfg.ClientID,
		Audience:  "https://appleid.apple.com",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(30 * 24 * time.Hour).Unix(), // well under the 6-month ceiling
	}

	return josejwt.Signed(signer).Claims(claims).Serialize()
}

func (p *appleProvider) ensureVerifier(ctx context.Context) (*oidc.IDTokenVerifier, error) {
	p.verifierOnce.Do(func() {
		provider, err := oidc.NewProvider(ctx, appleIssuer)
		if err != nil {
			p.verifierErr = fmt.Errorf("apple: fetching OIDC discovery document: %w", err)
			return
		}
		p.verifier = provider.Verifier(&oidc.Config{ClientID: p.cfg.ClientID})
	})
	return p.verifier, p.verifierErr
}

func (p *appleProvider) Callback(ctx context.Context, params CallbackParams) (Identity, error) {
	if params.Token == "" {
		return Identity{}, apperror.Invalid("missing id_token")
	}

	verifier, err := p.ensureVerifier(ctx)
	if err != nil {
		return Identity{}, apperror.Unavailable("apple identity provider is unreachable")
	}

	idTok, err := verifier.Verify(ctx, params.Token)
	if err != nil {
		return Identity{}, apperror.Unauthorized("invalid apple id_token")
	}

	var claims struct {
		Subject       string `json:"sub"`
		Email         string `json:"email"`
		EmailVerified any    `json:"email_verified"`
	}
	if err := idTok.Claims(&claims); err != nil {
		return Identity{}, apperror.Unauthorized("invalid apple id_token claims")
	}

	email := claims.Email
	if email == "" {
		email = synthesizeEmail(claims.Subject, "apple")
	}

	return Identity{
		Provider:     "apple",
		ProviderID:   claims.Subject,
		Email:        email,
		IdentityData: map[string]any{"sub": claims.Subject},
	}, nil
}
