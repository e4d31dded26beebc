package oauthproviders

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/facebook"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"
	"golang.org/x/oauth2/linkedin"
	"golang.org/x/oauth2/microsoft"

	"github.com/insforge/core/internal/apperror"
)

var (
	googleEndpoint    = google.Endpoint
	githubEndpoint    = github.Endpoint
	facebookEndpoint  = facebook.Endpoint
	linkedinEndpoint  = linkedin.Endpoint
	microsoftEndpoint = microsoft.AzureADEndpoint("common")
	discordEndpoint   = oauth2.Endpoint{
		AuthURL:  "https://discord.com/api/oauth2/authorize",
		TokenURL: "https://discord.com/api/oauth2/token",
	}
)

// userInfoFetcher fetches and normalizes the provider's user-info response
// using an authenticated *http.Client (already carrying the access token).
type userInfoFetcher func(ctx context.Context, client *http.Client) (Identity, error)

// genericProvider implements the standard OAuth 2.0 authorization-code flow
// shared by Google, GitHub, Discord, LinkedIn, Facebook, and Microsoft.
type genericProvider struct {
	name     string
	oauthCfg *oauth2.Config
	fetch    userInfoFetcher
	states   *verifierStore
}

func newGenericProvider(name string, creds ProviderCredentials, redirectBase string, endpoint oauth2.Endpoint, fetch userInfoFetcher) *genericProvider {
	scopes := defaultScopes(name)
	return &genericProvider{
		name: name,
		oauthCfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     endpoint,
			RedirectURL:  fmt.Sprintf("%s/auth/oauth/%s/callback", redirectBase, name),
			Scopes:       scopes,
		},
		fetch:  fetch,
		states: newVerifierStore(),
	}
}

func defaultScopes(name string) []string {
	switch name {
	case "google":
		return []string{"openid", "email", "profile"}
	case "github":
		return []string{"read:user", "user:email"}
	case "discord":
		return []string{"identify", "email"}
	case "linkedin":
		return []string{"openid", "email", "profile"}
	case "facebook":
		return []string{"email", "public_profile"}
	case "microsoft":
		return []string{"openid", "email", "profile", "User.Read"}
	default:
		return []string{"email"}
	}
}

func (p *genericProvider) Name() string { return p.name }

func (p *genericProvider) AuthorizeURL(_ context.Context, state string) (string, error) {
	return p.oauthCfg.AuthCodeURL(state), nil
}

func (p *genericProvider) Callback(ctx context.Context, params CallbackParams) (Identity, error) {
	if params.Code == "" {
		return Identity{}, apperror.Invalid("missing authorization code")
	}

	tok, err := p.oauthCfg.Exchange(ctx, params.Code)
	if err != nil {
		return Identity{}, apperror.Unauthorized("exchanging authorization code failed")
	}

	client := p.oauthCfg.Client(ctx, tok)
	identity, err := p.fetch(ctx, client)
	if err != nil {
		return Identity{}, err
	}
	identity.Provider = p.name
	return identity, nil
}

// getJSON performs an authenticated GET and decodes a JSON response into v.
func getJSON(ctx context.Context, client *http.Client, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return apperror.Unavailable("fetching provider user info")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return apperror.Unauthorized(fmt.Sprintf("provider user-info request failed: %s", string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding provider user info: %w", err)
	}
	return nil
}

func synthesizeEmail(handle, provider string) string {
	return fmt.Sprintf("%s@users.noreply.%s.local", handle, provider)
}

// --- Google ---

func googleUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://www.googleapis.com/oauth2/v3/userinfo", &info); err != nil {
		return Identity{}, err
	}
	return Identity{
		ProviderID:   info.Sub,
		Email:        info.Email,
		UserName:     info.Name,
		AvatarURL:    info.Picture,
		IdentityData: map[string]any{"sub": info.Sub, "name": info.Name},
	}, nil
}

// --- GitHub ---

func githubUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		ID        int64  `json:"id"`
		Login     string `json:"login"`
		Email     string `json:"email"`
		Name      string `json:"name"`
		AvatarURL string `json:"avatar_url"`
	}
	if err := getJSON(ctx, client, "https://api.github.com/user", &info); err != nil {
		return Identity{}, err
	}

	email := info.Email
	if email == "" {
		var emails []struct {
			Email    string `json:"email"`
			Primary  bool   `json:"primary"`
			Verified bool   `json:"verified"`
		}
		if err := getJSON(ctx, client, "https://api.github.com/user/emails", &emails); err == nil {
			for _, e := range emails {
				if e.Primary && e.Verified {
					email = e.Email
					break
				}
			}
			if email == "" && len(emails) > 0 {
				email = emails[0].Email
			}
		}
	}
	if email == "" {
		email = synthesizeEmail(info.Login, "github")
	}

	return Identity{
		ProviderID:   fmt.Sprintf("%d", info.ID),
		Email:        email,
		UserName:     info.Name,
		AvatarURL:    info.AvatarURL,
		IdentityData: map[string]any{"login": info.Login},
	}, nil
}

// --- Discord ---

func discordUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		ID            string `json:"id"`
		Username      string `json:"username"`
		Email         string `json:"email"`
		Avatar        string `json:"avatar"`
		Discriminator string `json:"discriminator"`
	}
	if err := getJSON(ctx, client, "https://discord.com/api/users/@me", &info); err != nil {
		return Identity{}, err
	}

	email := info.Email
	if email == "" {
		email = synthesizeEmail(info.Username, "discord")
	}

	avatar := ""
	if info.Avatar != "" {
		avatar = fmt.Sprintf("https://cdn.discordapp.com/avatars/%s/%s.png", info.ID, info.Avatar)
	}

	return Identity{
		ProviderID:   info.ID,
		Email:        email,
		UserName:     info.Username,
		AvatarURL:    avatar,
		IdentityData: map[string]any{"username": info.Username, "discriminator": info.Discriminator},
	}, nil
}

// --- LinkedIn ---

func linkedinUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		Sub     string `json:"sub"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture string `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://api.linkedin.com/v2/userinfo", &info); err != nil {
		return Identity{}, err
	}
	return Identity{
		ProviderID:   info.Sub,
		Email:        info.Email,
		UserName:     info.Name,
		AvatarURL:    info.Picture,
		IdentityData: map[string]any{"sub": info.Sub},
	}, nil
}

// --- Facebook ---

func facebookUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		ID      string `json:"id"`
		Email   string `json:"email"`
		Name    string `json:"name"`
		Picture struct {
			Data struct {
				URL string `json:"url"`
			} `json:"data"`
		} `json:"picture"`
	}
	if err := getJSON(ctx, client, "https://graph.facebook.com/me?fields=id,name,email,picture", &info); err != nil {
		return Identity{}, err
	}

	email := info.Email
	if email == "" {
		email = synthesizeEmail(info.ID, "facebook")
	}

	return Identity{
		ProviderID:   info.ID,
		Email:        email,
		UserName:     info.Name,
		AvatarURL:    info.Picture.Data.URL,
		IdentityData: map[string]any{"id": info.ID},
	}, nil
}

// --- Microsoft ---

func microsoftUserInfo(ctx context.Context, client *http.Client) (Identity, error) {
	var info struct {
		ID                string `json:"id"`
		DisplayName       string `json:"displayName"`
		Mail              string `json:"mail"`
		UserPrincipalName string `json:"userPrincipalName"`
	}
	if err := getJSON(ctx, client, "https://graph.microsoft.com/v1.0/me", &info); err != nil {
		return Identity{}, err
	}

	email := info.Mail
	if email == "" {
		email = info.UserPrincipalName
	}

	return Identity{
		ProviderID:   info.ID,
		Email:        email,
		UserName:     info.DisplayName,
		IdentityData: map[string]any{"id": info.ID},
	}, nil
}
