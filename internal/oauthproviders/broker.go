package oauthproviders

import (
	"context"
	"fmt"

	"github.com/insforge/core/internal/apperror"
)

// brokerProvider delegates authorize/callback to a cloud broker, normalizing
// whatever signed payload it returns via SharedCallback instead of driving
// the provider flow locally (spec.md §4.5's "shared-key" path).
type brokerProvider struct {
	brokerURL string
}

func newBrokerProvider(brokerURL string) *brokerProvider {
	return &brokerProvider{brokerURL: brokerURL}
}

func (p *brokerProvider) Name() string { return "broker" }

func (p *brokerProvider) AuthorizeURL(_ context.Context, state string) (string, error) {
	return fmt.Sprintf("%s/authorize?state=%s", p.brokerURL, state), nil
}

func (p *brokerProvider) Callback(_ context.Context, _ CallbackParams) (Identity, error) {
	return Identity{}, apperror.Invalid("broker provider requires SharedCallback, not Callback")
}

// SharedCallback normalizes the broker's signed payload into an Identity.
// The broker is trusted to have already verified the upstream provider; this
// layer only reshapes the payload into the common Identity record.
func (p *brokerProvider) SharedCallback(_ context.Context, payload map[string]any) (Identity, error) {
	provider, _ := payload["provider"].(string)
	providerID, _ := payload["providerId"].(string)
	email, _ := payload["email"].(string)
	userName, _ := payload["userName"].(string)
	avatarURL, _ := payload["avatarUrl"].(string)

	if provider == "" || providerID == "" {
		return Identity{}, apperror.Invalid("broker payload missing provider identity")
	}

	if email == "" {
		email = synthesizeEmail(providerID, provider)
	}

	return Identity{
		Provider:     provider,
		ProviderID:   providerID,
		Email:        email,
		UserName:     userName,
		AvatarURL:    avatarURL,
		IdentityData: payload,
	}, nil
}
