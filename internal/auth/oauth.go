package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/sakif/starblog/internal/model"
)

// DefaultUserInfoURL is Google's OpenID Connect userinfo endpoint.
const DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"

// GoogleUser is the portion of the userinfo response we care about.
type GoogleUser struct {
	Sub           string `json:"sub"` // stable Google account id
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

// GoogleProvider wraps golang.org/x/oauth2 for the Google Authorization Code
// flow.
//
// OAUTH 2.0 AUTHORIZATION CODE FLOW:
//  1. Redirect the user to Google with our ClientID and the requested scopes.
//  2. The user approves on Google.
//  3. Google redirects back to CallbackURL with a short-lived "code".
//  4. We exchange the code for an access token (server-to-server).
//  5. We call the userinfo endpoint with that token.
//
// The access token never reaches the browser; only our own JWT does.
type GoogleProvider struct {
	config      *oauth2.Config
	userInfoURL string
}

// GoogleOption overrides a provider endpoint. Tests point both at httptest.
type GoogleOption func(*GoogleProvider)

// WithEndpoint replaces Google's authorization and token endpoints.
func WithEndpoint(ep oauth2.Endpoint) GoogleOption {
	return func(p *GoogleProvider) { p.config.Endpoint = ep }
}

// WithUserInfoURL replaces the userinfo endpoint.
func WithUserInfoURL(u string) GoogleOption {
	return func(p *GoogleProvider) { p.userInfoURL = u }
}

// NewGoogleProvider creates a GoogleProvider.
//
// callbackURL must match an "Authorized redirect URI" of the OAuth client
// exactly. Example: "http://localhost:4000/api/auth/google/callback"
//
// Scopes: "profile" and "email".
func NewGoogleProvider(clientID, clientSecret, callbackURL string, opts ...GoogleOption) *GoogleProvider {
	p := &GoogleProvider{
		config: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  callbackURL,
			Scopes:       []string{"profile", "email"},
			Endpoint:     google.Endpoint,
		},
		userInfoURL: DefaultUserInfoURL,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// AuthURL returns the URL to redirect the user to for authorization.
//
// state is a random value we also store in a cookie; the callback rejects a
// request whose state does not match it (CSRF protection).
func (p *GoogleProvider) AuthURL(state string) string {
	return p.config.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades the authorization code for the user's Google profile.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (*model.ExternalProfile, error) {
	oauthToken, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("auth: exchanging OAuth code: %w", err)
	}

	// The client adds "Authorization: Bearer <access token>" to each request.
	client := p.config.Client(ctx, oauthToken)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("auth: building userinfo request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: calling Google userinfo: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: Google userinfo returned status %d", resp.StatusCode)
	}

	var gu GoogleUser
	if err := json.NewDecoder(resp.Body).Decode(&gu); err != nil {
		return nil, fmt.Errorf("auth: decoding Google userinfo: %w", err)
	}

	if gu.Sub == "" {
		return nil, fmt.Errorf("auth: Google returned a profile without an id")
	}

	return gu.Profile(), nil
}

// Profile converts the userinfo payload into a provider-neutral profile.
// The display name falls back to given + family name.
func (gu *GoogleUser) Profile() *model.ExternalProfile {
	name := strings.TrimSpace(gu.Name)
	if name == "" {
		name = strings.TrimSpace(gu.GivenName + " " + gu.FamilyName)
	}

	var emails []string
	if gu.Email != "" {
		emails = []string{gu.Email}
	}

	return &model.ExternalProfile{
		ProviderID:    gu.Sub,
		Emails:        emails,
		EmailVerified: gu.EmailVerified,
		DisplayName:   name,
		AvatarURL:     gu.Picture,
	}
}
