package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/go-connectly/connectly/internal/models"

	"golang.org/x/oauth2"
)

const (
	googleAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	googleTokenURL    = "https://oauth2.googleapis.com/token" //nolint:gosec // endpoint URL, not a credential
	googleUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
	googleRevokeURL   = "https://oauth2.googleapis.com/revoke"
)

// GoogleProvider implements the adapter contract for Google OAuth 2.0 /
// OpenID Connect.
type GoogleProvider struct {
	base
}

// NewGoogleProvider creates a new Google adapter
func NewGoogleProvider(httpClient *http.Client) *GoogleProvider {
	return &GoogleProvider{
		base: base{
			name: "google",
			endpoint: oauth2.Endpoint{
				AuthURL:  googleAuthURL,
				TokenURL: googleTokenURL,
			},
			httpClient: httpClient,
		},
	}
}

func (p *GoogleProvider) Name() string { return p.name }

// AuthCodeURL builds the Google authorization URL. access_type=offline asks
// for a refresh token; without it Google only issues an access token.
func (p *GoogleProvider) AuthCodeURL(app *models.AppConfig, state string, scopes []string) string {
	cfg := p.oauthConfig(app, scopes)
	return cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *GoogleProvider) ExchangeCode(
	ctx context.Context,
	app *models.AppConfig,
	code string,
) (*TokenSet, error) {
	return p.exchange(ctx, app, code)
}

// Refresh exchanges a refresh token for a new access token
func (p *GoogleProvider) Refresh(
	ctx context.Context,
	app *models.AppConfig,
	refreshToken string,
) (*TokenSet, error) {
	return p.refresh(ctx, app, refreshToken)
}

type googleUserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FetchProfile retrieves the OpenID Connect userinfo document
func (p *GoogleProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, googleUserInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("google userinfo error: %s - %s", resp.Status, string(body))
	}

	var user googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &Profile{
		ID:    user.Sub,
		Name:  user.Name,
		Email: user.Email,
	}, nil
}

// SupportsRevoke reports revoke endpoint availability
func (p *GoogleProvider) SupportsRevoke() bool { return true }

// Revoke invalidates a token at Google's revocation endpoint
func (p *GoogleProvider) Revoke(
	ctx context.Context,
	app *models.AppConfig,
	accessToken string,
) error {
	form := url.Values{"token": {accessToken}}
	resp, err := p.postForm(ctx, googleRevokeURL, form)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("google revoke error: %s - %s", resp.Status, string(body))
	}
	return nil
}
