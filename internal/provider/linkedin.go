package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-connectly/connectly/internal/models"

	"golang.org/x/oauth2"
)

const (
	linkedinAuthURL     = "https://www.linkedin.com/oauth/v2/authorization"
	linkedinTokenURL    = "https://www.linkedin.com/oauth/v2/accessToken" //nolint:gosec // endpoint URL, not a credential
	linkedinUserInfoURL = "https://api.linkedin.com/v2/userinfo"
)

// LinkedInProvider implements the adapter contract for LinkedIn OAuth 2.0.
// LinkedIn exposes no token revocation endpoint; disconnects are local only.
type LinkedInProvider struct {
	base
}

// NewLinkedInProvider creates a new LinkedIn adapter
func NewLinkedInProvider(httpClient *http.Client) *LinkedInProvider {
	return &LinkedInProvider{
		base: base{
			name: "linkedin",
			endpoint: oauth2.Endpoint{
				AuthURL:  linkedinAuthURL,
				TokenURL: linkedinTokenURL,
			},
			httpClient: httpClient,
		},
	}
}

func (p *LinkedInProvider) Name() string { return p.name }

// AuthCodeURL builds the LinkedIn authorization URL
func (p *LinkedInProvider) AuthCodeURL(app *models.AppConfig, state string, scopes []string) string {
	cfg := p.oauthConfig(app, scopes)
	return cfg.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *LinkedInProvider) ExchangeCode(
	ctx context.Context,
	app *models.AppConfig,
	code string,
) (*TokenSet, error) {
	return p.exchange(ctx, app, code)
}

// Refresh exchanges a refresh token for a new access token
func (p *LinkedInProvider) Refresh(
	ctx context.Context,
	app *models.AppConfig,
	refreshToken string,
) (*TokenSet, error) {
	return p.refresh(ctx, app, refreshToken)
}

type linkedinUserInfo struct {
	Sub   string `json:"sub"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// FetchProfile retrieves the OpenID Connect userinfo document
func (p *LinkedInProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, linkedinUserInfoURL, nil)
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
		return nil, fmt.Errorf("linkedin userinfo error: %s - %s", resp.Status, string(body))
	}

	var user linkedinUserInfo
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
func (p *LinkedInProvider) SupportsRevoke() bool { return false }

// Revoke always fails; LinkedIn has no revocation endpoint
func (p *LinkedInProvider) Revoke(
	ctx context.Context,
	app *models.AppConfig,
	accessToken string,
) error {
	return ErrRevokeUnsupported
}
