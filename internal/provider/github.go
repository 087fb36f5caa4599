package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/go-connectly/connectly/internal/models"

	"golang.org/x/oauth2/github"
)

const (
	githubUserURL   = "https://api.github.com/user"
	githubEmailsURL = "https://api.github.com/user/emails"
	githubGrantURL  = "https://api.github.com/applications/%s/grant"
)

// GitHubProvider implements the adapter contract for GitHub OAuth.
// GitHub tokens carry no expires_in unless the app opts into expiring
// tokens, and scope strings come back comma-delimited.
type GitHubProvider struct {
	base
}

// NewGitHubProvider creates a new GitHub adapter
func NewGitHubProvider(httpClient *http.Client) *GitHubProvider {
	return &GitHubProvider{
		base: base{
			name:       "github",
			endpoint:   github.Endpoint,
			httpClient: httpClient,
		},
	}
}

func (p *GitHubProvider) Name() string { return p.name }

// AuthCodeURL builds the GitHub authorization URL
func (p *GitHubProvider) AuthCodeURL(app *models.AppConfig, state string, scopes []string) string {
	cfg := p.oauthConfig(app, scopes)
	return cfg.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *GitHubProvider) ExchangeCode(
	ctx context.Context,
	app *models.AppConfig,
	code string,
) (*TokenSet, error) {
	return p.exchange(ctx, app, code)
}

// Refresh exchanges a refresh token for a new access token
func (p *GitHubProvider) Refresh(
	ctx context.Context,
	app *models.AppConfig,
	refreshToken string,
) (*TokenSet, error) {
	return p.refresh(ctx, app, refreshToken)
}

// GitHub user info structures
type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

// FetchProfile retrieves user info from the GitHub API. When the profile
// email is not public it falls back to the emails endpoint; a missing email
// is not an error here, the connection stores what it got.
func (p *GitHubProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubUserURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("github API error: %s - %s", resp.Status, string(body))
	}

	var user githubUser
	if err := json.NewDecoder(resp.Body).Decode(&user); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	if user.Email == "" {
		if email, err := p.fetchPrimaryEmail(ctx, accessToken); err == nil {
			user.Email = email
		}
	}

	name := user.Name
	if name == "" {
		name = user.Login
	}

	return &Profile{
		ID:    fmt.Sprintf("%d", user.ID),
		Name:  name,
		Email: user.Email,
	}, nil
}

// fetchPrimaryEmail fetches the primary verified email from the emails endpoint
func (p *GitHubProvider) fetchPrimaryEmail(ctx context.Context, accessToken string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, githubEmailsURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to get emails: %s", resp.Status)
	}

	var emails []githubEmail
	if err := json.NewDecoder(resp.Body).Decode(&emails); err != nil {
		return "", err
	}

	for _, email := range emails {
		if email.Primary && email.Verified {
			return email.Email, nil
		}
	}
	for _, email := range emails {
		if email.Verified {
			return email.Email, nil
		}
	}

	return "", fmt.Errorf("no verified email found")
}

// SupportsRevoke reports revoke endpoint availability
func (p *GitHubProvider) SupportsRevoke() bool { return true }

// Revoke deletes the app authorization grant, invalidating every token the
// app holds for the user. Requires basic auth with the app credentials.
func (p *GitHubProvider) Revoke(
	ctx context.Context,
	app *models.AppConfig,
	accessToken string,
) error {
	payload, err := json.Marshal(map[string]string{"access_token": accessToken})
	if err != nil {
		return fmt.Errorf("failed to encode revoke payload: %w", err)
	}

	url := fmt.Sprintf(githubGrantURL, app.ClientID)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.SetBasicAuth(app.ClientID, app.ClientSecret)
	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusNoContent {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("github revoke error: %s - %s", resp.Status, string(body))
	}
	return nil
}
