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

// CustomEndpoints configures a GenericProvider for any identity provider
// that speaks plain RFC 6749 authorization-code flow.
type CustomEndpoints struct {
	Name        string
	AuthURL     string
	TokenURL    string
	UserInfoURL string
	RevokeURL   string // empty when the provider has no revocation endpoint

	// Profile field mapping for the userinfo JSON document
	ProfileIDField   string // default "id"
	ProfileNameField string // default "name"
}

// GenericProvider adapts a provider described entirely by configuration.
// Besides custom deployments it is the adapter tests run against.
type GenericProvider struct {
	base
	userInfoURL      string
	revokeURL        string
	profileIDField   string
	profileNameField string
}

// NewGenericProvider creates an adapter from endpoint configuration
func NewGenericProvider(endpoints CustomEndpoints, httpClient *http.Client) *GenericProvider {
	idField := endpoints.ProfileIDField
	if idField == "" {
		idField = "id"
	}
	nameField := endpoints.ProfileNameField
	if nameField == "" {
		nameField = "name"
	}

	return &GenericProvider{
		base: base{
			name: endpoints.Name,
			endpoint: oauth2.Endpoint{
				AuthURL:  endpoints.AuthURL,
				TokenURL: endpoints.TokenURL,
			},
			httpClient: httpClient,
		},
		userInfoURL:      endpoints.UserInfoURL,
		revokeURL:        endpoints.RevokeURL,
		profileIDField:   idField,
		profileNameField: nameField,
	}
}

func (p *GenericProvider) Name() string { return p.name }

// AuthCodeURL builds the provider authorization URL
func (p *GenericProvider) AuthCodeURL(app *models.AppConfig, state string, scopes []string) string {
	cfg := p.oauthConfig(app, scopes)
	return cfg.AuthCodeURL(state)
}

// ExchangeCode exchanges an authorization code for tokens
func (p *GenericProvider) ExchangeCode(
	ctx context.Context,
	app *models.AppConfig,
	code string,
) (*TokenSet, error) {
	return p.exchange(ctx, app, code)
}

// Refresh exchanges a refresh token for a new access token
func (p *GenericProvider) Refresh(
	ctx context.Context,
	app *models.AppConfig,
	refreshToken string,
) (*TokenSet, error) {
	return p.refresh(ctx, app, refreshToken)
}

// FetchProfile retrieves the userinfo document and maps the configured
// fields. Returns an error when the provider has no userinfo endpoint.
func (p *GenericProvider) FetchProfile(ctx context.Context, accessToken string) (*Profile, error) {
	if p.userInfoURL == "" {
		return nil, fmt.Errorf("provider %s has no userinfo endpoint", p.name)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.userInfoURL, nil)
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
		return nil, fmt.Errorf("%s userinfo error: %s - %s", p.name, resp.Status, string(body))
	}

	var doc map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}

	return &Profile{
		ID:    stringField(doc, p.profileIDField),
		Name:  stringField(doc, p.profileNameField),
		Email: stringField(doc, "email"),
	}, nil
}

// SupportsRevoke reports revoke endpoint availability
func (p *GenericProvider) SupportsRevoke() bool { return p.revokeURL != "" }

// Revoke posts an RFC 7009 revocation request
func (p *GenericProvider) Revoke(
	ctx context.Context,
	app *models.AppConfig,
	accessToken string,
) error {
	if p.revokeURL == "" {
		return ErrRevokeUnsupported
	}

	form := url.Values{
		"token":         {accessToken},
		"client_id":     {app.ClientID},
		"client_secret": {app.ClientSecret},
	}
	resp, err := p.postForm(ctx, p.revokeURL, form)
	if err != nil {
		return fmt.Errorf("failed to call revoke endpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s revoke error: %s - %s", p.name, resp.Status, string(body))
	}
	return nil
}

func stringField(doc map[string]any, field string) string {
	switch v := doc[field].(type) {
	case string:
		return v
	case float64:
		// Numeric IDs are common; render without a decimal point
		return fmt.Sprintf("%.0f", v)
	default:
		return ""
	}
}
