package provider

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-connectly/connectly/internal/models"

	"golang.org/x/oauth2"
)

var (
	// ErrRevokeUnsupported is returned by Revoke for providers without a
	// revocation endpoint.
	ErrRevokeUnsupported = errors.New("provider does not support token revocation")
)

// Profile contains the minimal identity fetched after a successful code
// exchange: id, display name, and email when the granted scopes permit it.
type Profile struct {
	ID    string
	Name  string
	Email string
}

// TokenSet is the normalized result of a code exchange or refresh.
type TokenSet struct {
	AccessToken   string
	RefreshToken  string    // empty when the provider issued none
	ExpiresAt     time.Time // zero when the provider omitted expires_in
	GrantedScopes []string  // nil when the provider omitted the scope field
}

// Provider is the per-provider adapter contract. Each implementation maps
// one identity provider's quirks (endpoints, scope formats, missing
// expires_in, revoke support) onto this interface so the connection state
// machine never needs provider-specific branches.
//
// App credentials are passed per call rather than fixed at construction
// because each tenant registers its own OAuth application.
type Provider interface {
	// Name returns the provider key ("google", "github", ...)
	Name() string

	// AuthCodeURL builds the provider authorization URL for the given app
	// config, state, and scope list. Pure; no network.
	AuthCodeURL(app *models.AppConfig, state string, scopes []string) string

	// ExchangeCode exchanges an authorization code for tokens
	ExchangeCode(ctx context.Context, app *models.AppConfig, code string) (*TokenSet, error)

	// Refresh exchanges a refresh token for a new token set
	Refresh(ctx context.Context, app *models.AppConfig, refreshToken string) (*TokenSet, error)

	// FetchProfile retrieves the minimal profile for an access token
	FetchProfile(ctx context.Context, accessToken string) (*Profile, error)

	// SupportsRevoke reports whether the provider has a revocation endpoint
	SupportsRevoke() bool

	// Revoke best-effort invalidates a token at the provider
	Revoke(ctx context.Context, app *models.AppConfig, accessToken string) error
}

// RetryPoster posts form-encoded requests with retry semantics. Satisfied
// by *client.FormPoster wrapping an httpretry client.
type RetryPoster interface {
	PostForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error)
}

// base carries the pieces shared by all adapters: the endpoint pair and the
// HTTP client every provider call goes through (bounded timeout, pooled
// transport).
type base struct {
	name        string
	endpoint    oauth2.Endpoint
	httpClient  *http.Client
	retryPoster RetryPoster
}

// SetRetryPoster routes revocation posts through a retrying client. Token
// exchanges are excluded: an authorization code is single-use and must not
// be replayed by a retry layer.
func (b *base) SetRetryPoster(p RetryPoster) {
	b.retryPoster = p
}

// postForm sends a form-encoded POST, retrying when a retry poster is
// configured.
func (b *base) postForm(ctx context.Context, endpoint string, form url.Values) (*http.Response, error) {
	if b.retryPoster != nil {
		return b.retryPoster.PostForm(ctx, endpoint, form)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return b.httpClient.Do(req)
}

// oauthConfig assembles the oauth2 config for one tenant's app registration.
func (b *base) oauthConfig(app *models.AppConfig, scopes []string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     app.ClientID,
		ClientSecret: app.ClientSecret,
		RedirectURL:  app.RedirectURI,
		Scopes:       scopes,
		Endpoint:     b.endpoint,
	}
}

// clientContext routes the oauth2 library's internal HTTP calls through our
// bounded client.
func (b *base) clientContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

func (b *base) exchange(ctx context.Context, app *models.AppConfig, code string) (*TokenSet, error) {
	cfg := b.oauthConfig(app, nil)
	token, err := cfg.Exchange(b.clientContext(ctx), code)
	if err != nil {
		return nil, err
	}
	return tokenSetFromOAuth2(token), nil
}

func (b *base) refresh(ctx context.Context, app *models.AppConfig, refreshToken string) (*TokenSet, error) {
	cfg := b.oauthConfig(app, nil)
	token, err := cfg.TokenSource(
		b.clientContext(ctx),
		&oauth2.Token{RefreshToken: refreshToken},
	).Token()
	if err != nil {
		return nil, err
	}

	ts := tokenSetFromOAuth2(token)
	// The oauth2 library copies the old refresh token into the new token
	// when the provider omits a rotated one, which is exactly the retention
	// behavior we want.
	return ts, nil
}

func tokenSetFromOAuth2(token *oauth2.Token) *TokenSet {
	ts := &TokenSet{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		ExpiresAt:    token.Expiry,
	}
	if scope, ok := token.Extra("scope").(string); ok && scope != "" {
		ts.GrantedScopes = ParseScopeList(scope)
	}
	return ts
}

// ParseScopeList splits a provider scope string on spaces or commas.
// RFC 6749 mandates space-delimited scopes but GitHub answers with commas.
func ParseScopeList(s string) []string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ' ' || r == ','
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
