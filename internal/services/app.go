package services

import (
	"context"
	"errors"
	"log"
	"net/url"

	"github.com/go-connectly/connectly/internal/models"
	"github.com/google/uuid"
)

// ConfigureAppInput carries the OAuth application registration supplied by
// an administrator for one (tenant, provider) key.
type ConfigureAppInput struct {
	TenantID     string
	Provider     string
	ClientID     string
	ClientSecret string
	RedirectURI  string
	Scopes       []string
	ActorIP      string
}

// Validate checks the registration for completeness before it is stored.
func (in *ConfigureAppInput) Validate() error {
	if in.TenantID == "" {
		return errors.New("tenant_id is required")
	}
	if in.Provider == "" {
		return errors.New("provider is required")
	}
	if in.ClientID == "" {
		return errors.New("client_id is required")
	}
	if in.ClientSecret == "" {
		return errors.New("client_secret is required")
	}
	u, err := url.Parse(in.RedirectURI)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("redirect_uri must be an absolute URL")
	}
	return nil
}

// ConfigureApp registers (or replaces) the OAuth application for a key.
// Existing connections established under the prior registration stay active;
// they were minted with credentials that remain valid at the provider.
func (s *ConnectionService) ConfigureApp(
	ctx context.Context,
	in ConfigureAppInput,
) (*models.AppConfig, error) {
	if _, ok := s.providers[in.Provider]; !ok {
		return nil, ErrUnknownProvider
	}
	if err := in.Validate(); err != nil {
		return nil, err
	}

	cfg := &models.AppConfig{
		ID:           uuid.New().String(),
		TenantID:     in.TenantID,
		Provider:     in.Provider,
		ClientID:     in.ClientID,
		ClientSecret: in.ClientSecret,
		RedirectURI:  in.RedirectURI,
		Scopes:       in.Scopes,
		IsActive:     true,
	}

	if err := s.store.ConfigureApp(cfg); err != nil {
		s.metrics.RecordDatabaseQueryError("configure_app")
		return nil, err
	}

	s.audit.Record(AuditLogEntry{
		EventType: models.EventAppConfigured,
		Severity:  models.SeverityInfo,
		TenantID:  in.TenantID,
		Provider:  in.Provider,
		ActorIP:   in.ActorIP,
		Action:    "configure_app",
		Details: models.AuditDetails{
			"client_id":    in.ClientID,
			"redirect_uri": in.RedirectURI,
			"scopes":       in.Scopes,
		},
		Success: true,
	})
	log.Printf("[OAuth] App configured: tenant=%s provider=%s client_id=%s",
		in.TenantID, in.Provider, in.ClientID)

	return cfg, nil
}
