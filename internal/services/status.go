package services

import (
	"context"
	"errors"
	"time"

	"github.com/go-connectly/connectly/internal/models"
	"github.com/go-connectly/connectly/internal/store"
)

// Status is a read-only projection of the connection state for one
// (tenant, provider) key. Building it never refreshes tokens, never calls
// the provider, and never mutates rows.
type Status struct {
	Provider   string `json:"provider"`
	Configured bool   `json:"configured"`
	Connected  bool   `json:"connected"`

	// ExpiresInSeconds is the remaining access token lifetime, 0 when the
	// token has expired or no connection exists. Expired-but-refreshable is
	// still Connected; refresh happens on next use.
	ExpiresInSeconds int64 `json:"expires_in_seconds"`

	GrantedScopes  []string `json:"granted_scopes,omitempty"`
	RequiredScopes []string `json:"required_scopes,omitempty"`
	MissingScopes  []string `json:"missing_scopes,omitempty"`

	// ScopeDetails annotates the granted scopes with catalog descriptions.
	ScopeDetails []models.ScopeInfo `json:"scope_details,omitempty"`

	ProfileName string     `json:"profile_name,omitempty"`
	LastSyncAt  *time.Time `json:"last_sync_at,omitempty"`
}

// Status projects the current state for the key without side effects.
func (s *ConnectionService) Status(
	ctx context.Context,
	tenantID, providerName string,
) (*Status, error) {
	if _, ok := s.providers[providerName]; !ok {
		return nil, ErrUnknownProvider
	}

	st := &Status{
		Provider:       providerName,
		RequiredScopes: models.RequiredScopes(providerName),
	}

	if _, err := s.store.GetActiveAppConfig(tenantID, providerName); err == nil {
		st.Configured = true
	} else if !errors.Is(err, store.ErrRecordNotFound) {
		return nil, err
	}

	conn, err := s.store.GetActiveConnection(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return st, nil
		}
		return nil, err
	}

	st.Connected = true
	st.ExpiresInSeconds = conn.SecondsToExpiry(s.now())
	st.GrantedScopes = conn.GrantedScopes
	st.MissingScopes = missingScopes(st.RequiredScopes, conn.GrantedScopes)
	st.ScopeDetails = models.DescribeScopes(providerName, conn.GrantedScopes)
	st.ProfileName = conn.ExternalProfileName
	if !conn.LastSyncAt.IsZero() {
		t := conn.LastSyncAt
		st.LastSyncAt = &t
	}

	return st, nil
}

// StatusAll projects the status of every registered provider for a tenant.
func (s *ConnectionService) StatusAll(
	ctx context.Context,
	tenantID string,
) ([]*Status, error) {
	statuses := make([]*Status, 0, len(s.providers))
	for name := range s.providers {
		st, err := s.Status(ctx, tenantID, name)
		if err != nil {
			return nil, err
		}
		statuses = append(statuses, st)
	}
	return statuses, nil
}

func missingScopes(required []string, granted models.StringArray) []string {
	var missing []string
	for _, sc := range required {
		if !granted.Contains(sc) {
			missing = append(missing, sc)
		}
	}
	return missing
}
