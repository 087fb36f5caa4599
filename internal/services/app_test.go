package services

import (
	"context"
	"testing"
	"time"

	"github.com/go-connectly/connectly/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigureAppValidation(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{name: "acme"})

	base := ConfigureAppInput{
		TenantID:     testTenant,
		Provider:     "acme",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/callback",
	}

	cases := []struct {
		name   string
		mutate func(in *ConfigureAppInput)
	}{
		{"missing tenant", func(in *ConfigureAppInput) { in.TenantID = "" }},
		{"missing client id", func(in *ConfigureAppInput) { in.ClientID = "" }},
		{"missing client secret", func(in *ConfigureAppInput) { in.ClientSecret = "" }},
		{"relative redirect uri", func(in *ConfigureAppInput) { in.RedirectURI = "/callback" }},
		{"empty redirect uri", func(in *ConfigureAppInput) { in.RedirectURI = "" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := base
			tc.mutate(&in)
			_, err := svc.ConfigureApp(context.Background(), in)
			assert.Error(t, err)
		})
	}
}

func TestConfigureAppUnknownProvider(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{name: "acme"})

	_, err := svc.ConfigureApp(context.Background(), ConfigureAppInput{
		TenantID:     testTenant,
		Provider:     "nope",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/callback",
	})
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestConfigureAppSealsSecret(t *testing.T) {
	svc, s := newTestService(t, &fakeProvider{name: "acme"})

	_, err := svc.ConfigureApp(context.Background(), ConfigureAppInput{
		TenantID:     testTenant,
		Provider:     "acme",
		ClientID:     "client-1",
		ClientSecret: "secret-1",
		RedirectURI:  "https://app.example.com/callback",
	})
	require.NoError(t, err)

	// Opened on the way out of the store
	cfg, err := s.GetActiveAppConfig(testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "secret-1", cfg.ClientSecret)

	// Sealed in the row itself
	var raw models.AppConfig
	require.NoError(t, s.DB().
		Where("tenant_id = ? AND provider = ? AND is_active = ?", testTenant, "acme", true).
		First(&raw).Error)
	assert.NotEqual(t, "secret-1", raw.ClientSecret)
	assert.NotContains(t, raw.ClientSecret, "secret-1")
}

func TestConfigureAppReplaceKeepsConnection(t *testing.T) {
	svc, s := newTestService(t, &fakeProvider{name: "acme"})
	configureTestApp(t, svc, "acme", nil)

	err := s.UpsertConnection(&models.Connection{
		TenantID:    testTenant,
		Provider:    "acme",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	// Rotating the app registration must not tear down live connections
	_, err = svc.ConfigureApp(context.Background(), ConfigureAppInput{
		TenantID:     testTenant,
		Provider:     "acme",
		ClientID:     "client-2",
		ClientSecret: "secret-2",
		RedirectURI:  "https://app.example.com/callback",
	})
	require.NoError(t, err)

	cfg, err := s.GetActiveAppConfig(testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "client-2", cfg.ClientID)

	conn, err := svc.Connection(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-1", conn.AccessToken)
}
