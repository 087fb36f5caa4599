package store

import (
	"testing"
	"time"

	"github.com/go-connectly/connectly/internal/models"
	"github.com/go-connectly/connectly/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	sealer, err := util.NewSealer("test-seal-secret")
	require.NoError(t, err)
	// SQLite :memory: creates a fresh database for each connection
	s, err := New("sqlite", ":memory:", sealer)
	require.NoError(t, err)
	return s
}

func testAppConfig(tenant, provider string) *models.AppConfig {
	return &models.AppConfig{
		TenantID:     tenant,
		Provider:     provider,
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		RedirectURI:  "https://app.example.com/callback/" + provider,
		Scopes:       models.StringArray{"openid", "email"},
	}
}

func testConnection(tenant, provider string) *models.Connection {
	return &models.Connection{
		TenantID:      tenant,
		Provider:      provider,
		AccessToken:   "AT1",
		RefreshToken:  "RT1",
		ExpiresAt:     time.Now().Add(time.Hour),
		GrantedScopes: models.StringArray{"openid", "email"},
		LastSyncAt:    time.Now(),
	}
}

func TestConfigureApp_SingleActive(t *testing.T) {
	s := newTestStore(t)

	first := testAppConfig("t1", "google")
	require.NoError(t, s.ConfigureApp(first))

	second := testAppConfig("t1", "google")
	second.ClientID = "client-id-2"
	require.NoError(t, s.ConfigureApp(second))

	got, err := s.GetActiveAppConfig("t1", "google")
	require.NoError(t, err)
	assert.Equal(t, "client-id-2", got.ClientID)
	assert.Equal(t, "client-secret", got.ClientSecret, "secret should come back opened")

	// Prior row stays around, deactivated
	var count int64
	require.NoError(t, s.DB().Model(&models.AppConfig{}).
		Where("tenant_id = ? AND provider = ?", "t1", "google").Count(&count).Error)
	assert.EqualValues(t, 2, count)

	var activeCount int64
	require.NoError(t, s.DB().Model(&models.AppConfig{}).
		Where("tenant_id = ? AND provider = ? AND is_active = ?", "t1", "google", true).
		Count(&activeCount).Error)
	assert.EqualValues(t, 1, activeCount)
}

func TestGetActiveAppConfig_NotConfigured(t *testing.T) {
	s := newTestStore(t)

	_, err := s.GetActiveAppConfig("t1", "linkedin")
	assert.ErrorIs(t, err, ErrRecordNotFound)
}

func TestAppConfigSealedAtRest(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.ConfigureApp(testAppConfig("t1", "google")))

	var raw models.AppConfig
	require.NoError(t, s.DB().Where("tenant_id = ?", "t1").First(&raw).Error)
	assert.NotEqual(t, "client-secret", raw.ClientSecret)
}

func TestUpsertConnection_ReplacesActive(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertConnection(testConnection("t1", "google")))

	replacement := testConnection("t1", "google")
	replacement.AccessToken = "AT2"
	require.NoError(t, s.UpsertConnection(replacement))

	got, err := s.GetActiveConnection("t1", "google")
	require.NoError(t, err)
	assert.Equal(t, "AT2", got.AccessToken)
	assert.Equal(t, "RT1", got.RefreshToken)

	var activeCount int64
	require.NoError(t, s.DB().Model(&models.Connection{}).
		Where("tenant_id = ? AND provider = ? AND is_active = ?", "t1", "google", true).
		Count(&activeCount).Error)
	assert.EqualValues(t, 1, activeCount)
}

func TestConnectionTokensSealedAtRest(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.UpsertConnection(testConnection("t1", "github")))

	var raw models.Connection
	require.NoError(t, s.DB().Where("tenant_id = ?", "t1").First(&raw).Error)
	assert.NotEqual(t, "AT1", raw.AccessToken)
	assert.NotEqual(t, "RT1", raw.RefreshToken)
}

func TestReplaceConnectionTokens(t *testing.T) {
	s := newTestStore(t)

	conn := testConnection("t1", "google")
	require.NoError(t, s.UpsertConnection(conn))

	expiry := time.Now().Add(30 * time.Minute).Truncate(time.Second)
	updated, err := s.ReplaceConnectionTokens(conn.ID, conn.RowVersion, "AT2", "RT2", expiry, time.Now())
	require.NoError(t, err)
	assert.Equal(t, "AT2", updated.AccessToken)
	assert.Equal(t, "RT2", updated.RefreshToken)
	assert.EqualValues(t, 1, updated.RowVersion)
	assert.WithinDuration(t, expiry, updated.ExpiresAt, time.Second)

	// Scopes and profile survive a token swap untouched
	assert.Equal(t, models.StringArray{"openid", "email"}, updated.GrantedScopes)
}

func TestReplaceConnectionTokens_StaleVersion(t *testing.T) {
	s := newTestStore(t)

	conn := testConnection("t1", "google")
	require.NoError(t, s.UpsertConnection(conn))

	_, err := s.ReplaceConnectionTokens(conn.ID, conn.RowVersion, "AT2", "RT2",
		time.Now().Add(time.Hour), time.Now())
	require.NoError(t, err)

	// Second writer still holds version 0; it must lose
	_, err = s.ReplaceConnectionTokens(conn.ID, conn.RowVersion, "AT3", "RT3",
		time.Now().Add(time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrStaleConnection)
}

func TestReplaceConnectionTokens_AfterDeactivate(t *testing.T) {
	s := newTestStore(t)

	conn := testConnection("t1", "google")
	require.NoError(t, s.UpsertConnection(conn))

	deactivated, err := s.DeactivateConnection("t1", "google")
	require.NoError(t, err)
	assert.True(t, deactivated)

	// A refresh racing a disconnect must not resurrect the row
	_, err = s.ReplaceConnectionTokens(conn.ID, conn.RowVersion, "AT2", "RT2",
		time.Now().Add(time.Hour), time.Now())
	assert.ErrorIs(t, err, ErrStaleConnection)
}

func TestDeactivateConnection_NoRow(t *testing.T) {
	s := newTestStore(t)

	deactivated, err := s.DeactivateConnection("t1", "google")
	require.NoError(t, err)
	assert.False(t, deactivated)
}

func TestListActiveConnections(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.UpsertConnection(testConnection("t1", "google")))
	require.NoError(t, s.UpsertConnection(testConnection("t1", "github")))
	require.NoError(t, s.UpsertConnection(testConnection("t2", "google")))

	_, err := s.DeactivateConnection("t1", "github")
	require.NoError(t, err)

	conns, err := s.ListActiveConnections("t1")
	require.NoError(t, err)
	require.Len(t, conns, 1)
	assert.Equal(t, "google", conns[0].Provider)
	assert.Equal(t, "AT1", conns[0].AccessToken)

	count, err := s.CountActiveConnections()
	require.NoError(t, err)
	assert.EqualValues(t, 2, count)
}

func TestAuditLogBatchAndCleanup(t *testing.T) {
	s := newTestStore(t)

	old := &models.AuditLog{
		ID:        "old",
		EventType: models.EventTokenRefreshed,
		EventTime: time.Now().Add(-48 * time.Hour),
		Severity:  models.SeverityInfo,
		Action:    "refresh",
		Success:   true,
	}
	fresh := &models.AuditLog{
		ID:        "fresh",
		EventType: models.EventCallbackAccepted,
		EventTime: time.Now(),
		Severity:  models.SeverityInfo,
		Action:    "callback",
		Success:   true,
	}
	require.NoError(t, s.CreateAuditLogsBatch([]*models.AuditLog{old, fresh}))

	deleted, err := s.DeleteAuditLogsBefore(time.Now().Add(-24 * time.Hour))
	require.NoError(t, err)
	assert.EqualValues(t, 1, deleted)

	var remaining int64
	require.NoError(t, s.DB().Model(&models.AuditLog{}).Count(&remaining).Error)
	assert.EqualValues(t, 1, remaining)
}

func TestHealth(t *testing.T) {
	s := newTestStore(t)
	assert.NoError(t, s.Health())
}
