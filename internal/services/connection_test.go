package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-connectly/connectly/internal/cache"
	"github.com/go-connectly/connectly/internal/metrics"
	"github.com/go-connectly/connectly/internal/models"
	"github.com/go-connectly/connectly/internal/provider"
	"github.com/go-connectly/connectly/internal/statetoken"
	"github.com/go-connectly/connectly/internal/store"
	"github.com/go-connectly/connectly/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testStateSecret = "test-state-secret"
	testTenant      = "tenant-1"
)

// fakeProvider is a scriptable provider adapter. Call counters let tests
// assert which network steps actually ran.
type fakeProvider struct {
	name           string
	exchangeFn     func(code string) (*provider.TokenSet, error)
	refreshFn      func(refreshToken string) (*provider.TokenSet, error)
	profileFn      func(accessToken string) (*provider.Profile, error)
	revokeErr      error
	supportsRevoke bool

	exchangeCalls atomic.Int32
	refreshCalls  atomic.Int32
	revokeCalls   atomic.Int32
}

func (p *fakeProvider) Name() string { return p.name }

func (p *fakeProvider) AuthCodeURL(app *models.AppConfig, state string, scopes []string) string {
	return fmt.Sprintf("https://auth.example.com/authorize?client_id=%s&state=%s", app.ClientID, state)
}

func (p *fakeProvider) ExchangeCode(
	ctx context.Context,
	app *models.AppConfig,
	code string,
) (*provider.TokenSet, error) {
	p.exchangeCalls.Add(1)
	if p.exchangeFn != nil {
		return p.exchangeFn(code)
	}
	return &provider.TokenSet{
		AccessToken:   "access-1",
		RefreshToken:  "refresh-1",
		ExpiresAt:     time.Now().Add(time.Hour),
		GrantedScopes: []string{"openid", "email"},
	}, nil
}

func (p *fakeProvider) Refresh(
	ctx context.Context,
	app *models.AppConfig,
	refreshToken string,
) (*provider.TokenSet, error) {
	p.refreshCalls.Add(1)
	if p.refreshFn != nil {
		return p.refreshFn(refreshToken)
	}
	return &provider.TokenSet{
		AccessToken:  "access-refreshed",
		RefreshToken: "refresh-rotated",
		ExpiresAt:    time.Now().Add(time.Hour),
	}, nil
}

func (p *fakeProvider) FetchProfile(ctx context.Context, accessToken string) (*provider.Profile, error) {
	if p.profileFn != nil {
		return p.profileFn(accessToken)
	}
	return &provider.Profile{ID: "ext-1", Name: "Alice Example", Email: "alice@example.com"}, nil
}

func (p *fakeProvider) SupportsRevoke() bool { return p.supportsRevoke }

func (p *fakeProvider) Revoke(ctx context.Context, app *models.AppConfig, accessToken string) error {
	p.revokeCalls.Add(1)
	return p.revokeErr
}

func setupTestStore(t *testing.T) *store.Store {
	t.Helper()
	sealer, err := util.NewSealer("test-seal-secret")
	require.NoError(t, err)
	s, err := store.New("sqlite", ":memory:", sealer)
	require.NoError(t, err)
	return s
}

func newTestService(t *testing.T, p provider.Provider) (*ConnectionService, *store.Store) {
	t.Helper()
	s := setupTestStore(t)
	svc := NewConnectionService(ConnectionServiceOptions{
		Store:            s,
		Providers:        map[string]provider.Provider{p.Name(): p},
		Codec:            statetoken.New(testStateSecret, 10*time.Minute),
		ConsumedStates:   cache.NewMemoryCache[bool](),
		Audit:            NewAuditService(s, false, 0),
		Metrics:          metrics.NewNoopMetrics(),
		StateTTL:         10 * time.Minute,
		TokenTTLFallback: time.Hour,
	})
	return svc, s
}

func configureTestApp(t *testing.T, svc *ConnectionService, providerName string, scopes []string) {
	t.Helper()
	_, err := svc.ConfigureApp(context.Background(), ConfigureAppInput{
		TenantID:     testTenant,
		Provider:     providerName,
		ClientID:     "client-1",
		ClientSecret: "client-secret-1",
		RedirectURI:  "https://app.example.com/callback",
		Scopes:       scopes,
	})
	require.NoError(t, err)
}

// startAuthorization runs AuthorizationURL and returns the minted state.
func startAuthorization(t *testing.T, svc *ConnectionService, providerName string) string {
	t.Helper()
	_, state, err := svc.AuthorizationURL(context.Background(), testTenant, providerName, nil)
	require.NoError(t, err)
	return state
}

func TestAuthorizationURLUnknownProvider(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{name: "acme"})

	_, _, err := svc.AuthorizationURL(context.Background(), testTenant, "nope", nil)
	assert.ErrorIs(t, err, ErrUnknownProvider)
}

func TestAuthorizationURLNotConfigured(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{name: "acme"})

	_, _, err := svc.AuthorizationURL(context.Background(), testTenant, "acme", nil)
	assert.ErrorIs(t, err, ErrProviderNotConfigured)
}

func TestAuthorizationURLDefaultsToAppScopes(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", []string{"openid", "email"})

	url, state, err := svc.AuthorizationURL(context.Background(), testTenant, "acme", nil)
	require.NoError(t, err)
	assert.Contains(t, url, "client_id=client-1")
	assert.Contains(t, url, "state="+state)

	payload, err := statetoken.New(testStateSecret, 10*time.Minute).Verify(state)
	require.NoError(t, err)
	assert.Equal(t, []string{"openid", "email"}, payload.Scopes)
}

func TestHandleCallbackProviderErrorShortCircuits(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")

	_, err := svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
		ErrorParam:   "access_denied",
	})

	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, ReasonProviderError, rejErr.Reason)
	// The provider error ends the flow before any network call
	assert.Equal(t, int32(0), p.exchangeCalls.Load())
}

func TestHandleCallbackStateMismatch(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")
	other := startAuthorization(t, svc, "acme")

	cases := []struct {
		name         string
		state        string
		sessionState string
	}{
		{"different states", state, other},
		{"missing session state", state, ""},
		{"missing callback state", "", state},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.HandleCallback(context.Background(), CallbackInput{
				TenantID:     testTenant,
				Provider:     "acme",
				Code:         "code-1",
				State:        tc.state,
				SessionState: tc.sessionState,
			})

			var rejErr *RejectedError
			require.ErrorAs(t, err, &rejErr)
			assert.Equal(t, ReasonCSRFValidationFailed, rejErr.Reason)
		})
	}

	// No exchange ever happened
	assert.Equal(t, int32(0), p.exchangeCalls.Load())
}

func TestHandleCallbackExpiredState(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)

	// Mint a state 11 minutes in the past with the same secret
	past := time.Now().Add(-11 * time.Minute)
	staleCodec := statetoken.New(testStateSecret, 10*time.Minute).
		WithTimeFunc(func() time.Time { return past })
	state, err := staleCodec.Issue([]string{"openid"})
	require.NoError(t, err)

	_, err = svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	})

	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, ReasonStateExpiredOrInvalid, rejErr.Reason)
	assert.Equal(t, int32(0), p.exchangeCalls.Load())
}

func TestHandleCallbackSuccess(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.exchangeFn = func(code string) (*provider.TokenSet, error) {
		assert.Equal(t, "code-1", code)
		return &provider.TokenSet{
			AccessToken:   "access-1",
			RefreshToken:  "refresh-1",
			ExpiresAt:     time.Now().Add(3600 * time.Second),
			GrantedScopes: []string{"openid", "email"},
		}, nil
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", []string{"openid", "email"})
	state := startAuthorization(t, svc, "acme")

	conn, err := svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	})
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().Add(3600*time.Second), conn.ExpiresAt, 5*time.Second)
	assert.Equal(t, models.StringArray{"openid", "email"}, conn.GrantedScopes)
	assert.Equal(t, "ext-1", conn.ExternalProfileID)
	assert.Equal(t, "Alice Example", conn.ExternalProfileName)

	// Tokens round-trip through the sealed store
	stored, err := s.GetActiveConnection(testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
	assert.Equal(t, "refresh-1", stored.RefreshToken)
	assert.True(t, stored.IsActive)
}

func TestHandleCallbackReplayRejected(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")

	in := CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	}
	_, err := svc.HandleCallback(context.Background(), in)
	require.NoError(t, err)

	_, err = svc.HandleCallback(context.Background(), in)
	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, ReasonStateReplayed, rejErr.Reason)
	assert.Equal(t, int32(1), p.exchangeCalls.Load())
}

func TestHandleCallbackExchangeFailureBurnsState(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.exchangeFn = func(code string) (*provider.TokenSet, error) {
		return nil, errors.New("invalid_grant")
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")

	in := CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	}
	_, err := svc.HandleCallback(context.Background(), in)
	var rejErr *RejectedError
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, ReasonTokenExchangeFailed, rejErr.Reason)

	// Nothing persisted
	_, err = s.GetActiveConnection(testTenant, "acme")
	assert.ErrorIs(t, err, store.ErrRecordNotFound)

	// The state was consumed by the failed attempt; retrying is a replay
	_, err = svc.HandleCallback(context.Background(), in)
	require.ErrorAs(t, err, &rejErr)
	assert.Equal(t, ReasonStateReplayed, rejErr.Reason)
}

func TestHandleCallbackExpiryFallback(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.exchangeFn = func(code string) (*provider.TokenSet, error) {
		// No ExpiresAt in the provider response
		return &provider.TokenSet{AccessToken: "access-1", RefreshToken: "refresh-1"}, nil
	}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")

	conn, err := svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), conn.ExpiresAt, 5*time.Second)
}

func TestHandleCallbackScopeFallback(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.exchangeFn = func(code string) (*provider.TokenSet, error) {
		// No scope field in the provider response
		return &provider.TokenSet{
			AccessToken: "access-1",
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}
	svc, _ := newTestService(t, p)
	configureTestApp(t, svc, "acme", []string{"read", "write"})
	state := startAuthorization(t, svc, "acme")

	conn, err := svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	})
	require.NoError(t, err)
	assert.Equal(t, models.StringArray{"read", "write"}, conn.GrantedScopes)
}

func TestHandleCallbackProfileFetchFailureNonFatal(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.profileFn = func(accessToken string) (*provider.Profile, error) {
		return nil, errors.New("userinfo unavailable")
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	state := startAuthorization(t, svc, "acme")

	conn, err := svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-1",
		State:        state,
		SessionState: state,
	})
	require.NoError(t, err)
	assert.Empty(t, conn.ExternalProfileID)

	stored, err := s.GetActiveConnection(testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-1", stored.AccessToken)
}

// connectExpired establishes a connection whose access token expired in the
// past, bypassing the callback flow.
func connectExpired(t *testing.T, s *store.Store, providerName, refreshToken string) {
	t.Helper()
	err := s.UpsertConnection(&models.Connection{
		TenantID:      testTenant,
		Provider:      providerName,
		AccessToken:   "access-old",
		RefreshToken:  refreshToken,
		ExpiresAt:     time.Now().Add(-time.Minute),
		GrantedScopes: models.StringArray{"openid"},
		LastSyncAt:    time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
}

func TestConnectionFreshTokenNotRefreshed(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	err := s.UpsertConnection(&models.Connection{
		TenantID:    testTenant,
		Provider:    "acme",
		AccessToken: "access-fresh",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	conn, err := svc.Connection(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-fresh", conn.AccessToken)
	assert.Equal(t, int32(0), p.refreshCalls.Load())
}

func TestConnectionNotConnected(t *testing.T) {
	svc, _ := newTestService(t, &fakeProvider{name: "acme"})

	_, err := svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionExpiredTokenRefreshed(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.refreshFn = func(refreshToken string) (*provider.TokenSet, error) {
		assert.Equal(t, "refresh-old", refreshToken)
		// Provider omits a rotated refresh token
		return &provider.TokenSet{
			AccessToken: "access-new",
			ExpiresAt:   time.Now().Add(time.Hour),
		}, nil
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	connectExpired(t, s, "acme", "refresh-old")

	conn, err := svc.Connection(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-new", conn.AccessToken)
	// Old refresh token retained when the response omits one
	assert.Equal(t, "refresh-old", conn.RefreshToken)
	assert.True(t, conn.ExpiresAt.After(time.Now()))
	assert.Equal(t, int32(1), p.refreshCalls.Load())
}

func TestConnectionConcurrentReadersSingleRefresh(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.refreshFn = func(refreshToken string) (*provider.TokenSet, error) {
		time.Sleep(50 * time.Millisecond)
		return &provider.TokenSet{
			AccessToken:  "access-new",
			RefreshToken: "refresh-new",
			ExpiresAt:    time.Now().Add(time.Hour),
		}, nil
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	connectExpired(t, s, "acme", "refresh-old")

	var wg sync.WaitGroup
	results := make([]*models.Connection, 2)
	errs := make([]error, 2)
	for i := range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = svc.Connection(context.Background(), testTenant, "acme")
		}()
	}
	wg.Wait()

	for i := range 2 {
		require.NoError(t, errs[i])
		assert.Equal(t, "access-new", results[i].AccessToken)
	}
	// Exactly one refresh exchange across both readers
	assert.Equal(t, int32(1), p.refreshCalls.Load())
}

func TestConnectionNoRefreshTokenDeactivates(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	connectExpired(t, s, "acme", "")

	_, err := svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrRefreshUnavailable)
	assert.Equal(t, int32(0), p.refreshCalls.Load())

	// The dead connection is gone; the key now reads as disconnected
	_, err = svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestConnectionRefreshFailureDeactivatesAndReauthWorks(t *testing.T) {
	p := &fakeProvider{name: "acme"}
	p.refreshFn = func(refreshToken string) (*provider.TokenSet, error) {
		return nil, errors.New("invalid_grant: token revoked")
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	connectExpired(t, s, "acme", "refresh-old")

	_, err := svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrRefreshFailed)

	_, err = svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)

	// A fresh authorization flow succeeds after the failure
	p.refreshFn = nil
	state := startAuthorization(t, svc, "acme")
	_, err = svc.HandleCallback(context.Background(), CallbackInput{
		TenantID:     testTenant,
		Provider:     "acme",
		Code:         "code-2",
		State:        state,
		SessionState: state,
	})
	require.NoError(t, err)

	conn, err := svc.Connection(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.Equal(t, "access-1", conn.AccessToken)

	// The old row stayed in the table, inactive
	var count int64
	require.NoError(t, s.DB().Model(&models.Connection{}).
		Where("tenant_id = ? AND provider = ?", testTenant, "acme").
		Count(&count).Error)
	assert.Equal(t, int64(2), count)
}

func TestDisconnectRevokesAndRemoves(t *testing.T) {
	p := &fakeProvider{name: "acme", supportsRevoke: true}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	err := s.UpsertConnection(&models.Connection{
		TenantID:    testTenant,
		Provider:    "acme",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	removed, err := svc.Disconnect(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(1), p.revokeCalls.Load())

	_, err = svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectNotConnected(t *testing.T) {
	p := &fakeProvider{name: "acme", supportsRevoke: true}
	svc, _ := newTestService(t, p)

	removed, err := svc.Disconnect(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.False(t, removed)
	assert.Equal(t, int32(0), p.revokeCalls.Load())
}

func TestDisconnectRevokeFailureStillRemoves(t *testing.T) {
	p := &fakeProvider{
		name:           "acme",
		supportsRevoke: true,
		revokeErr:      errors.New("revoke endpoint timeout"),
	}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	err := s.UpsertConnection(&models.Connection{
		TenantID:    testTenant,
		Provider:    "acme",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	removed, err := svc.Disconnect(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = svc.Connection(context.Background(), testTenant, "acme")
	assert.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectWithoutRevokeSupport(t *testing.T) {
	p := &fakeProvider{name: "acme", supportsRevoke: false}
	svc, s := newTestService(t, p)
	configureTestApp(t, svc, "acme", nil)
	err := s.UpsertConnection(&models.Connection{
		TenantID:    testTenant,
		Provider:    "acme",
		AccessToken: "access-1",
		ExpiresAt:   time.Now().Add(time.Hour),
	})
	require.NoError(t, err)

	removed, err := svc.Disconnect(context.Background(), testTenant, "acme")
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, int32(0), p.revokeCalls.Load())
}
