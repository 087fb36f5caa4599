package services

import (
	"context"
	"crypto/subtle"
	"errors"
	"log"
	"time"

	"github.com/go-connectly/connectly/internal/core"
	"github.com/go-connectly/connectly/internal/models"
	"github.com/go-connectly/connectly/internal/provider"
	"github.com/go-connectly/connectly/internal/statetoken"
	"github.com/go-connectly/connectly/internal/store"

	"golang.org/x/sync/singleflight"
)

// CallbackInput carries everything the web layer received on the provider
// redirect: the query parameters plus the state value bound to the browser
// session at initiation.
type CallbackInput struct {
	TenantID     string
	Provider     string
	Code         string
	State        string // state from the callback query
	SessionState string // state bound to the browser session at initiation
	ErrorParam   string // provider error query parameter, if any
	ActorIP      string
}

// ConnectionService is the OAuth connection lifecycle manager: it builds
// authorization URLs, runs the callback state machine, refreshes tokens
// lazily, disconnects, and projects status. All row access goes through the
// store; all provider access goes through the adapter registry.
type ConnectionService struct {
	store          *store.Store
	providers      map[string]provider.Provider
	codec          *statetoken.Codec
	consumedStates core.Cache[bool]
	audit          *AuditService
	metrics        core.Recorder

	stateTTL         time.Duration
	tokenTTLFallback time.Duration

	// refreshGroup serializes refresh exchanges per (tenant, provider) key.
	// Most providers invalidate a refresh token on first use; a racing
	// second exchange would fail and destroy an otherwise valid session.
	refreshGroup singleflight.Group

	now func() time.Time
}

// ConnectionServiceOptions bundles the dependencies for NewConnectionService
type ConnectionServiceOptions struct {
	Store          *store.Store
	Providers      map[string]provider.Provider
	Codec          *statetoken.Codec
	ConsumedStates core.Cache[bool]
	Audit          *AuditService
	Metrics        core.Recorder

	StateTTL         time.Duration
	TokenTTLFallback time.Duration
}

// NewConnectionService creates the connection lifecycle manager
func NewConnectionService(opts ConnectionServiceOptions) *ConnectionService {
	ttlFallback := opts.TokenTTLFallback
	if ttlFallback <= 0 {
		ttlFallback = time.Hour
	}
	stateTTL := opts.StateTTL
	if stateTTL <= 0 {
		stateTTL = 10 * time.Minute
	}

	return &ConnectionService{
		store:            opts.Store,
		providers:        opts.Providers,
		codec:            opts.Codec,
		consumedStates:   opts.ConsumedStates,
		audit:            opts.Audit,
		metrics:          opts.Metrics,
		stateTTL:         stateTTL,
		tokenTTLFallback: ttlFallback,
		now:              time.Now,
	}
}

// WithTimeFunc overrides the service clock for tests.
func (s *ConnectionService) WithTimeFunc(now func() time.Time) *ConnectionService {
	s.now = now
	return s
}

// Providers returns the names of the registered provider adapters
func (s *ConnectionService) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	return names
}

// AuthorizationURL builds the provider authorization URL for a fresh state
// token. Scopes default to the app config's scope set, then to the catalog's
// required set. Pure beyond minting the state; binding the state to the
// browser session is the caller's job.
func (s *ConnectionService) AuthorizationURL(
	ctx context.Context,
	tenantID, providerName string,
	scopes []string,
) (string, string, error) {
	p, ok := s.providers[providerName]
	if !ok {
		return "", "", ErrUnknownProvider
	}

	app, err := s.store.GetActiveAppConfig(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			s.metrics.RecordAuthorizationURLIssued(providerName, false)
			return "", "", ErrProviderNotConfigured
		}
		s.metrics.RecordDatabaseQueryError("get_app_config")
		return "", "", err
	}

	if len(scopes) == 0 {
		scopes = app.Scopes
	}
	if len(scopes) == 0 {
		scopes = models.RequiredScopes(providerName)
	}

	state, err := s.codec.Issue(scopes)
	if err != nil {
		s.metrics.RecordAuthorizationURLIssued(providerName, false)
		return "", "", err
	}

	url := p.AuthCodeURL(app, state, scopes)

	s.metrics.RecordAuthorizationURLIssued(providerName, true)
	s.audit.Record(AuditLogEntry{
		EventType: models.EventAuthorizationStarted,
		Severity:  models.SeverityInfo,
		TenantID:  tenantID,
		Provider:  providerName,
		Action:    "authorization_url_issued",
		Details:   models.AuditDetails{"scopes": scopes},
		Success:   true,
	})
	log.Printf("[OAuth] Authorization started: tenant=%s provider=%s scopes=%v",
		tenantID, providerName, scopes)

	return url, state, nil
}

// HandleCallback runs the callback state machine:
//
//	Received -> StateVerified -> CodeExchanged -> ProfileFetched -> Connected
//
// with a Rejected(reason) exit at any step. Step order is load-bearing: the
// provider error short-circuits everything, and no network call happens
// before the full-state CSRF comparison and codec verification pass.
func (s *ConnectionService) HandleCallback(
	ctx context.Context,
	in CallbackInput,
) (*models.Connection, error) {
	// Step 1: provider-reported error ends the flow before any state work
	if in.ErrorParam != "" {
		return nil, s.reject(in, ReasonProviderError,
			errors.New("provider returned error="+in.ErrorParam))
	}

	// Step 2: the returned state must equal the session-bound state.
	// Constant-structure comparison of the full value; absence of either
	// side is a mismatch.
	if in.State == "" || in.SessionState == "" ||
		subtle.ConstantTimeCompare([]byte(in.State), []byte(in.SessionState)) != 1 {
		return nil, s.reject(in, ReasonCSRFValidationFailed, nil)
	}

	// Step 3: decode and verify the state payload
	payload, err := s.codec.Verify(in.State)
	if err != nil {
		return nil, s.reject(in, ReasonStateExpiredOrInvalid, err)
	}

	// A consumed nonce means this state already completed an exchange once;
	// replay stops here, before any network call.
	if _, err := s.consumedStates.Get(ctx, payload.Nonce); err == nil {
		s.metrics.RecordStateReplayed(in.Provider)
		s.audit.Record(AuditLogEntry{
			EventType: models.EventStateReplayed,
			Severity:  models.SeverityWarning,
			TenantID:  in.TenantID,
			Provider:  in.Provider,
			ActorIP:   in.ActorIP,
			Action:    "callback",
			Success:   false,
		})
		return nil, s.reject(in, ReasonStateReplayed, nil)
	}

	p, ok := s.providers[in.Provider]
	if !ok {
		return nil, ErrUnknownProvider
	}
	app, err := s.store.GetActiveAppConfig(in.TenantID, in.Provider)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrProviderNotConfigured
		}
		return nil, err
	}

	// The exchange is the single-use boundary: mark the nonce consumed
	// before the code leaves the process. A failed exchange burns the
	// state; the user restarts from a fresh authorization URL.
	if err := s.consumedStates.Set(ctx, payload.Nonce, true, s.stateTTL); err != nil {
		log.Printf("[OAuth] Warning: failed to record consumed state: %v", err)
	}

	// Step 4: exchange the authorization code for tokens
	start := s.now()
	tokens, err := p.ExchangeCode(ctx, app, in.Code)
	s.metrics.RecordCodeExchange(in.Provider, err == nil, s.now().Sub(start))
	if err != nil {
		// Provider error bodies go to logs only, never to the end user
		log.Printf("[OAuth] Token exchange failed: tenant=%s provider=%s err=%v",
			in.TenantID, in.Provider, err)
		return nil, s.reject(in, ReasonTokenExchangeFailed, err)
	}

	expiresAt := tokens.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.tokenTTLFallback)
		log.Printf("[OAuth] Provider omitted expires_in, using fallback %s: provider=%s",
			s.tokenTTLFallback, in.Provider)
	}

	grantedScopes := tokens.GrantedScopes
	if len(grantedScopes) == 0 {
		// Assumption, not a fact: the provider did not echo a scope field
		grantedScopes = payload.Scopes
		log.Printf("[OAuth] Provider omitted granted scopes, assuming requested set: provider=%s scopes=%v",
			in.Provider, grantedScopes)
	}

	// Step 5: minimal profile fetch; failure is a soft warning, the tokens
	// are stored regardless
	conn := &models.Connection{
		TenantID:      in.TenantID,
		Provider:      in.Provider,
		AccessToken:   tokens.AccessToken,
		RefreshToken:  tokens.RefreshToken,
		ExpiresAt:     expiresAt,
		GrantedScopes: grantedScopes,
		LastSyncAt:    s.now(),
	}

	profile, err := p.FetchProfile(ctx, tokens.AccessToken)
	s.metrics.RecordProfileFetch(in.Provider, err == nil)
	if err != nil {
		log.Printf("[OAuth] Warning: profile fetch failed: tenant=%s provider=%s err=%v",
			in.TenantID, in.Provider, err)
		s.audit.Record(AuditLogEntry{
			EventType:    models.EventProfileFetchFailed,
			Severity:     models.SeverityWarning,
			TenantID:     in.TenantID,
			Provider:     in.Provider,
			ActorIP:      in.ActorIP,
			Action:       "profile_fetch",
			Success:      false,
			ErrorMessage: err.Error(),
		})
	} else {
		conn.ExternalProfileID = profile.ID
		conn.ExternalProfileName = profile.Name
		conn.ExternalProfileEmail = profile.Email
	}

	// Step 6: persist; the store deactivates any prior active row
	if err := s.store.UpsertConnection(conn); err != nil {
		s.metrics.RecordDatabaseQueryError("upsert_connection")
		return nil, err
	}

	// Step 7: Connected. Terminal for the callback.
	s.metrics.RecordCallback(in.Provider, "connected")
	s.audit.Record(AuditLogEntry{
		EventType: models.EventConnectionEstablished,
		Severity:  models.SeverityInfo,
		TenantID:  in.TenantID,
		Provider:  in.Provider,
		ActorIP:   in.ActorIP,
		Action:    "callback",
		Details:   models.AuditDetails{"granted_scopes": grantedScopes},
		Success:   true,
	})
	log.Printf("[OAuth] Connection established: tenant=%s provider=%s profile=%s scopes=%s",
		in.TenantID, in.Provider, conn.ExternalProfileName, conn.GrantedScopes.Join(" "))

	return conn, nil
}

// reject records and returns a terminal callback rejection. Security-class
// rejections are logged at warning level with no partial state persisted.
func (s *ConnectionService) reject(in CallbackInput, reason string, cause error) error {
	s.metrics.RecordCallback(in.Provider, reason)
	s.audit.Record(AuditLogEntry{
		EventType:    models.EventCallbackRejected,
		Severity:     models.SeverityWarning,
		TenantID:     in.TenantID,
		Provider:     in.Provider,
		ActorIP:      in.ActorIP,
		Action:       "callback",
		Details:      models.AuditDetails{"reason": reason},
		Success:      false,
		ErrorMessage: errString(cause),
	})
	log.Printf("[OAuth] Warning: callback rejected: tenant=%s provider=%s reason=%s err=%v",
		in.TenantID, in.Provider, reason, cause)
	return rejected(reason, cause)
}

// Connection returns the active connection for the key, refreshing the
// access token first when it has expired. An expired token is never handed
// to the caller.
func (s *ConnectionService) Connection(
	ctx context.Context,
	tenantID, providerName string,
) (*models.Connection, error) {
	conn, err := s.store.GetActiveConnection(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}

	if !conn.Expired(s.now()) {
		return conn, nil
	}

	return s.ensureFresh(ctx, tenantID, providerName)
}

// ensureFresh serializes the refresh exchange per key. Concurrent callers
// that notice expiry simultaneously share one exchange; losers receive the
// winner's refreshed row.
func (s *ConnectionService) ensureFresh(
	ctx context.Context,
	tenantID, providerName string,
) (*models.Connection, error) {
	key := tenantID + "/" + providerName
	v, err, _ := s.refreshGroup.Do(key, func() (any, error) {
		return s.refresh(ctx, tenantID, providerName)
	})
	if err != nil {
		return nil, err
	}
	return v.(*models.Connection), nil
}

func (s *ConnectionService) refresh(
	ctx context.Context,
	tenantID, providerName string,
) (*models.Connection, error) {
	// Re-read inside the flight: a previous flight may have refreshed the
	// row between the caller's expiry check and now.
	conn, err := s.store.GetActiveConnection(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrNotConnected
		}
		return nil, err
	}
	if !conn.Expired(s.now()) {
		return conn, nil
	}

	if conn.RefreshToken == "" {
		// Never silently serve a stale access token: without a refresh
		// token the connection is unusable and must be re-authorized.
		if _, err := s.store.DeactivateConnection(tenantID, providerName); err != nil {
			s.metrics.RecordDatabaseQueryError("deactivate_connection")
		}
		s.recordRefreshFailure(tenantID, providerName, "refresh_unavailable", nil)
		return nil, ErrRefreshUnavailable
	}

	p, ok := s.providers[providerName]
	if !ok {
		return nil, ErrUnknownProvider
	}
	app, err := s.store.GetActiveAppConfig(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return nil, ErrProviderNotConfigured
		}
		return nil, err
	}

	start := s.now()
	tokens, err := p.Refresh(ctx, app, conn.RefreshToken)
	s.metrics.RecordTokenRefresh(providerName, err == nil, s.now().Sub(start))
	if err != nil {
		// Revoked at the provider or otherwise irrecoverable: deactivate
		// rather than leave stale-but-active credentials. No retry; the
		// caller re-runs the full authorization flow.
		log.Printf("[OAuth] Refresh failed: tenant=%s provider=%s err=%v",
			tenantID, providerName, err)
		if _, derr := s.store.DeactivateConnection(tenantID, providerName); derr != nil {
			s.metrics.RecordDatabaseQueryError("deactivate_connection")
		}
		s.recordRefreshFailure(tenantID, providerName, "refresh_failed", err)
		return nil, ErrRefreshFailed
	}

	refreshToken := tokens.RefreshToken
	if refreshToken == "" {
		// Provider omitted a rotated token; retain the old one
		refreshToken = conn.RefreshToken
	}
	expiresAt := tokens.ExpiresAt
	if expiresAt.IsZero() {
		expiresAt = s.now().Add(s.tokenTTLFallback)
	}

	updated, err := s.store.ReplaceConnectionTokens(
		conn.ID, conn.RowVersion,
		tokens.AccessToken, refreshToken,
		expiresAt, s.now(),
	)
	if err != nil {
		if errors.Is(err, store.ErrStaleConnection) {
			// A disconnect raced us; honor it
			return nil, ErrNotConnected
		}
		s.metrics.RecordDatabaseQueryError("replace_connection_tokens")
		return nil, err
	}

	s.audit.Record(AuditLogEntry{
		EventType: models.EventTokenRefreshed,
		Severity:  models.SeverityInfo,
		TenantID:  tenantID,
		Provider:  providerName,
		Action:    "token_refresh",
		Success:   true,
	})
	log.Printf("[OAuth] Token refreshed: tenant=%s provider=%s expires_at=%s",
		tenantID, providerName, updated.ExpiresAt.Format(time.RFC3339))

	return updated, nil
}

func (s *ConnectionService) recordRefreshFailure(
	tenantID, providerName, reason string,
	cause error,
) {
	s.audit.Record(AuditLogEntry{
		EventType:    models.EventTokenRefreshFailed,
		Severity:     models.SeverityError,
		TenantID:     tenantID,
		Provider:     providerName,
		Action:       "token_refresh",
		Details:      models.AuditDetails{"reason": reason},
		Success:      false,
		ErrorMessage: errString(cause),
	})
}

// Disconnect deactivates the connection for the key unconditionally and
// best-effort revokes the token at the provider. A failed or unsupported
// revoke never blocks the local disconnect. Reports whether a connection
// was actually removed.
func (s *ConnectionService) Disconnect(
	ctx context.Context,
	tenantID, providerName string,
) (bool, error) {
	conn, err := s.store.GetActiveConnection(tenantID, providerName)
	if err != nil {
		if errors.Is(err, store.ErrRecordNotFound) {
			return false, nil
		}
		return false, err
	}

	// Best-effort provider-side revoke; local disconnect must not depend
	// on network availability
	if p, ok := s.providers[providerName]; ok && p.SupportsRevoke() && conn.AccessToken != "" {
		if app, err := s.store.GetActiveAppConfig(tenantID, providerName); err == nil {
			if err := p.Revoke(ctx, app, conn.AccessToken); err != nil {
				s.metrics.RecordRevoke(providerName, false)
				log.Printf("[OAuth] Warning: provider revoke failed: tenant=%s provider=%s err=%v",
					tenantID, providerName, err)
			} else {
				s.metrics.RecordRevoke(providerName, true)
			}
		}
	}

	removed, err := s.store.DeactivateConnection(tenantID, providerName)
	if err != nil {
		s.metrics.RecordDatabaseQueryError("deactivate_connection")
		return false, err
	}

	s.audit.Record(AuditLogEntry{
		EventType: models.EventConnectionRevoked,
		Severity:  models.SeverityInfo,
		TenantID:  tenantID,
		Provider:  providerName,
		Action:    "disconnect",
		Success:   removed,
	})
	log.Printf("[OAuth] Disconnected: tenant=%s provider=%s removed=%t",
		tenantID, providerName, removed)

	return removed, nil
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
