package handlers

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/provider"
	"github.com/go-connectly/connectly/internal/services"
	"github.com/go-connectly/connectly/internal/util"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

const (
	sessionKeyState    = "oauth_state"
	sessionKeyProvider = "oauth_provider"
	sessionKeyTenant   = "oauth_tenant"
	sessionKeyReturnTo = "oauth_return_to"
)

// ConnectHandler drives the browser-facing half of the authorization flow:
// initiation redirects out to the provider, the callback lands back here.
type ConnectHandler struct {
	connections *services.ConnectionService
	config      *config.Config
}

func NewConnectHandler(cs *services.ConnectionService, cfg *config.Config) *ConnectHandler {
	return &ConnectHandler{connections: cs, config: cfg}
}

// tenantID resolves the tenant for a request. Header wins over query so a
// fronting proxy can pin it.
func tenantID(c *gin.Context) string {
	if t := c.GetHeader("X-Tenant-ID"); t != "" {
		return t
	}
	if t := c.Query("tenant_id"); t != "" {
		return t
	}
	return "default"
}

// StartConnect handles GET /connect/:provider. It mints a state token, binds
// it to the browser session, and redirects to the provider's authorization
// endpoint.
func (h *ConnectHandler) StartConnect(c *gin.Context) {
	providerName := c.Param("provider")
	tenant := tenantID(c)

	var scopes []string
	if raw := c.Query("scopes"); raw != "" {
		scopes = provider.ParseScopeList(raw)
	}

	returnTo := c.Query("return_to")
	if !util.IsRedirectSafe(returnTo, h.config.BaseURL) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": "return_to must stay on this site",
		})
		return
	}

	authURL, state, err := h.connections.AuthorizationURL(c.Request.Context(), tenant, providerName, scopes)
	if err != nil {
		respondServiceError(c, err)
		return
	}

	session := sessions.Default(c)
	session.Set(sessionKeyState, state)
	session.Set(sessionKeyProvider, providerName)
	session.Set(sessionKeyTenant, tenant)
	session.Set(sessionKeyReturnTo, returnTo)
	if err := session.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Failed to persist session",
		})
		return
	}

	c.Redirect(http.StatusFound, authURL)
}

// Callback handles GET /callback/:provider, the provider redirect target.
// The session-bound state is cleared before validation so a retry cannot
// reuse it.
func (h *ConnectHandler) Callback(c *gin.Context) {
	providerName := c.Param("provider")

	session := sessions.Default(c)
	sessionState, _ := session.Get(sessionKeyState).(string)
	sessionProvider, _ := session.Get(sessionKeyProvider).(string)
	tenant, _ := session.Get(sessionKeyTenant).(string)
	returnTo, _ := session.Get(sessionKeyReturnTo).(string)
	session.Delete(sessionKeyState)
	session.Delete(sessionKeyProvider)
	session.Delete(sessionKeyTenant)
	session.Delete(sessionKeyReturnTo)
	_ = session.Save()

	if tenant == "" {
		tenant = tenantID(c)
	}
	// A callback for a different provider than the one initiated fails the
	// state comparison below; blank the session copy to make that explicit.
	if sessionProvider != providerName {
		sessionState = ""
	}

	conn, err := h.connections.HandleCallback(c.Request.Context(), services.CallbackInput{
		TenantID:     tenant,
		Provider:     providerName,
		Code:         c.Query("code"),
		State:        c.Query("state"),
		SessionState: sessionState,
		ErrorParam:   c.Query("error"),
		ActorIP:      c.ClientIP(),
	})
	if err != nil {
		h.respondCallbackError(c, returnTo, err)
		return
	}

	if returnTo != "" {
		c.Redirect(http.StatusFound, appendQuery(returnTo, "connected", providerName))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":      true,
		"provider":       providerName,
		"profile_name":   conn.ExternalProfileName,
		"granted_scopes": conn.GrantedScopes,
	})
}

func (h *ConnectHandler) respondCallbackError(c *gin.Context, returnTo string, err error) {
	var rejErr *services.RejectedError
	if errors.As(err, &rejErr) {
		if returnTo != "" {
			c.Redirect(http.StatusFound, appendQuery(returnTo, "error", rejErr.Reason))
			return
		}
		// Reason only; provider detail stays in the logs
		c.JSON(http.StatusBadRequest, gin.H{"error": rejErr.Reason})
		return
	}
	respondServiceError(c, err)
}

func appendQuery(rawURL, key, value string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	q.Set(key, value)
	u.RawQuery = q.Encode()
	return u.String()
}
