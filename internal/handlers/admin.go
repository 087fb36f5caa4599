package handlers

import (
	"errors"
	"net/http"

	"github.com/go-connectly/connectly/internal/services"

	"github.com/gin-gonic/gin"
)

// AdminHandler serves the token-guarded admin surface.
type AdminHandler struct {
	connections *services.ConnectionService
}

func NewAdminHandler(cs *services.ConnectionService) *AdminHandler {
	return &AdminHandler{connections: cs}
}

type configureAppRequest struct {
	TenantID     string   `json:"tenant_id"`
	ClientID     string   `json:"client_id"     binding:"required"`
	ClientSecret string   `json:"client_secret" binding:"required"`
	RedirectURI  string   `json:"redirect_uri"  binding:"required"`
	Scopes       []string `json:"scopes"`
}

// ConfigureApp handles POST /api/admin/apps/:provider. It installs or
// replaces the OAuth application registration for a (tenant, provider) key.
func (h *AdminHandler) ConfigureApp(c *gin.Context) {
	var req configureAppRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	tenant := req.TenantID
	if tenant == "" {
		tenant = tenantID(c)
	}

	cfg, err := h.connections.ConfigureApp(c.Request.Context(), services.ConfigureAppInput{
		TenantID:     tenant,
		Provider:     c.Param("provider"),
		ClientID:     req.ClientID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  req.RedirectURI,
		Scopes:       req.Scopes,
		ActorIP:      c.ClientIP(),
	})
	if err != nil {
		if errors.Is(err, services.ErrUnknownProvider) {
			respondServiceError(c, err)
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":             "invalid_request",
			"error_description": err.Error(),
		})
		return
	}

	// The client secret never appears in responses
	c.JSON(http.StatusOK, gin.H{
		"configured":   true,
		"provider":     cfg.Provider,
		"tenant_id":    cfg.TenantID,
		"client_id":    cfg.ClientID,
		"redirect_uri": cfg.RedirectURI,
		"scopes":       cfg.Scopes,
	})
}
