package handlers

import (
	"errors"
	"net/http"

	"github.com/go-connectly/connectly/internal/services"

	"github.com/gin-gonic/gin"
)

// APIHandler serves the JSON surface: status projection, connection listing,
// and disconnect.
type APIHandler struct {
	connections *services.ConnectionService
}

func NewAPIHandler(cs *services.ConnectionService) *APIHandler {
	return &APIHandler{connections: cs}
}

// Status handles GET /api/status/:provider
func (h *APIHandler) Status(c *gin.Context) {
	st, err := h.connections.Status(c.Request.Context(), tenantID(c), c.Param("provider"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, st)
}

// ListConnections handles GET /api/connections
func (h *APIHandler) ListConnections(c *gin.Context) {
	statuses, err := h.connections.StatusAll(c.Request.Context(), tenantID(c))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"connections": statuses})
}

// Disconnect handles POST /api/disconnect/:provider
func (h *APIHandler) Disconnect(c *gin.Context) {
	removed, err := h.connections.Disconnect(c.Request.Context(), tenantID(c), c.Param("provider"))
	if err != nil {
		respondServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disconnected": removed})
}

// respondServiceError maps service-layer sentinels onto HTTP responses.
func respondServiceError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, services.ErrUnknownProvider):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "unknown_provider",
			"error_description": "No such provider is registered",
		})
	case errors.Is(err, services.ErrProviderNotConfigured):
		c.JSON(http.StatusConflict, gin.H{
			"error":             "provider_not_configured",
			"error_description": "No OAuth application is configured for this provider",
		})
	case errors.Is(err, services.ErrNotConnected):
		c.JSON(http.StatusNotFound, gin.H{
			"error":             "not_connected",
			"error_description": "No active connection for this provider",
		})
	case errors.Is(err, services.ErrRefreshUnavailable), errors.Is(err, services.ErrRefreshFailed):
		c.JSON(http.StatusUnauthorized, gin.H{
			"error":             "reauthorization_required",
			"error_description": "The connection is no longer usable; run the authorization flow again",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"error":             "server_error",
			"error_description": "Internal server error",
		})
	}
}
