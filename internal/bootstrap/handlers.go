package bootstrap

import (
	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/handlers"
	"github.com/go-connectly/connectly/internal/services"
)

// handlerSet groups all HTTP handlers
type handlerSet struct {
	Connect *handlers.ConnectHandler
	API     *handlers.APIHandler
	Admin   *handlers.AdminHandler
}

// initializeHandlers creates all HTTP handlers
func initializeHandlers(cfg *config.Config, cs *services.ConnectionService) handlerSet {
	return handlerSet{
		Connect: handlers.NewConnectHandler(cs, cfg),
		API:     handlers.NewAPIHandler(cs),
		Admin:   handlers.NewAdminHandler(cs),
	}
}
