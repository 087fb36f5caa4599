package bootstrap

import (
	"net/http"

	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/core"
	"github.com/go-connectly/connectly/internal/services"
	"github.com/go-connectly/connectly/internal/store"

	"github.com/gin-gonic/gin"
)

// Application holds all initialized components
type Application struct {
	Config *config.Config

	// Core infrastructure
	DB                *store.Store
	MetricsRecorder   core.Recorder
	StateLedger       core.Cache[bool]
	StateLedgerCloser func() error

	// Services
	AuditService      *services.AuditService
	ConnectionService *services.ConnectionService

	// HTTP
	HandlerSet handlerSet
	Router     *gin.Engine
	Server     *http.Server
}

// Run initializes and starts the application
func Run(cfg *config.Config) error {
	app := &Application{Config: cfg}

	// Phase 1: Validate configuration
	if err := cfg.Validate(); err != nil {
		return err
	}

	// Phase 2: Initialize infrastructure
	if err := app.initializeInfrastructure(); err != nil {
		return err
	}

	// Phase 3: Initialize business layer
	if err := app.initializeBusinessLayer(); err != nil {
		return err
	}

	// Phase 4: Initialize HTTP layer
	app.initializeHTTPLayer()

	// Phase 5: Start server with graceful shutdown
	app.startWithGracefulShutdown()

	return nil
}

// initializeInfrastructure sets up database, metrics, and the state ledger
func (app *Application) initializeInfrastructure() error {
	var err error

	app.DB, err = initializeDatabase(app.Config)
	if err != nil {
		return err
	}

	app.MetricsRecorder = initializeMetrics(app.Config)

	app.StateLedger, app.StateLedgerCloser, err = initializeStateLedger(app.Config)
	if err != nil {
		return err
	}

	return nil
}

// initializeBusinessLayer sets up services
func (app *Application) initializeBusinessLayer() error {
	app.AuditService = services.NewAuditService(
		app.DB,
		app.Config.EnableAuditLogging,
		app.Config.AuditLogBufferSize,
	)

	providers, err := initializeProviders(app.Config)
	if err != nil {
		return err
	}
	logProvidersStatus(providers)

	app.ConnectionService = services.NewConnectionService(services.ConnectionServiceOptions{
		Store:            app.DB,
		Providers:        providers,
		Codec:            initializeStateCodec(app.Config),
		ConsumedStates:   app.StateLedger,
		Audit:            app.AuditService,
		Metrics:          app.MetricsRecorder,
		StateTTL:         app.Config.StateTokenTTL,
		TokenTTLFallback: app.Config.TokenTTLFallback,
	})

	return nil
}

// initializeHTTPLayer sets up handlers, router, and server
func (app *Application) initializeHTTPLayer() {
	app.HandlerSet = initializeHandlers(app.Config, app.ConnectionService)
	app.Router = setupRouter(app.Config, app.DB, app.StateLedger, app.HandlerSet, app.MetricsRecorder)
	app.Server = createHTTPServer(app.Config, app.Router)
}
