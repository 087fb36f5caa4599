package bootstrap

import (
	"fmt"
	"log"

	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/store"
	"github.com/go-connectly/connectly/internal/util"
)

// initializeDatabase opens the store with at-rest sealing for secrets and
// tokens.
func initializeDatabase(cfg *config.Config) (*store.Store, error) {
	sealer, err := util.NewSealer(cfg.TokenSealSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize token sealer: %w", err)
	}

	db, err := store.New(cfg.DatabaseDriver, cfg.DatabaseDSN, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	log.Printf("Database initialized (driver: %s)", cfg.DatabaseDriver)
	return db, nil
}
