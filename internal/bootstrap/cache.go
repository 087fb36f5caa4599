package bootstrap

import (
	"context"
	"fmt"
	"log"

	"github.com/go-connectly/connectly/internal/cache"
	"github.com/go-connectly/connectly/internal/config"
	"github.com/go-connectly/connectly/internal/core"
	"github.com/go-connectly/connectly/internal/metrics"
	"github.com/go-connectly/connectly/internal/statetoken"
)

// initializeMetrics initializes Prometheus metrics
func initializeMetrics(cfg *config.Config) core.Recorder {
	recorder := metrics.Init(cfg.MetricsEnabled)
	if cfg.MetricsEnabled {
		log.Println("Prometheus metrics initialized")
	} else {
		log.Println("Metrics disabled (using noop implementation)")
	}
	return recorder
}

// initializeStateCodec builds the state token codec
func initializeStateCodec(cfg *config.Config) *statetoken.Codec {
	return statetoken.New(cfg.StateTokenSecret, cfg.StateTokenTTL)
}

// initializeStateLedger builds the consumed-state ledger. Memory works for a
// single instance; multi-instance deployments need the redis backend so a
// replayed state is caught regardless of which instance serves the callback.
func initializeStateLedger(cfg *config.Config) (core.Cache[bool], func() error, error) {
	switch cfg.StateLedgerType {
	case config.StateLedgerRedis:
		ctx, cancel := context.WithTimeout(context.Background(), cfg.CacheInitTimeout)
		defer cancel()

		ledger, err := cache.NewRueidisCache[bool](
			ctx,
			cfg.StateLedgerAddr,
			cfg.StateLedgerPassword,
			cfg.StateLedgerDB,
			"connectly:states:",
		)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to initialize redis state ledger: %w", err)
		}
		log.Printf("State ledger: redis (addr=%s, db=%d)", cfg.StateLedgerAddr, cfg.StateLedgerDB)
		return ledger, ledger.Close, nil

	default: // memory
		ledger := cache.NewMemoryCache[bool]()
		log.Println("State ledger: memory (single instance only)")
		return ledger, ledger.Close, nil
	}
}
