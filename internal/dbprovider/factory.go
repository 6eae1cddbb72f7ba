package dbprovider

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/hiredesk/hiredesk/internal/config"
	"github.com/hiredesk/hiredesk/internal/dbprovider/providers/postgres"
	"github.com/hiredesk/hiredesk/internal/dbprovider/providers/sqlite"
)

// NewProvider opens a storage backend chosen by cfg.Provider.
func NewProvider(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (Provider, error) {
	logger = logger.With(zap.String("component", "dbprovider-factory"))

	switch cfg.Provider {
	case "postgres", "postgresql":
		logger.Info("initializing PostgreSQL provider")
		return postgres.New(ctx, cfg, logger)
	case "sqlite":
		logger.Info("initializing SQLite provider")
		return sqlite.New(ctx, cfg, logger)
	default:
		return nil, fmt.Errorf("unknown database provider: %s (supported: postgres, sqlite)", cfg.Provider)
	}
}
