package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/sirene-labs/annuaire-cli/internal/directory"
)

// openStore builds the store for the configured driver.
func openStore(ctx context.Context) (directory.Store, error) {
	switch cfg.Store.Driver {
	case "postgres":
		if cfg.Store.DatabaseURL == "" {
			return nil, eris.New("store.database_url is required for the postgres driver (ANNUAIRE_STORE_DATABASE_URL)")
		}
		return directory.NewPostgres(ctx, cfg.Store.DatabaseURL, &directory.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "annuaire.db"
		}
		return directory.NewSQLite(dsn)
	case "memory":
		return directory.NewMemory(), nil
	default:
		return nil, eris.Errorf("unknown store driver %q", cfg.Store.Driver)
	}
}
