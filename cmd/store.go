package main

import (
	"context"

	"github.com/rotisserie/eris"

	"github.com/complykit/reconcore/internal/ledger"
)

func initLedger(ctx context.Context) (ledger.Store, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "reconcore.db"
		}
		return ledger.NewSQLite(path)
	case "postgres":
		return ledger.NewPostgres(ctx, cfg.Store.DatabaseURL)
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}
