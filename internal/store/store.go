// Package store selecciona el backend de persistencia según configuración.
package store

import (
	"context"
	"fmt"

	"github.com/dropDatabas3/janus/internal/config"
	"github.com/dropDatabas3/janus/internal/store/core"
	"github.com/dropDatabas3/janus/internal/store/memory"
	"github.com/dropDatabas3/janus/internal/store/pg"
)

// Open crea el core.Store indicado por cfg.Storage.Driver.
// Drivers soportados: "postgres" y "memory".
func Open(ctx context.Context, cfg *config.Config) (core.Store, error) {
	switch cfg.Storage.Driver {
	case "postgres":
		return pg.Open(ctx, pg.Config{
			DSN:             cfg.Storage.DSN,
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: cfg.Storage.Postgres.ConnMaxLifetime,
		})
	case "memory", "":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("store: driver no soportado: %q", cfg.Storage.Driver)
	}
}
