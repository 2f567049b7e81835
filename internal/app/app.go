// Package app wires configuration, the table store and the HTTP router.
package app

import (
	"log/slog"
	"net/http"

	"github.com/jacentio/tasktable/api"
	"github.com/jacentio/tasktable/internal/config"
	"github.com/jacentio/tasktable/store"
)

// App holds the wired components shared by the binaries.
type App struct {
	Config   *config.Config
	Logger   *slog.Logger
	Accessor *store.Accessor
	Router   http.Handler
}

// New wires an App. The store connection is deferred to the first request.
func New(cfg *config.Config, logger *slog.Logger) *App {
	acc := store.NewAccessor(AccessorConfig(cfg), logger)
	return &App{
		Config:   cfg,
		Logger:   logger,
		Accessor: acc,
		Router:   api.NewRouter(api.NewHandler(acc, logger), logger),
	}
}

// AccessorConfig maps process configuration onto the store accessor.
func AccessorConfig(cfg *config.Config) store.AccessorConfig {
	return store.AccessorConfig{
		Store: store.Config{
			TableName:    cfg.TableName,
			PartitionKey: cfg.PartitionKey,
		},
		ConnectionEnv: cfg.ConnectionEnv,
		EnsureTable:   cfg.EnsureTable,
		TableWait:     cfg.TableWait,
	}
}

// Close releases the store.
func (a *App) Close() {
	a.Accessor.Close()
}
