// Package bootstrap wires the storage, catalog, and session services shared
// by the CLI commands.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/chis/embedlab/internal/catalog"
	"github.com/chis/embedlab/internal/config"
	"github.com/chis/embedlab/internal/logging"
	"github.com/chis/embedlab/internal/session"
	"github.com/chis/embedlab/internal/storage"
)

// ServiceDependencies holds all initialized service dependencies for CLI commands.
type ServiceDependencies struct {
	Storage  storage.Storage // nil when storage is optional and failed
	Sessions *session.Manager
	Catalog  *catalog.Result // nil unless a catalog directory was loaded
}

// InitOptions configures service initialization behavior.
type InitOptions struct {
	// RequireStorage makes a storage failure fatal instead of disabling the catalog.
	RequireStorage bool
	// SkipCatalog leaves cfg.CatalogDir unloaded.
	SkipCatalog bool
}

// InitializeServices initializes all service dependencies with consistent error handling.
// Returns ServiceDependencies and a cleanup function that should be deferred.
func InitializeServices(ctx context.Context, cfg config.Config, opts InitOptions) (*ServiceDependencies, func(), error) {
	deps := &ServiceDependencies{}
	var cleanups []func()

	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	logging.Debug("Initializing storage at %s...", cfg.DBPath)
	store, err := storage.NewSQLiteStorage(cfg.DBPath)
	if err != nil {
		if opts.RequireStorage {
			return nil, nil, fmt.Errorf("failed to initialize storage: %w", err)
		}
		logging.Warn("Failed to initialize storage (continuing without the challenge catalog): %v", err)
	} else {
		deps.Storage = store
		cleanups = append(cleanups, func() { store.Close() })
	}

	if deps.Storage != nil && cfg.CatalogDir != "" && !opts.SkipCatalog {
		result, err := catalog.NewLoader(cfg.CatalogDir, deps.Storage).Load(ctx)
		if err != nil {
			if opts.RequireStorage {
				cleanup()
				return nil, nil, fmt.Errorf("failed to load catalog: %w", err)
			}
			logging.Warn("Failed to load catalog from %s: %v", cfg.CatalogDir, err)
		} else {
			deps.Catalog = &result
		}
	}

	sessions, err := session.NewManager(cfg.MaxSessions)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	deps.Sessions = sessions
	cleanups = append(cleanups, sessions.CloseAll)

	return deps, cleanup, nil
}
