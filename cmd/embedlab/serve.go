package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chis/embedlab/internal/api"
	"github.com/chis/embedlab/internal/bootstrap"
	"github.com/chis/embedlab/internal/config"
	"github.com/chis/embedlab/internal/logging"
)

// ServeCommand starts the API server.
type ServeCommand struct {
	configPath string
	port       int
	staticDir  string
	noLimit    bool
}

// NewServeCommand creates a new serve command
func NewServeCommand() *ServeCommand {
	return &ServeCommand{configPath: os.Getenv("EMBEDLAB_CONFIG")}
}

// ParseFlags parses command-line flags for the serve command
func (c *ServeCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)

	fs.StringVar(&c.configPath, "config", c.configPath, "YAML config file")
	fs.IntVar(&c.port, "port", 0, "Port to listen on (overrides config)")
	fs.IntVar(&c.port, "p", 0, "Shorthand for --port")
	fs.StringVar(&c.staticDir, "static-dir", "", "Directory containing static UI files (overrides config)")
	fs.BoolVar(&c.noLimit, "no-rate-limit", false, "Disable rate limiting of session creation")

	return fs.Parse(args)
}

// loadConfig applies flag overrides on top of config.Load.
func (c *ServeCommand) loadConfig() (config.Config, error) {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return config.Config{}, err
	}
	cfg = config.MergeConfigs(cfg, config.Config{Port: c.port, StaticDir: c.staticDir})
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

// Run starts the server and blocks until SIGINT/SIGTERM.
func (c *ServeCommand) Run(ctx context.Context) error {
	cfg, err := c.loadConfig()
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	logging.Configure(cfg.LogLevel, cfg.JSONLogs())

	// The catalog is optional; sessions and tokens work without it.
	deps, cleanup, err := bootstrap.InitializeServices(ctx, cfg, bootstrap.InitOptions{})
	if err != nil {
		return err
	}
	defer cleanup()

	if deps.Catalog != nil {
		logging.Info("Loaded %d challenges from %s", len(deps.Catalog.Loaded), cfg.CatalogDir)
	}

	var rateLimit *api.RateLimitConfig
	if !c.noLimit {
		limits := api.DefaultRateLimitConfig()
		rateLimit = &limits
	}

	server := api.NewServer(api.Config{
		Port:      cfg.Port,
		PublicURL: cfg.PublicURL,
		StaticDir: cfg.StaticDir,
		Sessions:  deps.Sessions,
		Storage:   deps.Storage,
		RateLimit: rateLimit,
	})

	shutdownChan := make(chan os.Signal, 1)
	signal.Notify(shutdownChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdownChan)

	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Start()
	}()

	logging.Info("API server running on %s (public URL %s)", cfg.Addr(), cfg.PublicURL)

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case <-shutdownChan:
		logging.Info("Received shutdown signal...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
	}

	logging.Info("API server stopped")
	return nil
}
