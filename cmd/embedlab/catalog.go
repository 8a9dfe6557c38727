package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"sort"

	"github.com/chis/embedlab/internal/bootstrap"
	"github.com/chis/embedlab/internal/config"
	"github.com/chis/embedlab/internal/output"
)

// CatalogCommand loads a challenge directory into the catalog database.
type CatalogCommand struct {
	out     io.Writer
	dir     string
	dbPath  string
	jsonOut bool
}

// NewCatalogCommand creates a new catalog command
func NewCatalogCommand(out io.Writer) *CatalogCommand {
	return &CatalogCommand{out: out, dbPath: "embedlab.db"}
}

// ParseFlags parses command-line flags for the catalog command
func (c *CatalogCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("catalog", flag.ContinueOnError)
	fs.StringVar(&c.dir, "dir", "", "Catalog directory (required)")
	fs.StringVar(&c.dbPath, "db", c.dbPath, "SQLite database path")
	fs.BoolVar(&c.jsonOut, "json", false, "Output in JSON format")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.dir == "" {
		return errors.New("-dir is required")
	}
	return nil
}

// Run executes the catalog command
func (c *CatalogCommand) Run(ctx context.Context) error {
	cfg := config.Defaults()
	cfg.DBPath = c.dbPath
	cfg.CatalogDir = c.dir

	deps, cleanup, err := bootstrap.InitializeServices(ctx, cfg, bootstrap.InitOptions{RequireStorage: true})
	if err != nil {
		return err
	}
	defer cleanup()
	result := *deps.Catalog

	categories, err := deps.Storage.ListCategories(ctx)
	if err != nil {
		return err
	}

	if c.jsonOut {
		return output.WriteJSONData(c.out, map[string]any{
			"result":     result,
			"categories": categories,
		})
	}

	fmt.Fprintf(c.out, "Loaded %d challenges into %s\n", len(result.Loaded), c.dbPath)
	for _, cat := range categories {
		fmt.Fprintf(c.out, "  %-20s %d\n", cat.Name, cat.Count)
	}
	for _, key := range sortedKeys(result.Warnings) {
		for _, w := range result.Warnings[key] {
			fmt.Fprintf(c.out, "warning: %s: %s\n", key, w)
		}
	}
	for _, key := range sortedKeys(result.Failed) {
		fmt.Fprintf(c.out, "failed: %s: %s\n", key, result.Failed[key])
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
