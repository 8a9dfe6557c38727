// Package catalog loads challenge definitions from a directory tree into
// storage.
//
// Layout: <root>/<category>/<challengeID>/challenge.yaml with file contents
// under <root>/<category>/<challengeID>/files/.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/chis/embedlab/internal/logging"
	"github.com/chis/embedlab/internal/storage"
)

// Loader walks a catalog directory and upserts every challenge it finds.
type Loader struct {
	root    string
	storage storage.Storage
}

// Result summarizes a load.
type Result struct {
	Loaded   []string            `json:"loaded"`
	Failed   map[string]string   `json:"failed,omitempty"`
	Warnings map[string][]string `json:"warnings,omitempty"`
}

// NewLoader creates a loader for the catalog at root.
func NewLoader(root string, store storage.Storage) *Loader {
	return &Loader{root: root, storage: store}
}

// Discover returns the manifest paths under the root, sorted.
func (l *Loader) Discover(ctx context.Context) ([]string, error) {
	var found []string

	err := filepath.WalkDir(l.root, func(path string, d fs.DirEntry, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		if err != nil {
			if os.IsPermission(err) {
				logging.Warn("Permission denied accessing %s: %v", path, err)
				return filepath.SkipDir
			}
			return err
		}

		if d.IsDir() {
			if path != l.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}

		if d.Name() != ManifestName {
			return nil
		}

		rel, err := filepath.Rel(l.root, path)
		if err != nil {
			return err
		}
		// Only <category>/<id>/challenge.yaml
		if len(strings.Split(filepath.ToSlash(rel), "/")) == 3 {
			found = append(found, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan catalog %s: %w", l.root, err)
	}

	sort.Strings(found)
	return found, nil
}

// Load discovers and stores every challenge. A broken challenge is recorded
// in Result.Failed and does not stop the load.
func (l *Loader) Load(ctx context.Context) (Result, error) {
	info, err := os.Stat(l.root)
	if err != nil {
		return Result{}, fmt.Errorf("catalog directory: %w", err)
	}
	if !info.IsDir() {
		return Result{}, fmt.Errorf("catalog path %s is not a directory", l.root)
	}

	manifests, err := l.Discover(ctx)
	if err != nil {
		return Result{}, err
	}

	result := Result{
		Loaded:   make([]string, 0, len(manifests)),
		Failed:   make(map[string]string),
		Warnings: make(map[string][]string),
	}

	for _, path := range manifests {
		ch, err := l.loadChallenge(path)
		key := challengeKey(l.root, path)
		if err != nil {
			logging.Warn("Skipping challenge %s: %v", key, err)
			result.Failed[key] = err.Error()
			continue
		}

		if warnings := ch.Assignment.Warnings(); len(warnings) > 0 {
			result.Warnings[key] = warnings
		}

		if err := l.storage.SaveChallenge(ctx, ch); err != nil {
			return result, err
		}
		result.Loaded = append(result.Loaded, key)
	}

	logging.Info("Catalog loaded: %d challenges, %d failed", len(result.Loaded), len(result.Failed))
	return result, nil
}

func (l *Loader) loadChallenge(manifestPath string) (storage.Challenge, error) {
	dir := filepath.Dir(manifestPath)

	m, err := ParseManifest(manifestPath)
	if err != nil {
		return storage.Challenge{}, err
	}

	contents := make(map[string]string, len(m.Files))
	for _, f := range m.Files {
		if f.Filename == "" {
			return storage.Challenge{}, errors.New("manifest lists a file without a filename")
		}
		if !filepath.IsLocal(filepath.FromSlash(f.Filename)) {
			return storage.Challenge{}, fmt.Errorf("%w: %q", ErrUnsafeFilename, f.Filename)
		}
		data, err := os.ReadFile(filepath.Join(dir, FilesDir, filepath.FromSlash(f.Filename)))
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return storage.Challenge{}, fmt.Errorf("failed to read %s: %w", f.Filename, err)
		}
		contents[f.Filename] = string(data)
	}

	return storage.Challenge{
		Category:   filepath.Base(filepath.Dir(dir)),
		ID:         filepath.Base(dir),
		Assignment: m.Build(contents),
		SourcePath: dir,
	}, nil
}

func challengeKey(root, manifestPath string) string {
	rel, err := filepath.Rel(root, filepath.Dir(manifestPath))
	if err != nil {
		return manifestPath
	}
	return filepath.ToSlash(rel)
}
