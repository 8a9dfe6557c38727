package catalog

import (
	"errors"
	"fmt"
	"os"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/vfs"
	"gopkg.in/yaml.v3"
)

// ManifestName is the per-challenge definition file.
const ManifestName = "challenge.yaml"

// FilesDir holds file contents next to the manifest.
const FilesDir = "files"

// ErrUnsafeFilename is returned for manifest filenames that would resolve
// outside FilesDir.
var ErrUnsafeFilename = errors.New("filename escapes the files directory")

// Manifest is the YAML form of a challenge.
type Manifest struct {
	Title       string         `yaml:"title"`
	Assignment  string         `yaml:"assignment"`
	MaxScore    int            `yaml:"maxScore"`
	MainFile    string         `yaml:"mainFile"`
	PreviewType string         `yaml:"previewType"`
	Files       []ManifestFile `yaml:"files"`
}

// ManifestFile lists one file; its content lives under files/.
type ManifestFile struct {
	Filename string `yaml:"filename"`
	Readonly bool   `yaml:"readonly"`
	Hidden   bool   `yaml:"hidden"`
	// Autoreload defaults to true when omitted.
	Autoreload *bool `yaml:"autoreload"`
}

// ParseManifest reads and parses a challenge manifest.
func ParseManifest(path string) (Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Manifest{}, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("failed to parse manifest %s: %w", path, err)
	}
	return m, nil
}

// Build returns the assignment for m. contents maps filenames to file
// contents; missing entries become empty files.
func (m Manifest) Build(contents map[string]string) codec.Assignment {
	files := make([]vfs.FileRecord, 0, len(m.Files))
	for _, f := range m.Files {
		autoreload := true
		if f.Autoreload != nil {
			autoreload = *f.Autoreload
		}
		files = append(files, vfs.FileRecord{
			Filename:   f.Filename,
			Readonly:   f.Readonly,
			Hidden:     f.Hidden,
			Autoreload: autoreload,
			Content:    contents[f.Filename],
		})
	}

	mainFile := m.MainFile
	if mainFile == "" && len(files) > 0 {
		mainFile = files[0].Filename
	}

	return codec.Assignment{
		Title:       m.Title,
		Assignment:  m.Assignment,
		MaxScore:    m.MaxScore,
		Files:       files,
		MainFile:    mainFile,
		PreviewType: m.PreviewType,
	}
}
