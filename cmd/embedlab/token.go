package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/chis/embedlab/internal/codec"
	"github.com/chis/embedlab/internal/options"
	"github.com/chis/embedlab/internal/output"
	"gopkg.in/yaml.v3"
)

// readAssignmentFile loads an assignment from JSON or, for .yaml/.yml
// files, YAML using the same keys. Keys the file leaves out keep the values
// of the default template.
func readAssignmentFile(path string) (codec.Assignment, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return codec.Assignment{}, fmt.Errorf("failed to read %s: %w", path, err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return codec.Assignment{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if data, err = json.Marshal(doc); err != nil {
			return codec.Assignment{}, fmt.Errorf("failed to convert %s: %w", path, err)
		}
	}

	a := codec.DefaultAssignment()
	if err := json.Unmarshal(data, &a); err != nil {
		return codec.Assignment{}, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return a, nil
}

// EncodeCommand prints the token for an assignment file.
type EncodeCommand struct {
	out     io.Writer
	path    string
	strict  bool
	base    string
	jsonOut bool
}

// NewEncodeCommand creates a new encode command
func NewEncodeCommand(out io.Writer) *EncodeCommand {
	return &EncodeCommand{out: out}
}

// ParseFlags parses command-line flags for the encode command
func (c *EncodeCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("encode", flag.ContinueOnError)
	fs.BoolVar(&c.strict, "strict", false, "Fail when the assignment does not validate")
	fs.StringVar(&c.base, "base", "", "Also print the embed URL for this base URL")
	fs.BoolVar(&c.jsonOut, "json", false, "Output in JSON format")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one assignment file")
	}
	c.path = fs.Arg(0)
	return nil
}

// Run executes the encode command
func (c *EncodeCommand) Run(ctx context.Context) error {
	a, err := readAssignmentFile(c.path)
	if err != nil {
		return err
	}

	warnings := a.Warnings()
	if c.strict && len(warnings) > 0 {
		return fmt.Errorf("invalid assignment: %w", a.Validate())
	}

	token, err := codec.Encode(a)
	if err != nil {
		return err
	}

	embedURL := ""
	if c.base != "" {
		embedURL = options.EmbedURL(c.base, token, options.Defaults())
	}

	if c.jsonOut {
		return output.WriteJSONData(c.out, map[string]any{
			"token":     token,
			"embed_url": embedURL,
			"warnings":  warnings,
		})
	}

	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s\n", w)
	}
	fmt.Fprintln(c.out, token)
	if embedURL != "" {
		fmt.Fprintln(c.out, embedURL)
	}
	return nil
}

// DecodeCommand prints the assignment a token carries, merged over the
// default template.
type DecodeCommand struct {
	out   io.Writer
	token string
}

// NewDecodeCommand creates a new decode command
func NewDecodeCommand(out io.Writer) *DecodeCommand {
	return &DecodeCommand{out: out}
}

// ParseFlags parses command-line flags for the decode command
func (c *DecodeCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("decode", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one token")
	}
	c.token = fs.Arg(0)
	return nil
}

// Run executes the decode command
func (c *DecodeCommand) Run(ctx context.Context) error {
	a, err := codec.Decode(c.token, codec.DefaultAssignment())
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(a)
}

// URLCommand prints an embed URL and iframe snippet for a token.
type URLCommand struct {
	out   io.Writer
	base  string
	token string
	opts  options.DisplayOptions
}

// NewURLCommand creates a new url command
func NewURLCommand(out io.Writer) *URLCommand {
	return &URLCommand{out: out, opts: options.Defaults()}
}

// ParseFlags parses command-line flags for the url command
func (c *URLCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("url", flag.ContinueOnError)

	var (
		theme                                                     string
		noAutoReload, noAssignment, noScore, noEditors, noPreview bool
	)
	fs.StringVar(&c.base, "base", "", "Base URL of the embed page (required)")
	fs.StringVar(&theme, "theme", string(options.ThemeDark), "Theme: dark or light")
	fs.BoolVar(&noAutoReload, "no-autoreload", false, "Disable preview auto reload")
	fs.BoolVar(&noAssignment, "no-assignment", false, "Hide the assignment text")
	fs.BoolVar(&noScore, "no-score", false, "Disable scoring")
	fs.BoolVar(&noEditors, "no-editors", false, "Hide the editors")
	fs.BoolVar(&noPreview, "no-preview", false, "Hide the preview")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if c.base == "" {
		return errors.New("-base is required")
	}
	if fs.NArg() != 1 {
		return errors.New("expected exactly one token")
	}
	c.token = fs.Arg(0)

	switch options.Theme(theme) {
	case options.ThemeLight, options.ThemeDark:
		c.opts.Theme = options.Theme(theme)
	default:
		return fmt.Errorf("unknown theme %q", theme)
	}
	c.opts.AutoReload = !noAutoReload
	c.opts.ShowAssignment = !noAssignment
	c.opts.IsScored = !noScore
	c.opts.ShowEditors = !noEditors
	c.opts.ShowPreview = !noPreview
	return nil
}

// Run executes the url command
func (c *URLCommand) Run(ctx context.Context) error {
	if _, err := codec.DecodeURLSafe(c.token); err != nil {
		return err
	}

	embedURL := options.EmbedURL(c.base, c.token, c.opts)
	fmt.Fprintln(c.out, embedURL)
	fmt.Fprintln(c.out, options.IframeHTML(embedURL))
	return nil
}
