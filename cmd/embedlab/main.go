package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/chis/embedlab/internal/logging"
)

// Command is a CLI subcommand.
type Command interface {
	ParseFlags(args []string) error
	Run(ctx context.Context) error
}

const usage = `Usage: embedlab <command> [flags]

Commands:
  serve     Start the HTTP API
  encode    Encode an assignment file (JSON or YAML) into an embed token
  decode    Decode a token into assignment JSON
  url       Build an embed URL and iframe snippet for a token
  catalog   Load a challenge directory into the catalog database
`

func newCommand(name string) (Command, bool) {
	switch name {
	case "serve":
		return NewServeCommand(), true
	case "encode":
		return NewEncodeCommand(os.Stdout), true
	case "decode":
		return NewDecodeCommand(os.Stdout), true
	case "url":
		return NewURLCommand(os.Stdout), true
	case "catalog":
		return NewCatalogCommand(os.Stdout), true
	}
	return nil, false
}

func main() {
	logging.Configure(os.Getenv("LOG_LEVEL"), strings.EqualFold(os.Getenv("LOG_FORMAT"), "json"))

	if len(os.Args) < 2 || os.Args[1] == "-h" || os.Args[1] == "--help" || os.Args[1] == "help" {
		fmt.Fprint(os.Stderr, usage)
		if len(os.Args) < 2 {
			os.Exit(2)
		}
		return
	}

	name := os.Args[1]
	cmd, ok := newCommand(name)
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n%s", name, usage)
		os.Exit(2)
	}

	if err := cmd.ParseFlags(os.Args[2:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", name, err)
		os.Exit(2)
	}

	if err := cmd.Run(context.Background()); err != nil {
		logging.Error("%s failed: %v", name, err)
		os.Exit(1)
	}
}
