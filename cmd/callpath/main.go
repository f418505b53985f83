package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/alecthomas/kong"

	"github.com/broady/callpath/config"
)

type CLI struct {
	Config   string `help:"Manifest file (default: $CALLPATH_CONFIG or ./callpath.yaml)." short:"c" type:"path"`
	LogLevel string `help:"Override log.level (debug, info, warn, error)." name:"log-level"`

	Routes  RoutesCmd  `cmd:"" help:"List the endpoints of a manifest as a call tree."`
	Call    CallCmd    `cmd:"" help:"Invoke one endpoint and print the result."`
	Mock    MockCmd    `cmd:"" help:"Serve the manifest's examples as a mock API."`
	Schema  SchemaCmd  `cmd:"" help:"Print the JSON Schema of the manifest format."`
	Version VersionCmd `cmd:"" help:"Print version information."`
}

// Globals is bound into every command's Run.
type Globals struct {
	Stdout io.Writer
	Stderr io.Writer
}

// load reads the manifest named by the global flags and applies the
// log level override.
func (c *CLI) load() (*config.Config, error) {
	cfg, err := config.Load(c.Config)
	if err != nil {
		return nil, err
	}
	if c.LogLevel != "" {
		cfg.Log.Level = c.LogLevel
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
	}
	return cfg, nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

type VersionCmd struct{}

func (c *VersionCmd) Run(g *Globals) error {
	fmt.Fprintln(g.Stdout, Version())
	return nil
}

func newParser(cli *CLI, g *Globals, options ...kong.Option) (*kong.Kong, error) {
	options = append([]kong.Option{
		kong.Name("callpath"),
		kong.Description("Schema-driven HTTP client and mock server for declared endpoint registries."),
		kong.UsageOnError(),
		kong.Bind(g, cli),
		kong.Writers(g.Stdout, g.Stderr),
	}, options...)
	return kong.New(cli, options...)
}

func main() {
	cli := &CLI{}
	g := &Globals{Stdout: os.Stdout, Stderr: os.Stderr}
	parser, err := newParser(cli, g)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	ctx.FatalIfErrorf(ctx.Run())
}
