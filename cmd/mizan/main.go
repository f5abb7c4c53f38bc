// Command mizan runs the local financial analysis service.
//
// Usage:
//
//	mizan serve --config mizan.yaml
//	mizan index --file january.csv --session acme --type transactions
//	mizan insights --session acme --upload <id> --type transactions
//	mizan chat --session acme --upload <id> "How much did I pay GOSI?"
//	mizan validate mizan.yaml
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/alecthomas/kong"

	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/logger"
)

// CLI defines the command-line interface.
type CLI struct {
	Serve    ServeCmd    `cmd:"" help:"Start the HTTP service."`
	Index    IndexCmd    `cmd:"" help:"Ingest one local file into a workspace."`
	Insights InsightsCmd `cmd:"" help:"Run the full analysis fan-out for an upload."`
	Chat     ChatCmd     `cmd:"" help:"Ask one question about an upload."`
	Validate ValidateCmd `cmd:"" help:"Validate a configuration file."`
	Version  VersionCmd  `cmd:"" help:"Show version information."`

	Config    string `short:"c" help:"Path to config file." type:"path"`
	Env       string `help:"Dotenv file loaded before config expansion." type:"path"`
	LogLevel  string `help:"Log level (debug, info, warn, error)."`
	LogFile   string `help:"Log file path (empty = stderr)."`
	LogFormat string `help:"Log format (text or json)."`
}

// VersionCmd shows version information.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	version := "dev"
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "(devel)" && info.Main.Version != "" {
			version = info.Main.Version
		}
	}
	fmt.Printf("mizan version %s\n", version)
	return nil
}

// setup loads the configuration tree and initializes the logger. CLI
// flags win over environment variables, which win over the config
// file. The returned cleanup closes the config provider and the
// optional log file.
func setup(ctx context.Context, cli *CLI) (*config.Config, func(), error) {
	cfg, loader, err := config.LoadFile(ctx, cli.Config)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	level := firstNonEmpty(cli.LogLevel, os.Getenv("LOG_LEVEL"), cfg.Logging.Level)
	format := firstNonEmpty(cli.LogFormat, os.Getenv("LOG_FORMAT"), cfg.Logging.Format)
	file := firstNonEmpty(cli.LogFile, os.Getenv("LOG_FILE"), cfg.Logging.File)

	output := os.Stderr
	cleanup := func() { _ = loader.Close() }
	if file != "" {
		f, closeFile, err := logger.OpenLogFile(file)
		if err != nil {
			_ = loader.Close()
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		output = f
		cleanup = func() {
			_ = loader.Close()
			closeFile()
		}
	}
	logger.Init(logger.ParseLevel(level), output, format)

	if cli.Config != "" {
		slog.Info("Loaded configuration", "path", cli.Config)
	}
	return cfg, cleanup, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func main() {
	cli := CLI{}
	kctx := kong.Parse(&cli,
		kong.Name("mizan"),
		kong.Description("Privacy-first financial analysis on local models."),
		kong.UsageOnError(),
	)

	if err := config.LoadEnvFile(cli.Env); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	err := kctx.Run(&cli)
	kctx.FatalIfErrorf(err)
}
