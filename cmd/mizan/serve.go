package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mizanhq/mizan/pkg/audit"
	"github.com/mizanhq/mizan/pkg/auth"
	"github.com/mizanhq/mizan/pkg/config"
	"github.com/mizanhq/mizan/pkg/ingest"
	"github.com/mizanhq/mizan/pkg/observability"
	"github.com/mizanhq/mizan/pkg/server"
)

// ServeCmd starts the HTTP service.
type ServeCmd struct {
	Port int `help:"Override the configured listen port."`
}

func (c *ServeCmd) Run(cli *CLI) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		slog.Info("Shutting down")
		cancel()
	}()

	cfg, cleanup, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	if c.Port != 0 {
		cfg.Server.Port = c.Port
	}

	obs := observability.NewManager(cfg.Observability)
	if err := obs.Initialize(ctx); err != nil {
		return fmt.Errorf("observability: %w", err)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		_ = obs.Shutdown(shutdownCtx)
	}()

	stack, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	verifier, err := auth.NewVerifier(&cfg.Auth)
	if err != nil {
		return err
	}

	auditLog, err := audit.Open(&cfg.Audit)
	if err != nil {
		return fmt.Errorf("audit log: %w", err)
	}
	defer auditLog.Close()

	opts := []server.Option{
		server.WithVerifier(verifier),
		server.WithAudit(auditLog),
		server.WithObservability(obs),
	}
	if rt, ok := stack.reasoning.(server.Runtime); ok {
		opts = append(opts, server.WithRuntime(rt))
	}

	srv, err := server.New(&cfg.Server, stack.orch, stack.indexer, stack.store, opts...)
	if err != nil {
		return err
	}

	if cfg.Ingest.WatchDir != "" {
		watcher, err := ingest.NewWatcher(cfg.Ingest.WatchDir, stack.indexer)
		if err != nil {
			return fmt.Errorf("drop folder: %w", err)
		}
		if err := watcher.Start(ctx); err != nil {
			return fmt.Errorf("drop folder: %w", err)
		}
		defer watcher.Close()
	}

	printStartup(cfg, srv.Address(), stack.store.Backend())

	return srv.Start(ctx)
}

// printStartup prints the endpoints and the posture an operator checks
// on boot. Nothing here names uploaded data.
func printStartup(cfg *config.Config, addr, backend string) {
	fmt.Printf("\nmizan ready\n")
	fmt.Printf("   API:       http://%s/v1\n", addr)
	fmt.Printf("   Health:    http://%s/healthz\n", addr)
	if cfg.Observability.Metrics.Enabled != nil && *cfg.Observability.Metrics.Enabled {
		fmt.Printf("   Metrics:   http://%s/metrics\n", addr)
	}
	fmt.Printf("   Store:     %s\n", backend)
	fmt.Printf("   Models:    %s (reasoning), %s (router)\n",
		cfg.LLM.ReasoningModelID, cfg.LLM.RouterModelID)
	if cfg.Auth.Enabled {
		fmt.Printf("   Auth:      token verification enabled\n")
	} else {
		fmt.Printf("   Auth:      disabled, requests carry X-Session-ID\n")
	}
	if cfg.Ingest.WatchDir != "" {
		fmt.Printf("   Drop dir:  %s\n", cfg.Ingest.WatchDir)
	}
	fmt.Println("\nPress Ctrl+C to stop")
}
