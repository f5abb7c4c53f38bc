package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"

	"github.com/mizanhq/mizan/pkg/protocol"
)

// The one-shot commands share the service's store configuration. The
// embedded backend needs store.persist_path set for a workspace to
// survive between invocations; qdrant persists on its own.

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// IndexCmd ingests one file into a workspace and prints the upload id
// the other commands take.
type IndexCmd struct {
	File    string `required:"" help:"Bank export or statement file." type:"existingfile"`
	Session string `required:"" help:"Session the workspace belongs to."`
	Type    string `required:"" help:"Document type." enum:"transactions,financial"`
}

func (c *IndexCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, cleanup, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	stack, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	f, err := os.Open(c.File)
	if err != nil {
		return err
	}
	defer f.Close()

	ws := protocol.Workspace{
		SessionID:    c.Session,
		UploadID:     uuid.NewString(),
		DocumentType: protocol.DocumentType(c.Type),
	}
	count, err := stack.indexer.IngestFile(ctx, ws, filepath.Base(c.File), f)
	if err != nil {
		return err
	}

	fmt.Printf("Indexed %d documents\n", count)
	fmt.Printf("upload_id: %s\n", ws.UploadID)
	return nil
}

// InsightsCmd runs the full agent fan-out and prints the result set as
// JSON.
type InsightsCmd struct {
	Session string `required:"" help:"Session that owns the upload."`
	Upload  string `required:"" help:"Upload id returned by index."`
	Type    string `required:"" help:"Document type." enum:"transactions,financial"`
}

func (c *InsightsCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, cleanup, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	stack, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ws := protocol.Workspace{
		SessionID:    c.Session,
		UploadID:     c.Upload,
		DocumentType: protocol.DocumentType(c.Type),
	}
	res, err := stack.orch.GenerateInsights(ctx, ws)
	if err != nil {
		return err
	}

	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(res)
}

// ChatCmd asks one question about an upload. Chat answers from cached
// insights; a fresh process starts cold, so the fan-out runs first
// when needed.
type ChatCmd struct {
	Query   string `arg:"" help:"Question about the uploaded data."`
	Session string `required:"" help:"Session that owns the upload."`
	Upload  string `required:"" help:"Upload id returned by index."`
	Type    string `default:"transactions" help:"Document type." enum:"transactions,financial"`
}

func (c *ChatCmd) Run(cli *CLI) error {
	ctx, stop := signalContext()
	defer stop()

	cfg, cleanup, err := setup(ctx, cli)
	if err != nil {
		return err
	}
	defer cleanup()

	stack, err := buildCore(cfg)
	if err != nil {
		return err
	}
	defer stack.Close()

	ws := protocol.Workspace{
		SessionID:    c.Session,
		UploadID:     c.Upload,
		DocumentType: protocol.DocumentType(c.Type),
	}

	ans, err := stack.orch.ProcessChatQuery(ctx, ws, c.Query)
	if err != nil && protocol.CodeOf(err) == protocol.CodeCacheMissing {
		slog.Info("No cached insights in this process, running the analysis first")
		if _, err := stack.orch.GenerateInsights(ctx, ws); err != nil {
			return err
		}
		ans, err = stack.orch.ProcessChatQuery(ctx, ws, c.Query)
	}
	if err != nil {
		return err
	}

	fmt.Println(ans.Result.FinalAnswer)
	if ans.Intent != nil {
		slog.Debug("Chat metadata",
			"query_type", string(ans.Intent.QueryType),
			"agent", string(ans.Result.Category),
			"retrieved", ans.Retrieved)
	}
	return nil
}
