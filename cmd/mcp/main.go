package main

import (
	"context"
	stdlog "log"
	"os"

	"github.com/nikhileshsirohi/codebase-explainer/internal/app"
	"github.com/nikhileshsirohi/codebase-explainer/internal/config"
	"github.com/nikhileshsirohi/codebase-explainer/internal/ingest"
	"github.com/nikhileshsirohi/codebase-explainer/internal/mcpserver"
	"github.com/spf13/pflag"
)

func main() {
	fs := pflag.NewFlagSet("explainer-mcp", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	// stdout carries the MCP protocol, so logs go to stderr.
	logger, err := app.NewLogger(cfg, os.Stderr)
	if err != nil {
		stdlog.Fatal(err)
	}

	ctx := context.Background()
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	dispatcher := ingest.NewGoDispatcher(a.Controller, a.Store, a.JobTimeout())
	srv := mcpserver.New(ingest.NewService(a.Store, dispatcher), a.Answers, a.Retriever, a.Store)

	logger.Info().Msg("mcp server listening on stdio")
	if err := srv.Serve(); err != nil {
		logger.Error().Err(err).Msg("mcp server stopped")
	}
	dispatcher.Wait()
}
