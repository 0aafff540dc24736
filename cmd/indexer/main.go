package main

import (
	"context"
	"encoding/json"
	"fmt"
	stdlog "log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/nikhileshsirohi/codebase-explainer/internal/app"
	"github.com/nikhileshsirohi/codebase-explainer/internal/config"
	"github.com/nikhileshsirohi/codebase-explainer/internal/source"
	"github.com/spf13/pflag"
)

// The indexer runs one ingestion in the foreground: a GitHub repository
// given by --git-repo, or a local checkout given by --repo-root.
func main() {
	fs := pflag.NewFlagSet("explainer-indexer", pflag.ExitOnError)

	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		stdlog.Fatal(err)
	}
	if cfg.RepoURL == "" && cfg.RepoRoot == "" {
		logger.Fatal().Msg("one of --git-repo or --repo-root is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	repoURL, provider := cfg.RepoURL, source.ProviderGitHub
	if cfg.RepoRoot != "" {
		root, err := filepath.Abs(cfg.RepoRoot)
		if err != nil {
			logger.Fatal().Err(err).Msg("resolve repo root")
		}
		a.Controller.Fetcher = source.NewLocal(root)
		provider = "local"
		if repoURL == "" {
			repoURL = "https://localhost/local/" + filepath.Base(root)
		}
	} else if source.DetectProvider(repoURL) != source.ProviderGitHub {
		logger.Fatal().Str("repo", repoURL).Msg("only GitHub repository URLs are supported")
	}
	canonical, err := source.Canonicalize(repoURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("invalid repository url")
	}

	repo, err := a.Store.UpsertRepository(ctx, repoURL, canonical, provider)
	if err != nil {
		logger.Fatal().Err(err).Msg("register repository")
	}
	job, err := a.Store.CreateJob(ctx, repo.ID, "cli")
	if err != nil {
		logger.Fatal().Err(err).Msg("create job")
	}

	runCtx := ctx
	if timeout := a.JobTimeout(); timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	runErr := a.Controller.Run(runCtx, repo.ID, job.ID)

	final, err := a.Store.GetJob(context.WithoutCancel(ctx), job.ID)
	if err != nil {
		logger.Fatal().Err(err).Msg("read job")
	}
	out, _ := json.MarshalIndent(final, "", "  ")
	fmt.Println(string(out))
	if runErr != nil {
		a.Close()
		os.Exit(1)
	}
}
