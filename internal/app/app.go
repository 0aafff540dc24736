// Package app assembles the services shared by the binaries from a loaded
// configuration.
package app

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/answer"
	"github.com/nikhileshsirohi/codebase-explainer/internal/config"
	"github.com/nikhileshsirohi/codebase-explainer/internal/indexer"
	"github.com/nikhileshsirohi/codebase-explainer/internal/ingest"
	"github.com/nikhileshsirohi/codebase-explainer/internal/search"
	"github.com/nikhileshsirohi/codebase-explainer/internal/source"
	"github.com/nikhileshsirohi/codebase-explainer/internal/store"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// App holds the wired services.
type App struct {
	Config     config.Specification
	Logger     zerolog.Logger
	Store      *store.Store
	Embedder   ai.Embedder
	Retriever  *search.Retriever
	Answers    *answer.Service
	Controller *ingest.Controller
}

// NewLogger builds the process logger writing to w and installs it as the
// global one.
func NewLogger(cfg config.Specification, w io.Writer) (zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid log level %q: %w", cfg.LogLevel, err)
	}
	logger := zerolog.New(w).Level(level).With().Timestamp().Logger()
	zerolog.SetGlobalLevel(level)
	log.Logger = logger
	return logger, nil
}

// ClientConfig maps the configured provider to an AI client configuration.
func ClientConfig(cfg config.Specification) (*ai.ClientConfig, error) {
	cc := &ai.ClientConfig{
		APIKey:      cfg.APIKey,
		EmbedModel:  cfg.EmbedModel,
		ChatModel:   cfg.ChatModel,
		Dim:         cfg.Dim,
		ProjectID:   cfg.ProjectID,
		Location:    cfg.Location,
		OllamaURL:   cfg.OllamaURL,
		OllamaModel: cfg.OllamaModel,
		OllamaEmbed: cfg.OllamaEmbed,
	}
	switch strings.ToLower(cfg.Provider) {
	case "openai":
		cc.Provider = ai.ProviderOpenAI
	case "vertexai", "google":
		cc.Provider = ai.ProviderVertexAI
	case "gemini":
		cc.Provider = ai.ProviderGemini
	case "ollama":
		cc.Provider = ai.ProviderOllama
	case "stub":
		cc.Provider = ai.ProviderStub
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	return cc, nil
}

// New connects to the database, migrates it for the embedder's dimension
// and wires retrieval, answering and ingestion.
func New(ctx context.Context, cfg config.Specification, logger zerolog.Logger) (*App, error) {
	cc, err := ClientConfig(cfg)
	if err != nil {
		return nil, err
	}
	emb, err := ai.NewEmbedder(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create embedder: %w", err)
	}
	primary, err := ai.NewGenerator(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("create generator: %w", err)
	}
	var local ai.Generator
	switch {
	case cc.Provider == ai.ProviderOllama:
		local = primary
	case cc.Provider != ai.ProviderStub && cfg.OllamaURL != "":
		local = ai.NewOllamaClient(cc)
	}
	logger.Info().Str("provider", string(cc.Provider)).Int("embedding_dim", emb.Dim()).
		Str("embed_model", cc.EmbedModel).Bool("local_fallback", local != nil).Msg("AI clients initialized")

	st, err := store.New(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}
	if err := st.Migrate(ctx, emb.Dim()); err != nil {
		st.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}

	gh, err := source.NewGitHub(ctx, cfg.GithubToken, cfg.GithubAPIURL)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create github client: %w", err)
	}

	ix := indexer.New(st, emb, indexer.Options{
		ChunkMaxChars:     cfg.Ingest.ChunkMaxChars,
		ChunkOverlapLines: cfg.Ingest.ChunkOverlap,
		BatchSize:         cfg.Ingest.BatchSize,
		ProgressEvery:     cfg.Ingest.ProgressEvery,
	})
	retriever := search.NewRetriever(emb, st)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Store:      st,
		Embedder:   emb,
		Retriever:  retriever,
		Answers:    answer.NewService(retriever, primary, local, answer.ParseMode(cfg.LLMMode)),
		Controller: ingest.NewController(st, gh, ix, cfg.Ingest.MaxFileBytes),
	}, nil
}

// JobTimeout is the per-job deadline, zero when unbounded.
func (a *App) JobTimeout() time.Duration {
	return time.Duration(a.Config.Ingest.TimeoutMinutes) * time.Minute
}

func (a *App) Close() {
	a.Store.Close()
}
