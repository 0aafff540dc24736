// Package mcpserver exposes ingestion and question answering as MCP tools
// over stdio.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/store"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

const (
	ServerName    = "codebase-explainer"
	ServerVersion = "0.1.0"

	defaultTopK = 8
	maxTopK     = 50
)

// Ingester starts ingestion jobs.
type Ingester interface {
	Start(ctx context.Context, repoURL, requestedBy string) (models.Repository, models.IngestJob, error)
}

// Answerer answers questions about a repository.
type Answerer interface {
	Answer(ctx context.Context, repoID, question string, history []models.ChatMessage, k int) (models.Answer, error)
}

// Searcher runs raw similarity search.
type Searcher interface {
	Search(ctx context.Context, repoID, query string, k int) ([]models.RetrievedChunk, error)
}

// Store is the persistence the tools read.
type Store interface {
	GetJob(ctx context.Context, id string) (models.IngestJob, error)
	CountChunks(ctx context.Context, repoID string) (int, error)
}

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp      *server.MCPServer
	ingest   Ingester
	answers  Answerer
	searcher Searcher
	store    Store
}

// New creates the MCP server and registers its tools.
func New(i Ingester, a Answerer, s Searcher, st Store) *Server {
	srv := &Server{
		mcp:      server.NewMCPServer(ServerName, ServerVersion, server.WithToolCapabilities(false)),
		ingest:   i,
		answers:  a,
		searcher: s,
		store:    st,
	}
	srv.mcp.AddTool(ingestTool(), srv.handleIngest)
	srv.mcp.AddTool(getJobTool(), srv.handleGetJob)
	srv.mcp.AddTool(askTool(), srv.handleAsk)
	srv.mcp.AddTool(searchTool(), srv.handleSearch)
	return srv
}

// Serve blocks serving MCP on stdio.
func (s *Server) Serve() error {
	return server.ServeStdio(s.mcp)
}

func ingestTool() mcp.Tool {
	return mcp.NewTool("ingest_repository",
		mcp.WithDescription("Start indexing a public GitHub repository. Returns the repository and job ids; poll get_job until the job is done."),
		mcp.WithString("repo_url", mcp.Required(), mcp.Description("GitHub repository URL, e.g. https://github.com/owner/repo")),
	)
}

func getJobTool() mcp.Tool {
	return mcp.NewTool("get_job",
		mcp.WithDescription("Get the status and statistics of an ingestion job"),
		mcp.WithString("job_id", mcp.Required(), mcp.Description("Job id returned by ingest_repository")),
	)
}

func askTool() mcp.Tool {
	return mcp.NewTool("ask_repository",
		mcp.WithDescription("Answer a question about an indexed repository with cited evidence"),
		mcp.WithString("repo_id", mcp.Required(), mcp.Description("Repository id")),
		mcp.WithString("question", mcp.Required(), mcp.Description("Natural-language question about the code")),
		mcp.WithNumber("top_k", mcp.Description("Maximum evidence chunks (default 8)")),
	)
}

func searchTool() mcp.Tool {
	return mcp.NewTool("search_repository",
		mcp.WithDescription("Similarity search over the chunks of an indexed repository"),
		mcp.WithString("repo_id", mcp.Required(), mcp.Description("Repository id")),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search text")),
		mcp.WithNumber("k", mcp.Description("Number of results (default 8)")),
	)
}

func (s *Server) handleIngest(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoURL, err := request.RequireString("repo_url")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	repo, job, err := s.ingest.Start(ctx, repoURL, "mcp")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("start ingestion: %v", err)), nil
	}
	return jsonResult(map[string]any{
		"repo_id": repo.ID,
		"job_id":  job.ID,
		"status":  job.Status,
	})
}

func (s *Server) handleGetJob(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireString("job_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	job, err := s.store.GetJob(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return mcp.NewToolResultError("job not found: " + id), nil
	}
	if err != nil {
		return nil, err
	}
	return jsonResult(job)
}

func (s *Server) handleAsk(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repo_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	question, err := request.RequireString("question")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	k := clampK(request.GetInt("top_k", defaultTopK))

	n, err := s.store.CountChunks(ctx, repoID)
	if err != nil {
		return nil, err
	}
	if n == 0 {
		return mcp.NewToolResultError("repository is not indexed yet; run ingest_repository and wait for the job to finish"), nil
	}

	ans, err := s.answers.Answer(ctx, repoID, question, nil, k)
	if errors.Is(err, ai.ErrRateLimited) {
		return mcp.NewToolResultError("answer provider quota exceeded; retry later or configure a local model"), nil
	}
	if err != nil {
		log.Error().Err(err).Str("repo_id", repoID).Msg("mcp ask failed")
		return mcp.NewToolResultError(fmt.Sprintf("answer failed: %v", err)), nil
	}
	return jsonResult(ans)
}

func (s *Server) handleSearch(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	repoID, err := request.RequireString("repo_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	query, err := request.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	res, err := s.searcher.Search(ctx, repoID, query, clampK(request.GetInt("k", defaultTopK)))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("search failed: %v", err)), nil
	}
	if res == nil {
		res = []models.RetrievedChunk{}
	}
	return jsonResult(res)
}

func clampK(k int) int {
	if k <= 0 {
		return defaultTopK
	}
	return min(k, maxTopK)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}
