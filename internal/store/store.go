package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("not found")

// ErrJobNotRunning is returned when a job that is no longer running is
// marked done.
var ErrJobNotRunning = errors.New("job is not running")

// Store provides methods to interact with the database.
type Store struct {
	pool *pgxpool.Pool
}

// RepoStore persists repository records.
type RepoStore interface {
	UpsertRepository(ctx context.Context, repoURL, canonicalURL, provider string) (models.Repository, error)
	GetRepository(ctx context.Context, id string) (models.Repository, error)
	ListRepositories(ctx context.Context) ([]models.Repository, error)
	SetDefaultBranch(ctx context.Context, repoID, branch string) error
}

// JobStore persists ingest jobs and their stats.
type JobStore interface {
	CreateJob(ctx context.Context, repoID, requestedBy string) (models.IngestJob, error)
	GetJob(ctx context.Context, id string) (models.IngestJob, error)
	SetJobStatus(ctx context.Context, id string, status models.JobStatus, errMsg string) error
	MergeJobStats(ctx context.Context, id string, stats models.JobStats) error
}

// FileStore persists the job-scoped file listing and decoded contents.
type FileStore interface {
	ReplaceFiles(ctx context.Context, jobID string, files []models.FileRecord) error
	ReplaceContents(ctx context.Context, jobID string, contents []models.FileContent) error
	ListContents(ctx context.Context, jobID string) ([]models.FileContent, error)
	PruneSupersededJobs(ctx context.Context, repoID, keepJobID string) error
}

// ChunkStore persists embedded chunks.
type ChunkStore interface {
	DeleteChunks(ctx context.Context, jobID string) error
	InsertChunks(ctx context.Context, chunks []models.Chunk) error
}

// SearchStore answers vector and keyword queries over a repository's chunks.
type SearchStore interface {
	VectorSearch(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error)
	KeywordSearch(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error)
}

// ChatStore persists chat sessions and messages.
type ChatStore interface {
	CreateSession(ctx context.Context, repoID string) (string, error)
	SessionRepo(ctx context.Context, sessionID string) (string, error)
	AddMessage(ctx context.Context, sessionID, role, content string) error
	RecentMessages(ctx context.Context, sessionID string, turns int) ([]models.ChatMessage, error)
}

// New creates a new Store instance connected to the given database URL.
func New(ctx context.Context, url string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(url)
	if err != nil {
		return nil, err
	}
	p, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Store{pool: p}, nil
}

func (s *Store) Close() { s.pool.Close() }

// Ping checks the database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	return s.pool.Ping(ctx)
}

// maxHNSWDim is the largest dimension pgvector can index with HNSW.
const maxHNSWDim = 2000

// Migrate applies necessary database migrations and schema setup. The
// embedding dimension is fixed by the first migration of a database.
func (s *Store) Migrate(ctx context.Context, dim int) error {
	if dim <= 0 {
		return fmt.Errorf("embedding dimension must be positive, got %d", dim)
	}
	q := `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS repositories (
  id             TEXT PRIMARY KEY,
  repo_url       TEXT NOT NULL,
  canonical_url  TEXT NOT NULL UNIQUE,
  provider       TEXT NOT NULL,
  default_branch TEXT NOT NULL DEFAULT '',
  created_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  updated_at     TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS ingest_jobs (
  id           TEXT PRIMARY KEY,
  repo_id      TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
  status       TEXT NOT NULL,
  error        TEXT NOT NULL DEFAULT '',
  stats        JSONB NOT NULL DEFAULT '{}'::jsonb,
  requested_by TEXT NOT NULL DEFAULT '',
  created_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  updated_at   TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS ingest_jobs_repo_idx ON ingest_jobs (repo_id, created_at DESC);
CREATE INDEX IF NOT EXISTS ingest_jobs_status_idx ON ingest_jobs (status, updated_at);

CREATE TABLE IF NOT EXISTS repo_files (
  repo_id    TEXT NOT NULL,
  job_id     TEXT NOT NULL REFERENCES ingest_jobs(id) ON DELETE CASCADE,
  path       TEXT NOT NULL,
  sha        TEXT NOT NULL DEFAULT '',
  size       BIGINT NOT NULL DEFAULT 0,
  url        TEXT NOT NULL DEFAULT '',
  mode       TEXT NOT NULL DEFAULT '',
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  PRIMARY KEY (job_id, path)
);

CREATE TABLE IF NOT EXISTS repo_file_contents (
  repo_id    TEXT NOT NULL,
  job_id     TEXT NOT NULL REFERENCES ingest_jobs(id) ON DELETE CASCADE,
  path       TEXT NOT NULL,
  sha        TEXT NOT NULL DEFAULT '',
  size       BIGINT NOT NULL DEFAULT 0,
  text       TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now(),
  PRIMARY KEY (job_id, path)
);

CREATE TABLE IF NOT EXISTS chunks (
  id          BIGSERIAL PRIMARY KEY,
  repo_id     TEXT NOT NULL,
  job_id      TEXT NOT NULL REFERENCES ingest_jobs(id) ON DELETE CASCADE,
  path        TEXT NOT NULL,
  chunk_index INT NOT NULL,
  start_line  INT NOT NULL,
  end_line    INT NOT NULL,
  text        TEXT NOT NULL,
  embedding   vector(%d) NOT NULL,
  text_hash   TEXT NOT NULL,
  created_at  TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS chunks_repo_idx ON chunks (repo_id);
CREATE INDEX IF NOT EXISTS chunks_job_idx ON chunks (job_id);

CREATE TABLE IF NOT EXISTS chat_sessions (
  id         TEXT PRIMARY KEY,
  repo_id    TEXT NOT NULL REFERENCES repositories(id) ON DELETE CASCADE,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS chat_messages (
  id         BIGSERIAL PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES chat_sessions(id) ON DELETE CASCADE,
  role       TEXT NOT NULL,
  content    TEXT NOT NULL,
  created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT clock_timestamp()
);
CREATE INDEX IF NOT EXISTS chat_messages_session_idx ON chat_messages (session_id, id);
`
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(q, dim)); err != nil {
		return fmt.Errorf("migrate schema: %w", err)
	}
	if dim <= maxHNSWDim {
		const idx = `CREATE INDEX IF NOT EXISTS chunks_embedding_hnsw ON chunks USING hnsw (embedding vector_cosine_ops);`
		if _, err := s.pool.Exec(ctx, idx); err != nil {
			return fmt.Errorf("create vector index: %w", err)
		}
	}
	return nil
}
