// Package ingest runs repository ingestion jobs: it drives the
// queued → running → done/failed state machine, dispatches jobs off the
// request path, and fails jobs that stop making progress.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/nikhileshsirohi/codebase-explainer/internal/source"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// Store is the persistence used while running a job.
type Store interface {
	GetRepository(ctx context.Context, id string) (models.Repository, error)
	SetDefaultBranch(ctx context.Context, repoID, branch string) error
	SetJobStatus(ctx context.Context, id string, status models.JobStatus, errMsg string) error
	MergeJobStats(ctx context.Context, id string, stats models.JobStats) error
	ReplaceFiles(ctx context.Context, jobID string, files []models.FileRecord) error
	ReplaceContents(ctx context.Context, jobID string, contents []models.FileContent) error
	PruneSupersededJobs(ctx context.Context, repoID, keepJobID string) error
}

// Indexer embeds the stored contents of a job.
type Indexer interface {
	Index(ctx context.Context, repoID, jobID string) (models.JobStats, error)
}

// Controller executes one ingest job from tree listing to embedded chunks.
type Controller struct {
	Store        Store
	Fetcher      source.Fetcher
	Indexer      Indexer
	MaxFileBytes int64
}

func NewController(s Store, f source.Fetcher, ix Indexer, maxFileBytes int64) *Controller {
	return &Controller{Store: s, Fetcher: f, Indexer: ix, MaxFileBytes: maxFileBytes}
}

// Run executes jobID for repoID. Any error marks the job failed with the
// error text and is returned. Rerunning the same job id replaces the files,
// contents and chunks written by an earlier attempt.
func (c *Controller) Run(ctx context.Context, repoID, jobID string) error {
	if err := c.Store.SetJobStatus(ctx, jobID, models.JobRunning, ""); err != nil {
		return fmt.Errorf("mark job running: %w", err)
	}
	logger := log.With().Str("job_id", jobID).Str("repo_id", repoID).Logger()
	logger.Info().Msg("ingestion started")

	stats, err := c.run(ctx, repoID, jobID)
	if err != nil {
		logger.Error().Err(err).Msg("ingestion failed")
		// The job must still reach a terminal state when ctx was canceled.
		if serr := c.Store.SetJobStatus(context.WithoutCancel(ctx), jobID, models.JobFailed, err.Error()); serr != nil {
			logger.Error().Err(serr).Msg("failed to record job failure")
		}
		return err
	}

	if err := c.Store.SetJobStatus(ctx, jobID, models.JobDone, ""); err != nil {
		// A sweeper may have failed the job while it ran; its rows are left unpruned.
		logger.Warn().Err(err).Msg("job not marked done")
		return fmt.Errorf("mark job done: %w", err)
	}
	if err := c.Store.PruneSupersededJobs(ctx, repoID, jobID); err != nil {
		logger.Warn().Err(err).Msg("failed to prune superseded jobs")
	}
	logEvent := logger.Info()
	if stats.ChunksEmbedded != nil {
		logEvent = logEvent.Int("chunks_embedded", *stats.ChunksEmbedded)
	}
	logEvent.Msg("ingestion done")
	return nil
}

func (c *Controller) run(ctx context.Context, repoID, jobID string) (models.JobStats, error) {
	repo, err := c.Store.GetRepository(ctx, repoID)
	if err != nil {
		return models.JobStats{}, fmt.Errorf("load repository: %w", err)
	}
	owner, name, err := source.ParseOwnerRepo(repo.CanonicalURL)
	if err != nil {
		return models.JobStats{}, err
	}

	tree, err := c.Fetcher.Tree(ctx, owner, name)
	if err != nil {
		return models.JobStats{}, err
	}
	records := make([]models.FileRecord, 0, len(tree.Files))
	for _, e := range tree.Files {
		records = append(records, models.FileRecord{
			RepoID: repoID, JobID: jobID, Path: e.Path, SHA: e.SHA, Size: e.Size, URL: e.URL, Mode: e.Mode,
		})
	}
	if err := c.Store.ReplaceFiles(ctx, jobID, records); err != nil {
		return models.JobStats{}, err
	}
	if tree.DefaultBranch != "" {
		if err := c.Store.SetDefaultBranch(ctx, repoID, tree.DefaultBranch); err != nil {
			return models.JobStats{}, err
		}
	}
	stats := models.JobStats{FilesIndexed: models.Count(len(records))}
	if err := c.Store.MergeJobStats(ctx, jobID, stats); err != nil {
		return models.JobStats{}, err
	}

	contents, cstats, err := c.fetchContents(ctx, owner, name, repoID, jobID, tree.Files)
	if err != nil {
		return models.JobStats{}, err
	}
	if err := c.Store.ReplaceContents(ctx, jobID, contents); err != nil {
		return models.JobStats{}, err
	}
	stats = stats.Merge(cstats)
	if err := c.Store.MergeJobStats(ctx, jobID, cstats); err != nil {
		return models.JobStats{}, err
	}

	istats, err := c.Indexer.Index(ctx, repoID, jobID)
	if err != nil {
		return models.JobStats{}, err
	}
	stats = stats.Merge(istats)
	if err := c.Store.MergeJobStats(ctx, jobID, stats); err != nil {
		return models.JobStats{}, err
	}
	return stats, nil
}

// fetchContents downloads and decodes every admitted file. Individual
// failures are counted and skipped; only cancellation aborts the phase.
func (c *Controller) fetchContents(ctx context.Context, owner, name, repoID, jobID string, files []source.Entry) ([]models.FileContent, models.JobStats, error) {
	var (
		out                      []models.FileContent
		fetched, skipped, failed int
	)
	for _, e := range files {
		if !source.Admit(e.Path, e.Size, c.MaxFileBytes) {
			skipped++
			continue
		}
		data, err := c.Fetcher.Content(ctx, owner, name, e)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, models.JobStats{}, ctxErr
			}
			var rl *source.RateLimitError
			if errors.As(err, &rl) {
				log.Warn().Err(err).Str("path", e.Path).Msg("rate limited fetching file content")
			} else {
				log.Warn().Err(err).Str("path", e.Path).Msg("failed to fetch file content")
			}
			failed++
			continue
		}
		if source.IsBinary(data) {
			skipped++
			continue
		}
		text := strings.ReplaceAll(source.Decode(data), "\x00", "")
		out = append(out, models.FileContent{
			RepoID: repoID, JobID: jobID, Path: e.Path, SHA: e.SHA, Size: e.Size, Text: text,
		})
		fetched++
	}
	return out, models.JobStats{
		FilesFetched: models.Count(fetched),
		FilesSkipped: models.Count(skipped),
		FilesFailed:  models.Count(failed),
	}, nil
}
