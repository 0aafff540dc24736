package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

const jobColumns = `id, repo_id, status, error, stats, requested_by, created_at, updated_at`

// CreateJob inserts a queued job for repoID.
func (s *Store) CreateJob(ctx context.Context, repoID, requestedBy string) (models.IngestJob, error) {
	q := `
		INSERT INTO ingest_jobs (id, repo_id, status, requested_by)
		VALUES ($1, $2, $3, $4)
		RETURNING ` + jobColumns
	j, err := scanJob(s.pool.QueryRow(ctx, q, uuid.NewString(), repoID, string(models.JobQueued), requestedBy))
	if err != nil {
		return models.IngestJob{}, fmt.Errorf("create job: %w", err)
	}
	return j, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (models.IngestJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx, `SELECT `+jobColumns+` FROM ingest_jobs WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IngestJob{}, ErrNotFound
	}
	return j, err
}

// LatestJob returns the most recently created job of a repository.
func (s *Store) LatestJob(ctx context.Context, repoID string) (models.IngestJob, error) {
	j, err := scanJob(s.pool.QueryRow(ctx,
		`SELECT `+jobColumns+` FROM ingest_jobs WHERE repo_id = $1 ORDER BY created_at DESC LIMIT 1`, repoID))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.IngestJob{}, ErrNotFound
	}
	return j, err
}

// SetJobStatus moves job id to status. A job only becomes done from running,
// so a job already failed elsewhere stays failed.
func (s *Store) SetJobStatus(ctx context.Context, id string, status models.JobStatus, errMsg string) error {
	q := `UPDATE ingest_jobs SET status = $2, error = $3, updated_at = now() WHERE id = $1`
	args := []any{id, string(status), errMsg}
	if status == models.JobDone {
		q += ` AND status = $4`
		args = append(args, string(models.JobRunning))
	}
	tag, err := s.pool.Exec(ctx, q, args...)
	if err != nil {
		return fmt.Errorf("set job status: %w", err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}
	if status == models.JobDone {
		if _, err := s.GetJob(ctx, id); err == nil {
			return ErrJobNotRunning
		}
	}
	return ErrNotFound
}

// MergeJobStats overwrites the keys present in stats and keeps the others.
func (s *Store) MergeJobStats(ctx context.Context, id string, stats models.JobStats) error {
	b, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE ingest_jobs SET stats = stats || $2::jsonb, updated_at = now() WHERE id = $1`,
		id, string(b))
	if err != nil {
		return fmt.Errorf("merge job stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// FailStaleJobs marks running jobs without progress for longer than maxAge as
// failed and returns how many were changed.
func (s *Store) FailStaleJobs(ctx context.Context, maxAge time.Duration, msg string) (int64, error) {
	tag, err := s.pool.Exec(ctx, `
		UPDATE ingest_jobs
		SET status = $1, error = $2, updated_at = now()
		WHERE status = $3 AND updated_at < now() - make_interval(secs => $4)`,
		string(models.JobFailed), msg, string(models.JobRunning), maxAge.Seconds())
	if err != nil {
		return 0, fmt.Errorf("fail stale jobs: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanJob(row pgx.Row) (models.IngestJob, error) {
	var (
		j      models.IngestJob
		status string
		stats  []byte
	)
	if err := row.Scan(&j.ID, &j.RepoID, &status, &j.Error, &stats, &j.RequestedBy, &j.CreatedAt, &j.UpdatedAt); err != nil {
		return models.IngestJob{}, err
	}
	j.Status = models.JobStatus(status)
	if len(stats) > 0 {
		if err := json.Unmarshal(stats, &j.Stats); err != nil {
			return models.IngestJob{}, fmt.Errorf("decode job stats: %w", err)
		}
	}
	return j, nil
}
