package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

// ReplaceFiles deletes the file listing of jobID and writes files in its place.
func (s *Store) ReplaceFiles(ctx context.Context, jobID string, files []models.FileRecord) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM repo_files WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("delete files: %w", err)
		}
		if len(files) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"repo_files"},
			[]string{"repo_id", "job_id", "path", "sha", "size", "url", "mode"},
			pgx.CopyFromSlice(len(files), func(i int) ([]any, error) {
				f := files[i]
				return []any{f.RepoID, jobID, f.Path, f.SHA, f.Size, f.URL, f.Mode}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy files: %w", err)
		}
		return nil
	})
}

// ReplaceContents deletes the decoded contents of jobID and writes contents
// in their place.
func (s *Store) ReplaceContents(ctx context.Context, jobID string, contents []models.FileContent) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM repo_file_contents WHERE job_id = $1`, jobID); err != nil {
			return fmt.Errorf("delete contents: %w", err)
		}
		if len(contents) == 0 {
			return nil
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"repo_file_contents"},
			[]string{"repo_id", "job_id", "path", "sha", "size", "text"},
			pgx.CopyFromSlice(len(contents), func(i int) ([]any, error) {
				c := contents[i]
				return []any{c.RepoID, jobID, c.Path, c.SHA, c.Size, c.Text}, nil
			}),
		)
		if err != nil {
			return fmt.Errorf("copy contents: %w", err)
		}
		return nil
	})
}

// ListContents returns the decoded files of a job ordered by path.
func (s *Store) ListContents(ctx context.Context, jobID string) ([]models.FileContent, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT repo_id, job_id, path, sha, size, text
		FROM repo_file_contents WHERE job_id = $1 ORDER BY path`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.FileContent
	for rows.Next() {
		var c models.FileContent
		if err := rows.Scan(&c.RepoID, &c.JobID, &c.Path, &c.SHA, &c.Size, &c.Text); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// PruneSupersededJobs removes files, contents and chunks of jobs created
// before keepJobID in the same repository. Running jobs and newer jobs keep
// their rows.
func (s *Store) PruneSupersededJobs(ctx context.Context, repoID, keepJobID string) error {
	return pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		for _, table := range []string{"chunks", "repo_file_contents", "repo_files"} {
			q := fmt.Sprintf(`
				DELETE FROM %s
				WHERE repo_id = $1 AND job_id IN (
					SELECT id FROM ingest_jobs
					WHERE repo_id = $1 AND id <> $2 AND status <> $3
					  AND created_at < (SELECT created_at FROM ingest_jobs WHERE id = $2)
				)`, table)
			if _, err := tx.Exec(ctx, q, repoID, keepJobID, string(models.JobRunning)); err != nil {
				return fmt.Errorf("prune %s: %w", table, err)
			}
		}
		return nil
	})
}
