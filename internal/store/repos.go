package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
)

const repoColumns = `id, repo_url, canonical_url, provider, default_branch, created_at, updated_at`

// UpsertRepository creates the repository for canonicalURL or refreshes the
// raw URL and update time of the existing record.
func (s *Store) UpsertRepository(ctx context.Context, repoURL, canonicalURL, provider string) (models.Repository, error) {
	q := `
		INSERT INTO repositories (id, repo_url, canonical_url, provider)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (canonical_url) DO UPDATE SET
			repo_url   = EXCLUDED.repo_url,
			updated_at = now()
		RETURNING ` + repoColumns
	r, err := scanRepository(s.pool.QueryRow(ctx, q, uuid.NewString(), repoURL, canonicalURL, provider))
	if err != nil {
		return models.Repository{}, fmt.Errorf("upsert repository: %w", err)
	}
	return r, nil
}

func (s *Store) GetRepository(ctx context.Context, id string) (models.Repository, error) {
	r, err := scanRepository(s.pool.QueryRow(ctx, `SELECT `+repoColumns+` FROM repositories WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Repository{}, ErrNotFound
	}
	return r, err
}

// ListRepositories returns all repositories, most recently updated first.
func (s *Store) ListRepositories(ctx context.Context) ([]models.Repository, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+repoColumns+` FROM repositories ORDER BY updated_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.Repository
	for rows.Next() {
		r, err := scanRepository(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) SetDefaultBranch(ctx context.Context, repoID, branch string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE repositories SET default_branch = $2, updated_at = now() WHERE id = $1`, repoID, branch)
	if err != nil {
		return fmt.Errorf("set default branch: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CountChunks reports how many chunks are stored for a repository.
func (s *Store) CountChunks(ctx context.Context, repoID string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT count(*) FROM chunks WHERE repo_id = $1`, repoID).Scan(&n)
	return n, err
}

func scanRepository(row pgx.Row) (models.Repository, error) {
	var r models.Repository
	err := row.Scan(&r.ID, &r.RepoURL, &r.CanonicalURL, &r.Provider, &r.DefaultBranch, &r.CreatedAt, &r.UpdatedAt)
	return r, err
}
