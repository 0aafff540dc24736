package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/pgvector/pgvector-go"
)

// maxEfSearch caps the per-query HNSW candidate list.
const maxEfSearch = 1000

func (s *Store) DeleteChunks(ctx context.Context, jobID string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM chunks WHERE job_id = $1`, jobID); err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	return nil
}

// InsertChunks writes chunks in a single batch round trip.
func (s *Store) InsertChunks(ctx context.Context, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	q := `
		INSERT INTO chunks (repo_id, job_id, path, chunk_index, start_line, end_line, text, embedding, text_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`
	b := &pgx.Batch{}
	for _, c := range chunks {
		b.Queue(q, c.RepoID, c.JobID, c.Path, c.ChunkIndex, c.StartLine, c.EndLine, c.Text,
			pgvector.NewVector(c.Embedding), c.TextHash)
	}
	br := s.pool.SendBatch(ctx, b)
	for range chunks {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert chunk: %w", err)
		}
	}
	return br.Close()
}

// VectorSearch returns up to limit chunks of repoID ordered by cosine
// similarity to vec. candidates widens the HNSW search list.
func (s *Store) VectorSearch(ctx context.Context, repoID string, vec []float32, candidates, limit int) ([]models.RetrievedChunk, error) {
	if limit <= 0 {
		return nil, nil
	}
	if candidates < limit {
		candidates = limit
	}
	if candidates > maxEfSearch {
		candidates = maxEfSearch
	}

	var out []models.RetrievedChunk
	err := pgx.BeginFunc(ctx, s.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT set_config('hnsw.ef_search', $1, true)`, fmt.Sprint(candidates)); err != nil {
			return fmt.Errorf("set ef_search: %w", err)
		}
		rows, err := tx.Query(ctx, `
			SELECT path, start_line, end_line, text, 1 - (embedding <=> $2) AS score
			FROM chunks
			WHERE repo_id = $1
			ORDER BY embedding <=> $2
			LIMIT $3`, repoID, pgvector.NewVector(vec), limit)
		if err != nil {
			return err
		}
		out, err = collectRetrieved(rows)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	return out, nil
}

// KeywordSearch returns chunks whose text matches the case-insensitive
// regular expression pattern. Scores are zero.
func (s *Store) KeywordSearch(ctx context.Context, repoID, pattern string, limit int) ([]models.RetrievedChunk, error) {
	if limit <= 0 || pattern == "" {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT path, start_line, end_line, text, 0::float8 AS score
		FROM chunks
		WHERE repo_id = $1 AND text ~* $2
		ORDER BY path, start_line
		LIMIT $3`, repoID, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	out, err := collectRetrieved(rows)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	return out, nil
}

func collectRetrieved(rows pgx.Rows) ([]models.RetrievedChunk, error) {
	defer rows.Close()
	var out []models.RetrievedChunk
	for rows.Next() {
		var r models.RetrievedChunk
		if err := rows.Scan(&r.Path, &r.StartLine, &r.EndLine, &r.Text, &r.Score); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
