// Package indexer turns the decoded files of an ingest job into embedded,
// persisted chunks.
package indexer

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"

	"github.com/nikhileshsirohi/codebase-explainer/internal/ai"
	"github.com/nikhileshsirohi/codebase-explainer/internal/chunker"
	"github.com/nikhileshsirohi/codebase-explainer/internal/store"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// Store is the persistence the indexer reads from and writes to.
type Store interface {
	store.ChunkStore
	ListContents(ctx context.Context, jobID string) ([]models.FileContent, error)
	MergeJobStats(ctx context.Context, id string, stats models.JobStats) error
}

// Options bounds chunk size and persistence cadence.
type Options struct {
	ChunkMaxChars     int
	ChunkOverlapLines int
	BatchSize         int
	ProgressEvery     int
}

// DefaultOptions returns the stock chunking and batching settings.
func DefaultOptions() Options {
	return Options{ChunkMaxChars: 1800, ChunkOverlapLines: 10, BatchSize: 200, ProgressEvery: 200}
}

// Indexer handles embedding of one job's files.
type Indexer struct {
	Store    Store
	Embedder ai.Embedder
	Options  Options
}

// New creates a new Indexer, filling unset options with defaults.
func New(s Store, e ai.Embedder, opts Options) *Indexer {
	def := DefaultOptions()
	if opts.ChunkMaxChars <= 0 {
		opts.ChunkMaxChars = def.ChunkMaxChars
	}
	if opts.ChunkOverlapLines < 0 {
		opts.ChunkOverlapLines = 0
	}
	if opts.BatchSize <= 0 {
		opts.BatchSize = def.BatchSize
	}
	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = def.ProgressEvery
	}
	return &Indexer{Store: s, Embedder: e, Options: opts}
}

// hashContent returns the SHA-1 hash of the given content as a hex string.
func hashContent(s string) string {
	h := sha1.Sum([]byte(s))
	return hex.EncodeToString(h[:])
}

// EmbedInput composes the text that is embedded for a chunk. The header
// gives the vector file and position context beyond the snippet itself.
func EmbedInput(p string, start, end int, text string) string {
	return fmt.Sprintf("FILE: %s\nLINES: %d-%d\n\n%s", p, start, end, text)
}

// Index replaces the chunks of jobID with freshly embedded chunks of every
// file stored for the job. Batches are not transactional; a rerun with the
// same job id discards whatever an interrupted run left behind.
func (ix *Indexer) Index(ctx context.Context, repoID, jobID string) (models.JobStats, error) {
	if err := ix.Store.DeleteChunks(ctx, jobID); err != nil {
		return models.JobStats{}, err
	}
	files, err := ix.Store.ListContents(ctx, jobID)
	if err != nil {
		return models.JobStats{}, fmt.Errorf("list contents: %w", err)
	}

	var (
		batch     = make([]models.Chunk, 0, ix.Options.BatchSize)
		produced  int
		embedded  int
		lastFlush int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		if err := ix.Store.InsertChunks(ctx, batch); err != nil {
			return err
		}
		embedded += len(batch)
		batch = batch[:0]
		if embedded-lastFlush >= ix.Options.ProgressEvery {
			lastFlush = embedded
			if err := ix.Store.MergeJobStats(ctx, jobID, models.JobStats{ChunksEmbedded: models.Count(embedded)}); err != nil {
				return err
			}
			log.Info().Str("job_id", jobID).Int("chunks_embedded", embedded).Msg("embedding progress")
		}
		return nil
	}

	for _, f := range files {
		spans := chunker.Chunk(f.Text, f.Path, ix.Options.ChunkMaxChars, ix.Options.ChunkOverlapLines)
		if len(spans) == 0 {
			continue
		}
		for i, sp := range spans {
			if err := ctx.Err(); err != nil {
				return models.JobStats{}, err
			}
			produced++
			input := EmbedInput(f.Path, sp.StartLine, sp.EndLine, sp.Text)
			vec, err := ix.Embedder.Embed(ctx, input)
			if err != nil {
				return models.JobStats{}, fmt.Errorf("embed %s:%d-%d: %w", f.Path, sp.StartLine, sp.EndLine, err)
			}
			batch = append(batch, models.Chunk{
				RepoID:     repoID,
				JobID:      jobID,
				Path:       f.Path,
				ChunkIndex: i,
				StartLine:  sp.StartLine,
				EndLine:    sp.EndLine,
				Text:       sp.Text,
				Embedding:  vec,
				TextHash:   hashContent(input),
			})
			if len(batch) >= ix.Options.BatchSize {
				if err := flush(); err != nil {
					return models.JobStats{}, err
				}
			}
		}
		log.Debug().Str("job_id", jobID).Str("path", f.Path).Int("chunks", len(spans)).Msg("file chunked")
	}
	if err := flush(); err != nil {
		return models.JobStats{}, err
	}

	stats := models.JobStats{
		ChunksProduced: models.Count(produced),
		ChunksEmbedded: models.Count(embedded),
	}
	if err := ix.Store.MergeJobStats(ctx, jobID, stats); err != nil {
		return models.JobStats{}, err
	}
	log.Info().Str("job_id", jobID).Int("files", len(files)).Int("chunks", embedded).Msg("indexing complete")
	return stats, nil
}
