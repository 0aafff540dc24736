package ingest

import (
	"context"
	"errors"
	"fmt"

	"github.com/nikhileshsirohi/codebase-explainer/internal/source"
	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// ErrUnsupportedProvider is returned for repository URLs that are not
// hosted on GitHub.
var ErrUnsupportedProvider = errors.New("only GitHub repository URLs are supported")

// ErrInvalidRepository is returned for GitHub URLs that do not name an
// owner and repository.
var ErrInvalidRepository = errors.New("invalid repository url")

// ServiceStore creates repositories and jobs.
type ServiceStore interface {
	UpsertRepository(ctx context.Context, repoURL, canonicalURL, provider string) (models.Repository, error)
	CreateJob(ctx context.Context, repoID, requestedBy string) (models.IngestJob, error)
	SetJobStatus(ctx context.Context, id string, status models.JobStatus, errMsg string) error
}

// Dispatcher hands a queued job to whatever executes it.
type Dispatcher interface {
	Dispatch(ctx context.Context, repoID, jobID string) error
}

// Service starts ingestions on behalf of API callers.
type Service struct {
	Store      ServiceStore
	Dispatcher Dispatcher
}

func NewService(s ServiceStore, d Dispatcher) *Service {
	return &Service{Store: s, Dispatcher: d}
}

// Start registers repoURL, creates a queued job and dispatches it. It
// returns as soon as the job is handed off.
func (s *Service) Start(ctx context.Context, repoURL, requestedBy string) (models.Repository, models.IngestJob, error) {
	if source.DetectProvider(repoURL) != source.ProviderGitHub {
		return models.Repository{}, models.IngestJob{}, ErrUnsupportedProvider
	}
	canonical, err := source.Canonicalize(repoURL)
	if err != nil {
		return models.Repository{}, models.IngestJob{}, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}
	if _, _, err := source.ParseOwnerRepo(canonical); err != nil {
		return models.Repository{}, models.IngestJob{}, fmt.Errorf("%w: %v", ErrInvalidRepository, err)
	}

	repo, err := s.Store.UpsertRepository(ctx, repoURL, canonical, source.ProviderGitHub)
	if err != nil {
		return models.Repository{}, models.IngestJob{}, err
	}
	job, err := s.Store.CreateJob(ctx, repo.ID, requestedBy)
	if err != nil {
		return models.Repository{}, models.IngestJob{}, err
	}

	if err := s.Dispatcher.Dispatch(ctx, repo.ID, job.ID); err != nil {
		msg := fmt.Sprintf("dispatch failed: %v", err)
		if serr := s.Store.SetJobStatus(ctx, job.ID, models.JobFailed, msg); serr != nil {
			log.Error().Err(serr).Str("job_id", job.ID).Msg("failed to record dispatch failure")
		}
		return models.Repository{}, models.IngestJob{}, fmt.Errorf("dispatch job: %w", err)
	}
	log.Info().Str("repo_id", repo.ID).Str("job_id", job.ID).Str("repo", canonical).Msg("ingestion queued")
	return repo, job, nil
}
