package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// TimedOutMessage is the error recorded on jobs failed by the Sweeper.
const TimedOutMessage = "Ingestion timed out"

// StaleJobStore fails running jobs that have not progressed recently.
type StaleJobStore interface {
	FailStaleJobs(ctx context.Context, maxAge time.Duration, msg string) (int64, error)
}

// Sweeper periodically fails running jobs whose last update is older than
// MaxAge.
type Sweeper struct {
	Store  StaleJobStore
	MaxAge time.Duration

	cron *cron.Cron
}

// NewSweeper schedules Sweep on a cron spec such as "@every 1m".
func NewSweeper(s StaleJobStore, maxAge time.Duration, schedule string) (*Sweeper, error) {
	if maxAge <= 0 {
		return nil, fmt.Errorf("sweeper max age must be positive, got %s", maxAge)
	}
	sw := &Sweeper{Store: s, MaxAge: maxAge, cron: cron.New()}
	if _, err := sw.cron.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if _, err := sw.Sweep(ctx); err != nil {
			log.Error().Err(err).Msg("stale job sweep failed")
		}
	}); err != nil {
		return nil, fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	return sw, nil
}

// Sweep runs one pass and returns how many jobs were failed.
func (s *Sweeper) Sweep(ctx context.Context) (int64, error) {
	n, err := s.Store.FailStaleJobs(ctx, s.MaxAge, TimedOutMessage)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		log.Warn().Int64("jobs", n).Dur("max_age", s.MaxAge).Msg("failed stale ingest jobs")
	}
	return n, nil
}

func (s *Sweeper) Start() { s.cron.Start() }

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() { <-s.cron.Stop().Done() }
