package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nikhileshsirohi/codebase-explainer/pkg/models"
	"github.com/rs/zerolog/log"
)

// Runner executes a job to a terminal state.
type Runner interface {
	Run(ctx context.Context, repoID, jobID string) error
}

// StatusSetter records job status changes.
type StatusSetter interface {
	SetJobStatus(ctx context.Context, id string, status models.JobStatus, errMsg string) error
}

// GoDispatcher runs each job on its own goroutine, detached from the
// caller's context.
type GoDispatcher struct {
	Runner  Runner
	Jobs    StatusSetter
	Timeout time.Duration

	wg sync.WaitGroup
}

func NewGoDispatcher(r Runner, jobs StatusSetter, timeout time.Duration) *GoDispatcher {
	return &GoDispatcher{Runner: r, Jobs: jobs, Timeout: timeout}
}

func (d *GoDispatcher) Dispatch(ctx context.Context, repoID, jobID string) error {
	runCtx := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		var cancel context.CancelFunc = func() {}
		if d.Timeout > 0 {
			runCtx, cancel = context.WithTimeout(runCtx, d.Timeout)
		}
		defer cancel()
		defer func() {
			if v := recover(); v != nil {
				log.Error().Str("job_id", jobID).Interface("panic", v).Msg("ingestion panicked")
				if d.Jobs != nil {
					msg := fmt.Sprintf("internal error: %v", v)
					if err := d.Jobs.SetJobStatus(context.Background(), jobID, models.JobFailed, msg); err != nil {
						log.Error().Err(err).Str("job_id", jobID).Msg("failed to record job failure")
					}
				}
			}
		}()
		if err := d.Runner.Run(runCtx, repoID, jobID); err != nil {
			log.Warn().Err(err).Str("job_id", jobID).Msg("background ingestion ended with error")
		}
	}()
	return nil
}

// Wait blocks until every dispatched job has returned.
func (d *GoDispatcher) Wait() { d.wg.Wait() }

// JobMessage is the queue payload for one ingest job.
type JobMessage struct {
	RepoID string `json:"repo_id"`
	JobID  string `json:"job_id"`
}

// Publisher is the subset of *nsq.Producer used for dispatch.
type Publisher interface {
	Publish(topic string, body []byte) error
}

// NSQDispatcher publishes jobs to an NSQ topic for a Consumer to run.
type NSQDispatcher struct {
	Producer Publisher
	Topic    string
}

func NewNSQDispatcher(p Publisher, topic string) *NSQDispatcher {
	return &NSQDispatcher{Producer: p, Topic: topic}
}

func (d *NSQDispatcher) Dispatch(_ context.Context, repoID, jobID string) error {
	body, err := json.Marshal(JobMessage{RepoID: repoID, JobID: jobID})
	if err != nil {
		return err
	}
	if err := d.Producer.Publish(d.Topic, body); err != nil {
		return fmt.Errorf("publish to %s: %w", d.Topic, err)
	}
	return nil
}
