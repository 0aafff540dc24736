package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/rs/zerolog/log"
)

// Consumer runs jobs received from NSQ.
type Consumer struct {
	Runner  Runner
	Timeout time.Duration
}

func NewConsumer(r Runner, timeout time.Duration) *Consumer {
	return &Consumer{Runner: r, Timeout: timeout}
}

// HandleMessage implements nsq.Handler. Malformed payloads are acknowledged
// and dropped. Job failures are recorded on the job itself, so they are
// acknowledged too.
func (c *Consumer) HandleMessage(m *nsq.Message) error {
	if len(m.Body) == 0 {
		return nil
	}
	var msg JobMessage
	if err := json.Unmarshal(m.Body, &msg); err != nil {
		log.Error().Err(err).Msg("poison pill: invalid ingest message")
		return nil
	}
	if msg.RepoID == "" || msg.JobID == "" {
		log.Error().Str("body", string(m.Body)).Msg("poison pill: ingest message without ids")
		return nil
	}

	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	if err := c.Runner.Run(ctx, msg.RepoID, msg.JobID); err != nil {
		log.Warn().Err(err).Str("job_id", msg.JobID).Msg("queued ingestion ended with error")
	}
	return nil
}

// StartConsumer subscribes c to topic/channel, through nsqlookupd when
// lookupd is set and directly to nsqd otherwise.
func StartConsumer(c *Consumer, topic, channel, nsqd, lookupd string) (*nsq.Consumer, error) {
	cfg := nsq.NewConfig()
	cfg.MaxInFlight = 1
	consumer, err := nsq.NewConsumer(topic, channel, cfg)
	if err != nil {
		return nil, fmt.Errorf("nsq consumer: %w", err)
	}
	consumer.AddHandler(c)
	if lookupd != "" {
		err = consumer.ConnectToNSQLookupd(lookupd)
	} else {
		err = consumer.ConnectToNSQD(nsqd)
	}
	if err != nil {
		consumer.Stop()
		return nil, fmt.Errorf("nsq connect: %w", err)
	}
	return consumer, nil
}
