package main

import (
	"context"
	"errors"
	"fmt"
	stdlog "log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nikhileshsirohi/codebase-explainer/internal/api"
	"github.com/nikhileshsirohi/codebase-explainer/internal/app"
	"github.com/nikhileshsirohi/codebase-explainer/internal/auth"
	"github.com/nikhileshsirohi/codebase-explainer/internal/config"
	"github.com/nikhileshsirohi/codebase-explainer/internal/ingest"
	"github.com/nsqio/go-nsq"
	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Create flagset for configuration
	fs := pflag.NewFlagSet("explainer-api", pflag.ExitOnError)

	// Load configuration
	cfg, err := config.Load("", fs)
	if err != nil {
		stdlog.Fatalf("Failed to load configuration: %v", err)
	}
	fs.Usage = cfg.Usage

	logger, err := app.NewLogger(cfg, os.Stdout)
	if err != nil {
		stdlog.Fatal(err)
	}
	logger.Info().Str("provider", cfg.Provider).Str("llm_mode", cfg.LLMMode).Str("config", cfg.Source()).
		Bool("auth_enabled", cfg.Auth.Enabled).Msg("starting codebase-explainer api")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("startup failed")
	}
	defer a.Close()

	authn, err := auth.New(cfg.Auth.JwtSecret, cfg.Auth.Enabled)
	if err != nil {
		logger.Fatal().Err(err).Msg("auth setup failed")
	}

	// Jobs go through NSQ when an nsqd address is configured, otherwise they
	// run in-process.
	var (
		dispatcher ingest.Dispatcher
		producer   *nsq.Producer
		local      *ingest.GoDispatcher
	)
	if cfg.NSQ.Address != "" {
		producer, err = nsq.NewProducer(cfg.NSQ.Address, nsq.NewConfig())
		if err != nil {
			logger.Fatal().Err(err).Msg("nsq producer")
		}
		defer producer.Stop()
		dispatcher = ingest.NewNSQDispatcher(producer, cfg.NSQ.Topic)
		logger.Info().Str("nsqd", cfg.NSQ.Address).Str("topic", cfg.NSQ.Topic).Msg("queue dispatch enabled")
	} else {
		local = ingest.NewGoDispatcher(a.Controller, a.Store, a.JobTimeout())
		dispatcher = local
	}

	var consumer *nsq.Consumer
	if cfg.NSQ.Worker {
		consumer, err = ingest.StartConsumer(ingest.NewConsumer(a.Controller, a.JobTimeout()),
			cfg.NSQ.Topic, cfg.NSQ.Channel, cfg.NSQ.Address, cfg.NSQ.Lookupd)
		if err != nil {
			logger.Fatal().Err(err).Msg("nsq consumer")
		}
	}

	var sweeper *ingest.Sweeper
	if timeout := a.JobTimeout(); timeout > 0 {
		sweeper, err = ingest.NewSweeper(a.Store, timeout, cfg.Ingest.SweepSchedule)
		if err != nil {
			logger.Fatal().Err(err).Msg("stale job sweeper")
		}
		sweeper.Start()
	}

	srv := &api.Server{
		Ingest:       ingest.NewService(a.Store, dispatcher),
		Answers:      a.Answers,
		Search:       a.Retriever,
		Store:        a.Store,
		Auth:         authn,
		HistoryTurns: cfg.HistoryTurns,
		DefaultTopK:  cfg.DefaultTopK,
	}
	s := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           srv.Handler(logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", s.Addr).Msg("api server listening")
		if err := s.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return s.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		logger.Error().Err(err).Msg("server stopped with error")
	}

	if sweeper != nil {
		sweeper.Stop()
	}
	if consumer != nil {
		consumer.Stop()
		<-consumer.StopChan
	}
	if local != nil {
		local.Wait()
	}
	logger.Info().Msg("shutdown complete")
}
