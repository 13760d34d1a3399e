// Package main provides the entrypoint for the weatherflows worker: the cron
// scheduler, the queue trigger consumers and the HTTP API in one process.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"

	"github.com/weatherflows/weatherflows/internal/api"
	"github.com/weatherflows/weatherflows/internal/api/middleware"
	"github.com/weatherflows/weatherflows/internal/app"
	"github.com/weatherflows/weatherflows/internal/auth"
	"github.com/weatherflows/weatherflows/internal/config"
	"github.com/weatherflows/weatherflows/internal/provider/resilience"
	"github.com/weatherflows/weatherflows/internal/scheduler"
	"github.com/weatherflows/weatherflows/internal/telemetry"
	"github.com/weatherflows/weatherflows/internal/worker"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid configuration")
	}

	log, err := app.NewLogger(cfg.Telemetry.ServiceName, Version, cfg.LogLevel)
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Fatal().Err(err).Msg("invalid log level")
	}

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("worker stopped with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, log zerolog.Logger) error {
	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting weatherflows worker")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		MetricInterval: cfg.Telemetry.MetricInterval,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()
	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	defs, err := app.Definitions(cfg.WorkflowsFile)
	if err != nil {
		return err
	}

	registry := resilience.NewRegistry()
	pipelines, err := app.Pipelines(cfg, defs, log, app.Options{Registry: registry})
	if err != nil {
		return err
	}

	repo, closeHistory, err := app.History(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer closeHistory()

	runner, err := worker.NewRunner(worker.RunnerConfig{
		Pipelines: pipelines,
		History:   repo,
		Logger:    log,
	})
	if err != nil {
		return err
	}
	log.Info().Strs("workflows", runner.Names()).Msg("workflows loaded")

	routerCfg := api.RouterConfig{
		Version:          Version,
		BuildTime:        BuildTime,
		Logger:           log,
		ServiceName:      cfg.Telemetry.ServiceName,
		Runner:           runner,
		History:          repo,
		Registry:         registry,
		TriggerRateLimit: cfg.Server.TriggerRateLimit,
		RequireTLS:       cfg.Server.RequireTLS,
	}

	var sched *scheduler.Scheduler
	if cfg.Server.SchedulerEnabled {
		sched = scheduler.New(scheduler.Config{Logger: log}, runner)
		if _, err := sched.RegisterAll(defs); err != nil {
			return err
		}
		sched.Start()
		routerCfg.Schedule = sched
	}

	if cfg.Auth.SigningKey.IsZero() {
		log.Warn().Msg("JWT_SIGNING_KEY not set - manual trigger endpoint disabled")
	} else {
		tokens, err := auth.NewJWTService(auth.JWTConfig{
			SigningKey: cfg.Auth.SigningKey,
			Issuer:     cfg.Auth.Issuer,
			Audience:   cfg.Auth.Audience,
		})
		if err != nil {
			return err
		}
		routerCfg.Tokens = tokens
	}

	metrics, err := middleware.NewMetrics()
	if err != nil {
		return err
	}
	routerCfg.Metrics = metrics

	consumerCtx, cancelConsumers := context.WithCancel(ctx)
	defer cancelConsumers()
	var consumers sync.WaitGroup

	if cfg.PubSub.Enabled() {
		handler, err := worker.NewPubSubHandler(consumerCtx, worker.PubSubConfig{
			ProjectID:        cfg.PubSub.ProjectID,
			SubscriptionName: cfg.PubSub.Subscription,
			Runner:           runner,
			Logger:           log,
		})
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := handler.Close(); closeErr != nil {
				log.Error().Err(closeErr).Msg("failed to close pubsub client")
			}
		}()

		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := handler.Start(consumerCtx); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("pubsub handler stopped")
			}
		}()
	}

	if cfg.SQS.Enabled() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.SQS.Region))
		if err != nil {
			return err
		}
		consumer, err := worker.NewSQSConsumer(worker.SQSConfig{
			Client:   sqs.NewFromConfig(awsCfg),
			QueueURL: cfg.SQS.QueueURL,
			Runner:   runner,
			Logger:   log,
			WaitTime: cfg.SQS.WaitTime,
		})
		if err != nil {
			return err
		}

		consumers.Add(1)
		go func() {
			defer consumers.Done()
			if err := consumer.Run(consumerCtx); err != nil {
				log.Error().Err(err).Msg("sqs consumer stopped")
			}
		}()
	}

	server := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           api.NewRouter(routerCfg),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info().
			Str("addr", server.Addr).
			Msg("server listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down worker")
	case runErr = <-serverErr:
		log.Error().Err(runErr).Msg("server error")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if sched != nil {
		if err := sched.Stop(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("scheduler forced to stop")
		}
	}

	cancelConsumers()
	consumers.Wait()

	log.Info().Msg("worker stopped")
	return runErr
}
