package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/github"
	linkedinadapter "github.com/ericfisherdev/commentbot/internal/adapter/driven/linkedin"
	httphandler "github.com/ericfisherdev/commentbot/internal/adapter/driving/http"
	"github.com/ericfisherdev/commentbot/internal/application"
	"github.com/ericfisherdev/commentbot/internal/bootstrap"
	"github.com/ericfisherdev/commentbot/internal/config"
	"github.com/ericfisherdev/commentbot/internal/domain/port/driven"
	"github.com/ericfisherdev/commentbot/internal/metrics"
	"github.com/ericfisherdev/commentbot/internal/sentiment"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

// platform is a comment source that can also carry replies back.
type platform interface {
	driven.CommentSource
	driven.ResponseDispatcher
}

func run() error {
	// 1. Load configuration (fail fast on invalid env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(cfg.NewLogger(os.Stderr))
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_driver", cfg.DBDriver,
		"poll_interval", cfg.PollInterval,
		"source", cfg.Source,
		"dispatch", cfg.Dispatch,
		"shared_limiter", cfg.RedisURL != "",
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open storage and run migrations.
	stores, err := bootstrap.OpenStores(ctx, cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	// 4. Admission control.
	clock := clockwork.NewRealClock()
	limiter, err := bootstrap.NewLimiter(ctx, cfg, clock)
	if err != nil {
		return err
	}
	defer limiter.Close()

	// 5. Classifier and reply generator.
	classifier, err := sentiment.New(cfg.Thresholds())
	if err != nil {
		return err
	}
	generator, err := bootstrap.NewGenerator(cfg)
	if err != nil {
		return err
	}

	// 6. Metrics.
	reg := metrics.NewRegistry()
	pipelineMetrics := metrics.NewPipeline(reg)

	// 7. External platform (may be nil when no source is configured).
	src, err := newPlatform(ctx, cfg)
	if err != nil {
		return err
	}

	var dispatchSvc *application.DispatchService
	pipelineOpts := []application.PipelineOption{
		application.WithStorageTimeout(cfg.StorageTimeout),
		application.WithMetrics(pipelineMetrics),
	}
	if cfg.Dispatch && src != nil {
		dispatchSvc = application.NewDispatchService(src, stores.Records, stores.Dispatches,
			application.WithDispatchMetrics(pipelineMetrics),
		)
		pipelineOpts = append(pipelineOpts, application.WithDispatch(dispatchSvc))
	}

	pipeline := application.NewPipeline(stores.Records, limiter, classifier, generator, pipelineOpts...)

	// 8. Create and start poll service.
	var pollSvc *application.PollService
	if src != nil {
		pollOpts := []application.PollOption{application.WithPollWorkers(cfg.Workers)}
		if dispatchSvc != nil {
			pollOpts = append(pollOpts, application.WithRetrySweep(dispatchSvc, application.DefaultRetryBatch))
		}
		pollSvc = application.NewPollService(src, stores.Posts, pipeline, cfg.PollInterval, pollOpts...)
		go pollSvc.Start(ctx)
	}

	// 9. Health probes.
	healthSvc := application.NewHealthService(2 * time.Second)
	healthSvc.Register("database", stores.Ping)
	healthSvc.Register("rate_limiter", limiter.Ping)

	// 10. HTTP API.
	deps := httphandler.Deps{
		Pipeline:   pipeline,
		Records:    stores.Records,
		Posts:      stores.Posts,
		Dispatches: stores.Dispatches,
		Checker:    healthSvc,
		Logger:     slog.Default(),
	}
	if dispatchSvc != nil {
		deps.Retrier = dispatchSvc
	}
	if pollSvc != nil {
		deps.Poller = pollSvc
	}

	ingress := httphandler.NewIngressLimiter(cfg.IngressRPS, int(cfg.IngressRPS)*2)
	handler := httphandler.NewServeMux(httphandler.NewHandler(deps), metrics.Handler(reg), ingress)

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      5 * time.Minute,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	slog.Info("commentbot started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
		"rate_limit_max", cfg.RateLimitMax,
		"rate_limit_window", cfg.RateLimitWindow,
	)

	// 11. Wait for shutdown signal or a fatal server error.
	select {
	case <-ctx.Done():
		slog.Info("shutting down")
	case err := <-serverErr:
		return fmt.Errorf("http server: %w", err)
	}

	// 12. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}

// newPlatform builds the configured comment source. It returns nil when the
// source is "none".
func newPlatform(ctx context.Context, cfg *config.Config) (platform, error) {
	switch cfg.Source {
	case config.SourceLinkedIn:
		slog.Info("linkedin client created", "actor", cfg.LinkedInActor)
		return linkedinadapter.NewClient(cfg.LinkedInToken, cfg.LinkedInActor, cfg.LinkedInBaseURL), nil

	case config.SourceGitHub:
		client := githubadapter.NewClient(cfg.GitHubToken, "")
		login, err := client.AuthenticatedUser(ctx)
		if err != nil {
			return nil, err
		}
		client.SetUsername(login)
		slog.Info("github client created", "username", login)
		return client, nil

	default:
		slog.Info("no comment source configured, polling disabled")
		return nil, nil
	}
}
