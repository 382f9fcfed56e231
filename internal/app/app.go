// Package app assembles a minutes orchestrator from configuration. Every
// command builds its dependencies here.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/tendant/simple-minutes/internal/audit"
	"github.com/tendant/simple-minutes/internal/config"
	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/minutes"
	"github.com/tendant/simple-minutes/internal/process"
	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/remote/gemini"
	"github.com/tendant/simple-minutes/internal/remote/httpapi"
	"github.com/tendant/simple-minutes/internal/retry"
)

type App struct {
	Config       *config.Config
	Logger       *slog.Logger
	Metrics      *metrics.Metrics
	Backend      remote.Backend
	Audit        *audit.Log
	AuditDB      *audit.PGRecorder
	Store        *minutes.Store
	Orchestrator *process.Orchestrator

	closers []func()
}

// NewBackend connects the remote backend selected by cfg.Backend.
func NewBackend(ctx context.Context, cfg *config.Config) (remote.Backend, error) {
	switch cfg.Backend {
	case config.BackendGemini:
		return gemini.NewDeveloperBackend(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model)
	case config.BackendVertex:
		return gemini.NewVertexBackend(ctx, gemini.VertexConfig{
			Project:  cfg.Vertex.ProjectID,
			Location: cfg.Vertex.Location,
			Model:    cfg.Gemini.Model,
			Staging: gemini.StagingConfig{
				Endpoint:  cfg.Staging.Endpoint,
				AccessKey: cfg.Staging.AccessKey,
				SecretKey: cfg.Staging.SecretKey,
				Bucket:    cfg.Staging.Bucket,
				Prefix:    cfg.Staging.Prefix,
				UseSSL:    cfg.Staging.UseSSL,
			},
		})
	case config.BackendHTTP:
		return httpapi.NewClient(httpapi.Config{
			BaseURL: cfg.RemoteAPI.URL,
			Token:   cfg.RemoteAPI.Token,
			Model:   cfg.Gemini.Model,
		})
	}
	return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
}

// New validates cfg, connects the backend and builds the App.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	backend, err := NewBackend(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("connect %s backend: %w", cfg.Backend, err)
	}
	a, err := Build(ctx, cfg, backend, logger, m)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return a, nil
}

// Build wires an App around an already connected backend.
func Build(ctx context.Context, cfg *config.Config, backend remote.Backend, logger *slog.Logger, m *metrics.Metrics) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	a := &App{Config: cfg, Logger: logger, Metrics: m, Backend: backend}
	a.closers = append(a.closers, func() {
		if err := backend.Close(); err != nil {
			logger.Warn("close backend", "backend", backend.Name(), "err", err)
		}
	})

	log, err := audit.Open(cfg.Storage.LogFile, logger)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	a.Audit = log

	var recorder process.AuditRecorder = log
	if cfg.Audit.DatabaseURL != "" {
		pool, pg, err := audit.OpenPG(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			return nil, err
		}
		a.AuditDB = pg
		a.closers = append(a.closers, pool.Close)
		recorder = audit.Tee{log, pg}
		logger.Info("audit entries mirrored to postgres")
	}

	a.Store = minutes.NewStore(cfg.Storage.MinutesDir)

	policy := retry.Policy{MaxAttempts: cfg.Retry.MaxAttempts, Unit: cfg.Retry.BackoffUnit}
	transport := remote.NewTransport(backend, remote.TransportConfig{
		Policy:          policy,
		PollInterval:    cfg.Retry.PollInterval,
		MaxPollDuration: cfg.Retry.MaxPollDuration,
		Logger:          logger,
		Metrics:         m,
	})
	invoker := remote.NewInvoker(backend, remote.InvokerConfig{
		Policy:  policy,
		Timeout: cfg.Retry.GenerateTimeout,
		Logger:  logger,
		Metrics: m,
	})

	a.Orchestrator = process.New(process.Config{
		Uploader:     transport,
		Generator:    invoker,
		Store:        a.Store,
		Audit:        recorder,
		StagingDir:   cfg.Storage.StagingDir,
		DeleteRemote: cfg.Retry.DeleteRemote,
		Logger:       logger,
		Metrics:      m,
	})

	logger.Info("minutes pipeline ready",
		"backend", backend.Name(),
		"audit_log", cfg.Storage.LogFile,
		"minutes_dir", cfg.Storage.MinutesDir,
		"max_attempts", cfg.Retry.MaxAttempts,
		"poll_interval", cfg.Retry.PollInterval,
		"max_poll_duration", cfg.Retry.MaxPollDuration,
	)
	return a, nil
}

// Close releases the backend and database connections.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// Describe returns loggable attributes of the active credentials with the
// API key masked.
func Describe(cfg *config.Config) []any {
	switch cfg.Backend {
	case config.BackendGemini:
		return []any{"backend", cfg.Backend, "model", cfg.Gemini.Model, "api_key", config.MaskKey(cfg.Gemini.APIKey)}
	case config.BackendVertex:
		return []any{"backend", cfg.Backend, "model", cfg.Gemini.Model, "project_id", cfg.Vertex.ProjectID, "location", cfg.Vertex.Location, "bucket", cfg.Staging.Bucket}
	}
	return []any{"backend", cfg.Backend, "url", cfg.RemoteAPI.URL, "token", config.MaskKey(cfg.RemoteAPI.Token)}
}
