// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-minutes/internal/app"
	"github.com/tendant/simple-minutes/internal/config"
	"github.com/tendant/simple-minutes/internal/logger"
	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/server"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MINUTES_CONFIG"), "Path to a YAML config file")
	maxJobs := flag.Int("max-jobs", server.DefaultMaxJobs, "Maximum concurrent minutes jobs")
	issueToken := flag.String("issue-token", "", "Print an API token for the named client and exit")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(slog.Default(), "load config", err)
	}
	log := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if *issueToken != "" {
		token, expiresAt, err := server.GenerateToken(*issueToken, cfg.HTTP.JWTSecret, cfg.HTTP.TokenTTL)
		if err != nil {
			fatal(log, "issue token", err, "client", *issueToken)
		}
		log.Info("token issued", "client", *issueToken, "expires_at", expiresAt)
		fmt.Println(token)
		return
	}
	log.Info("configuration loaded", append(app.Describe(cfg), "api_auth", cfg.HTTP.JWTSecret != "")...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	a, err := app.New(ctx, cfg, log, metrics.New(reg))
	if err != nil {
		fatal(log, "build minutes pipeline", err)
	}
	defer a.Close()

	gin.SetMode(gin.ReleaseMode)
	router := server.NewRouter(a.Orchestrator, server.Options{
		Logger:    log,
		Gatherer:  reg,
		MaxJobs:   *maxJobs,
		JWTSecret: cfg.HTTP.JWTSecret,
	})

	if err := server.ListenAndServe(ctx, fmt.Sprintf(":%d", cfg.HTTP.Port), router, log); err != nil {
		fatal(log, "http server", err, "port", cfg.HTTP.Port)
	}
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
