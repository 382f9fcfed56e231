// cmd/worker/main.go
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-minutes/internal/app"
	"github.com/tendant/simple-minutes/internal/bus"
	"github.com/tendant/simple-minutes/internal/config"
	"github.com/tendant/simple-minutes/internal/logger"
	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/process"
	"github.com/tendant/simple-minutes/internal/server"
	"github.com/tendant/simple-minutes/pkg/schema"
)

func main() {
	_ = godotenv.Load()

	configPath := flag.String("config", os.Getenv("MINUTES_CONFIG"), "Path to a YAML config file")
	flag.Parse()

	bootLogger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(bootLogger, "load config", err)
	}
	log := logger.Init(logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})
	log.Info("worker starting", append(app.Describe(cfg),
		"nats_url", cfg.NATS.URL,
		"process_subject", cfg.NATS.ProcessSubject,
		"queue", cfg.NATS.ProcessQueue,
		"result_subject", cfg.NATS.ResultSubject,
		"job_timeout", cfg.NATS.JobTimeout,
	)...)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(prometheus.NewGoCollector(), prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))
	a, err := app.New(ctx, cfg, log, metrics.New(reg))
	if err != nil {
		fatal(log, "build minutes pipeline", err)
	}
	defer a.Close()

	nc, err := bus.Connect(cfg.NATS.URL, "minutes-worker")
	if err != nil {
		fatal(log, "connect to NATS", err, "nats_url", cfg.NATS.URL)
	}
	log.Info("connected to NATS", "nats_url", cfg.NATS.URL)
	defer nc.Close()

	events := bus.NewEvents(nc, cfg.NATS.ResultSubject, log)
	_, err = nc.QueueSubscribeJSON(cfg.NATS.ProcessSubject, cfg.NATS.ProcessQueue, cfg.NATS.JobTimeout, func(jobCtx context.Context, data []byte) {
		var req schema.MinutesRequested
		if err := json.Unmarshal(data, &req); err != nil {
			log.Error("decode minutes request", "err", err)
			return
		}
		handleRequest(jobCtx, req, a.Orchestrator, events, log)
	})
	if err != nil {
		fatal(log, "subscribe worker", err, "subject", cfg.NATS.ProcessSubject, "queue", cfg.NATS.ProcessQueue)
	}
	log.Info("listening for jobs", "subject", cfg.NATS.ProcessSubject, "queue", cfg.NATS.ProcessQueue)

	if cfg.HTTP.Port > 0 {
		go serveMetrics(ctx, cfg.HTTP.Port, reg, log)
	}

	<-ctx.Done()
	log.Info("worker shutting down")
}

// handleRequest runs one job and publishes its progress and result. It
// never returns an error: failures are reported on the result subject.
func handleRequest(ctx context.Context, req schema.MinutesRequested, runner server.Runner, events *bus.Events, log *slog.Logger) schema.MinutesDone {
	jobLogger := log.With("request_id", req.ID, "path", req.Path)
	jobLogger.Info("received job")
	start := time.Now()

	filename := req.Filename
	if filename == "" {
		filename = filepath.Base(req.Path)
	}
	done := schema.MinutesDone{RequestID: req.ID, Filename: filename}

	data, err := os.ReadFile(req.Path)
	if err != nil {
		// The job never started, so there is no audit entry for it.
		jerr := &process.JobError{Kind: process.ErrorInvalidInput, Message: "read audio file", Err: err}
		jobLogger.Error("read audio file", "err", err)
		return publishDone(events, done, nil, jerr, start)
	}

	in := process.Input{Audio: data, Filename: filename, Prompt: process.PromptOrDefault(req.Prompt)}
	out, err := runner.Run(ctx, in, func(p process.Progress) {
		events.Progress(schema.ProgressEvent{
			JobID:   p.JobID,
			Stage:   p.State.Stage(),
			Percent: p.Percent,
			Message: p.Message,
		})
	})
	return publishDone(events, done, out, err, start)
}

func publishDone(events *bus.Events, done schema.MinutesDone, out *process.Outcome, err error, start time.Time) schema.MinutesDone {
	done.DurationMs = time.Since(start).Milliseconds()
	done.Stage = schema.StageCompleted
	if out != nil {
		done.ID = out.JobID
		done.Text = out.Text
		done.MinutesFile = out.MinutesFile
		done.Warnings = out.Warnings
		done.DurationMs = out.Duration.Milliseconds()
	}
	if jerr := process.Classify(err); jerr != nil {
		done.Stage = schema.StageFailed
		done.ErrorKind = string(jerr.Kind)
		done.Error = jerr.Error()
		done.Hint = jerr.Hint
		done.FailureType = jerr.FailureType()
	}
	events.Done(done)
	return done
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}

func serveMetrics(ctx context.Context, port int, reg *prometheus.Registry, log *slog.Logger) {
	router := server.NewRouter(nil, server.Options{Logger: log, Gatherer: reg})
	if err := server.ListenAndServe(ctx, fmt.Sprintf(":%d", port), router, log); err != nil {
		log.Error("metrics server stopped", "err", err)
	}
}
