// cmd/backfill/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/tendant/simple-minutes/internal/audit"
	"github.com/tendant/simple-minutes/internal/bus"
	"github.com/tendant/simple-minutes/internal/config"
	"github.com/tendant/simple-minutes/internal/media"
	"github.com/tendant/simple-minutes/internal/minutes"
	"github.com/tendant/simple-minutes/internal/upload"
	"github.com/tendant/simple-minutes/pkg/schema"
)

type options struct {
	Dir    string
	Prompt string
	Limit  int
	DryRun bool
}

// candidate is an audio file that has no minutes yet.
type candidate struct {
	Path     string
	Filename string
}

func main() {
	_ = godotenv.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	configPath := flag.String("config", os.Getenv("MINUTES_CONFIG"), "Path to a YAML config file")
	opts := options{DryRun: true}
	flag.StringVar(&opts.Dir, "dir", getenv("BACKFILL_DIR", "recordings"), "Directory to scan for recordings")
	flag.StringVar(&opts.Prompt, "prompt", "", "Prompt to send with every job (empty = worker default)")
	flag.IntVar(&opts.Limit, "limit", 0, "Maximum number of jobs to publish (0 = unlimited)")
	flag.BoolVar(&opts.DryRun, "dry-run", true, "Show what would be processed without publishing jobs")
	var execute bool
	flag.BoolVar(&execute, "execute", false, "Actually publish jobs (disables dry-run)")
	flag.Parse()
	if execute {
		opts.DryRun = false
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fatal(logger, "load config", err)
	}
	logger.Info("backfill starting",
		"dir", opts.Dir,
		"minutes_dir", cfg.Storage.MinutesDir,
		"process_subject", cfg.NATS.ProcessSubject,
		"limit", opts.Limit,
		"dry_run", opts.DryRun,
	)

	ctx := context.Background()

	var done []string
	if cfg.Audit.DatabaseURL != "" {
		pool, rec, err := audit.OpenPG(ctx, cfg.Audit.DatabaseURL)
		if err != nil {
			fatal(logger, "connect to audit database", err)
		}
		done, err = rec.SucceededFiles(ctx)
		pool.Close()
		if err != nil {
			fatal(logger, "list processed files", err)
		}
		logger.Info("loaded processed files from audit database", "count", len(done))
	}

	found, err := scan(opts.Dir, cfg.Storage.MinutesDir, done, opts.Limit)
	if err != nil {
		fatal(logger, "scan failed", err, "dir", opts.Dir)
	}

	if opts.DryRun {
		describe(ctx, media.Prober{}, found, logger)
		logger.Info("backfill complete", "total_found", len(found), "dry_run", true)
		return
	}

	nc, err := bus.Connect(cfg.NATS.URL, "minutes-backfill")
	if err != nil {
		fatal(logger, "connect to NATS", err, "nats_url", cfg.NATS.URL)
	}
	defer nc.Close()
	logger.Info("connected to NATS", "nats_url", cfg.NATS.URL)

	published, failed := publishAll(nc, cfg.NATS.ProcessSubject, opts.Prompt, found, logger)
	if err := nc.Flush(5 * time.Second); err != nil {
		logger.Warn("flush NATS", "err", err)
	}
	logger.Info("backfill complete",
		"total_found", len(found),
		"jobs_published", published,
		"failed", len(failed),
	)
	if len(failed) > 0 {
		logger.Error("some jobs failed", "failed_paths", failed)
	}
}

// scan returns supported recordings under dir that have no minutes artifact
// in minutesDir and are not listed in done. Results are sorted by path.
func scan(dir, minutesDir string, done []string, limit int) ([]candidate, error) {
	have, err := existingStems(minutesDir)
	if err != nil {
		return nil, err
	}
	skip := make(map[string]bool, len(done))
	for _, name := range done {
		skip[name] = true
	}

	var found []candidate
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		name := d.Name()
		if !upload.Supported(name) || skip[name] || have[minutes.SanitizeStem(name)] {
			return nil
		}
		found = append(found, candidate{Path: path, Filename: name})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	sort.Slice(found, func(i, j int) bool { return found[i].Path < found[j].Path })
	if limit > 0 && len(found) > limit {
		found = found[:limit]
	}
	return found, nil
}

// existingStems lists the source stems of saved minutes. Artifact names are
// "{YYYYMMDD_HHMMSS}_{stem}.md".
func existingStems(minutesDir string) (map[string]bool, error) {
	stems := map[string]bool{}
	entries, err := os.ReadDir(minutesDir)
	if err != nil {
		if os.IsNotExist(err) {
			return stems, nil
		}
		return nil, fmt.Errorf("read minutes dir: %w", err)
	}
	const stampLen = len("20060102_150405_")
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasSuffix(name, ".md") || len(name) <= stampLen+len(".md") {
			continue
		}
		stems[strings.TrimSuffix(name[stampLen:], ".md")] = true
	}
	return stems, nil
}

// describe logs each candidate, with its length when ffprobe is installed.
func describe(ctx context.Context, prober media.Prober, found []candidate, logger *slog.Logger) {
	probe := prober.Available()
	if !probe {
		logger.Info("ffprobe not installed, recording lengths unavailable")
	}
	for _, c := range found {
		attrs := []any{"path", c.Path}
		if probe {
			info, err := prober.Probe(ctx, c.Path)
			if err != nil {
				logger.Warn("unreadable recording", "path", c.Path, "err", err)
				continue
			}
			attrs = append(attrs, "length", info.Duration.Round(time.Second), "codec", info.Codec)
		}
		logger.Info("would publish minutes job", attrs...)
	}
}

func publishAll(pub bus.Publisher, subject, prompt string, found []candidate, logger *slog.Logger) (int, []string) {
	published := 0
	var failed []string
	for _, c := range found {
		abs, err := filepath.Abs(c.Path)
		if err != nil {
			abs = c.Path
		}
		req := schema.MinutesRequested{
			ID:         uuid.New().String(),
			Path:       abs,
			Filename:   c.Filename,
			Prompt:     prompt,
			HappenedAt: time.Now().Unix(),
		}
		if err := pub.PublishJSON(subject, req); err != nil {
			logger.Warn("publish minutes job", "path", c.Path, "err", err)
			failed = append(failed, c.Path)
			continue
		}
		published++
		logger.Info("published minutes job", "request_id", req.ID, "path", abs, "jobs_published", published)
	}
	return published, failed
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}

func fatal(logger *slog.Logger, msg string, err error, attrs ...any) {
	attrs = append(attrs, "err", err)
	logger.Error(msg, attrs...)
	os.Exit(1)
}
