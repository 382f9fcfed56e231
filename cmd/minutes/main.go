// cmd/minutes/main.go
package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/tendant/simple-minutes/internal/app"
	"github.com/tendant/simple-minutes/internal/config"
	"github.com/tendant/simple-minutes/internal/logger"
	"github.com/tendant/simple-minutes/internal/process"
)

type options struct {
	ConfigPath string
	File       string
	Prompt     string
	PromptFile string
	Out        string
}

func main() {
	_ = godotenv.Load()

	opts := options{}
	flag.StringVar(&opts.ConfigPath, "config", os.Getenv("MINUTES_CONFIG"), "Path to a YAML config file")
	flag.StringVar(&opts.File, "file", "", "Audio file to turn into minutes")
	flag.StringVar(&opts.Prompt, "prompt", "", "Prompt text (overrides -prompt-file)")
	flag.StringVar(&opts.PromptFile, "prompt-file", "", "File holding the prompt text")
	flag.StringVar(&opts.Out, "out", "", "Write the minutes here instead of stdout")
	flag.Parse()
	if opts.File == "" && flag.NArg() > 0 {
		opts.File = flag.Arg(0)
	}
	if opts.File == "" {
		fmt.Fprintln(os.Stderr, "usage: minutes [flags] -file <audio>")
		flag.PrintDefaults()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	os.Exit(run(ctx, opts, os.Stdin, os.Stdout, os.Stderr))
}

func run(ctx context.Context, opts options, stdin io.Reader, stdout, stderr io.Writer) int {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		fmt.Fprintf(stderr, "config: %v\n", err)
		return 1
	}
	log := logger.InitWriter(stderr, logger.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	if missing := cfg.MissingCredentials(); len(missing) > 0 {
		if err := promptCredentials(cfg, missing, stdin, stderr); err != nil {
			fmt.Fprintf(stderr, "credentials: %v\n", err)
			return 1
		}
		if err := config.SaveCredentials(cfg.CredentialsFile, cfg.Credentials()); err != nil {
			log.Warn("failed to save credentials", "path", cfg.CredentialsFile, "err", err)
		} else {
			log.Info("credentials saved", "path", cfg.CredentialsFile)
		}
	}

	prompt, err := resolvePrompt(opts.Prompt, opts.PromptFile)
	if err != nil {
		fmt.Fprintf(stderr, "prompt: %v\n", err)
		return 1
	}
	data, err := os.ReadFile(opts.File)
	if err != nil {
		fmt.Fprintf(stderr, "audio: %v\n", err)
		return 1
	}

	a, err := app.New(ctx, cfg, log, nil)
	if err != nil {
		fmt.Fprintf(stderr, "setup: %v\n", err)
		return 1
	}
	defer a.Close()
	log.Debug("pipeline ready", app.Describe(cfg)...)

	out, err := a.Orchestrator.Run(ctx, process.Input{
		Audio:    data,
		Filename: filepath.Base(opts.File),
		Prompt:   prompt,
	}, printProgress(stderr))
	if err != nil {
		reportFailure(stderr, err)
		return 1
	}
	for _, w := range out.Warnings {
		fmt.Fprintf(stderr, "warning: %s\n", w)
	}
	if err := writeResult(out, opts.Out, stdout, log); err != nil {
		fmt.Fprintf(stderr, "output: %v\n", err)
		return 1
	}
	return 0
}

// promptCredentials asks for each missing credential on in and stores the
// answers in cfg.
func promptCredentials(cfg *config.Config, missing []string, in io.Reader, out io.Writer) error {
	scanner := bufio.NewScanner(in)
	fmt.Fprintf(out, "credentials not found in %s\n", cfg.CredentialsFile)
	for _, key := range missing {
		fmt.Fprintf(out, "%s: ", key)
		if !scanner.Scan() {
			if err := scanner.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%s is required", key)
		}
		value := strings.TrimSpace(scanner.Text())
		if value == "" {
			return fmt.Errorf("%s is required", key)
		}
		switch key {
		case "google_api_key":
			cfg.Gemini.APIKey = value
		case "project_id":
			cfg.Vertex.ProjectID = value
		case "location":
			cfg.Vertex.Location = value
		default:
			return fmt.Errorf("unknown credential %q", key)
		}
	}
	return nil
}

func resolvePrompt(text, path string) (string, error) {
	if strings.TrimSpace(text) != "" || path == "" {
		return process.PromptOrDefault(text), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("read prompt file: %w", err)
	}
	return process.PromptOrDefault(string(data)), nil
}

func printProgress(w io.Writer) process.ProgressFunc {
	return func(p process.Progress) {
		fmt.Fprintf(w, "[%3d%%] %s\n", p.Percent, p.Message)
	}
}

func reportFailure(w io.Writer, err error) {
	jerr := process.Classify(err)
	fmt.Fprintf(w, "error: %s\n", jerr.Error())
	if jerr.Hint != "" {
		fmt.Fprintf(w, "hint: %s\n", jerr.Hint)
	}
}

func writeResult(out *process.Outcome, path string, stdout io.Writer, log *slog.Logger) error {
	if out.MinutesFile != "" {
		log.Info("minutes saved", "path", out.MinutesFile, "duration", out.Duration)
	}
	if path == "" {
		_, err := io.WriteString(stdout, out.Text)
		if err == nil && !strings.HasSuffix(out.Text, "\n") {
			_, err = io.WriteString(stdout, "\n")
		}
		return err
	}
	if err := os.WriteFile(path, []byte(out.Text), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
