package remote

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/retry"
)

const DefaultGenerateTimeout = 600 * time.Second

var ErrEmptyPrompt = errors.New("prompt is empty")

type InvokerConfig struct {
	Policy  retry.Policy
	Timeout time.Duration
	Logger  *slog.Logger
	Metrics *metrics.Metrics
}

// Invoker issues the generation request for an uploaded file.
type Invoker struct {
	backend Backend
	policy  retry.Policy
	timeout time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewInvoker(backend Backend, cfg InvokerConfig) *Invoker {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGenerateTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Invoker{
		backend: backend,
		policy:  cfg.Policy,
		timeout: cfg.Timeout,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Generate asks the backend for a document built from prompt and the file
// behind h. Each attempt is bounded by the configured timeout; an attempt
// that runs out of time is reported as KindTimeout.
func (g *Invoker) Generate(ctx context.Context, prompt string, h *Handle, notify retry.Notify) (*Result, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, &Error{Kind: KindInvalid, Op: "generate", Err: ErrEmptyPrompt}
	}
	if h == nil || h.ID == "" {
		return nil, &Error{Kind: KindInvalid, Op: "generate", Err: errors.New("missing file handle")}
	}

	policy := g.policy.WithNotify(func(a retry.Attempt) {
		g.metrics.RemoteRetry("generate")
		g.logger.Warn("generate failed, retrying", "backend", g.backend.Name(), "attempt", a.Number, "max_attempts", a.Max, "wait", a.Wait, "err", a.Err)
	}).WithNotify(notify)

	text, err := retry.Do(ctx, policy, func(ctx context.Context) (string, error) {
		g.metrics.RemoteAttempt("generate")
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		text, err := g.backend.Generate(attemptCtx, prompt, h)
		if err != nil {
			if ctx.Err() == nil && errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
				return "", &Error{Kind: KindTimeout, Op: "generate", Err: fmt.Errorf("no response within %s: %w", g.timeout, err)}
			}
			return "", Wrap("generate", err)
		}
		return text, nil
	}, Retryable)
	if err != nil {
		return nil, err
	}
	return &Result{Text: text}, nil
}
