package remote

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/retry"
	"github.com/tendant/simple-minutes/internal/upload"
)

const DefaultPollInterval = 2 * time.Second

// TransportConfig tunes a Transport.
type TransportConfig struct {
	Policy       retry.Policy
	PollInterval time.Duration
	// MaxPollDuration caps the time spent waiting for a file to leave the
	// pending state. Zero polls until the caller's context ends.
	MaxPollDuration time.Duration
	Logger          *slog.Logger
	Metrics         *metrics.Metrics
}

// Transport uploads staged audio and waits for the remote service to finish
// processing it.
type Transport struct {
	backend Backend
	policy  retry.Policy
	poll    time.Duration
	maxPoll time.Duration
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewTransport(backend Backend, cfg TransportConfig) *Transport {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Transport{
		backend: backend,
		policy:  cfg.Policy,
		poll:    cfg.PollInterval,
		maxPoll: cfg.MaxPollDuration,
		logger:  cfg.Logger,
		metrics: cfg.Metrics,
	}
}

// Upload sends src to the backend under the retry policy. notify, when set,
// is told about every backoff wait.
func (t *Transport) Upload(ctx context.Context, src *upload.Source, notify retry.Notify) (*Handle, error) {
	policy := t.policy.WithNotify(func(a retry.Attempt) {
		t.metrics.RemoteRetry("upload")
		t.logger.Warn("upload failed, retrying", "backend", t.backend.Name(), "attempt", a.Number, "max_attempts", a.Max, "wait", a.Wait, "err", a.Err)
	}).WithNotify(notify)

	h, err := retry.Do(ctx, policy, func(ctx context.Context) (*Handle, error) {
		t.metrics.RemoteAttempt("upload")
		h, err := t.backend.Upload(ctx, src)
		return h, Wrap("upload", err)
	}, Retryable)
	if err != nil {
		return nil, err
	}
	t.logger.Info("audio uploaded", "backend", t.backend.Name(), "file_id", h.ID, "state", h.State)
	return h, nil
}

// WaitReady polls h at a fixed interval while it is pending. It returns the
// ready handle, a KindProcessing error once the file is seen failed, or the
// first poll error unchanged in kind: the file already exists remotely so a
// poll is never retried.
func (t *Transport) WaitReady(ctx context.Context, h *Handle, onPoll func(n int)) (*Handle, error) {
	cur := h
	polls := 0
	for cur.State == StatePending {
		if t.maxPoll > 0 && time.Duration(polls)*t.poll >= t.maxPoll {
			return nil, &Error{Kind: KindTimeout, Op: "wait", Err: fmt.Errorf("file %s still pending after %s", h.ID, t.maxPoll)}
		}
		if err := t.sleep(ctx, t.poll); err != nil {
			return nil, Wrap("wait", err)
		}
		polls++
		if onPoll != nil {
			onPoll(polls)
		}
		t.metrics.Poll()
		next, err := t.backend.Get(ctx, cur.ID)
		if err != nil {
			return nil, Wrap("wait", err)
		}
		cur = next
		t.logger.Debug("polled file state", "file_id", cur.ID, "state", cur.State, "poll", polls)
	}

	if cur.State == StateFailed {
		reason := cur.Reason
		if reason == "" {
			reason = "remote processing failed"
		}
		return nil, &Error{Kind: KindProcessing, Op: "wait", Err: fmt.Errorf("file %s: %s", cur.ID, reason)}
	}
	return cur, nil
}

// Delete removes the remote copy of h.
func (t *Transport) Delete(ctx context.Context, h *Handle) error {
	return Wrap("delete", t.backend.Delete(ctx, h))
}

func (t *Transport) sleep(ctx context.Context, d time.Duration) error {
	if t.policy.Sleep != nil {
		return t.policy.Sleep(ctx, d)
	}
	return retry.Sleep(ctx, d)
}
