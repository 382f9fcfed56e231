// internal/process/orchestrator.go
package process

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/tendant/simple-minutes/internal/audit"
	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/retry"
	"github.com/tendant/simple-minutes/internal/upload"
)

const remoteDeleteTimeout = 30 * time.Second

// Uploader moves staged audio to the remote service and waits until it has
// been processed. *remote.Transport implements it.
type Uploader interface {
	Upload(ctx context.Context, src *upload.Source, notify retry.Notify) (*remote.Handle, error)
	WaitReady(ctx context.Context, h *remote.Handle, onPoll func(n int)) (*remote.Handle, error)
	Delete(ctx context.Context, h *remote.Handle) error
}

// Generator produces the minutes text. *remote.Invoker implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string, h *remote.Handle, notify retry.Notify) (*remote.Result, error)
}

type ArtifactStore interface {
	Save(text, originalFilename string) (string, error)
}

type AuditRecorder interface {
	Record(entry audit.Entry) error
}

// Progress is an advisory checkpoint of a running job.
type Progress struct {
	JobID   string
	State   State
	Percent int
	Message string
}

type ProgressFunc func(Progress)

// Input is one request for minutes.
type Input struct {
	Audio    []byte
	Filename string
	Prompt   string
}

// Outcome describes a finished job, successful or not.
type Outcome struct {
	JobID       string
	State       State
	Text        string
	MinutesFile string
	Duration    time.Duration
	Warnings    []string
}

type Config struct {
	Uploader   Uploader
	Generator  Generator
	Store      ArtifactStore
	Audit      AuditRecorder
	StagingDir string
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	Now        func() time.Time

	// DeleteRemote removes the uploaded file once the job ends.
	DeleteRemote bool
}

// Orchestrator runs minutes jobs: upload, wait for processing, generate,
// persist. Every run writes exactly one audit entry after it ends.
type Orchestrator struct {
	uploader     Uploader
	generator    Generator
	store        ArtifactStore
	audit        AuditRecorder
	stagingDir   string
	deleteRemote bool
	logger       *slog.Logger
	metrics      *metrics.Metrics
	now          func() time.Time
}

func New(cfg Config) *Orchestrator {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		uploader:     cfg.Uploader,
		generator:    cfg.Generator,
		store:        cfg.Store,
		audit:        cfg.Audit,
		stagingDir:   cfg.StagingDir,
		deleteRemote: cfg.DeleteRemote,
		logger:       cfg.Logger,
		metrics:      cfg.Metrics,
		now:          cfg.Now,
	}
}

type run struct {
	o        *Orchestrator
	job      *Job
	logger   *slog.Logger
	progress ProgressFunc
	percent  int
	warnings []string
}

// Run executes one job. The returned Outcome is never nil; err is a
// *JobError when the job failed. ctx bounds every remote call and poll wait.
func (o *Orchestrator) Run(ctx context.Context, in Input, progress ProgressFunc) (*Outcome, error) {
	job := NewJob(in.Filename, uint64(len(in.Audio)), in.Prompt, o.now())
	r := &run{
		o:        o,
		job:      job,
		logger:   o.logger.With("job_id", job.ID, "filename", in.Filename),
		progress: progress,
	}
	o.metrics.JobStarted()
	r.logger.Info("job started", "size_bytes", job.SourceSizeBytes)
	r.emit(PercentStart, "processing file")

	text, err := r.execute(ctx, in)
	if err != nil {
		return r.fail(err)
	}
	return r.succeed(text)
}

func (r *run) execute(ctx context.Context, in Input) (string, error) {
	if err := r.job.Advance(StateUploading); err != nil {
		return "", err
	}
	if strings.TrimSpace(in.Prompt) == "" {
		return "", &remote.Error{Kind: remote.KindInvalid, Op: "generate", Err: remote.ErrEmptyPrompt}
	}

	src, cleanup, err := upload.Stage(r.o.stagingDir, in.Filename, in.Audio)
	if err != nil {
		return "", fmt.Errorf("stage audio: %w", err)
	}
	defer func() {
		if err := cleanup(); err != nil {
			r.logger.Warn("remove staged audio failed", "path", src.Path, "err", err)
		}
	}()
	r.emit(PercentStaged, "uploading audio")

	h, err := r.o.uploader.Upload(ctx, src, r.notifyRetry)
	if err != nil {
		return "", err
	}
	if r.o.deleteRemote {
		defer r.deleteRemote(ctx, h)
	}
	if err := r.job.Advance(StateWaitingReady); err != nil {
		return "", err
	}
	r.emit(PercentUploaded, "analyzing audio on the remote side")

	h, err = r.o.uploader.WaitReady(ctx, h, func(n int) {
		r.logger.Debug("waiting for remote processing", "poll", n)
	})
	if err != nil {
		return "", err
	}
	if err := r.job.Advance(StateGenerating); err != nil {
		return "", err
	}
	r.emit(PercentReady, "generating minutes")

	res, err := r.o.generator.Generate(ctx, in.Prompt, h, r.notifyRetry)
	if err != nil {
		return "", err
	}
	if err := r.job.Advance(StatePersisting); err != nil {
		return "", err
	}
	return res.Text, nil
}

func (r *run) succeed(text string) (*Outcome, error) {
	r.emitState(r.percent, "writing minutes")
	path, err := r.o.store.Save(text, r.job.SourceFilename)
	if err != nil {
		path = ""
		r.warn("saving minutes failed", err)
	}
	_ = r.job.Advance(StateDone)

	elapsed := r.o.now().Sub(r.job.StartedAt)
	r.record(audit.StatusSuccess, "", path, elapsed)
	r.o.metrics.JobFinished("success", elapsed)
	r.logger.Info("job completed", "minutes_file", path, "duration", elapsed)
	r.emit(PercentDone, "done")

	return &Outcome{
		JobID:       r.job.ID,
		State:       r.job.State,
		Text:        text,
		MinutesFile: path,
		Duration:    elapsed,
		Warnings:    r.warnings,
	}, nil
}

func (r *run) fail(cause error) (*Outcome, error) {
	jerr := Classify(cause)
	MarkFailed(r.job, jerr)

	elapsed := r.o.now().Sub(r.job.StartedAt)
	r.record(audit.StatusFailure, jerr.Error(), "", elapsed)
	r.o.metrics.JobFinished("failure", elapsed)
	r.logger.Error("job failed", "kind", jerr.Kind, "duration", elapsed, "err", cause)
	r.emitState(r.percent, jerr.Message)

	return &Outcome{
		JobID:    r.job.ID,
		State:    r.job.State,
		Duration: elapsed,
		Warnings: r.warnings,
	}, jerr
}

func (r *run) record(status audit.Status, message, path string, elapsed time.Duration) {
	if r.o.audit == nil {
		return
	}
	err := r.o.audit.Record(audit.Entry{
		Timestamp:    r.o.now(),
		Filename:     r.job.SourceFilename,
		SizeMB:       r.job.SizeMB(),
		DurationSec:  elapsed.Seconds(),
		Status:       status,
		ErrorMessage: message,
		ArtifactPath: path,
	})
	if err != nil {
		r.o.metrics.AuditFailure()
		r.warn("recording audit entry failed", err)
	}
}

func (r *run) deleteRemote(ctx context.Context, h *remote.Handle) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), remoteDeleteTimeout)
	defer cancel()
	if err := r.o.uploader.Delete(ctx, h); err != nil {
		r.warn("deleting remote file failed", err)
		return
	}
	r.logger.Debug("remote file deleted", "file_id", h.ID)
}

func (r *run) notifyRetry(a retry.Attempt) {
	r.emitState(r.percent, fmt.Sprintf("connection error, retrying in %s (%d/%d)", a.Wait, a.Number, a.Max))
}

func (r *run) warn(msg string, err error) {
	r.logger.Warn(msg, "err", err)
	r.warnings = append(r.warnings, fmt.Sprintf("%s: %v", msg, err))
}

func (r *run) emit(percent int, message string) {
	r.percent = percent
	r.emitState(percent, message)
}

func (r *run) emitState(percent int, message string) {
	if r.progress == nil {
		return
	}
	r.progress(Progress{JobID: r.job.ID, State: r.job.State, Percent: percent, Message: message})
}
