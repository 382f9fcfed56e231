// Package server exposes the minutes pipeline over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/tendant/simple-minutes/internal/process"
	"github.com/tendant/simple-minutes/internal/upload"
)

const (
	DefaultMaxUploadBytes = 1 << 30
	DefaultMaxJobs        = 2
)

// Runner runs one minutes job. *process.Orchestrator implements it.
type Runner interface {
	Run(ctx context.Context, in process.Input, progress process.ProgressFunc) (*process.Outcome, error)
}

type Options struct {
	Logger         *slog.Logger
	Gatherer       prometheus.Gatherer
	MaxUploadBytes int64
	MaxJobs        int
	JWTSecret      string
}

type Handler struct {
	runner   Runner
	logger   *slog.Logger
	maxBytes int64
}

// NewRouter builds the gin engine with the API, health and metrics routes.
func NewRouter(runner Runner, opts Options) *gin.Engine {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.MaxUploadBytes <= 0 {
		opts.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if opts.MaxJobs <= 0 {
		opts.MaxJobs = DefaultMaxJobs
	}
	h := &Handler{runner: runner, logger: opts.Logger, maxBytes: opts.MaxUploadBytes}

	router := gin.New()
	router.Use(RequestID())
	router.Use(Recovery(opts.Logger))
	router.Use(RequestLogger(opts.Logger))

	router.GET("/health", h.Health)
	if opts.Gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})))
	}

	if runner == nil {
		return router
	}
	api := router.Group("/api")
	if opts.JWTSecret != "" {
		api.Use(Auth(opts.JWTSecret))
	}
	{
		api.GET("/formats", h.Formats)
		api.POST("/minutes", JobLimit(opts.MaxJobs), h.CreateMinutes)
	}
	return router
}

// ListenAndServe serves handler on addr until ctx is done, then shuts down
// gracefully. Write timeouts are left unset: minutes requests last as long as
// the job.
func ListenAndServe(ctx context.Context, addr string, handler http.Handler, log *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exited gracefully")
	return nil
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (h *Handler) Formats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"extensions": upload.SupportedExtensions()})
}

// CreateMinutes runs a job for the uploaded multipart "file" and optional
// "prompt" field and answers once it ends.
func (h *Handler) CreateMinutes(c *gin.Context) {
	requestID := GetRequestID(c)
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "audio file is too large", "request_id": requestID})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": "No file provided", "request_id": requestID})
		return
	}
	defer file.Close()

	if !upload.Supported(header.Filename) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":      "unsupported audio file type",
			"allowed":    upload.SupportedExtensions(),
			"request_id": requestID,
		})
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read file", "request_id": requestID})
		return
	}

	in := process.Input{
		Audio:    data,
		Filename: header.Filename,
		Prompt:   process.PromptOrDefault(c.PostForm("prompt")),
	}
	log := h.logger.With("request_id", requestID, "filename", header.Filename)
	if client := GetClient(c); client != "" {
		log = log.With("client", client)
	}
	out, err := h.runner.Run(c.Request.Context(), in, func(p process.Progress) {
		log.Info("job progress", "job_id", p.JobID, "state", p.State, "percent", p.Percent, "message", p.Message)
	})
	if err != nil {
		jerr := process.Classify(err)
		body := gin.H{
			"error_kind": jerr.Kind,
			"error":      jerr.Error(),
			"hint":       jerr.Hint,
			"request_id": requestID,
		}
		if out != nil {
			body["job_id"] = out.JobID
		}
		c.JSON(StatusFor(jerr.Kind), body)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"job_id":       out.JobID,
		"text":         out.Text,
		"minutes_file": out.MinutesFile,
		"duration_sec": out.Duration.Seconds(),
		"warnings":     out.Warnings,
		"request_id":   requestID,
	})
}

// StatusFor maps a job error kind to an HTTP status code.
func StatusFor(kind process.ErrorKind) int {
	switch kind {
	case process.ErrorInvalidInput:
		return http.StatusBadRequest
	case process.ErrorProcessing:
		return http.StatusUnprocessableEntity
	case process.ErrorCredential:
		return http.StatusBadGateway
	case process.ErrorConnectivity:
		return http.StatusServiceUnavailable
	case process.ErrorTimeout:
		return http.StatusGatewayTimeout
	case process.ErrorCanceled:
		return http.StatusRequestTimeout
	}
	return http.StatusInternalServerError
}
