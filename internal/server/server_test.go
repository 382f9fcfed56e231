package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tendant/simple-minutes/internal/metrics"
	"github.com/tendant/simple-minutes/internal/process"
	"github.com/tendant/simple-minutes/internal/remote"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeRunner struct {
	got     process.Input
	calls   int
	out     *process.Outcome
	err     error
	started chan struct{}
	block   chan struct{}
}

func (f *fakeRunner) Run(_ context.Context, in process.Input, progress process.ProgressFunc) (*process.Outcome, error) {
	f.calls++
	f.got = in
	if f.started != nil {
		close(f.started)
	}
	if f.block != nil {
		<-f.block
	}
	if progress != nil {
		progress(process.Progress{JobID: "job-1", Percent: 100, Message: "done"})
	}
	if f.out == nil {
		f.out = &process.Outcome{JobID: "job-1"}
	}
	return f.out, f.err
}

func testRouter(r Runner, opts Options) *gin.Engine {
	opts.Logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(r, opts)
}

func multipartRequest(t *testing.T, filename, content, prompt string) *http.Request {
	t.Helper()
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	if filename != "" {
		part, err := w.CreateFormFile("file", filename)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		_, _ = part.Write([]byte(content))
	}
	if prompt != "" {
		_ = w.WriteField("prompt", prompt)
	}
	_ = w.Close()
	req := httptest.NewRequest(http.MethodPost, "/api/minutes", &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	return req
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestCreateMinutesSuccess(t *testing.T) {
	runner := &fakeRunner{out: &process.Outcome{JobID: "job-1", Text: "Hello", MinutesFile: "logs/minutes/x.md", Duration: 2 * time.Second}}
	router := testRouter(runner, Options{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "meeting.mp3", "audio", "summarize please"))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	body := decode(t, rec)
	if body["text"] != "Hello" || body["job_id"] != "job-1" || body["minutes_file"] != "logs/minutes/x.md" {
		t.Fatalf("unexpected body %v", body)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("missing request id header")
	}
	if string(runner.got.Audio) != "audio" || runner.got.Filename != "meeting.mp3" || runner.got.Prompt != "summarize please" {
		t.Fatalf("unexpected input %+v", runner.got)
	}
}

func TestCreateMinutesUsesDefaultPrompt(t *testing.T) {
	runner := &fakeRunner{}
	router := testRouter(runner, Options{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "meeting.wav", "audio", ""))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.got.Prompt != process.DefaultPrompt {
		t.Fatalf("expected default prompt, got %q", runner.got.Prompt)
	}
}

func TestCreateMinutesRejectsBadUploads(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		want     int
	}{
		{"missing file", "", http.StatusBadRequest},
		{"unsupported type", "notes.pdf", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			router := testRouter(runner, Options{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, tt.filename, "x", ""))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			if runner.calls != 0 {
				t.Fatal("runner must not be called")
			}
		})
	}
}

func TestCreateMinutesRejectsOversizedUpload(t *testing.T) {
	runner := &fakeRunner{}
	router := testRouter(runner, Options{MaxUploadBytes: 64})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "big.mp3", strings.Repeat("a", 4096), ""))
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("status = %d, want 413", rec.Code)
	}
}

func TestCreateMinutesMapsErrorKinds(t *testing.T) {
	tests := []struct {
		err  error
		kind process.ErrorKind
		want int
	}{
		{&remote.Error{Kind: remote.KindProcessing, Err: errors.New("failed")}, process.ErrorProcessing, http.StatusUnprocessableEntity},
		{&remote.Error{Kind: remote.KindAuth, Err: errors.New("403")}, process.ErrorCredential, http.StatusBadGateway},
		{&remote.Error{Kind: remote.KindTransient, Err: errors.New("503")}, process.ErrorConnectivity, http.StatusServiceUnavailable},
		{&remote.Error{Kind: remote.KindTimeout, Err: errors.New("slow")}, process.ErrorTimeout, http.StatusGatewayTimeout},
		{errors.New("weird"), process.ErrorUnknown, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			runner := &fakeRunner{err: process.Classify(tt.err)}
			router := testRouter(runner, Options{})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, multipartRequest(t, "a.mp3", "x", ""))
			if rec.Code != tt.want {
				t.Fatalf("status = %d, want %d", rec.Code, tt.want)
			}
			body := decode(t, rec)
			if body["error_kind"] != string(tt.kind) || body["job_id"] != "job-1" {
				t.Fatalf("unexpected body %v", body)
			}
		})
	}
}

func TestJobLimitRejectsWhenBusy(t *testing.T) {
	runner := &fakeRunner{started: make(chan struct{}), block: make(chan struct{})}
	router := testRouter(runner, Options{MaxJobs: 1})

	first := make(chan int)
	go func() {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, multipartRequest(t, "a.mp3", "x", ""))
		first <- rec.Code
	}()
	<-runner.started

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, multipartRequest(t, "b.mp3", "x", ""))
	close(runner.block)

	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 while busy, got %d", rec.Code)
	}
	if got := <-first; got != http.StatusOK {
		t.Fatalf("first request status = %d", got)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.JobStarted()
	router := testRouter(&fakeRunner{}, Options{Gatherer: reg})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "ok") {
		t.Fatalf("health = %d %s", rec.Code, rec.Body.String())
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), "minutes_jobs_in_flight 1") {
		t.Fatalf("metrics = %d %s", rec.Code, rec.Body.String())
	}
}

func TestRecoveryReturns500(t *testing.T) {
	router := testRouter(&fakeRunner{}, Options{})
	router.GET("/boom", func(*gin.Context) { panic("kaboom") })

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestRouterWithoutRunnerServesOnlyOperationalRoutes(t *testing.T) {
	router := NewRouter(nil, Options{Logger: slog.New(slog.NewTextHandler(io.Discard, nil)), Gatherer: prometheus.NewRegistry()})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/minutes", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status = %d", rec.Code)
	}
}

func TestListenAndServeStopsWithContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- ListenAndServe(ctx, "127.0.0.1:0", http.NotFoundHandler(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	}()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("ListenAndServe: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
