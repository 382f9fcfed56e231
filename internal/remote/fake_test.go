package remote

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/tendant/simple-minutes/internal/retry"
	"github.com/tendant/simple-minutes/internal/upload"
)

type fakeBackend struct {
	uploadErrs []error
	uploads    int
	upload     *Handle

	states  []State
	getErr  error
	gets    int
	genErrs []error
	gens    int
	genText string
	genFn   func(ctx context.Context) (string, error)
	prompt  string
	deleted []string
}

func (f *fakeBackend) Name() string { return "fake" }

func (f *fakeBackend) Upload(_ context.Context, src *upload.Source) (*Handle, error) {
	f.uploads++
	if f.uploads <= len(f.uploadErrs) && f.uploadErrs[f.uploads-1] != nil {
		return nil, f.uploadErrs[f.uploads-1]
	}
	if f.upload != nil {
		h := *f.upload
		return &h, nil
	}
	return &Handle{ID: "files/1", URI: "uri://files/1", MimeType: src.MimeType, State: StatePending}, nil
}

func (f *fakeBackend) Get(_ context.Context, id string) (*Handle, error) {
	f.gets++
	if f.getErr != nil {
		return nil, f.getErr
	}
	state := StateReady
	if f.gets <= len(f.states) {
		state = f.states[f.gets-1]
	}
	return &Handle{ID: id, State: state}, nil
}

func (f *fakeBackend) Generate(ctx context.Context, prompt string, _ *Handle) (string, error) {
	f.gens++
	f.prompt = prompt
	if f.genFn != nil {
		return f.genFn(ctx)
	}
	if f.gens <= len(f.genErrs) && f.genErrs[f.gens-1] != nil {
		return "", f.genErrs[f.gens-1]
	}
	return f.genText, nil
}

func (f *fakeBackend) Delete(_ context.Context, h *Handle) error {
	f.deleted = append(f.deleted, h.ID)
	return nil
}

func (f *fakeBackend) Close() error { return nil }

type sleeps struct {
	waits []time.Duration
}

func (s *sleeps) sleep(_ context.Context, d time.Duration) error {
	s.waits = append(s.waits, d)
	return nil
}

func testPolicy(s *sleeps) retry.Policy {
	return retry.Policy{MaxAttempts: 3, Unit: time.Second, Sleep: s.sleep}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testSource() *upload.Source {
	return &upload.Source{Path: "/tmp/a.mp3", Filename: "a.mp3", MimeType: "audio/mpeg", Size: 3}
}
