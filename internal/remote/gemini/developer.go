package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/upload"
)

type fileService interface {
	UploadFromPath(ctx context.Context, path string, config *genai.UploadFileConfig) (*genai.File, error)
	Get(ctx context.Context, name string, config *genai.GetFileConfig) (*genai.File, error)
	Delete(ctx context.Context, name string, config *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error)
}

// DeveloperBackend talks to the Gemini Developer API with an API key and
// uploads audio through its Files API.
type DeveloperBackend struct {
	files  fileService
	models contentGenerator
	model  string
}

func NewDeveloperBackend(ctx context.Context, apiKey, model string) (*DeveloperBackend, error) {
	if apiKey == "" {
		return nil, &remote.Error{Kind: remote.KindAuth, Op: "connect", Err: fmt.Errorf("gemini api key is required")}
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	if model == "" {
		model = DefaultModel
	}
	return &DeveloperBackend{files: client.Files, models: client.Models, model: model}, nil
}

func (b *DeveloperBackend) Name() string { return "gemini" }

func (b *DeveloperBackend) Upload(ctx context.Context, src *upload.Source) (*remote.Handle, error) {
	f, err := b.files.UploadFromPath(ctx, src.Path, &genai.UploadFileConfig{
		MIMEType:    src.MimeType,
		DisplayName: src.Filename,
	})
	if err != nil {
		return nil, classify("upload", err)
	}
	return handleFromFile(f), nil
}

func (b *DeveloperBackend) Get(ctx context.Context, id string) (*remote.Handle, error) {
	f, err := b.files.Get(ctx, id, nil)
	if err != nil {
		return nil, classify("get", err)
	}
	return handleFromFile(f), nil
}

func (b *DeveloperBackend) Generate(ctx context.Context, prompt string, h *remote.Handle) (string, error) {
	return generate(ctx, b.models, b.model, prompt, genai.NewPartFromURI(h.URI, h.MimeType))
}

func (b *DeveloperBackend) Delete(ctx context.Context, h *remote.Handle) error {
	_, err := b.files.Delete(ctx, h.ID, nil)
	return classify("delete", err)
}

func (b *DeveloperBackend) Close() error { return nil }

func handleFromFile(f *genai.File) *remote.Handle {
	h := &remote.Handle{ID: f.Name, URI: f.URI, MimeType: f.MIMEType}
	switch f.State {
	case genai.FileStateProcessing:
		h.State = remote.StatePending
	case genai.FileStateFailed:
		h.State = remote.StateFailed
		if f.Error != nil {
			h.Reason = f.Error.Message
		}
	default:
		h.State = remote.StateReady
	}
	return h
}
