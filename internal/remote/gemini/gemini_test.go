package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/minio/minio-go/v7"
	"google.golang.org/genai"

	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/upload"
)

type fakeModels struct {
	resp     *genai.GenerateContentResponse
	err      error
	model    string
	contents []*genai.Content
}

func (f *fakeModels) GenerateContent(_ context.Context, model string, contents []*genai.Content, _ *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error) {
	f.model = model
	f.contents = contents
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func textResponse(text string) *genai.GenerateContentResponse {
	return &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: text}}},
	}}}
}

type fakeFiles struct {
	uploaded *genai.File
	got      *genai.File
	err      error
	cfg      *genai.UploadFileConfig
	deleted  string
}

func (f *fakeFiles) UploadFromPath(_ context.Context, _ string, cfg *genai.UploadFileConfig) (*genai.File, error) {
	f.cfg = cfg
	if f.err != nil {
		return nil, f.err
	}
	return f.uploaded, nil
}

func (f *fakeFiles) Get(_ context.Context, name string, _ *genai.GetFileConfig) (*genai.File, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.got, nil
}

func (f *fakeFiles) Delete(_ context.Context, name string, _ *genai.DeleteFileConfig) (*genai.DeleteFileResponse, error) {
	f.deleted = name
	return &genai.DeleteFileResponse{}, nil
}

func TestDeveloperUploadMapsFileState(t *testing.T) {
	files := &fakeFiles{uploaded: &genai.File{Name: "files/abc", URI: "https://files/abc", MIMEType: "audio/mpeg", State: genai.FileStateProcessing}}
	b := &DeveloperBackend{files: files, models: &fakeModels{}, model: DefaultModel}

	h, err := b.Upload(context.Background(), &upload.Source{Path: "/tmp/x.mp3", Filename: "x.mp3", MimeType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if h.ID != "files/abc" || h.State != remote.StatePending || h.URI != "https://files/abc" {
		t.Fatalf("unexpected handle: %+v", h)
	}
	if files.cfg.MIMEType != "audio/mpeg" || files.cfg.DisplayName != "x.mp3" {
		t.Fatalf("unexpected upload config: %+v", files.cfg)
	}
}

func TestHandleFromFileStates(t *testing.T) {
	code := int32(13)
	tests := []struct {
		file   genai.File
		want   remote.State
		reason string
	}{
		{genai.File{State: genai.FileStateProcessing}, remote.StatePending, ""},
		{genai.File{State: genai.FileStateActive}, remote.StateReady, ""},
		{genai.File{State: genai.FileStateUnspecified}, remote.StateReady, ""},
		{genai.File{State: genai.FileStateFailed, Error: &genai.FileStatus{Message: "bad audio", Code: &code}}, remote.StateFailed, "bad audio"},
	}
	for _, tt := range tests {
		f := tt.file
		h := handleFromFile(&f)
		if h.State != tt.want || h.Reason != tt.reason {
			t.Errorf("state %s: got %s/%q, want %s/%q", tt.file.State, h.State, h.Reason, tt.want, tt.reason)
		}
	}
}

func TestDeveloperGetClassifiesAPIErrors(t *testing.T) {
	tests := []struct {
		code int
		want remote.Kind
	}{
		{http.StatusForbidden, remote.KindAuth},
		{http.StatusServiceUnavailable, remote.KindTransient},
		{http.StatusTooManyRequests, remote.KindTransient},
		{http.StatusBadRequest, remote.KindInvalid},
		{http.StatusGatewayTimeout, remote.KindTimeout},
	}
	for _, tt := range tests {
		b := &DeveloperBackend{files: &fakeFiles{err: genai.APIError{Code: tt.code, Message: "x"}}}
		_, err := b.Get(context.Background(), "files/abc")
		if got := remote.KindOf(err); got != tt.want {
			t.Errorf("status %d: got kind %s, want %s", tt.code, got, tt.want)
		}
	}
}

func TestDeveloperGenerateSendsPromptAndFile(t *testing.T) {
	models := &fakeModels{resp: textResponse("# Minutes")}
	b := &DeveloperBackend{files: &fakeFiles{}, models: models, model: "gemini-2.5-pro"}

	text, err := b.Generate(context.Background(), "summarize", &remote.Handle{ID: "files/abc", URI: "https://files/abc", MimeType: "audio/mpeg"})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if text != "# Minutes" {
		t.Fatalf("unexpected text: %q", text)
	}
	if models.model != "gemini-2.5-pro" {
		t.Fatalf("unexpected model: %s", models.model)
	}
	parts := models.contents[0].Parts
	if len(parts) != 2 || parts[0].Text != "summarize" || parts[1].FileData == nil || parts[1].FileData.FileURI != "https://files/abc" {
		t.Fatalf("unexpected request parts: %+v", parts)
	}
}

func TestGenerateBlockedPromptIsInvalid(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{
		PromptFeedback: &genai.GenerateContentResponsePromptFeedback{BlockReason: "SAFETY"},
	}}
	_, err := generate(context.Background(), models, DefaultModel, "p", genai.NewPartFromURI("u", "audio/mpeg"))
	if remote.KindOf(err) != remote.KindInvalid {
		t.Fatalf("expected invalid error, got %v", err)
	}
}

func TestGenerateEmptyResponseIsProcessingFailure(t *testing.T) {
	models := &fakeModels{resp: &genai.GenerateContentResponse{}}
	_, err := generate(context.Background(), models, DefaultModel, "p", genai.NewPartFromURI("u", "audio/mpeg"))
	if remote.KindOf(err) != remote.KindProcessing {
		t.Fatalf("expected processing error, got %v", err)
	}
}

func TestDeveloperDelete(t *testing.T) {
	files := &fakeFiles{}
	b := &DeveloperBackend{files: files}
	if err := b.Delete(context.Background(), &remote.Handle{ID: "files/abc"}); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if files.deleted != "files/abc" {
		t.Fatalf("unexpected delete target: %q", files.deleted)
	}
}

func TestNewDeveloperBackendRequiresKey(t *testing.T) {
	_, err := NewDeveloperBackend(context.Background(), "", "")
	if remote.KindOf(err) != remote.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}

type fakeStore struct {
	putBucket, putObject string
	putOpts              minio.PutObjectOptions
	putBody              string
	putErr               error
	statErr              error
	removed              string
}

func (f *fakeStore) PutObject(_ context.Context, bucket, object string, r io.Reader, _ int64, opts minio.PutObjectOptions) (minio.UploadInfo, error) {
	if f.putErr != nil {
		return minio.UploadInfo{}, f.putErr
	}
	b, _ := io.ReadAll(r)
	f.putBucket, f.putObject, f.putOpts, f.putBody = bucket, object, opts, string(b)
	return minio.UploadInfo{Bucket: bucket, Key: object}, nil
}

func (f *fakeStore) StatObject(_ context.Context, _, object string, _ minio.StatObjectOptions) (minio.ObjectInfo, error) {
	if f.statErr != nil {
		return minio.ObjectInfo{}, f.statErr
	}
	return minio.ObjectInfo{Key: object, ContentType: "audio/wav"}, nil
}

func (f *fakeStore) RemoveObject(_ context.Context, _, object string, _ minio.RemoveObjectOptions) error {
	f.removed = object
	return nil
}

func newTestVertex(store ObjectStore, models contentGenerator) *VertexBackend {
	b := newVertexBackend(store, models, VertexConfig{Project: "p", Location: "asia-northeast1", Staging: StagingConfig{Bucket: "audio", Prefix: "/minutes/"}})
	b.newName = func(ext string) string { return "fixed" + ext }
	return b
}

func TestVertexUploadStagesObject(t *testing.T) {
	path := filepath.Join(t.TempDir(), "meeting.wav")
	if err := os.WriteFile(path, []byte("RIFF"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	store := &fakeStore{}
	b := newTestVertex(store, &fakeModels{})

	h, err := b.Upload(context.Background(), &upload.Source{Path: path, Filename: "meeting.wav", MimeType: "audio/wav", Size: 4})
	if err != nil {
		t.Fatalf("Upload returned error: %v", err)
	}
	if store.putBucket != "audio" || store.putObject != "minutes/fixed.wav" || store.putBody != "RIFF" {
		t.Fatalf("unexpected put: bucket=%s object=%s body=%q", store.putBucket, store.putObject, store.putBody)
	}
	if store.putOpts.ContentType != "audio/wav" || store.putOpts.UserMetadata["source-filename"] != "meeting.wav" {
		t.Fatalf("unexpected put options: %+v", store.putOpts)
	}
	if h.URI != "gs://audio/minutes/fixed.wav" || h.State != remote.StatePending {
		t.Fatalf("unexpected handle: %+v", h)
	}
}

func TestVertexGetReadyAndMissing(t *testing.T) {
	b := newTestVertex(&fakeStore{}, &fakeModels{})
	h, err := b.Get(context.Background(), "minutes/fixed.wav")
	if err != nil || h.State != remote.StateReady || h.MimeType != "audio/wav" {
		t.Fatalf("expected ready handle, got %+v err=%v", h, err)
	}

	missing := minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound, Message: "missing"}
	b = newTestVertex(&fakeStore{statErr: missing}, &fakeModels{})
	h, err = b.Get(context.Background(), "minutes/fixed.wav")
	if err != nil || h.State != remote.StateFailed {
		t.Fatalf("expected failed handle for a missing object, got %+v err=%v", h, err)
	}
}

func TestVertexUploadClassifiesStoreErrors(t *testing.T) {
	path := filepath.Join(t.TempDir(), "a.mp3")
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}
	denied := minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}
	b := newTestVertex(&fakeStore{putErr: denied}, &fakeModels{})

	_, err := b.Upload(context.Background(), &upload.Source{Path: path, Filename: "a.mp3", MimeType: "audio/mpeg", Size: 1})
	if remote.KindOf(err) != remote.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}

	b = newTestVertex(&fakeStore{putErr: errors.New("dial tcp: connection refused")}, &fakeModels{})
	_, err = b.Upload(context.Background(), &upload.Source{Path: path, Filename: "a.mp3", MimeType: "audio/mpeg", Size: 1})
	if remote.KindOf(err) != remote.KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
}

func TestVertexGenerateUsesObjectURI(t *testing.T) {
	models := &fakeModels{resp: textResponse("ok")}
	b := newTestVertex(&fakeStore{}, models)

	if _, err := b.Generate(context.Background(), "p", &remote.Handle{ID: "o", URI: "gs://audio/o", MimeType: "audio/wav"}); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if uri := models.contents[0].Parts[1].FileData.FileURI; !strings.HasPrefix(uri, "gs://audio/") {
		t.Fatalf("unexpected file uri: %s", uri)
	}
}

func TestVertexDeleteRemovesObject(t *testing.T) {
	store := &fakeStore{}
	b := newTestVertex(store, &fakeModels{})
	if err := b.Delete(context.Background(), &remote.Handle{ID: "minutes/fixed.wav"}); err != nil {
		t.Fatalf("Delete returned error: %v", err)
	}
	if store.removed != "minutes/fixed.wav" {
		t.Fatalf("unexpected removal: %q", store.removed)
	}
}

func TestNewVertexBackendRequiresProject(t *testing.T) {
	_, err := NewVertexBackend(context.Background(), VertexConfig{Location: "asia-northeast1"})
	if remote.KindOf(err) != remote.KindAuth {
		t.Fatalf("expected auth error, got %v", err)
	}
}
