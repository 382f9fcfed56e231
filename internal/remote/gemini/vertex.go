package gemini

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"google.golang.org/genai"

	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/upload"
)

// ObjectStore is the subset of the minio client used to stage audio.
type ObjectStore interface {
	PutObject(ctx context.Context, bucketName, objectName string, reader io.Reader, objectSize int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucketName, objectName string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	RemoveObject(ctx context.Context, bucketName, objectName string, opts minio.RemoveObjectOptions) error
}

// StagingConfig points at an S3-compatible bucket that Vertex AI can read,
// typically Cloud Storage through its interoperability endpoint
// (storage.googleapis.com with HMAC keys).
type StagingConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	Prefix    string
	UseSSL    bool
	// URIScheme is prepended to bucket/object when the file is referenced in a
	// generation request. Defaults to "gs://".
	URIScheme string
}

type VertexConfig struct {
	Project  string
	Location string
	Model    string
	Staging  StagingConfig
}

func NewObjectStore(cfg StagingConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	return client, nil
}

// VertexBackend stages audio as an object and has Vertex AI read it by URI.
// An object is ready as soon as it can be stat'ed.
type VertexBackend struct {
	store   ObjectStore
	bucket  string
	prefix  string
	scheme  string
	models  contentGenerator
	model   string
	newName func(ext string) string
}

func NewVertexBackend(ctx context.Context, cfg VertexConfig) (*VertexBackend, error) {
	if cfg.Project == "" || cfg.Location == "" {
		return nil, &remote.Error{Kind: remote.KindAuth, Op: "connect", Err: fmt.Errorf("vertex project id and location are required")}
	}
	if cfg.Staging.Bucket == "" {
		return nil, fmt.Errorf("vertex staging bucket is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		Backend:  genai.BackendVertexAI,
		Project:  cfg.Project,
		Location: cfg.Location,
	})
	if err != nil {
		return nil, classify("connect", err)
	}
	store, err := NewObjectStore(cfg.Staging)
	if err != nil {
		return nil, err
	}
	return newVertexBackend(store, client.Models, cfg), nil
}

func newVertexBackend(store ObjectStore, models contentGenerator, cfg VertexConfig) *VertexBackend {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	scheme := cfg.Staging.URIScheme
	if scheme == "" {
		scheme = "gs://"
	}
	return &VertexBackend{
		store:  store,
		bucket: cfg.Staging.Bucket,
		prefix: strings.Trim(cfg.Staging.Prefix, "/"),
		scheme: scheme,
		models: models,
		model:  model,
		newName: func(ext string) string {
			return uuid.NewString() + ext
		},
	}
}

func (b *VertexBackend) Name() string { return "vertex" }

func (b *VertexBackend) Upload(ctx context.Context, src *upload.Source) (*remote.Handle, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindInvalid, Op: "upload", Err: fmt.Errorf("open staged audio: %w", err)}
	}
	defer f.Close()

	object := path.Join(b.prefix, b.newName(strings.ToLower(path.Ext(src.Path))))
	_, err = b.store.PutObject(ctx, b.bucket, object, f, src.Size, minio.PutObjectOptions{
		ContentType:  src.MimeType,
		UserMetadata: map[string]string{"source-filename": src.Filename},
	})
	if err != nil {
		return nil, classifyObject("upload", err)
	}
	return &remote.Handle{ID: object, URI: b.uri(object), MimeType: src.MimeType, State: remote.StatePending}, nil
}

func (b *VertexBackend) Get(ctx context.Context, id string) (*remote.Handle, error) {
	info, err := b.store.StatObject(ctx, b.bucket, id, minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return &remote.Handle{ID: id, URI: b.uri(id), State: remote.StateFailed, Reason: "staged object is missing"}, nil
		}
		return nil, classifyObject("get", err)
	}
	return &remote.Handle{ID: id, URI: b.uri(id), MimeType: info.ContentType, State: remote.StateReady}, nil
}

func (b *VertexBackend) Generate(ctx context.Context, prompt string, h *remote.Handle) (string, error) {
	return generate(ctx, b.models, b.model, prompt, genai.NewPartFromURI(h.URI, h.MimeType))
}

func (b *VertexBackend) Delete(ctx context.Context, h *remote.Handle) error {
	if err := b.store.RemoveObject(ctx, b.bucket, h.ID, minio.RemoveObjectOptions{}); err != nil {
		return classifyObject("delete", err)
	}
	return nil
}

func (b *VertexBackend) Close() error { return nil }

func (b *VertexBackend) uri(object string) string {
	return b.scheme + b.bucket + "/" + object
}

func classifyObject(op string, err error) error {
	if resp := minio.ToErrorResponse(err); resp.StatusCode != 0 {
		return &remote.Error{Kind: remote.KindForStatus(resp.StatusCode), Op: op, Err: err}
	}
	return remote.Wrap(op, err)
}
