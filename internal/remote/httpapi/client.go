// Package httpapi is a remote backend for services exposing the
// upload/poll/generate contract over plain REST:
//
//	POST   {base}/v1/files        multipart "file"            -> {"id","state"}
//	GET    {base}/v1/files/{id}                               -> {"id","state","error"}
//	POST   {base}/v1/generate     {"file_id","prompt","model"} -> {"text"}
//	DELETE {base}/v1/files/{id}
//
// States are PENDING, READY and FAILED (PROCESSING/ACTIVE are accepted as
// aliases). Requests carry a bearer token.
package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/upload"
)

type Config struct {
	BaseURL string
	Token   string
	Model   string
	// Timeout bounds a single HTTP exchange. Generation attempts are bounded
	// by the caller's context instead.
	Timeout time.Duration
}

type Client struct {
	config     Config
	httpClient *http.Client
}

type fileResponse struct {
	ID       string `json:"id"`
	URI      string `json:"uri,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
	State    string `json:"state"`
	Error    string `json:"error,omitempty"`
}

type generateRequest struct {
	FileID string `json:"file_id"`
	Prompt string `json:"prompt"`
	Model  string `json:"model,omitempty"`
}

type generateResponse struct {
	Text string `json:"text"`
}

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func NewClient(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("remote api url cannot be empty")
	}
	if cfg.Token == "" {
		return nil, &remote.Error{Kind: remote.KindAuth, Op: "connect", Err: fmt.Errorf("remote api token cannot be empty")}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Minute
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config: cfg,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}, nil
}

func (c *Client) Name() string { return "http" }

func (c *Client) Upload(ctx context.Context, src *upload.Source) (*remote.Handle, error) {
	f, err := os.Open(src.Path)
	if err != nil {
		return nil, &remote.Error{Kind: remote.KindInvalid, Op: "upload", Err: fmt.Errorf("open staged audio: %w", err)}
	}
	defer f.Close()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, src.Filename))
	header.Set("Content-Type", src.MimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return nil, fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return nil, fmt.Errorf("failed to write audio data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("failed to close multipart writer: %w", err)
	}

	var resp fileResponse
	if err := c.do(ctx, "upload", http.MethodPost, "/v1/files", writer.FormDataContentType(), &buf, &resp); err != nil {
		return nil, err
	}
	return c.handle(resp)
}

func (c *Client) Get(ctx context.Context, id string) (*remote.Handle, error) {
	var resp fileResponse
	if err := c.do(ctx, "get", http.MethodGet, "/v1/files/"+url.PathEscape(id), "", nil, &resp); err != nil {
		return nil, err
	}
	if resp.ID == "" {
		resp.ID = id
	}
	return c.handle(resp)
}

func (c *Client) Generate(ctx context.Context, prompt string, h *remote.Handle) (string, error) {
	body, err := json.Marshal(generateRequest{FileID: h.ID, Prompt: prompt, Model: c.config.Model})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}
	var resp generateResponse
	if err := c.do(ctx, "generate", http.MethodPost, "/v1/generate", "application/json", bytes.NewReader(body), &resp); err != nil {
		return "", err
	}
	if resp.Text == "" {
		return "", &remote.Error{Kind: remote.KindProcessing, Op: "generate", Err: fmt.Errorf("service returned no text")}
	}
	return resp.Text, nil
}

func (c *Client) Delete(ctx context.Context, h *remote.Handle) error {
	return c.do(ctx, "delete", http.MethodDelete, "/v1/files/"+url.PathEscape(h.ID), "", nil, nil)
}

func (c *Client) Close() error {
	c.httpClient.CloseIdleConnections()
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path, contentType string, body io.Reader, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.Token)
	req.Header.Set("Accept", "application/json")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return remote.Wrap(op, fmt.Errorf("failed to send request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return remote.Wrap(op, fmt.Errorf("failed to read response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &remote.Error{Kind: remote.KindForStatus(resp.StatusCode), Op: op, Err: fmt.Errorf("HTTP error %d: %s", resp.StatusCode, errorMessage(respBody))}
	}
	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return &remote.Error{Kind: remote.KindUnknown, Op: op, Err: fmt.Errorf("failed to parse response: %w, body: %s", err, string(respBody))}
	}
	return nil
}

func (c *Client) handle(resp fileResponse) (*remote.Handle, error) {
	if resp.ID == "" {
		return nil, &remote.Error{Kind: remote.KindUnknown, Op: "upload", Err: fmt.Errorf("service returned no file id")}
	}
	h := &remote.Handle{ID: resp.ID, URI: resp.URI, MimeType: resp.MimeType, Reason: resp.Error}
	switch strings.ToUpper(resp.State) {
	case "PENDING", "PROCESSING":
		h.State = remote.StatePending
	case "FAILED":
		h.State = remote.StateFailed
	case "READY", "ACTIVE", "":
		h.State = remote.StateReady
	default:
		return nil, &remote.Error{Kind: remote.KindUnknown, Op: "get", Err: fmt.Errorf("unknown file state %q", resp.State)}
	}
	return h, nil
}

func errorMessage(body []byte) string {
	var e errorResponse
	if err := json.Unmarshal(body, &e); err == nil {
		if e.Message != "" {
			return e.Message
		}
		if e.Error != "" {
			return e.Error
		}
	}
	return strings.TrimSpace(string(body))
}
