package remote

import (
	"context"

	"github.com/tendant/simple-minutes/internal/upload"
)

// State is the processing state of an uploaded file.
type State string

const (
	StatePending State = "PENDING"
	StateReady   State = "READY"
	StateFailed  State = "FAILED"
)

// Handle is an opaque reference to a file held by the remote service.
type Handle struct {
	ID       string
	URI      string
	MimeType string
	State    State
	// Reason carries the provider's explanation when State is StateFailed.
	Reason string
}

// Result is the generated document.
type Result struct {
	Text string
}

// Backend is one provider's upload/poll/generate capability. Every method
// performs exactly one attempt and reports failures as *Error where the
// provider allows it.
type Backend interface {
	Name() string
	Upload(ctx context.Context, src *upload.Source) (*Handle, error)
	Get(ctx context.Context, id string) (*Handle, error)
	Generate(ctx context.Context, prompt string, h *Handle) (string, error)
	Delete(ctx context.Context, h *Handle) error
	Close() error
}
