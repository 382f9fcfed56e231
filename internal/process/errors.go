package process

import (
	"errors"
	"strings"

	"github.com/tendant/simple-minutes/internal/remote"
	"github.com/tendant/simple-minutes/internal/upload"
	"github.com/tendant/simple-minutes/pkg/schema"
)

// ErrorKind groups job failures by what the operator can do about them.
type ErrorKind string

const (
	ErrorConnectivity ErrorKind = "connectivity"
	ErrorTimeout      ErrorKind = "timeout"
	ErrorCredential   ErrorKind = "credential"
	ErrorProcessing   ErrorKind = "processing"
	ErrorInvalidInput ErrorKind = "invalid_input"
	ErrorCanceled     ErrorKind = "canceled"
	ErrorUnknown      ErrorKind = "unknown"
)

const (
	hintConnectivity = "Check the internet connection and the provider's status page, then try again in a few minutes."
	hintDNS          = "Check the internet connection, the DNS servers in use (for example 8.8.8.8 or 1.1.1.1) and any firewall or proxy settings, then try again."
	hintTimeout      = "Large recordings can take a long time to process. Try again, or split the recording."
	hintCredential   = "Check the API key, or the Vertex AI project, location and permissions."
	hintProcessing   = "The service could not process this recording. Check that the file plays and is not corrupted."
	hintInvalidInput = "Use an mp3, wav, m4a, mp4, aac or flac recording and a non-empty prompt."
)

// JobError is the classified, user-facing failure of a job.
type JobError struct {
	Kind    ErrorKind
	Message string
	Hint    string
	Err     error
}

func (e *JobError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *JobError) Unwrap() error { return e.Err }

// FailureType tells bus consumers whether resubmitting the job may help.
func (e *JobError) FailureType() schema.FailureType {
	switch e.Kind {
	case ErrorInvalidInput, ErrorCredential:
		return schema.FailureTypeValidation
	case ErrorProcessing:
		return schema.FailureTypePermanent
	}
	return schema.FailureTypeRetryable
}

// Classify maps err onto a JobError. It returns nil for a nil error and err
// itself when it already is a *JobError.
func Classify(err error) *JobError {
	if err == nil {
		return nil
	}
	var je *JobError
	if errors.As(err, &je) {
		return je
	}

	if errors.Is(err, upload.ErrUnsupportedType) || errors.Is(err, upload.ErrEmptyAudio) || errors.Is(err, remote.ErrEmptyPrompt) {
		return &JobError{Kind: ErrorInvalidInput, Message: "invalid input", Hint: hintInvalidInput, Err: err}
	}
	if strings.Contains(err.Error(), "DNS") || strings.Contains(err.Error(), "no such host") {
		return &JobError{Kind: ErrorConnectivity, Message: "DNS resolution failed", Hint: hintDNS, Err: err}
	}

	switch remote.KindOf(err) {
	case remote.KindTransient:
		return &JobError{Kind: ErrorConnectivity, Message: "remote service is temporarily unavailable", Hint: hintConnectivity, Err: err}
	case remote.KindTimeout:
		return &JobError{Kind: ErrorTimeout, Message: "request timed out", Hint: hintTimeout, Err: err}
	case remote.KindAuth:
		return &JobError{Kind: ErrorCredential, Message: "authorization failed", Hint: hintCredential, Err: err}
	case remote.KindInvalid:
		return &JobError{Kind: ErrorInvalidInput, Message: "request rejected", Hint: hintInvalidInput, Err: err}
	case remote.KindProcessing:
		return &JobError{Kind: ErrorProcessing, Message: "audio processing failed", Hint: hintProcessing, Err: err}
	case remote.KindCanceled:
		return &JobError{Kind: ErrorCanceled, Message: "job canceled", Err: err}
	}
	return &JobError{Kind: ErrorUnknown, Message: "an error occurred", Err: err}
}
