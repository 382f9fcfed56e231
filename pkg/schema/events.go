package schema

// MinutesRequested asks a worker to produce minutes for an audio file that is
// reachable on the worker's filesystem.
type MinutesRequested struct {
	ID         string `json:"id"`
	Path       string `json:"path"`
	Filename   string `json:"filename,omitempty"`
	Prompt     string `json:"prompt,omitempty"`
	HappenedAt int64  `json:"happened_at"`
}

type ProcessingStage string

const (
	StageInit         ProcessingStage = "init"
	StageUploading    ProcessingStage = "uploading"
	StageWaitingReady ProcessingStage = "waiting_ready"
	StageGenerating   ProcessingStage = "generating"
	StagePersisting   ProcessingStage = "persisting"
	StageCompleted    ProcessingStage = "completed"
	StageFailed       ProcessingStage = "failed"
)

type FailureType string

const (
	FailureTypeRetryable  FailureType = "retryable"
	FailureTypePermanent  FailureType = "permanent"
	FailureTypeValidation FailureType = "validation"
)

// ProgressEvent is an advisory checkpoint emitted while a job runs.
type ProgressEvent struct {
	JobID      string          `json:"job_id"`
	Stage      ProcessingStage `json:"stage"`
	Percent    int             `json:"percent"`
	Message    string          `json:"message"`
	HappenedAt int64           `json:"happened_at"`
}

// MinutesDone is published once per job when it reaches a terminal stage.
type MinutesDone struct {
	ID          string          `json:"id"`
	RequestID   string          `json:"request_id,omitempty"`
	Filename    string          `json:"filename"`
	Stage       ProcessingStage `json:"stage"`
	Text        string          `json:"text,omitempty"`
	MinutesFile string          `json:"minutes_file,omitempty"`
	DurationMs  int64           `json:"duration_ms"`
	ErrorKind   string          `json:"error_kind,omitempty"`
	Error       string          `json:"error,omitempty"`
	Hint        string          `json:"hint,omitempty"`
	FailureType FailureType     `json:"failure_type,omitempty"`
	Warnings    []string        `json:"warnings,omitempty"`
	HappenedAt  int64           `json:"happened_at"`
}
