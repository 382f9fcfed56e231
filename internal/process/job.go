// internal/process/job.go
package process

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tendant/simple-minutes/pkg/schema"
)

// State is a step of the minutes job lifecycle.
type State string

const (
	StateInit         State = "INIT"
	StateUploading    State = "UPLOADING"
	StateWaitingReady State = "WAITING_READY"
	StateGenerating   State = "GENERATING"
	StatePersisting   State = "PERSISTING"
	StateDone         State = "DONE"
	StateFailed       State = "FAILED"
)

// Advisory progress checkpoints.
const (
	PercentStart    = 0
	PercentStaged   = 20
	PercentUploaded = 40
	PercentReady    = 60
	PercentDone     = 100
)

var next = map[State]State{
	StateInit:         StateUploading,
	StateUploading:    StateWaitingReady,
	StateWaitingReady: StateGenerating,
	StateGenerating:   StatePersisting,
	StatePersisting:   StateDone,
}

func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// Stage maps s onto the stage published in bus events.
func (s State) Stage() schema.ProcessingStage {
	switch s {
	case StateUploading:
		return schema.StageUploading
	case StateWaitingReady:
		return schema.StageWaitingReady
	case StateGenerating:
		return schema.StageGenerating
	case StatePersisting:
		return schema.StagePersisting
	case StateDone:
		return schema.StageCompleted
	case StateFailed:
		return schema.StageFailed
	}
	return schema.StageInit
}

// Job captures one minutes request. Everything except State and Error is
// fixed once the job starts.
type Job struct {
	ID              string
	SourceFilename  string
	SourceSizeBytes uint64
	PromptText      string
	StartedAt       time.Time
	State           State
	Error           string
}

func NewJob(filename string, size uint64, prompt string, startedAt time.Time) *Job {
	return &Job{
		ID:              uuid.NewString(),
		SourceFilename:  filename,
		SourceSizeBytes: size,
		PromptText:      prompt,
		StartedAt:       startedAt,
		State:           StateInit,
	}
}

// Advance moves j to to. Only the next step of the happy path is allowed.
func (j *Job) Advance(to State) error {
	if next[j.State] != to {
		return fmt.Errorf("invalid job transition %s -> %s", j.State, to)
	}
	j.State = to
	return nil
}

// MarkFailed moves a non-terminal job to FAILED and records err.
func MarkFailed(j *Job, err error) {
	if j.State.Terminal() {
		return
	}
	j.State = StateFailed
	if err != nil {
		j.Error = err.Error()
	}
}

func (j *Job) SizeMB() float64 {
	return float64(j.SourceSizeBytes) / (1024 * 1024)
}
