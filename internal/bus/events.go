package bus

import (
	"log/slog"
	"time"

	"github.com/tendant/simple-minutes/pkg/schema"
)

// Events publishes job progress on "<subject>.progress" and the terminal
// result on subject. Publish failures are logged, never returned: events are
// advisory and must not fail a job.
type Events struct {
	pub     Publisher
	subject string
	logger  *slog.Logger
}

func NewEvents(pub Publisher, subject string, logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{pub: pub, subject: subject, logger: logger}
}

func (e *Events) ProgressSubject() string { return e.subject + ".progress" }

func (e *Events) Progress(ev schema.ProgressEvent) {
	if ev.HappenedAt == 0 {
		ev.HappenedAt = time.Now().Unix()
	}
	if err := e.pub.PublishJSON(e.ProgressSubject(), ev); err != nil {
		e.logger.Error("publish progress event failed", "subject", e.ProgressSubject(), "stage", ev.Stage, "err", err)
	}
}

func (e *Events) Done(done schema.MinutesDone) {
	if done.HappenedAt == 0 {
		done.HappenedAt = time.Now().Unix()
	}
	if err := e.pub.PublishJSON(e.subject, done); err != nil {
		e.logger.Error("publish result failed", "subject", e.subject, "id", done.ID, "err", err)
	}
}
