package bus

import (
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/tendant/simple-minutes/pkg/schema"
)

type published struct {
	subject string
	v       any
}

type fakePublisher struct {
	msgs []published
	err  error
}

func (f *fakePublisher) PublishJSON(subject string, v any) error {
	f.msgs = append(f.msgs, published{subject, v})
	return f.err
}

func TestEventsSubjects(t *testing.T) {
	pub := &fakePublisher{}
	ev := NewEvents(pub, "minutes.done", nil)

	ev.Progress(schema.ProgressEvent{JobID: "j", Stage: schema.StageUploading, Percent: 20})
	ev.Done(schema.MinutesDone{ID: "j", Stage: schema.StageCompleted})

	if len(pub.msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(pub.msgs))
	}
	if pub.msgs[0].subject != "minutes.done.progress" || pub.msgs[1].subject != "minutes.done" {
		t.Fatalf("unexpected subjects %+v", pub.msgs)
	}
	progress := pub.msgs[0].v.(schema.ProgressEvent)
	if progress.HappenedAt == 0 {
		t.Fatal("progress timestamp not set")
	}
	done := pub.msgs[1].v.(schema.MinutesDone)
	if done.HappenedAt == 0 {
		t.Fatal("done timestamp not set")
	}
}

func TestEventsSwallowPublishErrors(t *testing.T) {
	pub := &fakePublisher{err: errors.New("nats: connection closed")}
	ev := NewEvents(pub, "minutes.done", slog.New(slog.NewTextHandler(io.Discard, nil)))

	ev.Progress(schema.ProgressEvent{JobID: "j"})
	ev.Done(schema.MinutesDone{ID: "j"})
	if len(pub.msgs) != 2 {
		t.Fatalf("expected both publishes to be attempted, got %d", len(pub.msgs))
	}
}
