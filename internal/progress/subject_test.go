package progress_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumpbeam/jumpbeam/internal/progress"
)

type recordingObserver struct {
	events []progress.Event
}

func (r *recordingObserver) OnEvent(ev progress.Event) { r.events = append(r.events, ev) }

type panickyObserver struct{}

func (panickyObserver) OnEvent(progress.Event) { panic("boom") }

func TestSubjectPublishFansOutToAllObservers(t *testing.T) {
	t.Parallel()

	s := progress.NewSubject()
	a := &recordingObserver{}
	b := &recordingObserver{}
	s.Attach(a)
	s.Attach(b)

	ev := progress.NewTaskStarted(uuid.New(), "file.bin", 1024)
	s.Publish(ev)

	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)
	assert.Equal(t, ev.TaskID, a.events[0].TaskID)
}

func TestSubjectDetachStopsDelivery(t *testing.T) {
	t.Parallel()

	s := progress.NewSubject()
	a := &recordingObserver{}
	s.Attach(a)
	s.Detach(a)

	s.Publish(progress.NewTaskStarted(uuid.New(), "file.bin", 1024))
	assert.Empty(t, a.events)
}

func TestSubjectPublishSurvivesObserverPanic(t *testing.T) {
	t.Parallel()

	s := progress.NewSubject()
	s.Attach(panickyObserver{})
	after := &recordingObserver{}
	s.Attach(after)

	assert.NotPanics(t, func() {
		s.Publish(progress.NewTaskStarted(uuid.New(), "file.bin", 1024))
	})
	assert.Len(t, after.events, 1)
}
