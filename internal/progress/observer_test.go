package progress_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jumpbeam/jumpbeam/internal/progress"
	"github.com/jumpbeam/jumpbeam/internal/render"
)

// fakeHandle and fakeSink give the RichObserver something to drive without
// depending on internal/render's concrete sinks.
type fakeHandle struct {
	completed, total int64
	finished         bool
	success          bool
	message          string
	evicted          bool
}

func (h *fakeHandle) Advance(completed, total int64) { h.completed, h.total = completed, total }
func (h *fakeHandle) Finish(success bool, message string) {
	h.finished, h.success, h.message = true, success, message
}
func (h *fakeHandle) Evict() { h.evicted = true }

type fakeSink struct {
	handles map[uuid.UUID]*fakeHandle
	closed  bool
}

func newFakeSink() *fakeSink { return &fakeSink{handles: make(map[uuid.UUID]*fakeHandle)} }

func (s *fakeSink) Register(taskID uuid.UUID, description string, total int64) render.Handle {
	h := &fakeHandle{total: total}
	s.handles[taskID] = h
	return h
}

func (s *fakeSink) Close() error { s.closed = true; return nil }

func TestRichObserverAggregatesProgress(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	id := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(id, "payload.bin", 1000))
	obs.OnEvent(progress.NewProgressAdvanced(id, 400))
	obs.OnEvent(progress.NewProgressAdvanced(id, 400))

	tasks := obs.Tasks()
	require.Contains(t, tasks, id)
	assert.Equal(t, int64(800), tasks[id].Completed)
	assert.Equal(t, sink.handles[id].completed, tasks[id].Completed)
}

func TestRichObserverClampsCompletedToTotal(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	id := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(id, "payload.bin", 100))
	obs.OnEvent(progress.NewProgressAdvanced(id, 500))

	assert.Equal(t, int64(100), obs.Tasks()[id].Completed)
}

func TestRichObserverTaskFinishedMarksSuccess(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	id := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(id, "payload.bin", 100))
	obs.OnEvent(progress.NewTaskFinished(id, true))

	task := obs.Tasks()[id]
	assert.Equal(t, progress.Finished, task.State)
	assert.Equal(t, int64(100), task.Completed)
	assert.True(t, sink.handles[id].finished)
	assert.True(t, sink.handles[id].success)
}

func TestRichObserverTaskErrorMarksErrored(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	id := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(id, "payload.bin", 100))
	obs.OnEvent(progress.NewTaskError(id, "connection reset"))

	task := obs.Tasks()[id]
	assert.Equal(t, progress.Errored, task.State)
	assert.Equal(t, "connection reset", task.Message)
	assert.False(t, sink.handles[id].success)
}

func TestRichObserverIgnoresEventsForUnknownTask(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)

	assert.NotPanics(t, func() {
		obs.OnEvent(progress.NewProgressAdvanced(uuid.New(), 10))
		obs.OnEvent(progress.NewTaskFinished(uuid.New(), true))
	})
	assert.Empty(t, obs.Tasks())
}

func TestRichObserverReapRemovesOnlyTerminalTasks(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	running := uuid.New()
	done := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(running, "still-going", 100))
	obs.OnEvent(progress.NewTaskStarted(done, "wrapped-up", 100))
	obs.OnEvent(progress.NewTaskFinished(done, true))

	obs.Reap()

	tasks := obs.Tasks()
	assert.Contains(t, tasks, running)
	assert.NotContains(t, tasks, done)
	assert.True(t, sink.handles[done].evicted)
	assert.False(t, sink.handles[running].evicted)
}

func TestRichObserverCloseClosesSink(t *testing.T) {
	t.Parallel()

	sink := newFakeSink()
	obs := progress.NewRichObserver(sink)
	require.NoError(t, obs.Close())
	assert.True(t, sink.closed)
}
