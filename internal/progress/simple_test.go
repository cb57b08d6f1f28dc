package progress_test

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jumpbeam/jumpbeam/internal/progress"
)

func TestSimpleObserverPrintsStartAndTerminal(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	obs := progress.NewSimpleObserver(&out)
	id := uuid.New()

	obs.OnEvent(progress.NewTaskStarted(id, "payload.bin", 2048))
	obs.OnEvent(progress.NewTaskFinished(id, true))

	output := out.String()
	assert.Contains(t, output, "payload.bin")
	assert.Contains(t, output, "started")
	assert.Contains(t, output, "finished: ok")
}

func TestSimpleObserverRateLimitsProgressAdvanced(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	obs := progress.NewSimpleObserver(&out)
	id := uuid.New()

	now := time.Now()
	obs.OnEvent(progress.Event{Type: progress.TaskStarted, TaskID: id, Timestamp: now, Description: "payload.bin", Total: 2048})
	out.Reset()

	// First advance lands 200ms after the start line, outside the window: printed.
	obs.OnEvent(progress.Event{Type: progress.ProgressAdvanced, TaskID: id, Timestamp: now.Add(200 * time.Millisecond), Advance: 100})
	obs.OnEvent(progress.Event{Type: progress.ProgressAdvanced, TaskID: id, Timestamp: now.Add(250 * time.Millisecond), Advance: 100})

	// Second advance arrives within the 200ms rate-limit window: suppressed.
	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("bytes")))
}

func TestSimpleObserverTerminalEventsAlwaysPrint(t *testing.T) {
	t.Parallel()

	var out bytes.Buffer
	obs := progress.NewSimpleObserver(&out)
	id := uuid.New()
	now := time.Now()

	obs.OnEvent(progress.Event{Type: progress.TaskStarted, TaskID: id, Timestamp: now, Description: "payload.bin", Total: 10})
	obs.OnEvent(progress.Event{Type: progress.TaskError, TaskID: id, Timestamp: now, Message: "peer closed"})
	obs.OnEvent(progress.Event{Type: progress.TaskStarted, TaskID: id, Timestamp: now, Description: "payload.bin", Total: 10})
	obs.OnEvent(progress.Event{Type: progress.TaskFinished, TaskID: id, Timestamp: now, Success: false})

	output := out.String()
	assert.Contains(t, output, "error: peer closed")
	assert.Contains(t, output, "finished: incomplete")
}
