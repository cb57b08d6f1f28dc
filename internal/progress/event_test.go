package progress_test

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/jumpbeam/jumpbeam/internal/progress"
)

func TestEventTypeString(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "TaskStarted", progress.TaskStarted.String())
	assert.Equal(t, "ProgressAdvanced", progress.ProgressAdvanced.String())
	assert.Equal(t, "TaskFinished", progress.TaskFinished.String())
	assert.Equal(t, "TaskError", progress.TaskError.String())
	assert.Equal(t, "Unknown", progress.EventType(99).String())
}

func TestNewEventConstructorsStampTimestamp(t *testing.T) {
	t.Parallel()

	id := uuid.New()
	started := progress.NewTaskStarted(id, "file.bin", 100)
	assert.Equal(t, id, started.TaskID)
	assert.False(t, started.Timestamp.IsZero())

	advanced := progress.NewProgressAdvanced(id, 10)
	assert.Equal(t, int64(10), advanced.Advance)

	finished := progress.NewTaskFinished(id, true)
	assert.True(t, finished.Success)

	errored := progress.NewTaskError(id, "boom")
	assert.Equal(t, "boom", errored.Message)
}
