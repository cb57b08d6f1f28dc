package render

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHUDRegisterDrawsRow(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	id := uuid.New()
	handle := h.Register(id, "upload.bin", 1024)
	require.NotNil(t, handle)

	assert.Contains(t, out.String(), "upload.bin")
	assert.Equal(t, 1, h.drawn)
}

func TestHUDAdvanceUpdatesBar(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	id := uuid.New()
	handle := h.Register(id, "payload", 100)
	out.Reset()
	h.lastDraw = time.Time{} // past the minRedrawGap throttle, so Advance redraws

	handle.Advance(50, 100)
	assert.Contains(t, out.String(), "50%")
}

func TestHUDFinishSuccessShowsDone(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	id := uuid.New()
	handle := h.Register(id, "payload", 100)
	out.Reset()

	handle.Finish(true, "")
	assert.Contains(t, out.String(), "done")
}

func TestHUDFinishFailureShowsReason(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	id := uuid.New()
	handle := h.Register(id, "payload", 100)
	out.Reset()

	handle.Finish(false, "connection reset")
	output := out.String()
	assert.Contains(t, output, "FAILED")
	assert.Contains(t, output, "connection reset")
}

func TestHUDEvictRemovesRow(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	id := uuid.New()
	handle := h.Register(id, "payload", 100)

	handle.Evict()
	h.mu.Lock()
	_, ok := h.rows[id]
	h.mu.Unlock()
	assert.False(t, ok)
}

func TestHUDCloseClearsAndIsIdempotent(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)
	h.Register(uuid.New(), "payload", 100)

	require.NoError(t, h.Close())
	assert.Contains(t, out.String(), "\033[")
	require.NoError(t, h.Close()) // second call is a no-op, not a double-clear
}

func TestHUDMultipleRowsOrderedByRegistration(t *testing.T) {
	var out bytes.Buffer
	h := NewHUD(&out)

	first := h.Register(uuid.New(), "alpha", 10)
	second := h.Register(uuid.New(), "beta", 10)
	out.Reset()

	first.Advance(1, 10)
	second.Advance(2, 10)
	h.redraw(true)

	output := out.String()
	assert.Contains(t, output, "alpha")
	assert.Contains(t, output, "beta")
}

func TestFormatRowIncludesSparkline(t *testing.T) {
	r := &row{description: "payload", total: 100, completed: 50, state: "running"}
	r.rate.record(0, time.Now())
	r.rate.record(1024, time.Now().Add(time.Second))

	line := formatRow(r)
	assert.Contains(t, line, "payload")
	assert.Contains(t, line, "50%")
}
