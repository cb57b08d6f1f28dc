// Package render defines the rendering-sink capability the Rich Observer
// drives, plus the concrete sinks: a rich TTY HUD, a plain writer that
// prints one line per task start and per terminal event, and a quiet no-op. The observer never creates or owns a sink's
// lifecycle beyond what's passed to it at construction (spec.md §9:
// "treat the renderer as a capability passed to the observer at
// construction").
package render

import "github.com/google/uuid"

// Sink is an opaque rendering surface driven by exactly one observer for
// its lifetime. Register is called once per task; the returned Handle is
// used for every subsequent update to that task.
type Sink interface {
	// Register creates a render-side row for a new task and returns a
	// handle scoped to it.
	Register(taskID uuid.UUID, description string, total int64) Handle
	// Close releases any resources the sink owns (e.g. a TTY cursor
	// session). Close is idempotent.
	Close() error
}

// Handle is the render-side representation of a single task, obtained from
// Sink.Register.
type Handle interface {
	// Advance updates the displayed completed/total for this task.
	Advance(completed, total int64)
	// Finish marks the task terminal (success or failure) with an optional
	// message (populated on failure).
	Finish(success bool, message string)
	// Evict removes the task's row from the render surface. Called only
	// by the observer's reap(), never automatically.
	Evict()
}
