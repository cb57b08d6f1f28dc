package progress

import (
	"sync"

	"github.com/google/uuid"

	"github.com/jumpbeam/jumpbeam/internal/render"
)

// entry pairs an aggregated Task with its render-side handle.
type entry struct {
	task   Task
	handle render.Handle
}

// RichObserver aggregates events from N Subjects (one per session) and
// drives exactly one render.Sink, per spec.md §4.G. Its task map is
// guarded by one mutex with short critical sections (map lookup + counter
// update); the sink itself is entered only while holding that mutex,
// matching spec.md §5's resource model.
//
// RichObserver never removes a terminal task automatically — eviction is
// deferred to an explicit Reap() call or process shutdown, resolving
// spec.md §9's Open Question in favor of "stays until reaped".
type RichObserver struct {
	sink render.Sink

	mu    sync.Mutex
	tasks map[uuid.UUID]*entry
}

// NewRichObserver creates a RichObserver driving sink. The observer never
// outlives the sink — callers must Close the sink only after the observer
// is done receiving events (spec.md §9).
func NewRichObserver(sink render.Sink) *RichObserver {
	return &RichObserver{sink: sink, tasks: make(map[uuid.UUID]*entry)}
}

// OnEvent implements Observer, dispatching on the closed Event sum type.
func (r *RichObserver) OnEvent(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch ev.Type {
	case TaskStarted:
		handle := r.sink.Register(ev.TaskID, ev.Description, ev.Total)
		r.tasks[ev.TaskID] = &entry{
			task:   Task{ID: ev.TaskID, Description: ev.Description, Total: ev.Total, State: Running},
			handle: handle,
		}

	case ProgressAdvanced:
		e, ok := r.tasks[ev.TaskID]
		if !ok {
			return
		}
		e.task.apply(ev)
		e.handle.Advance(e.task.Completed, e.task.Total)

	case TaskFinished:
		e, ok := r.tasks[ev.TaskID]
		if !ok {
			return
		}
		e.task.apply(ev)
		e.handle.Finish(ev.Success, "")

	case TaskError:
		e, ok := r.tasks[ev.TaskID]
		if !ok {
			return
		}
		e.task.apply(ev)
		e.handle.Finish(false, ev.Message)
	}
}

// Tasks returns a snapshot of every tracked task, keyed by task-id.
func (r *RichObserver) Tasks() map[uuid.UUID]Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make(map[uuid.UUID]Task, len(r.tasks))
	for id, e := range r.tasks {
		out[id] = e.task
	}
	return out
}

// Reap evicts every task in a terminal state (Finished or Errored) from
// both the observer's map and the render sink. Running tasks are left
// untouched.
func (r *RichObserver) Reap() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, e := range r.tasks {
		if e.task.State == Running {
			continue
		}
		e.handle.Evict()
		delete(r.tasks, id)
	}
}

// Close releases the underlying render sink. Call only after no further
// events will be published to this observer.
func (r *RichObserver) Close() error {
	return r.sink.Close()
}
