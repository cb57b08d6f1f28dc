package progress

import "github.com/google/uuid"

// State is the lifecycle state of a Task.
type State int

const (
	Running State = iota
	Finished
	Errored
)

func (s State) String() string {
	switch s {
	case Finished:
		return "finished"
	case Errored:
		return "errored"
	default:
		return "running"
	}
}

// Task is the aggregated record for one task-id, mutated only by events
// bearing that task-id (spec.md §3: "Progress Task").
type Task struct {
	ID          uuid.UUID
	Description string
	Total       int64
	Completed   int64
	State       State
	Message     string // populated on Errored
}

// apply mutates t in place according to ev, enforcing the aggregation
// invariant 0 <= completed <= total (spec.md §3).
func (t *Task) apply(ev Event) {
	switch ev.Type {
	case ProgressAdvanced:
		t.Completed += ev.Advance
		if t.Completed > t.Total {
			t.Completed = t.Total
		}
		if t.Completed < 0 {
			t.Completed = 0
		}
	case TaskFinished:
		t.State = Finished
		if ev.Success {
			t.Completed = t.Total
		}
	case TaskError:
		t.State = Errored
		t.Message = ev.Message
	}
}
