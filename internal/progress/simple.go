package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

const simpleRateLimit = 200 * time.Millisecond

// SimpleObserver is the fallback renderer used "when no rich rendering
// sink is available" (spec.md §4.G): one line per event, rate-limited to
// one line per task per 200ms, except terminal events which always print.
type SimpleObserver struct {
	w io.Writer

	mu       sync.Mutex
	lastSeen map[uuid.UUID]time.Time
	descs    map[uuid.UUID]string
}

// NewSimpleObserver creates a SimpleObserver writing to w.
func NewSimpleObserver(w io.Writer) *SimpleObserver {
	return &SimpleObserver{
		w:        w,
		lastSeen: make(map[uuid.UUID]time.Time),
		descs:    make(map[uuid.UUID]string),
	}
}

// OnEvent implements Observer.
func (s *SimpleObserver) OnEvent(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	terminal := ev.Type == TaskFinished || ev.Type == TaskError
	if !terminal {
		last, seen := s.lastSeen[ev.TaskID]
		if seen && ev.Timestamp.Sub(last) < simpleRateLimit {
			return
		}
	}
	s.lastSeen[ev.TaskID] = ev.Timestamp

	switch ev.Type {
	case TaskStarted:
		s.descs[ev.TaskID] = ev.Description
		fmt.Fprintf(s.w, "[%s] started (%d bytes)\n", ev.Description, ev.Total)
	case ProgressAdvanced:
		fmt.Fprintf(s.w, "[%s] +%d bytes\n", s.descs[ev.TaskID], ev.Advance)
	case TaskFinished:
		status := "ok"
		if !ev.Success {
			status = "incomplete"
		}
		fmt.Fprintf(s.w, "[%s] finished: %s\n", s.descs[ev.TaskID], status)
		delete(s.descs, ev.TaskID)
		delete(s.lastSeen, ev.TaskID)
	case TaskError:
		fmt.Fprintf(s.w, "[%s] error: %s\n", s.descs[ev.TaskID], ev.Message)
		delete(s.descs, ev.TaskID)
		delete(s.lastSeen, ev.TaskID)
	}
}
