// Package progress implements the event publish/subscribe fabric (spec.md
// §4.F Progress Subject) and the aggregating observer that fans events from
// many sessions into one rendering sink (spec.md §4.G Rich Observer).
package progress

import (
	"time"

	"github.com/google/uuid"
)

// EventType identifies which Event variant is carried. Re-architected from
// the source's dynamically-typed event dispatch (spec.md §9) into a closed
// sum type the observer switches on exhaustively.
type EventType int

const (
	TaskStarted EventType = iota + 1
	ProgressAdvanced
	TaskFinished
	TaskError
)

func (t EventType) String() string {
	switch t {
	case TaskStarted:
		return "TaskStarted"
	case ProgressAdvanced:
		return "ProgressAdvanced"
	case TaskFinished:
		return "TaskFinished"
	case TaskError:
		return "TaskError"
	default:
		return "Unknown"
	}
}

// Event carries one of the four variants named in spec.md §3. Fields not
// meaningful to a given Type are left zero; the observer's exhaustive
// switch on Type is the single authority on which fields are populated.
type Event struct {
	Type        EventType
	TaskID      uuid.UUID
	Timestamp   time.Time
	Description string // TaskStarted
	Total       int64  // TaskStarted
	Advance     int64  // ProgressAdvanced
	Success     bool   // TaskFinished
	Message     string // TaskError
}

// NewTaskStarted builds a TaskStarted event stamped with the current time.
func NewTaskStarted(taskID uuid.UUID, description string, total int64) Event {
	return Event{Type: TaskStarted, TaskID: taskID, Timestamp: time.Now(), Description: description, Total: total}
}

// NewProgressAdvanced builds a ProgressAdvanced event stamped with the current time.
func NewProgressAdvanced(taskID uuid.UUID, advance int64) Event {
	return Event{Type: ProgressAdvanced, TaskID: taskID, Timestamp: time.Now(), Advance: advance}
}

// NewTaskFinished builds a TaskFinished event stamped with the current time.
func NewTaskFinished(taskID uuid.UUID, success bool) Event {
	return Event{Type: TaskFinished, TaskID: taskID, Timestamp: time.Now(), Success: success}
}

// NewTaskError builds a TaskError event stamped with the current time.
func NewTaskError(taskID uuid.UUID, message string) Event {
	return Event{Type: TaskError, TaskID: taskID, Timestamp: time.Now(), Message: message}
}
