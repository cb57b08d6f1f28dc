package transfer

import (
	"time"

	"github.com/google/uuid"

	"github.com/jumpbeam/jumpbeam/internal/buffer"
)

// Role identifies which side of a session this peer plays.
type Role int

const (
	RoleSender Role = iota
	RoleReceiver
)

func (r Role) String() string {
	if r == RoleSender {
		return "sender"
	}
	return "receiver"
}

// State is the terminal classification of a finished Session.
type State int

const (
	StateRunning State = iota
	StateSuccess
	StateFailed
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	case StateCancelled:
		return "cancelled"
	default:
		return "running"
	}
}

// Session is the per-connection record described in spec.md §3. One
// Session exclusively owns its socket, Buffer Manager, and Subject for its
// lifetime.
type Session struct {
	ID         uuid.UUID
	Role       Role
	PeerAddr   string
	StartTime  time.Time
	Bytes      int64
	ChunkSize  int64
	LastRTT    time.Duration
	State      State
	FailReason string
	Path       string         // local file path, set on success for --verify
	Metrics    buffer.Metrics // Buffer Manager's final adaptation stats, set on success
}

// NewSession creates a Session in the Running state.
func NewSession(role Role, peerAddr string) *Session {
	return &Session{
		ID:        uuid.New(),
		Role:      role,
		PeerAddr:  peerAddr,
		StartTime: time.Now(),
		State:     StateRunning,
	}
}

func (s *Session) succeed() { s.State = StateSuccess }

func (s *Session) fail(reason string) {
	s.State = StateFailed
	s.FailReason = reason
}

func (s *Session) cancel() {
	s.State = StateCancelled
	s.FailReason = "cancelled"
}
