package render

import (
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
)

// Plain is a non-TTY sink: one line per task on registration, one line per
// terminal event, and no in-place redraws — suited to piped/logged output,
// matching the teacher's plainPresenter.
type Plain struct {
	w  io.Writer
	mu sync.Mutex
}

// NewPlain creates a Plain sink writing to w.
func NewPlain(w io.Writer) *Plain {
	return &Plain{w: w}
}

func (p *Plain) Register(taskID uuid.UUID, description string, total int64) Handle {
	p.mu.Lock()
	fmt.Fprintf(p.w, "start  %s  %d bytes\n", description, total)
	p.mu.Unlock()
	return &plainHandle{p: p, description: description}
}

func (p *Plain) Close() error { return nil }

type plainHandle struct {
	p           *Plain
	description string
}

func (ph *plainHandle) Advance(int64, int64) {
	// Plain mode reports only on registration and terminal events.
}

func (ph *plainHandle) Finish(success bool, message string) {
	ph.p.mu.Lock()
	defer ph.p.mu.Unlock()
	if success {
		fmt.Fprintf(ph.p.w, "done   %s\n", ph.description)
	} else {
		fmt.Fprintf(ph.p.w, "failed %s: %s\n", ph.description, message)
	}
}

func (ph *plainHandle) Evict() {}

// Quiet is a no-op sink — events are consumed but nothing is rendered,
// matching the teacher's quietPresenter.
type Quiet struct{}

// NewQuiet creates a Quiet sink.
func NewQuiet() *Quiet { return &Quiet{} }

func (*Quiet) Register(uuid.UUID, string, int64) Handle { return quietHandle{} }
func (*Quiet) Close() error                             { return nil }

type quietHandle struct{}

func (quietHandle) Advance(int64, int64)      {}
func (quietHandle) Finish(bool, string)       {}
func (quietHandle) Evict()                    {}
