package render

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ANSI escape sequences, matching the teacher's hud presenter.
const (
	ansiDim      = "\033[2m"
	ansiBold     = "\033[1m"
	ansiGreen    = "\033[32m"
	ansiRed      = "\033[31m"
	ansiReset    = "\033[0m"
	barWidth     = 20
	sparkWidth   = 10
	minRedrawGap = 50 * time.Millisecond
)

// row is one task's rendered state.
type row struct {
	description string
	total       int64
	completed   int64
	state       string // "running", "ok", "failed"
	message     string
	rate        rateTracker
}

// HUD is a rich TTY sink: a block of in-place-redrawn progress bars, one
// row per live task, ordered by first registration. It is driven by
// exactly one observer (spec.md §4.G) and is safe for concurrent
// Advance/Finish calls from multiple sessions' goroutines.
type HUD struct {
	w io.Writer

	mu       sync.Mutex
	order    []uuid.UUID
	rows     map[uuid.UUID]*row
	lastDraw time.Time
	drawn    int // number of lines drawn on the previous redraw
	closed   bool
}

// NewHUD creates a HUD writing to w (typically os.Stderr, the TTY).
func NewHUD(w io.Writer) *HUD {
	return &HUD{w: w, rows: make(map[uuid.UUID]*row)}
}

// Register implements Sink.
func (h *HUD) Register(taskID uuid.UUID, description string, total int64) Handle {
	h.mu.Lock()
	h.order = append(h.order, taskID)
	h.rows[taskID] = &row{description: description, total: total, state: "running"}
	h.mu.Unlock()
	h.redraw(false)
	return &hudHandle{h: h, id: taskID}
}

// Close implements Sink: clears the HUD block from the terminal.
func (h *HUD) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	h.closed = true
	h.clearLocked()
	return nil
}

func (h *HUD) redraw(force bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	if !force && time.Since(h.lastDraw) < minRedrawGap {
		return
	}
	h.drawLocked()
}

func (h *HUD) clearLocked() {
	for i := 0; i < h.drawn; i++ {
		fmt.Fprint(h.w, "\033[1A\033[2K")
	}
	h.drawn = 0
}

func (h *HUD) drawLocked() {
	h.clearLocked()
	for _, id := range h.order {
		r, ok := h.rows[id]
		if !ok {
			continue
		}
		fmt.Fprintln(h.w, formatRow(r))
		h.drawn++
	}
	h.lastDraw = time.Now()
}

func formatRow(r *row) string {
	pct := 0.0
	if r.total > 0 {
		pct = float64(r.completed) / float64(r.total)
	}
	filled := int(pct * float64(barWidth))
	if filled > barWidth {
		filled = barWidth
	}
	bar := strings.Repeat("#", filled) + strings.Repeat("-", barWidth-filled)
	spark := Sparkline(r.rate.data(sparkWidth), sparkWidth)

	var status string
	switch r.state {
	case "ok":
		status = ansiGreen + "done" + ansiReset
	case "failed":
		status = ansiRed + "FAILED: " + r.message + ansiReset
	default:
		status = ansiDim + fmt.Sprintf("%.0f%%", pct*100) + ansiReset
	}

	return fmt.Sprintf("%s[%s] %s %-24s %s", ansiBold, bar, spark, r.description, status+ansiReset)
}

type hudHandle struct {
	h  *HUD
	id uuid.UUID
}

func (hh *hudHandle) Advance(completed, total int64) {
	h := hh.h
	h.mu.Lock()
	if r, ok := h.rows[hh.id]; ok {
		delta := completed - r.completed
		r.completed = completed
		r.total = total
		if delta > 0 {
			r.rate.record(delta, time.Now())
		}
	}
	h.mu.Unlock()
	h.redraw(false)
}

func (hh *hudHandle) Finish(success bool, message string) {
	h := hh.h
	h.mu.Lock()
	if r, ok := h.rows[hh.id]; ok {
		if success {
			r.state = "ok"
			r.completed = r.total
		} else {
			r.state = "failed"
			r.message = message
		}
	}
	h.mu.Unlock()
	h.redraw(true) // terminal events always redraw immediately
}

func (hh *hudHandle) Evict() {
	h := hh.h
	h.mu.Lock()
	delete(h.rows, hh.id)
	for i, id := range h.order {
		if id == hh.id {
			h.order = append(h.order[:i], h.order[i+1:]...)
			break
		}
	}
	h.mu.Unlock()
	h.redraw(true)
}
