// Package progress renders a single-line CLI progress bar with throttled
// repaints (100ms minimum between prints), a fixed-width bar, and an ETA
// estimate over completed/failed counters.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"
)

// Progress renders a single-line bar to writer, throttled to avoid flooding
// the terminal during a fast run.
type Progress struct {
	total     int
	completed int
	failed    int
	startTime time.Time
	writer    io.Writer
	mu        sync.Mutex
	lastPrint time.Time
	barWidth  int
	enabled   bool
}

// NewProgress returns a Progress bound to writer, tracking total items.
func NewProgress(writer io.Writer, total int) *Progress {
	return &Progress{
		total:     total,
		startTime: time.Now(),
		writer:    writer,
		barWidth:  30,
		enabled:   true,
	}
}

// SetEnabled toggles rendering; a disabled Progress prints nothing,
// including Finish's trailing newline.
func (p *Progress) SetEnabled(enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.enabled = enabled
}

// Increment records one successful completion and re-renders.
func (p *Progress) Increment() {
	p.mu.Lock()
	p.completed++
	p.mu.Unlock()
	p.render()
}

// IncrementFailed records one failed completion and re-renders.
func (p *Progress) IncrementFailed() {
	p.mu.Lock()
	p.completed++
	p.failed++
	p.mu.Unlock()
	p.render()
}

// Update sets absolute completed/total counts, for callers driven by
// workerpool.ProcessWithProgress's (completed, total) callback shape.
func (p *Progress) Update(completed, total int) {
	p.mu.Lock()
	p.completed = completed
	p.total = total
	p.mu.Unlock()
	p.render()
}

func (p *Progress) render() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.enabled {
		return
	}
	now := time.Now()
	if now.Sub(p.lastPrint) < 100*time.Millisecond && p.completed < p.total {
		return
	}
	p.lastPrint = now

	ratio := 0.0
	if p.total > 0 {
		ratio = float64(p.completed) / float64(p.total)
	}
	filled := int(ratio * float64(p.barWidth))
	if filled > p.barWidth {
		filled = p.barWidth
	}
	bar := strings.Repeat("█", filled) + strings.Repeat("░", p.barWidth-filled)

	elapsed := now.Sub(p.startTime)
	eta := time.Duration(0)
	if p.completed > 0 && p.completed < p.total {
		perItem := elapsed / time.Duration(p.completed)
		eta = perItem * time.Duration(p.total-p.completed)
	}

	fmt.Fprintf(p.writer, "\r[%s] %d/%d (%d failed) elapsed %s eta %s",
		bar, p.completed, p.total, p.failed, formatDuration(elapsed), formatDuration(eta))
}

// Finish prints a trailing newline so subsequent output starts cleanly.
func (p *Progress) Finish() {
	p.mu.Lock()
	enabled := p.enabled
	p.mu.Unlock()
	if enabled {
		fmt.Fprintln(p.writer)
	}
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second
	return fmt.Sprintf("%dm%02ds", m, s)
}

// SimpleCallback adapts Progress to the (completed, total int) signature
// workerpool.ProcessWithProgress expects.
func (p *Progress) SimpleCallback() func(completed, total int) {
	return p.Update
}
