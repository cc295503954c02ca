// Package progress renders the dialog-independent import progress strip.
package progress

import (
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

// Strip is the long-lived progress surface the import orchestrator owns. It
// outlives any dialog; Finish schedules its own dismissal.
type Strip interface {
	// Update rewrites the strip. total <= 0 renders without a proportion bar.
	Update(text string, done, total int)
	// Finish shows a terminal message and auto-dismisses the strip.
	Finish(text string)
	Dismiss()
}

type Config struct {
	Out         io.Writer
	AutoDismiss time.Duration
	Logger      zerolog.Logger
}

// Terminal renders the strip as a single rewritten console line.
type Terminal struct {
	mu          sync.Mutex
	out         io.Writer
	autoDismiss time.Duration
	timer       *time.Timer
	active      bool
	log         zerolog.Logger

	label *color.Color
	bar   *color.Color
	done  *color.Color
}

var _ Strip = (*Terminal)(nil)

func NewTerminal(cfg Config) *Terminal {
	if cfg.AutoDismiss <= 0 {
		cfg.AutoDismiss = 3 * time.Second
	}
	return &Terminal{
		out:         cfg.Out,
		autoDismiss: cfg.AutoDismiss,
		log:         cfg.Logger,
		label:       color.New(color.FgCyan),
		bar:         color.New(color.FgGreen),
		done:        color.New(color.FgHiBlack),
	}
}

func (t *Terminal) Update(text string, done, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.active = true

	line := t.label.Sprint(text)
	if total > 0 {
		line += " " + t.bar.Sprint(renderBar(done, total, 20))
	}
	t.writeLocked(line)
}

func (t *Terminal) Finish(text string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	t.active = true
	t.writeLocked(t.done.Sprint(text))

	t.timer = time.AfterFunc(t.autoDismiss, t.Dismiss)
}

func (t *Terminal) Dismiss() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopTimerLocked()
	if !t.active {
		return
	}
	t.active = false
	// erase the strip line
	fmt.Fprint(t.out, "\r\033[K")
}

func (t *Terminal) stopTimerLocked() {
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

func (t *Terminal) writeLocked(line string) {
	if _, err := fmt.Fprint(t.out, "\r\033[K"+line); err != nil {
		t.log.Warn().Err(err).Msg("progress strip write failed")
	}
}

func renderBar(done, total, width int) string {
	if total <= 0 || width <= 0 {
		return ""
	}
	if done > total {
		done = total
	}
	filled := done * width / total
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}
