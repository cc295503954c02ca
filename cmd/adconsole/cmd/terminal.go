package cmd

import (
	"fmt"
	"io"
	"sync"

	"github.com/fatih/color"

	"adconsole/internal/api"
	"adconsole/internal/executor"
	"adconsole/internal/history"
)

// terminalCard prints stream chunks as they arrive. It stays attached for the
// life of the command; Detach exists so exec --detach can drop the surface
// while the stream keeps running.
type terminalCard struct {
	mu       sync.Mutex
	out      io.Writer
	attached bool
	name     *color.Color
	status   *color.Color
}

func (c *terminalCard) AppendText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fmt.Fprint(c.out, text)
}

func (c *terminalCard) SetStatus(status executor.Status, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if detail != "" {
		c.status.Fprintf(c.out, "\n[%s] %s\n", status, detail)
		return
	}
	c.status.Fprintf(c.out, "\n[%s]\n", status)
}

func (c *terminalCard) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *terminalCard) Detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
}

type terminalHost struct {
	mu   sync.Mutex
	out  io.Writer
	last *terminalCard
}

func newTerminalHost(out io.Writer) *terminalHost {
	return &terminalHost{out: out}
}

func (h *terminalHost) NewCard(streamingID, promptName string) executor.Card {
	h.mu.Lock()
	defer h.mu.Unlock()
	c := &terminalCard{
		out:      h.out,
		attached: true,
		name:     color.New(color.FgCyan, color.Bold),
		status:   color.New(color.FgHiBlack),
	}
	c.name.Fprintf(h.out, "── %s ──\n", promptName)
	h.last = c
	return c
}

func (h *terminalHost) lastCard() *terminalCard {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.last
}

// terminalView renders the action history as a table.
type terminalView struct {
	mu  sync.Mutex
	out io.Writer
	dim *color.Color
	hdr *color.Color
}

var _ history.View = (*terminalView)(nil)

func newTerminalView(out io.Writer) *terminalView {
	return &terminalView{
		out: out,
		dim: color.New(color.FgHiBlack),
		hdr: color.New(color.Bold),
	}
}

func (v *terminalView) Loading() {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.dim.Fprintln(v.out, "loading actions…")
}

func (v *terminalView) Render(actions []api.PromptAction, streamingIDs []string) {
	v.mu.Lock()
	defer v.mu.Unlock()

	for _, id := range streamingIDs {
		v.dim.Fprintf(v.out, "▸ streaming %s\n", id)
	}
	if len(actions) == 0 {
		v.dim.Fprintln(v.out, "no actions")
		return
	}
	v.hdr.Fprintf(v.out, "%-8s %-20s %-4s %-10s %-6s %s\n", "ID", "PROMPT", "VER", "MODEL", "TOK", "CREATED")
	for _, a := range actions {
		fmt.Fprintf(v.out, "%-8d %-20s %-4d %-10s %-6d %s\n",
			a.ID, a.PromptName, a.PromptVersion, a.Model, a.TokensUsed, a.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
}

// terminalLayout echoes grid lifecycle events to the console.
type terminalLayout struct {
	mu  sync.Mutex
	dim *color.Color
}

func (l *terminalLayout) Activated() {
	l.line("media grid activated")
}

func (l *terminalLayout) ItemPrepended(item api.MediaItem) {
	l.line(fmt.Sprintf("+ %s (%s)", item.ID, item.MimeType))
}

func (l *terminalLayout) ItemsRemoved(ids []string) {
	l.line(fmt.Sprintf("- removed %d item(s)", len(ids)))
}

func (l *terminalLayout) line(text string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.dim == nil {
		l.dim = color.New(color.FgHiBlack)
	}
	l.dim.Println(text)
}
