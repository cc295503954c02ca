package progress

import (
	"bytes"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/rs/zerolog"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestUpdateRendersTextAndBar(t *testing.T) {
	color.NoColor = true
	out := &syncBuffer{}
	s := NewTerminal(Config{Out: out, AutoDismiss: time.Hour, Logger: zerolog.Nop()})

	s.Update("Importing… 5 of 10", 5, 10)
	got := out.String()
	if !strings.Contains(got, "Importing… 5 of 10") {
		t.Fatalf("missing text in %q", got)
	}
	if !strings.Contains(got, "[##########----------]") {
		t.Fatalf("missing half-filled bar in %q", got)
	}

	s.Update("Importing… 3 imported", 3, 0)
	if strings.Contains(strings.TrimPrefix(out.String(), got), "[") {
		t.Fatal("bar rendered without a known total")
	}
}

func TestFinishAutoDismisses(t *testing.T) {
	color.NoColor = true
	out := &syncBuffer{}
	s := NewTerminal(Config{Out: out, AutoDismiss: 20 * time.Millisecond, Logger: zerolog.Nop()})

	s.Finish("Import cancelled.")
	if !strings.Contains(out.String(), "Import cancelled.") {
		t.Fatalf("missing finish text in %q", out.String())
	}

	deadline := time.After(2 * time.Second)
	for {
		if strings.HasSuffix(out.String(), "\r\033[K") {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("strip did not auto-dismiss, output %q", out.String())
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func TestUpdateCancelsPendingDismiss(t *testing.T) {
	color.NoColor = true
	out := &syncBuffer{}
	s := NewTerminal(Config{Out: out, AutoDismiss: 20 * time.Millisecond, Logger: zerolog.Nop()})

	s.Finish("done")
	s.Update("Importing… 1 imported", 1, 0)
	time.Sleep(60 * time.Millisecond)
	if strings.HasSuffix(out.String(), "\r\033[K") {
		t.Fatal("dismiss fired after a newer update")
	}
}
