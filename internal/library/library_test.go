package library

import (
	"testing"

	"github.com/rs/zerolog"

	"adconsole/internal/api"
)

type recordingLayout struct {
	activated int
	prepended []string
	removed   []string
}

func (l *recordingLayout) Activated()                       { l.activated++ }
func (l *recordingLayout) ItemPrepended(item api.MediaItem) { l.prepended = append(l.prepended, item.ID) }
func (l *recordingLayout) ItemsRemoved(ids []string)        { l.removed = append(l.removed, ids...) }

func TestAppendPrependsAndDedups(t *testing.T) {
	g := New(Config{Logger: zerolog.Nop()})

	if !g.Append(api.MediaItem{ID: "A"}) {
		t.Fatal("first append of A should succeed")
	}
	if !g.Append(api.MediaItem{ID: "B"}) {
		t.Fatal("append of B should succeed")
	}
	if g.Append(api.MediaItem{ID: "A"}) {
		t.Fatal("duplicate append of A should be a no-op")
	}

	items := g.Items()
	if len(items) != 2 || items[0].ID != "B" || items[1].ID != "A" {
		t.Fatalf("unexpected grid order %+v", items)
	}
}

func TestLayoutNotifications(t *testing.T) {
	l := &recordingLayout{}
	g := New(Config{Layout: l, Logger: zerolog.Nop()})

	g.Append(api.MediaItem{ID: "A"})
	g.Append(api.MediaItem{ID: "B"})
	if l.activated != 1 {
		t.Fatalf("expected empty state replaced once, got %d", l.activated)
	}
	if len(l.prepended) != 2 {
		t.Fatalf("expected 2 prepend notifications, got %v", l.prepended)
	}

	g.Remove([]string{"A", "missing"})
	if len(l.removed) != 1 || l.removed[0] != "A" {
		t.Fatalf("unexpected removal notifications %v", l.removed)
	}
	if g.Has("A") || !g.Has("B") {
		t.Fatal("remove left grid in unexpected state")
	}
}

func TestAppendAllCountsOnlyNew(t *testing.T) {
	g := New(Config{Logger: zerolog.Nop()})
	g.Append(api.MediaItem{ID: "A"})

	added := g.AppendAll([]api.MediaItem{{ID: "A"}, {ID: "B"}, {ID: "C"}})
	if added != 2 {
		t.Fatalf("expected 2 new items, got %d", added)
	}
	if g.Len() != 3 {
		t.Fatalf("expected grid length 3, got %d", g.Len())
	}
}
