// Package library owns the operator-visible media grid. All mutation goes
// through the Grid; callers never touch the item list directly.
package library

import (
	"sync"

	"github.com/rs/zerolog"

	"adconsole/internal/api"
	"adconsole/internal/metrics"
)

// Layout is the optional layout engine behind the grid (the masonry analog).
// Activated fires when the first item replaces the empty state.
type Layout interface {
	Activated()
	ItemPrepended(item api.MediaItem)
	ItemsRemoved(ids []string)
}

type Config struct {
	Layout  Layout
	Logger  zerolog.Logger
	Metrics *metrics.Metrics
}

type Grid struct {
	mu      sync.Mutex
	items   []api.MediaItem // front of the grid is index 0
	present map[string]struct{}
	layout  Layout
	log     zerolog.Logger
	metrics *metrics.Metrics
}

func New(cfg Config) *Grid {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Grid{
		present: make(map[string]struct{}),
		layout:  cfg.Layout,
		log:     cfg.Logger,
		metrics: m,
	}
}

// Append inserts item at the front of the grid. Returns false without
// mutating when an item with the same id is already present. Safe to call
// from any goroutine.
func (g *Grid) Append(item api.MediaItem) bool {
	g.mu.Lock()
	if _, dup := g.present[item.ID]; dup {
		g.mu.Unlock()
		return false
	}
	first := len(g.items) == 0
	g.items = append([]api.MediaItem{item}, g.items...)
	g.present[item.ID] = struct{}{}
	layout := g.layout
	g.mu.Unlock()

	g.metrics.MediaAppended.Inc()
	if layout != nil {
		if first {
			layout.Activated()
		}
		layout.ItemPrepended(item)
	}
	return true
}

// AppendAll appends items in order and reports how many were new.
func (g *Grid) AppendAll(items []api.MediaItem) int {
	added := 0
	for _, item := range items {
		if g.Append(item) {
			added++
		}
	}
	return added
}

func (g *Grid) Remove(ids []string) {
	if len(ids) == 0 {
		return
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	g.mu.Lock()
	kept := g.items[:0]
	var removed []string
	for _, item := range g.items {
		if _, ok := drop[item.ID]; ok {
			delete(g.present, item.ID)
			removed = append(removed, item.ID)
			continue
		}
		kept = append(kept, item)
	}
	g.items = kept
	layout := g.layout
	g.mu.Unlock()

	if layout != nil && len(removed) > 0 {
		layout.ItemsRemoved(removed)
	}
}

func (g *Grid) Has(id string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	_, ok := g.present[id]
	return ok
}

func (g *Grid) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.items)
}

// Items returns a copy of the grid in display order.
func (g *Grid) Items() []api.MediaItem {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]api.MediaItem, len(g.items))
	copy(out, g.items)
	return out
}
