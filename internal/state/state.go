package state

import (
	"reflect"
	"sync"

	"github.com/rs/zerolog"
)

// Well-known hub keys shared between the console components.
const (
	KeyActions      = "actions.all"
	KeyFilter       = "actions.filter"
	KeyOpenSlideout = "slideout.prompt_id"
)

type Callback func(newValue, oldValue any)

type subscriber struct {
	id int64
	fn Callback
}

// Hub is a keyed observable store. Writes that are shallow-equal to the
// current value do not notify. Subscribers of a key are invoked synchronously
// in registration order; a panicking subscriber is logged and skipped.
type Hub struct {
	mu     sync.Mutex
	values map[string]any
	subs   map[string][]subscriber
	nextID int64
	log    zerolog.Logger
}

func New(logger zerolog.Logger) *Hub {
	return &Hub{
		values: make(map[string]any),
		subs:   make(map[string][]subscriber),
		log:    logger,
	}
}

func (h *Hub) Get(key string) any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.values[key]
}

func (h *Hub) Set(key string, value any) {
	h.mu.Lock()
	old, had := h.values[key]
	if had && shallowEqual(old, value) {
		h.mu.Unlock()
		return
	}
	h.values[key] = value
	listeners := make([]subscriber, len(h.subs[key]))
	copy(listeners, h.subs[key])
	h.mu.Unlock()

	for _, s := range listeners {
		h.notify(key, s, value, old)
	}
}

func (h *Hub) notify(key string, s subscriber, newValue, oldValue any) {
	defer func() {
		if r := recover(); r != nil {
			h.log.Error().Str("key", key).Any("panic", r).Msg("state subscriber panicked")
		}
	}()
	s.fn(newValue, oldValue)
}

// Subscribe registers fn for changes to key and returns an unsubscribe func.
func (h *Hub) Subscribe(key string, fn Callback) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[key] = append(h.subs[key], subscriber{id: id, fn: fn})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		list := h.subs[key]
		for i, s := range list {
			if s.id == id {
				h.subs[key] = append(list[:i:i], list[i+1:]...)
				return
			}
		}
	}
}

// shallowEqual compares two values one level deep: comparable values by ==,
// slices and maps by length and element identity.
func shallowEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	av := reflect.ValueOf(a)
	bv := reflect.ValueOf(b)
	if av.Type() != bv.Type() {
		return false
	}

	switch av.Kind() {
	case reflect.Slice, reflect.Array:
		if av.Len() != bv.Len() {
			return false
		}
		for i := 0; i < av.Len(); i++ {
			if !comparableEqual(av.Index(i).Interface(), bv.Index(i).Interface()) {
				return false
			}
		}
		return true
	case reflect.Map:
		if av.Len() != bv.Len() {
			return false
		}
		for _, k := range av.MapKeys() {
			ev := bv.MapIndex(k)
			if !ev.IsValid() || !comparableEqual(av.MapIndex(k).Interface(), ev.Interface()) {
				return false
			}
		}
		return true
	default:
		return comparableEqual(a, b)
	}
}

func comparableEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == b
	}
	if !reflect.TypeOf(a).Comparable() || !reflect.TypeOf(b).Comparable() {
		return false
	}
	return a == b
}
