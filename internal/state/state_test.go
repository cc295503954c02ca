package state

import (
	"testing"

	"github.com/rs/zerolog"
)

func TestSetNotifiesInRegistrationOrder(t *testing.T) {
	h := New(zerolog.Nop())

	var order []string
	h.Subscribe("k", func(_, _ any) { order = append(order, "first") })
	h.Subscribe("k", func(_, _ any) { order = append(order, "second") })

	h.Set("k", 1)
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("unexpected notification order %v", order)
	}
}

func TestSetShallowEqualIsNoOp(t *testing.T) {
	h := New(zerolog.Nop())

	calls := 0
	h.Subscribe("k", func(_, _ any) { calls++ })

	h.Set("k", "v")
	h.Set("k", "v")
	if calls != 1 {
		t.Fatalf("expected 1 notification, got %d", calls)
	}

	h.Set("ids", []int{1, 2, 3})
	h.Subscribe("ids", func(_, _ any) { calls++ })
	h.Set("ids", []int{1, 2, 3})
	if calls != 1 {
		t.Fatalf("expected slice write with equal elements to be suppressed, got %d calls", calls)
	}
	h.Set("ids", []int{1, 2, 4})
	if calls != 2 {
		t.Fatalf("expected changed slice to notify, got %d calls", calls)
	}
}

func TestSubscriberReceivesOldAndNewValue(t *testing.T) {
	h := New(zerolog.Nop())
	h.Set("k", "old")

	var gotNew, gotOld any
	h.Subscribe("k", func(n, o any) { gotNew, gotOld = n, o })

	h.Set("k", "new")
	if gotNew != "new" || gotOld != "old" {
		t.Fatalf("expected (new, old), got (%v, %v)", gotNew, gotOld)
	}
}

func TestPanickingSubscriberDoesNotBlockOthers(t *testing.T) {
	h := New(zerolog.Nop())

	called := false
	h.Subscribe("k", func(_, _ any) { panic("boom") })
	h.Subscribe("k", func(_, _ any) { called = true })

	h.Set("k", 1)
	if !called {
		t.Fatal("second subscriber was not called after first panicked")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	h := New(zerolog.Nop())

	calls := 0
	unsub := h.Subscribe("k", func(_, _ any) { calls++ })

	h.Set("k", 1)
	unsub()
	h.Set("k", 2)
	if calls != 1 {
		t.Fatalf("expected 1 call after unsubscribe, got %d", calls)
	}
}

func TestGetUnknownKeyIsNil(t *testing.T) {
	h := New(zerolog.Nop())
	if v := h.Get("missing"); v != nil {
		t.Fatalf("expected nil for unknown key, got %v", v)
	}
}
