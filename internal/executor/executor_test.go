package executor

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"adconsole/internal/api"
	"adconsole/internal/state"
)

type fakeCard struct {
	mu       sync.Mutex
	text     string
	status   Status
	detail   string
	attached bool
}

func (c *fakeCard) AppendText(text string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.text += text
}

func (c *fakeCard) SetStatus(status Status, detail string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.status = status
	c.detail = detail
}

func (c *fakeCard) Attached() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.attached
}

func (c *fakeCard) detach() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.attached = false
}

func (c *fakeCard) snapshot() (string, Status) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.text, c.status
}

type fakeHost struct {
	mu    sync.Mutex
	cards []*fakeCard
	open  bool
}

func (h *fakeHost) NewCard(string, string) Card {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.open {
		return nil
	}
	c := &fakeCard{attached: true}
	h.cards = append(h.cards, c)
	return c
}

type denyGate struct{}

func (denyGate) Allow(context.Context, string, string, time.Time) (bool, int64, time.Time, error) {
	return false, 61, time.Now().Add(time.Hour), nil
}

func sseServer(t *testing.T, payloads ...string) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fl := w.(http.Flusher)
		w.Header().Set("Content-Type", "text/event-stream")
		for _, p := range payloads {
			fmt.Fprintf(w, "data: %s\n\n", p)
			fl.Flush()
		}
	}))
}

func newExecutor(t *testing.T, srv *httptest.Server, host CardHost, gate Gate) (*Executor, chan Streaming) {
	t.Helper()
	finished := make(chan Streaming, 4)
	e := New(Config{
		API:        api.New(api.Config{BaseURL: srv.URL, Logger: zerolog.Nop()}),
		State:      state.New(zerolog.Nop()),
		Host:       host,
		Gate:       gate,
		Operator:   "op",
		OnFinished: func(s Streaming) { finished <- s },
		Logger:     zerolog.Nop(),
	})
	return e, finished
}

func waitFinished(t *testing.T, ch chan Streaming) Streaming {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(5 * time.Second):
		t.Fatal("stream did not finish")
		return Streaming{}
	}
}

func TestExecuteStreamsIntoCard(t *testing.T) {
	srv := sseServer(t,
		`{"type":"start"}`,
		`{"type":"chunk","text":"Hel"}`,
		`{"type":"chunk","text":"lo, "}`,
		`{"type":"chunk","text":"world"}`,
		`{"type":"result","tokens_used":3,"model":"m-2"}`,
	)
	defer srv.Close()

	host := &fakeHost{open: true}
	e, finished := newExecutor(t, srv, host, nil)

	id, err := e.Execute(context.Background(), api.Prompt{ID: 17, Name: "greeting", Version: 2}, "go")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if id == "" {
		t.Fatal("empty streaming id")
	}

	snap := waitFinished(t, finished)
	if snap.Status != StatusFinalized || !snap.SavedServerSide {
		t.Fatalf("unexpected terminal snapshot %+v", snap)
	}
	if snap.Output != "Hello, world" {
		t.Fatalf("expected buffered output, got %q", snap.Output)
	}
	if e.ActiveCount() != 0 {
		t.Fatalf("expected 0 active streams, got %d", e.ActiveCount())
	}

	text, status := host.cards[0].snapshot()
	if text != "Hello, world" || status != StatusFinalized {
		t.Fatalf("unexpected card state %q %v", text, status)
	}
}

func TestSlideoutClosedMidStream(t *testing.T) {
	srv := sseServer(t,
		`{"type":"chunk","text":"Hel"}`,
		`{"type":"chunk","text":"lo"}`,
		`{"type":"result"}`,
	)
	defer srv.Close()

	host := &fakeHost{open: true}
	e, finished := newExecutor(t, srv, host, nil)

	if _, err := e.Execute(context.Background(), api.Prompt{ID: 17, Name: "greeting"}, "go"); err != nil {
		t.Fatalf("execute: %v", err)
	}
	host.mu.Lock()
	host.cards[0].detach()
	host.mu.Unlock()

	snap := waitFinished(t, finished)
	if snap.Status != StatusFinalized || !snap.SavedServerSide {
		t.Fatalf("detached card must not affect the stream, got %+v", snap)
	}
	if snap.Output != "Hello" {
		t.Fatalf("expected full buffered output despite detach, got %q", snap.Output)
	}
	if e.ActiveCount() != 0 {
		t.Fatalf("active count must reach 0 on done, got %d", e.ActiveCount())
	}
}

func TestSlideoutClosedBeforeExecute(t *testing.T) {
	srv := sseServer(t, `{"type":"chunk","text":"x"}`, `{"type":"result"}`)
	defer srv.Close()

	host := &fakeHost{open: false}
	e, finished := newExecutor(t, srv, host, nil)

	if _, err := e.Execute(context.Background(), api.Prompt{ID: 1, Name: "p"}, ""); err != nil {
		t.Fatalf("execute with closed slideout: %v", err)
	}
	snap := waitFinished(t, finished)
	if snap.Output != "x" || snap.Status != StatusFinalized {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestErrorFrameFailsStream(t *testing.T) {
	srv := sseServer(t,
		`{"type":"chunk","text":"part"}`,
		`{"type":"error","message":"model overloaded"}`,
	)
	defer srv.Close()

	host := &fakeHost{open: true}
	e, finished := newExecutor(t, srv, host, nil)

	if _, err := e.Execute(context.Background(), api.Prompt{ID: 1, Name: "p"}, ""); err != nil {
		t.Fatalf("execute: %v", err)
	}
	snap := waitFinished(t, finished)
	if snap.Status != StatusFailed || snap.SavedServerSide {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	_, status := host.cards[0].snapshot()
	if status != StatusFailed {
		t.Fatalf("card should show failed, got %v", status)
	}
}

func TestCancelAbortsStream(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fl := w.(http.Flusher)
		fmt.Fprint(w, "data: {\"type\":\"chunk\",\"text\":\"a\"}\n\n")
		fl.Flush()
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	defer srv.Close()
	defer close(release)

	host := &fakeHost{open: true}
	e, finished := newExecutor(t, srv, host, nil)

	id, err := e.Execute(context.Background(), api.Prompt{ID: 1, Name: "p"}, "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if snap, ok := e.Snapshot(id); ok && snap.Output == "a" {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("first chunk never arrived")
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !e.Cancel(id) {
		t.Fatal("cancel did not find the stream")
	}
	snap := waitFinished(t, finished)
	if snap.Status != StatusCancelled {
		t.Fatalf("expected cancelled, got %+v", snap)
	}
	if e.Cancel(id) {
		t.Fatal("cancel after terminal state should report not found")
	}
}

func TestGateDenialShortCircuits(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Error("server must not be contacted when the gate denies")
	}))
	defer srv.Close()

	e, _ := newExecutor(t, srv, &fakeHost{open: true}, denyGate{})

	_, err := e.Execute(context.Background(), api.Prompt{ID: 1, Name: "p"}, "")
	if api.KindOf(err) != api.KindRateLimited {
		t.Fatalf("expected rate limited, got %v", err)
	}
	if e.ActiveCount() != 0 {
		t.Fatalf("denied execute must not register a stream, got %d", e.ActiveCount())
	}
}

func TestConcurrentStreamsHaveDistinctIDs(t *testing.T) {
	srv := sseServer(t, `{"type":"chunk","text":"x"}`, `{"type":"result"}`)
	defer srv.Close()

	host := &fakeHost{open: true}
	e, finished := newExecutor(t, srv, host, nil)

	id1, err := e.Execute(context.Background(), api.Prompt{ID: 1, Name: "a"}, "")
	if err != nil {
		t.Fatalf("execute #1: %v", err)
	}
	id2, err := e.Execute(context.Background(), api.Prompt{ID: 2, Name: "b"}, "")
	if err != nil {
		t.Fatalf("execute #2: %v", err)
	}
	if id1 == id2 {
		t.Fatal("streaming ids must be distinct")
	}
	waitFinished(t, finished)
	waitFinished(t, finished)
	if e.ActiveCount() != 0 {
		t.Fatalf("expected all streams drained, got %d", e.ActiveCount())
	}
}

func TestExecuteUnaryPrependsAction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_ = json.NewEncoder(w).Encode(api.PromptAction{ID: 1001, Output: "hi", TokensUsed: 5, Model: "m-1"})
	}))
	defer srv.Close()

	hub := state.New(zerolog.Nop())
	hub.Set(state.KeyActions, []api.PromptAction{{ID: 900}})
	e := New(Config{
		API:    api.New(api.Config{BaseURL: srv.URL, Logger: zerolog.Nop()}),
		State:  hub,
		Logger: zerolog.Nop(),
	})

	action, err := e.ExecuteUnary(context.Background(), 42, "hello")
	if err != nil {
		t.Fatalf("execute unary: %v", err)
	}
	if action.ID != 1001 {
		t.Fatalf("unexpected action %+v", action)
	}

	actions, _ := hub.Get(state.KeyActions).([]api.PromptAction)
	if len(actions) != 2 || actions[0].ID != 1001 || actions[1].ID != 900 {
		t.Fatalf("expected new action at the front, got %+v", actions)
	}
	if e.ActiveCount() != 0 {
		t.Fatal("unary execute must not leave a streaming action")
	}
}
