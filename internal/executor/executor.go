// Package executor owns the lifecycle of streaming prompt executions.
package executor

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"adconsole/internal/api"
	"adconsole/internal/metrics"
	"adconsole/internal/state"
)

type Status string

const (
	StatusStreaming Status = "streaming"
	StatusFinalized Status = "finalized"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

func (s Status) Terminal() bool {
	return s == StatusFinalized || s == StatusFailed || s == StatusCancelled
}

// Card is the live result surface of one stream. The host may detach it at
// any time; mutations on a detached card must be no-ops on the host side,
// and the executor checks Attached before touching it.
type Card interface {
	AppendText(text string)
	SetStatus(status Status, detail string)
	Attached() bool
}

// CardHost creates cards inside the slideout. NewCard returns nil when the
// slideout is closed; the stream still runs to completion.
type CardHost interface {
	NewCard(streamingID, promptName string) Card
}

// Gate is the optional admission check consulted before a stream opens.
// *ratelimit.Limiter satisfies it.
type Gate interface {
	Allow(ctx context.Context, operator, promptName string, now time.Time) (allowed bool, used int64, resetAt time.Time, err error)
}

// Streaming is a snapshot of one in-flight or just-finished stream.
type Streaming struct {
	ID              string
	PromptID        int64
	PromptName      string
	PromptVersion   int
	UserMessage     string
	Output          string
	Status          Status
	SavedServerSide bool
	Err             error
}

type stream struct {
	id            string
	promptID      int64
	promptName    string
	promptVersion int
	userMessage   string
	buf           strings.Builder
	status        Status
	saved         bool
	err           error
	card          Card
	cancel        context.CancelFunc
}

type Config struct {
	API      *api.Client
	State    *state.Hub
	Host     CardHost
	Gate     Gate
	Operator string
	// OnFinished fires once per stream when it reaches a terminal state.
	OnFinished func(Streaming)
	Logger     zerolog.Logger
	Metrics    *metrics.Metrics
}

type Executor struct {
	api        *api.Client
	state      *state.Hub
	host       CardHost
	gate       Gate
	operator   string
	onFinished func(Streaming)
	log        zerolog.Logger
	metrics    *metrics.Metrics

	mu     sync.Mutex
	active map[string]*stream
}

func New(cfg Config) *Executor {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	return &Executor{
		api:        cfg.API,
		state:      cfg.State,
		host:       cfg.Host,
		gate:       cfg.Gate,
		operator:   cfg.Operator,
		onFinished: cfg.OnFinished,
		log:        cfg.Logger,
		metrics:    m,
		active:     make(map[string]*stream),
	}
}

// Execute begins one streaming execution and returns its streaming id once
// the card has been created and the request handed off. Lifecycle continues
// through the card and OnFinished; ctx cancellation aborts the stream.
func (e *Executor) Execute(ctx context.Context, prompt api.Prompt, userMessage string) (string, error) {
	if e.gate != nil {
		allowed, used, resetAt, err := e.gate.Allow(ctx, e.operator, prompt.Name, time.Now())
		if err != nil {
			// the limiter protects the server, it must not take the console down
			e.log.Warn().Err(err).Msg("execute gate unavailable, allowing")
		} else if !allowed {
			return "", &api.Error{
				Kind:    api.KindRateLimited,
				Message: fmt.Sprintf("execution budget exhausted (%d used), resets at %s", used, resetAt.UTC().Format(time.RFC3339)),
			}
		}
	}

	st := &stream{
		id:            uuid.NewString(),
		promptID:      prompt.ID,
		promptName:    prompt.Name,
		promptVersion: prompt.Version,
		userMessage:   userMessage,
		status:        StatusStreaming,
	}
	if e.host != nil {
		st.card = e.host.NewCard(st.id, prompt.Name)
	}

	streamCtx, cancel := context.WithCancel(ctx)
	st.cancel = cancel

	e.mu.Lock()
	e.active[st.id] = st
	e.mu.Unlock()
	e.metrics.StreamsStarted.Inc()
	e.metrics.ActiveStreams.Inc()

	e.log.Debug().Str("streaming_id", st.id).Str("prompt", prompt.Name).Msg("stream started")
	go e.run(streamCtx, st)
	return st.id, nil
}

// ExecuteUnary is the non-streaming fallback. The returned action is
// prepended to the shared action list.
func (e *Executor) ExecuteUnary(ctx context.Context, promptID int64, userMessage string) (api.PromptAction, error) {
	action, err := e.api.Execute(ctx, promptID, userMessage)
	if err != nil {
		return api.PromptAction{}, err
	}
	if e.state != nil {
		prior, _ := e.state.Get(state.KeyActions).([]api.PromptAction)
		e.state.Set(state.KeyActions, append([]api.PromptAction{action}, prior...))
	}
	return action, nil
}

func (e *Executor) run(ctx context.Context, st *stream) {
	_ = e.api.ExecuteStream(ctx, st.promptID, st.userMessage, api.StreamHandlers{
		OnStart: func() {
			e.withAttachedCard(st, func(c Card) { c.SetStatus(StatusStreaming, "") })
		},
		OnChunk: func(text string) {
			e.mu.Lock()
			st.buf.WriteString(text)
			e.mu.Unlock()
			e.metrics.ChunksReceived.Inc()
			e.withAttachedCard(st, func(c Card) { c.AppendText(text) })
		},
		OnDone: func(res api.ExecuteResult) {
			e.finish(st, StatusFinalized, nil, true)
		},
		OnError: func(err error) {
			if api.KindOf(err) == api.KindCancelled {
				e.finish(st, StatusCancelled, err, false)
				return
			}
			e.finish(st, StatusFailed, err, false)
		},
	})
}

func (e *Executor) finish(st *stream, status Status, err error, saved bool) {
	e.mu.Lock()
	if st.status.Terminal() {
		e.mu.Unlock()
		return
	}
	st.status = status
	st.err = err
	st.saved = saved
	delete(e.active, st.id)
	snap := snapshot(st)
	e.mu.Unlock()

	e.metrics.ActiveStreams.Dec()
	switch status {
	case StatusFinalized:
		e.metrics.StreamsFinalized.Inc()
	case StatusFailed:
		e.metrics.StreamsFailed.Inc()
	}
	if st.cancel != nil {
		st.cancel()
	}

	detail := ""
	if err != nil {
		detail = err.Error()
	}
	e.withAttachedCard(st, func(c Card) { c.SetStatus(status, detail) })

	e.log.Debug().Str("streaming_id", st.id).Str("status", string(status)).Err(err).Msg("stream finished")
	if e.onFinished != nil {
		e.onFinished(snap)
	}
}

// withAttachedCard runs fn only when the stream's card exists and is still
// in the document. A closed slideout is not an error.
func (e *Executor) withAttachedCard(st *stream, fn func(Card)) {
	e.mu.Lock()
	card := st.card
	e.mu.Unlock()
	if card == nil || !card.Attached() {
		return
	}
	fn(card)
}

// Cancel aborts an in-flight stream. The server may or may not persist the
// partial action.
func (e *Executor) Cancel(streamingID string) bool {
	e.mu.Lock()
	st, ok := e.active[streamingID]
	e.mu.Unlock()
	if !ok {
		return false
	}
	st.cancel()
	return true
}

func (e *Executor) ActiveCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.active)
}

func (e *Executor) ActiveIDs() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.active))
	for id := range e.active {
		ids = append(ids, id)
	}
	return ids
}

// Snapshot returns the current state of an in-flight stream.
func (e *Executor) Snapshot(streamingID string) (Streaming, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.active[streamingID]
	if !ok {
		return Streaming{}, false
	}
	return snapshot(st), true
}

func snapshot(st *stream) Streaming {
	return Streaming{
		ID:              st.id,
		PromptID:        st.promptID,
		PromptName:      st.promptName,
		PromptVersion:   st.promptVersion,
		UserMessage:     st.userMessage,
		Output:          st.buf.String(),
		Status:          st.status,
		SavedServerSide: st.saved,
		Err:             st.err,
	}
}
