// Package history projects the persisted action list into a host view while
// keeping in-flight streaming cards alive across refreshes.
package history

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"adconsole/internal/api"
	"adconsole/internal/state"
)

type NameVersion struct {
	Name    string
	Version int
}

// FilterScope projects the action list to a visible subset. Empty fields
// match everything.
type FilterScope struct {
	Names    map[string]struct{}
	Versions map[NameVersion]struct{}
	Model    string
}

func (f FilterScope) Matches(a api.PromptAction) bool {
	if len(f.Names) > 0 {
		if _, ok := f.Names[a.PromptName]; !ok {
			return false
		}
	}
	if len(f.Versions) > 0 {
		if _, ok := f.Versions[NameVersion{Name: a.PromptName, Version: a.PromptVersion}]; !ok {
			return false
		}
	}
	if f.Model != "" && a.Model != f.Model {
		return false
	}
	return true
}

// View is the host's rendering surface. Render fully replaces the visible
// list; cards belonging to streamingIDs must be preserved and reinserted at
// the top. Render must be idempotent for equal inputs.
type View interface {
	Loading()
	Render(actions []api.PromptAction, streamingIDs []string)
}

// ActiveStreams is what the viewer needs to know about the executor.
type ActiveStreams interface {
	ActiveCount() int
	ActiveIDs() []string
}

// ActionCache is the optional local cache behind the viewer.
// *cache.Store satisfies it.
type ActionCache interface {
	ReplaceActions(ctx context.Context, actions []api.PromptAction) error
	ListActions(ctx context.Context) ([]api.PromptAction, error)
	DeleteAction(ctx context.Context, id int64) error
}

type Config struct {
	API     *api.Client
	State   *state.Hub
	View    View
	Streams ActiveStreams
	Cache   ActionCache
	// RefreshDelay is the grace period after a stream finishes before the
	// reconciling refresh, so the server has persisted the action.
	RefreshDelay time.Duration
	Logger       zerolog.Logger
}

type Viewer struct {
	api          *api.Client
	state        *state.Hub
	view         View
	streams      ActiveStreams
	cache        ActionCache
	refreshDelay time.Duration
	log          zerolog.Logger
}

func New(cfg Config) *Viewer {
	if cfg.RefreshDelay <= 0 {
		cfg.RefreshDelay = 500 * time.Millisecond
	}
	return &Viewer{
		api:          cfg.API,
		state:        cfg.State,
		view:         cfg.View,
		streams:      cfg.Streams,
		cache:        cfg.Cache,
		refreshDelay: cfg.RefreshDelay,
		log:          cfg.Logger,
	}
}

// SeedFromCache renders the locally cached list before the first server
// fetch. Missing cache is not an error.
func (v *Viewer) SeedFromCache(ctx context.Context) error {
	if v.cache == nil {
		return nil
	}
	actions, err := v.cache.ListActions(ctx)
	if err != nil {
		return fmt.Errorf("list cached actions: %w", err)
	}
	sortActions(actions)
	v.state.Set(state.KeyActions, actions)
	v.render()
	return nil
}

// Refresh fetches the authoritative list, stores it, and re-renders. caller
// is only for logs.
func (v *Viewer) Refresh(ctx context.Context, showLoading bool, caller string) error {
	if showLoading && v.view != nil {
		v.view.Loading()
	}

	actions, err := v.api.ListAllActions(ctx)
	if err != nil {
		v.log.Error().Err(err).Str("caller", caller).Msg("action refresh failed")
		return err
	}
	sortActions(actions)
	v.state.Set(state.KeyActions, actions)

	if v.cache != nil {
		if err := v.cache.ReplaceActions(ctx, actions); err != nil {
			v.log.Warn().Err(err).Msg("action cache write-back failed")
		}
	}

	v.render()
	return nil
}

// RefreshIdle refreshes only when no stream is in flight, so a background
// refresh cannot race an active card.
func (v *Viewer) RefreshIdle(ctx context.Context, caller string) error {
	if v.streams != nil && v.streams.ActiveCount() > 0 {
		v.log.Debug().Str("caller", caller).Int("active", v.streams.ActiveCount()).Msg("idle refresh suppressed")
		return nil
	}
	return v.Refresh(ctx, false, caller)
}

// ScheduleRefreshAfterStream runs the reconciling refresh after the
// configured delay. Wire it to the executor's OnFinished hook.
func (v *Viewer) ScheduleRefreshAfterStream() {
	time.AfterFunc(v.refreshDelay, func() {
		if err := v.Refresh(context.Background(), false, "post-stream"); err != nil {
			v.log.Warn().Err(err).Msg("post-stream refresh failed")
		}
	})
}

// SetFilter stores the scope and re-renders from the in-memory list.
func (v *Viewer) SetFilter(scope FilterScope) {
	v.state.Set(state.KeyFilter, scope)
	v.render()
}

// Delete removes the action on the server and locally.
func (v *Viewer) Delete(ctx context.Context, actionID int64) error {
	if err := v.api.DeleteAction(ctx, actionID); err != nil {
		return err
	}

	actions, _ := v.state.Get(state.KeyActions).([]api.PromptAction)
	kept := make([]api.PromptAction, 0, len(actions))
	for _, a := range actions {
		if a.ID != actionID {
			kept = append(kept, a)
		}
	}
	v.state.Set(state.KeyActions, kept)

	if v.cache != nil {
		if err := v.cache.DeleteAction(ctx, actionID); err != nil {
			v.log.Warn().Err(err).Int64("action_id", actionID).Msg("cache delete failed")
		}
	}

	v.render()
	return nil
}

// CopyText returns the output of an action for the host's clipboard.
func (v *Viewer) CopyText(actionID int64) (string, error) {
	actions, _ := v.state.Get(state.KeyActions).([]api.PromptAction)
	for _, a := range actions {
		if a.ID == actionID {
			return a.Output, nil
		}
	}
	return "", &api.Error{Kind: api.KindNotFound, Message: fmt.Sprintf("action %d not in the visible list", actionID)}
}

func (v *Viewer) render() {
	if v.view == nil {
		return
	}
	actions, _ := v.state.Get(state.KeyActions).([]api.PromptAction)
	scope, _ := v.state.Get(state.KeyFilter).(FilterScope)

	visible := make([]api.PromptAction, 0, len(actions))
	for _, a := range actions {
		if scope.Matches(a) {
			visible = append(visible, a)
		}
	}

	var streamingIDs []string
	if v.streams != nil {
		streamingIDs = v.streams.ActiveIDs()
	}
	v.view.Render(visible, streamingIDs)
}

// sortActions orders newest first, ties broken by id.
func sortActions(actions []api.PromptAction) {
	sort.SliceStable(actions, func(i, j int) bool {
		if !actions[i].CreatedAt.Equal(actions[j].CreatedAt) {
			return actions[i].CreatedAt.After(actions[j].CreatedAt)
		}
		return actions[i].ID > actions[j].ID
	})
}
