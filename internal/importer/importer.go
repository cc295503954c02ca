// Package importer drives media imports from the external ad platform: the
// job-based polling path and the streaming selected/all paths.
package importer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"adconsole/internal/api"
	"adconsole/internal/library"
	"adconsole/internal/metrics"
	"adconsole/internal/progress"
)

// Notifier pings the operator when a long import reaches a terminal state.
// *notify.Telegram satisfies it; nil disables notifications.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// Completion summarizes a finished job-based import.
type Completion struct {
	JobID        string
	Imported     int
	TotalFound   int
	Status       api.JobStatus
	ErrorMessage string
}

type Config struct {
	API          *api.Client
	Grid         *library.Grid
	Strip        progress.Strip
	Notifier     Notifier
	PollInterval time.Duration
	Logger       zerolog.Logger
	Metrics      *metrics.Metrics
}

type jobRecord struct {
	// appended guards against re-appending items across overlapping status
	// windows; it is only touched from the job's poll goroutine.
	appended   map[string]struct{}
	cancel     context.CancelFunc
	onComplete func(Completion)
}

type Orchestrator struct {
	api          *api.Client
	grid         *library.Grid
	strip        progress.Strip
	notifier     Notifier
	pollInterval time.Duration
	log          zerolog.Logger
	metrics      *metrics.Metrics

	mu   sync.Mutex
	jobs map[string]*jobRecord
}

func New(cfg Config) *Orchestrator {
	m := cfg.Metrics
	if m == nil {
		m = metrics.Global()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	return &Orchestrator{
		api:          cfg.API,
		grid:         cfg.Grid,
		strip:        cfg.Strip,
		notifier:     cfg.Notifier,
		pollInterval: cfg.PollInterval,
		log:          cfg.Logger,
		metrics:      m,
		jobs:         make(map[string]*jobRecord),
	}
}

// StartJob starts a server-side import job and polls it until terminal.
// Closing any dialog is the caller's concern and never reaches here; polling
// stops on Stop, ctx cancellation, or a terminal job status. onComplete runs
// once, after the defensive reconciliation.
func (o *Orchestrator) StartJob(ctx context.Context, clientID, sourceURL string, maxScrolls int, onComplete func(Completion)) (string, error) {
	job, err := o.api.StartImportJob(ctx, clientID, sourceURL, maxScrolls)
	if err != nil {
		return "", err
	}

	pollCtx, cancel := context.WithCancel(ctx)
	rec := &jobRecord{
		appended:   make(map[string]struct{}),
		cancel:     cancel,
		onComplete: onComplete,
	}

	o.mu.Lock()
	o.jobs[job.ID] = rec
	o.mu.Unlock()
	o.metrics.ActiveImportJobs.Inc()

	o.log.Info().Str("job_id", job.ID).Str("source", sourceURL).Msg("import job started")
	go o.poll(pollCtx, job.ID, rec)
	return job.ID, nil
}

// Stop halts polling for a job. Server-side work continues.
func (o *Orchestrator) Stop(jobID string) bool {
	o.mu.Lock()
	rec, ok := o.jobs[jobID]
	o.mu.Unlock()
	if !ok {
		return false
	}
	rec.cancel()
	return true
}

func (o *Orchestrator) ActiveJobs() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]string, 0, len(o.jobs))
	for id := range o.jobs {
		ids = append(ids, id)
	}
	return ids
}

func (o *Orchestrator) poll(ctx context.Context, jobID string, rec *jobRecord) {
	ticker := time.NewTicker(o.pollInterval)
	defer ticker.Stop()

	for {
		if done := o.pollOnce(ctx, jobID, rec); done {
			return
		}
		select {
		case <-ctx.Done():
			o.forget(jobID)
			o.log.Info().Str("job_id", jobID).Msg("import job polling stopped")
			return
		case <-ticker.C:
		}
	}
}

// pollOnce returns true when the job reached a terminal state. Transient
// fetch errors are swallowed; the job's own failed status is the
// authoritative failure signal.
func (o *Orchestrator) pollOnce(ctx context.Context, jobID string, rec *jobRecord) bool {
	o.metrics.PollsTotal.Inc()
	st, err := o.api.GetImportJobStatus(ctx, jobID)
	if err != nil {
		if ctx.Err() == nil {
			o.log.Warn().Err(err).Str("job_id", jobID).Msg("import job poll failed")
		}
		return false
	}

	o.appendNew(rec, st.RecentImages)
	if !st.Job.Status.Terminal() {
		return false
	}
	o.finishJob(ctx, jobID, rec, st.Job)
	return true
}

func (o *Orchestrator) appendNew(rec *jobRecord, items []api.MediaItem) {
	for _, item := range items {
		if _, dup := rec.appended[item.ID]; dup {
			continue
		}
		rec.appended[item.ID] = struct{}{}
		o.grid.Append(item)
	}
}

func (o *Orchestrator) finishJob(ctx context.Context, jobID string, rec *jobRecord, job api.ImportJob) {
	// the status windows are bounded, fetch the full list once in case a
	// poll gap dropped items
	if items, err := o.api.GetImportJobImages(ctx, jobID, time.Time{}); err != nil {
		o.log.Warn().Err(err).Str("job_id", jobID).Msg("final image reconciliation failed")
	} else {
		o.appendNew(rec, items)
	}

	o.forget(jobID)
	switch job.Status {
	case api.JobComplete:
		o.metrics.ImportsCompleted.Inc()
	case api.JobFailed:
		o.metrics.ImportsFailed.Inc()
	}

	c := Completion{
		JobID:        jobID,
		Imported:     len(rec.appended),
		TotalFound:   job.TotalFound,
		Status:       job.Status,
		ErrorMessage: job.ErrorMessage,
	}
	o.log.Info().Str("job_id", jobID).Str("status", string(job.Status)).Int("imported", c.Imported).Msg("import job finished")
	if rec.onComplete != nil {
		rec.onComplete(c)
	}

	if job.Status == api.JobFailed {
		o.notify(ctx, fmt.Sprintf("Ad library import failed: %s", job.ErrorMessage))
		return
	}
	o.notify(ctx, fmt.Sprintf("Ad library import finished: %d item(s)", c.Imported))
}

func (o *Orchestrator) forget(jobID string) {
	o.mu.Lock()
	if _, ok := o.jobs[jobID]; ok {
		delete(o.jobs, jobID)
		o.metrics.ActiveImportJobs.Dec()
	}
	o.mu.Unlock()
}

// ImportSelected streams a client-selected set into the library. Cancel via
// ctx; the currently-downloading item may or may not be persisted.
func (o *Orchestrator) ImportSelected(ctx context.Context, clientID string, items []api.MediaItem, adAccountID string) (api.ImportResult, error) {
	return o.streamImport(ctx, len(items), func(h api.ImportHandlers) (api.ImportResult, error) {
		return o.api.ImportMediaStream(ctx, clientID, items, h, adAccountID)
	})
}

// ImportAll asks the server to list and import everything of mediaType.
func (o *Orchestrator) ImportAll(ctx context.Context, clientID, mediaType, adAccountID string) (api.ImportResult, error) {
	return o.streamImport(ctx, 0, func(h api.ImportHandlers) (api.ImportResult, error) {
		return o.api.ImportAllMediaStream(ctx, clientID, mediaType, h, adAccountID)
	})
}

func (o *Orchestrator) streamImport(ctx context.Context, total int, call func(api.ImportHandlers) (api.ImportResult, error)) (api.ImportResult, error) {
	count := 0
	o.strip.Update(importingText(0, total), 0, total)

	res, err := call(api.ImportHandlers{
		OnItem: func(item api.MediaItem) {
			o.grid.Append(item)
			count++
			o.strip.Update(importingText(count, total), count, total)
		},
		OnProgress: func(p api.ImportProgress) {
			if p.Imported > count {
				count = p.Imported
			}
			o.strip.Update(importingText(count, total), count, total)
		},
	})
	if err != nil {
		switch api.KindOf(err) {
		case api.KindCancelled:
			o.strip.Finish("Import cancelled.")
		case api.KindRateLimited:
			o.strip.Finish("Import paused by the ad platform — try again in 1–2 minutes.")
			o.metrics.ImportsFailed.Inc()
		default:
			o.strip.Finish(fmt.Sprintf("Import failed: %v", err))
			o.metrics.ImportsFailed.Inc()
		}
		return res, err
	}

	o.metrics.ImportsCompleted.Inc()
	msg := fmt.Sprintf("Imported %d item(s)", count)
	if res.FailedCount > 0 {
		msg = fmt.Sprintf("Imported %d item(s), %d failed", count, res.FailedCount)
	}
	o.strip.Finish(msg)
	o.notify(ctx, msg)
	return res, nil
}

func (o *Orchestrator) notify(ctx context.Context, text string) {
	if o.notifier == nil {
		return
	}
	if err := o.notifier.Notify(ctx, text); err != nil {
		o.log.Warn().Err(err).Msg("import notification failed")
	}
}

func importingText(n, total int) string {
	if total > 0 {
		return fmt.Sprintf("Importing… %d of %d", n, total)
	}
	return fmt.Sprintf("Importing… %d imported", n)
}
