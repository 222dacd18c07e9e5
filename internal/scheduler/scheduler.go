// SPDX-License-Identifier: MIT

// Package scheduler drives the search and auto-grab pipeline: a tick loop
// claims due watch entries, runs the fan-out, grabs the best acceptable
// release, and a poll loop follows sent downloads to completion.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/metrics"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/store"
)

const downloadFailCooldown = time.Hour

// Downloads is the downloader dispatch surface the scheduler needs.
// *downloader.Dispatcher satisfies it.
type Downloads interface {
	Send(ctx context.Context, dl model.Downloader, req downloader.SendRequest) (string, error)
	Status(ctx context.Context, dl model.Downloader, acquisitionID string) (downloader.Status, error)
}

// Notifier is the notification surface. *notify.Dispatcher satisfies it.
type Notifier interface {
	Async(ctx context.Context, msg notify.Message)
}

// Scheduler owns the tick and poll loops.
type Scheduler struct {
	store     *store.Store
	searcher  *search.Searcher
	downloads Downloads
	notifier  Notifier
	clock     clockwork.Clock
	rng       *rand.Rand
	rngMu     sync.Mutex

	// eventLocks serializes grab attempts per event so the round-level
	// auto-grab cannot race a scheduled run for the same session.
	eventLocks sync.Map // event id -> *sync.Mutex
}

func New(st *store.Store, searcher *search.Searcher, downloads Downloads, notifier Notifier, clock clockwork.Clock) *Scheduler {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Scheduler{
		store:     st,
		searcher:  searcher,
		downloads: downloads,
		notifier:  notifier,
		clock:     clock,
		rng:       rand.New(rand.NewSource(clock.Now().UnixNano())), // #nosec G404 -- jitter only
	}
}

func (s *Scheduler) lockEvent(eventID int64) func() {
	v, _ := s.eventLocks.LoadOrStore(eventID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Scheduler) jitter(t time.Time, settings model.Settings) time.Time {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return jittered(t, settings.JitterSeconds, s.rng)
}

// Run drives both loops until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.tickLoop(gctx) })
	g.Go(func() error { return s.pollLoop(gctx) })
	err := g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// tickLoop re-reads the tick interval each round so settings changes take
// effect on the next boundary. The first tick fires immediately to pick
// up entries that came due while the process was down.
func (s *Scheduler) tickLoop(ctx context.Context) error {
	logger := log.WithComponent("scheduler")
	for {
		if err := s.Tick(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("event", "scheduler.tick_failed").Msg("tick failed")
		}
		settings, err := s.store.Settings(ctx)
		interval := 10 * time.Minute
		if err == nil && settings.SchedulerTickSeconds > 0 {
			interval = time.Duration(settings.SchedulerTickSeconds) * time.Second
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
		}
	}
}

// Tick claims every due entry and runs it through the worker pool.
func (s *Scheduler) Tick(ctx context.Context) error {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	now := s.clock.Now().UTC()
	due, err := s.store.DueSearches(ctx, now)
	if err != nil {
		return err
	}
	metrics.SchedulerDueEntries.Observe(float64(len(due)))
	if len(due) == 0 {
		return nil
	}

	logger := log.WithComponent("scheduler")
	logger.Debug().
		Str("event", "scheduler.tick").
		Int("due", len(due)).
		Msg("dispatching due entries")

	g, gctx := errgroup.WithContext(ctx)
	limit := settings.GlobalConcurrency
	if limit < 1 {
		limit = 1
	}
	g.SetLimit(limit)
	for _, entry := range due {
		entry := entry
		g.Go(func() error {
			s.runEntry(gctx, entry, settings)
			return gctx.Err()
		})
	}
	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// runEntry takes one due entry through claim, search, and resolution.
// Every exit path writes the outcome through the dispatch-token guard.
func (s *Scheduler) runEntry(ctx context.Context, entry model.ScheduledSearch, settings model.Settings) {
	token := uuid.NewString()
	claimed, err := s.store.ClaimSearch(ctx, entry.ID, token)
	if err != nil || !claimed {
		return
	}
	entry.Attempts++ // the claim bumped it

	logger := log.WithComponent("scheduler").With().
		Int64("entry_id", entry.ID).
		Int64("round_id", entry.RoundID).
		Str("session", string(entry.EventType)).
		Logger()

	out := s.executeEntry(ctx, entry, settings, logger)
	if err := s.store.ResolveRun(ctx, entry.ID, token, out); err != nil {
		logger.Error().Err(err).Str("event", "scheduler.resolve_failed").Msg("could not persist run outcome")
	}
	metrics.SearchesTotal.WithLabelValues(string(out.Status)).Inc()
}

func (s *Scheduler) executeEntry(ctx context.Context, entry model.ScheduledSearch, settings model.Settings, logger zerolog.Logger) store.SearchOutcome {
	now := s.clock.Now().UTC()

	event, err := s.store.EventByType(ctx, entry.RoundID, entry.EventType)
	if errors.Is(err, store.ErrNotFound) {
		return store.SearchOutcome{
			Status:    model.StatusFailed,
			LastError: "session no longer exists for this round",
		}
	}
	if err != nil {
		return s.rescheduleTransient(entry, settings, err)
	}

	switch classifyPhase(now, event.StartUTC, settings) {
	case phaseExpired:
		logger.Info().Str("event", "scheduler.expired").Msg("entry expired without a grab")
		return store.SearchOutcome{
			Status:          model.StatusCompleted,
			CompletedReason: "expired",
		}
	case phaseTBD:
		next := nextRunFor(phaseTBD, now, nil, settings)
		return store.SearchOutcome{Status: model.StatusScheduled, NextRunAt: &next, DecrementRetry: true}
	case phaseGate:
		next := s.jitter(nextRunFor(phaseGate, now, event.StartUTC, settings), settings)
		return store.SearchOutcome{Status: model.StatusScheduled, NextRunAt: &next, DecrementRetry: true}
	}

	if !settings.AllowsEvent(entry.EventType) {
		next := s.jitter(nextRunFor(phaseDecay, now, event.StartUTC, settings), settings)
		return store.SearchOutcome{
			Status:         model.StatusScheduled,
			NextRunAt:      &next,
			DecrementRetry: true,
		}
	}

	target, err := s.searcher.EventTarget(ctx, event, settings)
	if err != nil {
		return s.rescheduleTransient(entry, settings, err)
	}
	indexers, err := s.store.ListIndexers(ctx, true)
	if err != nil {
		return s.rescheduleTransient(entry, settings, err)
	}
	if len(indexers) == 0 {
		next := s.jitter(s.nextByPhase(now, event.StartUTC, settings), settings)
		return store.SearchOutcome{
			Status:    model.StatusScheduled,
			NextRunAt: &next,
			LastError: "no enabled indexers",
		}
	}

	started := time.Now()
	merged, err := s.searcher.RunEvent(ctx, target, indexers, settings)
	metrics.SearchDuration.Observe(time.Since(started).Seconds())
	if err != nil {
		var ie *newznab.Error
		if errors.As(err, &ie) && !ie.Retryable() {
			logger.Warn().Err(fmt.Errorf("%s", log.Redact(err.Error()))).
				Str("event", "scheduler.search_rejected").Msg("indexer rejected the search")
		}
		return s.rescheduleTransient(entry, settings, err)
	}

	best, ok := search.Best(merged)
	if ok && best.Score >= settings.AutoDownloadThreshold {
		unlock := s.lockEvent(event.ID)
		defer unlock()
		return s.grab(ctx, entry, event, best, settings, logger)
	}

	next := s.jitter(s.nextByPhase(now, event.StartUTC, settings), settings)
	logger.Debug().
		Str("event", "scheduler.no_hit").
		Int("candidates", len(merged)).
		Time("next_run", next).
		Msg("no acceptable release yet")
	return store.SearchOutcome{Status: model.StatusScheduled, NextRunAt: &next}
}

func (s *Scheduler) nextByPhase(now time.Time, start *time.Time, settings model.Settings) time.Time {
	return nextRunFor(classifyPhase(now, start, settings), now, start, settings)
}

func (s *Scheduler) rescheduleTransient(entry model.ScheduledSearch, settings model.Settings, err error) store.SearchOutcome {
	next := s.clock.Now().UTC().Add(cooldown(entry.Attempts, settings))
	return store.SearchOutcome{
		Status:    model.StatusScheduled,
		NextRunAt: &next,
		LastError: log.Redact(err.Error()),
	}
}

// markerTag is the downloader-side label for an entry; it is appended to
// the queue title so history rows can be matched back.
func markerTag(roundID int64, t model.SessionType) string {
	return fmt.Sprintf("rc-%d-%s", roundID, strings.ToLower(string(t)))
}

// resolveDownloader walks override, then settings default.
func (s *Scheduler) resolveDownloader(ctx context.Context, entry model.ScheduledSearch, settings model.Settings) (model.Downloader, error) {
	id := entry.DownloaderID
	if id == nil {
		id = settings.DefaultDownloaderID
	}
	if id == nil {
		return model.Downloader{}, errors.New("no downloader configured")
	}
	return s.store.DownloaderByID(ctx, *id)
}

// grab sends the chosen release and settles the entry into
// WaitingDownload, or schedules a retry / fails it on dispatch errors.
func (s *Scheduler) grab(ctx context.Context, entry model.ScheduledSearch, event model.Event, best search.Scored, settings model.Settings, logger zerolog.Logger) store.SearchOutcome {
	dl, err := s.resolveDownloader(ctx, entry, settings)
	if err != nil {
		logger.Error().Err(err).Str("event", "scheduler.no_downloader").Msg("cannot dispatch grab")
		return store.SearchOutcome{
			Status:    model.StatusFailed,
			LastError: log.Redact(err.Error()),
		}
	}

	tag := markerTag(entry.RoundID, entry.EventType)
	title := best.Release.Title + " " + tag
	acquisitionID, err := s.downloads.Send(ctx, dl, downloader.SendRequest{
		NZBURL:   best.Release.NZBURL,
		Title:    title,
		Category: dl.Category,
		Priority: dl.Priority,
	})
	if err != nil {
		metrics.DownloaderSendsTotal.WithLabelValues(string(dl.Kind), "error").Inc()
		_ = s.store.SetDownloaderError(ctx, dl.ID, log.Redact(err.Error()))
		if downloader.IsRetryable(err) {
			return s.rescheduleTransient(entry, settings, err)
		}
		return store.SearchOutcome{
			Status:    model.StatusFailed,
			LastError: log.Redact(err.Error()),
		}
	}
	metrics.DownloaderSendsTotal.WithLabelValues(string(dl.Kind), "ok").Inc()
	metrics.GrabsTotal.WithLabelValues("sent").Inc()
	_ = s.store.SetDownloaderError(ctx, dl.ID, "")

	if _, err := s.store.AppendHistory(ctx, model.DownloadHistory{
		EventID:       event.ID,
		IndexerID:     best.Release.IndexerID,
		DownloaderID:  dl.ID,
		AcquisitionID: acquisitionID,
		Title:         title,
		NZBURL:        best.Release.NZBURL,
		Score:         best.Score,
		Status:        model.HistorySent,
	}); err != nil {
		logger.Error().Err(err).Str("event", "scheduler.history_failed").Msg("could not record acquisition")
	}
	_ = s.store.SetSearchTag(ctx, entry.ID, tag)

	logger.Info().
		Str("event", "scheduler.grabbed").
		Str("title", best.Release.Title).
		Int("score", best.Score).
		Str("downloader", dl.Name).
		Msg("release sent to downloader")

	s.notifier.Async(ctx, notify.Message{
		Event: model.EventDownloadStart,
		Title: "Download started",
		Body:  best.Release.Title,
		Payload: map[string]any{
			"title":      best.Release.Title,
			"score":      best.Score,
			"session":    entry.EventType,
			"round_id":   entry.RoundID,
			"downloader": dl.Name,
		},
	})

	dlID := dl.ID
	return store.SearchOutcome{
		Status:       model.StatusWaitingDownload,
		ChosenNZB:    best.Release.NZBURL,
		ChosenTitle:  best.Release.Title,
		DownloaderID: &dlID,
	}
}
