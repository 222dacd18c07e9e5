// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/metrics"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/store"
)

// GrabResult reports the per-session outcome of a round-level auto-grab.
type GrabResult struct {
	EventType model.SessionType `json:"event_type"`
	Sent      bool              `json:"sent"`
	Title     string            `json:"title,omitempty"`
	Score     int               `json:"score,omitempty"`
	Reason    string            `json:"reason,omitempty"`
}

// GrabRound runs the scorer once over the round's sessions and dispatches
// at most one send per session. Sessions with an attempt already in
// flight are skipped; a watch entry that exists for a session is claimed
// first so the scheduled run and the operator action cannot double-send.
func (s *Scheduler) GrabRound(ctx context.Context, round model.Round, eventTypes []model.SessionType) ([]GrabResult, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return nil, err
	}
	events, err := s.store.ListEvents(ctx, round.ID)
	if err != nil {
		return nil, err
	}
	indexers, err := s.store.ListIndexers(ctx, true)
	if err != nil {
		return nil, err
	}
	if len(indexers) == 0 {
		return nil, errors.New("no enabled indexers")
	}

	wanted := make(map[model.SessionType]bool, len(eventTypes))
	for _, t := range eventTypes {
		wanted[t] = true
	}

	logger := log.WithComponentFromContext(ctx, "scheduler").With().
		Int64("round_id", round.ID).
		Logger()

	var results []GrabResult
	for _, ev := range events {
		if len(wanted) > 0 && !wanted[ev.Type] {
			continue
		}
		if !settings.AllowsEvent(ev.Type) {
			results = append(results, GrabResult{EventType: ev.Type, Reason: "session type not in allowlist"})
			continue
		}
		results = append(results, s.grabEvent(ctx, round, ev, indexers, settings, logger))
		if ctx.Err() != nil {
			break
		}
	}
	return results, nil
}

func (s *Scheduler) grabEvent(ctx context.Context, round model.Round, ev model.Event, indexers []model.Indexer, settings model.Settings, logger zerolog.Logger) GrabResult {
	unlock := s.lockEvent(ev.ID)
	defer unlock()

	// An existing watch entry owns the session's lifecycle: claim it so
	// this send is recorded there, or back off if it is mid-flight.
	entry, err := s.store.ScheduledSearchByKey(ctx, round.ID, ev.Type)
	switch {
	case err == nil:
		return s.grabThroughEntry(ctx, entry, ev, indexers, settings, logger)
	case errors.Is(err, store.ErrNotFound):
	default:
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}

	target, err := s.searcher.EventTarget(ctx, ev, settings)
	if err != nil {
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}
	merged, err := s.searcher.RunEvent(ctx, target, indexers, settings)
	if err != nil {
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}
	best, ok := search.Best(merged)
	if !ok {
		return GrabResult{EventType: ev.Type, Reason: "no candidate without a hard mismatch"}
	}
	if best.Score < settings.AutoDownloadThreshold {
		return GrabResult{
			EventType: ev.Type,
			Title:     best.Release.Title,
			Score:     best.Score,
			Reason:    fmt.Sprintf("best score %d below threshold %d", best.Score, settings.AutoDownloadThreshold),
		}
	}

	if err := s.sendStandalone(ctx, round, ev, best, settings, logger); err != nil {
		return GrabResult{EventType: ev.Type, Title: best.Release.Title, Score: best.Score, Reason: log.Redact(err.Error())}
	}
	return GrabResult{EventType: ev.Type, Sent: true, Title: best.Release.Title, Score: best.Score}
}

// grabThroughEntry routes a round-level grab through the session's watch
// entry so the entry's state machine stays authoritative.
func (s *Scheduler) grabThroughEntry(ctx context.Context, entry model.ScheduledSearch, ev model.Event, indexers []model.Indexer, settings model.Settings, logger zerolog.Logger) GrabResult {
	token := uuid.NewString()
	claimed, err := s.store.ClaimSearch(ctx, entry.ID, token)
	if err != nil {
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}
	if !claimed {
		return GrabResult{EventType: ev.Type, Reason: fmt.Sprintf("watch entry is %s", entry.Status)}
	}
	entry.Attempts++

	target, err := s.searcher.EventTarget(ctx, ev, settings)
	if err != nil {
		out := s.rescheduleTransient(entry, settings, err)
		_ = s.store.ResolveRun(ctx, entry.ID, token, out)
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}
	merged, err := s.searcher.RunEvent(ctx, target, indexers, settings)
	if err != nil {
		out := s.rescheduleTransient(entry, settings, err)
		_ = s.store.ResolveRun(ctx, entry.ID, token, out)
		return GrabResult{EventType: ev.Type, Reason: log.Redact(err.Error())}
	}

	best, ok := search.Best(merged)
	if !ok || best.Score < settings.AutoDownloadThreshold {
		now := s.clock.Now().UTC()
		next := s.jitter(s.nextByPhase(now, ev.StartUTC, settings), settings)
		_ = s.store.ResolveRun(ctx, entry.ID, token, store.SearchOutcome{
			Status:    model.StatusScheduled,
			NextRunAt: &next,
		})
		reason := "no candidate without a hard mismatch"
		result := GrabResult{EventType: ev.Type, Reason: reason}
		if ok {
			result.Title = best.Release.Title
			result.Score = best.Score
			result.Reason = fmt.Sprintf("best score %d below threshold %d", best.Score, settings.AutoDownloadThreshold)
		}
		return result
	}

	out := s.grab(ctx, entry, ev, best, settings, logger)
	_ = s.store.ResolveRun(ctx, entry.ID, token, out)
	if out.Status != model.StatusWaitingDownload {
		return GrabResult{EventType: ev.Type, Title: best.Release.Title, Score: best.Score, Reason: out.LastError}
	}
	return GrabResult{EventType: ev.Type, Sent: true, Title: best.Release.Title, Score: best.Score}
}

// sendStandalone dispatches a grab for a session with no watch entry:
// history and notifications only, no schedule state.
func (s *Scheduler) sendStandalone(ctx context.Context, round model.Round, ev model.Event, best search.Scored, settings model.Settings, logger zerolog.Logger) error {
	if settings.DefaultDownloaderID == nil {
		return errors.New("no downloader configured")
	}
	dl, err := s.store.DownloaderByID(ctx, *settings.DefaultDownloaderID)
	if err != nil {
		return err
	}

	tag := markerTag(round.ID, ev.Type)
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
		return err
	}
	metrics.DownloaderSendsTotal.WithLabelValues(string(dl.Kind), "ok").Inc()
	metrics.GrabsTotal.WithLabelValues("sent").Inc()

	if _, err := s.store.AppendHistory(ctx, model.DownloadHistory{
		EventID:       ev.ID,
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

	logger.Info().
		Str("event", "scheduler.round_grab").
		Str("session", string(ev.Type)).
		Str("title", best.Release.Title).
		Int("score", best.Score).
		Msg("round-level grab sent")

	s.notifier.Async(ctx, notify.Message{
		Event: model.EventDownloadStart,
		Title: "Download started",
		Body:  best.Release.Title,
		Payload: map[string]any{
			"title":      best.Release.Title,
			"score":      best.Score,
			"session":    ev.Type,
			"round_id":   round.ID,
			"downloader": dl.Name,
		},
	})
	return nil
}

// RunNow forces one entry through the pipeline immediately, outside the
// tick. Paused entries are rejected; the operator resumes them first.
func (s *Scheduler) RunNow(ctx context.Context, entry model.ScheduledSearch) error {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	if entry.Status == model.StatusPaused {
		return fmt.Errorf("entry %d is paused", entry.ID)
	}
	if entry.Status != model.StatusScheduled {
		return fmt.Errorf("entry %d is %s, not runnable", entry.ID, entry.Status)
	}
	s.runEntry(ctx, entry, settings)
	return nil
}
