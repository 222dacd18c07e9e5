// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"errors"
	"time"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/notify"
)

const maxPollInterval = 5 * time.Minute

func pollInterval(s model.Settings) time.Duration {
	decay := time.Duration(s.DecayIntervalH) * time.Hour
	if decay > 0 && decay < maxPollInterval {
		return decay
	}
	return maxPollInterval
}

// pollLoop follows every WaitingDownload entry through its downloader.
func (s *Scheduler) pollLoop(ctx context.Context) error {
	logger := log.WithComponent("scheduler")
	for {
		settings, err := s.store.Settings(ctx)
		interval := maxPollInterval
		if err == nil {
			interval = pollInterval(settings)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.clock.After(interval):
		}
		if err := s.PollDownloads(ctx); err != nil && !errors.Is(err, context.Canceled) {
			logger.Error().Err(err).Str("event", "scheduler.poll_failed").Msg("download poll failed")
		}
	}
}

// PollDownloads resolves the downloader-side state of every entry that is
// waiting on a sent NZB.
func (s *Scheduler) PollDownloads(ctx context.Context) error {
	waiting, err := s.store.SearchesByStatus(ctx, model.StatusWaitingDownload)
	if err != nil {
		return err
	}
	for _, entry := range waiting {
		s.pollEntry(ctx, entry)
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

func (s *Scheduler) pollEntry(ctx context.Context, entry model.ScheduledSearch) {
	logger := log.WithComponent("scheduler").With().
		Int64("entry_id", entry.ID).
		Int64("round_id", entry.RoundID).
		Str("session", string(entry.EventType)).
		Logger()

	event, err := s.store.EventByType(ctx, entry.RoundID, entry.EventType)
	if err != nil {
		logger.Warn().Err(err).Str("event", "scheduler.poll_orphan").Msg("waiting entry has no session row")
		return
	}
	h, err := s.store.LatestHistoryForEvent(ctx, event.ID)
	if err != nil {
		logger.Warn().Err(err).Str("event", "scheduler.poll_no_history").Msg("waiting entry has no acquisition record")
		return
	}
	dl, err := s.store.DownloaderByID(ctx, h.DownloaderID)
	if err != nil {
		logger.Warn().Err(err).Str("event", "scheduler.poll_no_downloader").Msg("acquisition references a missing downloader")
		return
	}

	status, err := s.downloads.Status(ctx, dl, h.AcquisitionID)
	if err != nil {
		// Downloader outages are transient; try again next cycle.
		logger.Warn().Err(errors.New(log.Redact(err.Error()))).
			Str("event", "scheduler.poll_error").Msg("status poll failed")
		return
	}

	switch status {
	case downloader.StatusCompleted:
		_ = s.store.UpdateHistoryStatus(ctx, h.ID, model.HistoryCompleted)
		if err := s.store.UpdateSearchStatus(ctx, entry.ID, model.StatusCompleted, nil, ""); err != nil {
			logger.Error().Err(err).Str("event", "scheduler.poll_update_failed").Msg("could not complete entry")
			return
		}
		logger.Info().Str("event", "scheduler.download_complete").Str("title", h.Title).Msg("download finished")
		s.notifier.Async(ctx, notify.Message{
			Event: model.EventDownloadComplete,
			Title: "Download complete",
			Body:  h.Title,
			Payload: map[string]any{
				"title":    h.Title,
				"session":  entry.EventType,
				"round_id": entry.RoundID,
			},
		})

	case downloader.StatusFailed:
		_ = s.store.UpdateHistoryStatus(ctx, h.ID, model.HistoryFailed)
		next := s.clock.Now().UTC().Add(downloadFailCooldown)
		if err := s.store.RescheduleFailedDownload(ctx, entry.ID, next, "download failed"); err != nil {
			logger.Error().Err(err).Str("event", "scheduler.poll_update_failed").Msg("could not reschedule entry")
			return
		}
		logger.Warn().Str("event", "scheduler.download_failed").Str("title", h.Title).Msg("download failed, entry rescheduled")
		s.notifier.Async(ctx, notify.Message{
			Event: model.EventDownloadFail,
			Title: "Download failed",
			Body:  h.Title,
			Payload: map[string]any{
				"title":    h.Title,
				"session":  entry.EventType,
				"round_id": entry.RoundID,
			},
		})

	case downloader.StatusQueued, downloader.StatusDownloading:
		_ = s.store.UpdateHistoryStatus(ctx, h.ID, model.HistoryDownloading)

	default:
		// Unknown: the job may not be visible yet. Stamp the poll and wait.
		_ = s.store.UpdateHistoryStatus(ctx, h.ID, h.Status)
	}
}
