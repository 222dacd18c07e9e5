// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"

	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/store"
)

// CreateSearch enrolls a (round, session) pair for scheduled searching.
// The entry becomes due immediately; the first run computes the cadence
// from the session start.
func (s *Service) CreateSearch(ctx context.Context, roundID int64, eventType string, downloaderID *int64) (model.ScheduledSearch, error) {
	t, ok := model.ParseSessionType(eventType)
	if !ok {
		return model.ScheduledSearch{}, validationf("event_type", "unknown session type %q", eventType)
	}
	if _, err := s.store.RoundByID(ctx, roundID); err != nil {
		return model.ScheduledSearch{}, err
	}
	if _, err := s.store.EventByType(ctx, roundID, t); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return model.ScheduledSearch{}, validationf("event_type", "round has no %s session", t)
		}
		return model.ScheduledSearch{}, err
	}
	if downloaderID != nil {
		if _, err := s.store.DownloaderByID(ctx, *downloaderID); err != nil {
			return model.ScheduledSearch{}, err
		}
	}

	now := s.clock.Now().UTC()
	entry, err := s.store.CreateScheduledSearch(ctx, model.ScheduledSearch{
		RoundID:      roundID,
		EventType:    t,
		Status:       model.StatusScheduled,
		DownloaderID: downloaderID,
		AddedAt:      now,
		NextRunAt:    &now,
	})
	if errors.Is(err, store.ErrConflict) {
		return model.ScheduledSearch{}, conflictf("a watch entry for this round and session already exists")
	}
	return entry, err
}

func (s *Service) ListSearches(ctx context.Context) ([]model.ScheduledSearch, error) {
	return s.store.ListScheduledSearches(ctx)
}

func (s *Service) SearchByID(ctx context.Context, id int64) (model.ScheduledSearch, error) {
	return s.store.ScheduledSearchByID(ctx, id)
}

func (s *Service) DeleteSearch(ctx context.Context, id int64) error {
	return s.store.DeleteScheduledSearch(ctx, id)
}

// SetSearchDownloader sets or clears the per-entry downloader override.
func (s *Service) SetSearchDownloader(ctx context.Context, id int64, downloaderID *int64) error {
	if downloaderID != nil {
		if _, err := s.store.DownloaderByID(ctx, *downloaderID); err != nil {
			return err
		}
	}
	if _, err := s.store.ScheduledSearchByID(ctx, id); err != nil {
		return err
	}
	return s.store.SetSearchDownloader(ctx, id, downloaderID)
}

// PauseSearch parks an entry. Terminal entries cannot be paused.
func (s *Service) PauseSearch(ctx context.Context, id int64) error {
	entry, err := s.store.ScheduledSearchByID(ctx, id)
	if err != nil {
		return err
	}
	switch entry.Status {
	case model.StatusCompleted, model.StatusFailed:
		return conflictf("entry %d is %s, cannot pause", id, entry.Status)
	case model.StatusPaused:
		return nil
	}
	return s.store.UpdateSearchStatus(ctx, id, model.StatusPaused, nil, "")
}

// ResumeSearch makes a paused or failed entry due immediately.
func (s *Service) ResumeSearch(ctx context.Context, id int64) error {
	entry, err := s.store.ScheduledSearchByID(ctx, id)
	if err != nil {
		return err
	}
	switch entry.Status {
	case model.StatusPaused, model.StatusFailed:
	default:
		return conflictf("entry %d is %s, cannot resume", id, entry.Status)
	}
	hidden, err := s.store.SeasonHiddenForRound(ctx, entry.RoundID)
	if err != nil {
		return err
	}
	if hidden {
		return conflictf("season for entry %d is hidden", id)
	}
	now := s.clock.Now().UTC()
	return s.store.UpdateSearchStatus(ctx, id, model.StatusScheduled, &now, "")
}

// RunSearchNow pushes an entry through the pipeline outside the tick.
func (s *Service) RunSearchNow(ctx context.Context, id int64) error {
	entry, err := s.store.ScheduledSearchByID(ctx, id)
	if err != nil {
		return err
	}
	if entry.Status != model.StatusScheduled {
		return conflictf("entry %d is %s, not runnable", id, entry.Status)
	}
	return s.sched.RunNow(ctx, entry)
}
