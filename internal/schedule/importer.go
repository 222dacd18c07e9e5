// SPDX-License-Identifier: MIT

// Package schedule imports season metadata from the provider and merges
// it into the store.
package schedule

import (
	"context"
	"fmt"

	"github.com/racecarr/racecarr/internal/f1api"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/store"
)

// Provider is the slice of the f1api client the importer needs.
type Provider interface {
	Season(ctx context.Context, year int) (f1api.SeasonPayload, error)
	Round(ctx context.Context, year, round int) (f1api.RoundPayload, error)
}

// Importer merges provider payloads into the entity graph.
type Importer struct {
	provider Provider
	store    *store.Store
}

// NewImporter wires an importer.
func NewImporter(provider Provider, st *store.Store) *Importer {
	return &Importer{provider: provider, store: st}
}

// sessionSlots orders the merge deterministically.
var sessionSlots = []struct {
	typ  model.SessionType
	pick func(*f1api.Schedule) *f1api.SessionTime
}{
	{model.SessionFP1, func(s *f1api.Schedule) *f1api.SessionTime { return s.FP1 }},
	{model.SessionFP2, func(s *f1api.Schedule) *f1api.SessionTime { return s.FP2 }},
	{model.SessionFP3, func(s *f1api.Schedule) *f1api.SessionTime { return s.FP3 }},
	{model.SessionSprintQualifying, func(s *f1api.Schedule) *f1api.SessionTime { return s.SprintQualy }},
	{model.SessionSprint, func(s *f1api.Schedule) *f1api.SessionTime { return s.SprintRace }},
	{model.SessionQualifying, func(s *f1api.Schedule) *f1api.SessionTime { return s.Qualy }},
	{model.SessionRace, func(s *f1api.Schedule) *f1api.SessionTime { return s.Race }},
}

// RefreshSeason pulls a season from the provider and merges it into the
// store. Merge rules: rounds upsert by (season, round_number), events by
// (round, type); when the season and round payloads disagree, the round
// payload wins. A null session in the season payload leaves any existing
// event untouched; a null session in the round payload deletes it.
func (im *Importer) RefreshSeason(ctx context.Context, year int) (model.Season, error) {
	logger := log.WithComponentFromContext(ctx, "schedule")

	payload, err := im.provider.Season(ctx, year)
	if err != nil {
		// Existing rows stay untouched on provider failure.
		return model.Season{}, err
	}

	season, err := im.store.UpsertSeason(ctx, year)
	if err != nil {
		return model.Season{}, err
	}

	for _, race := range payload.Races {
		if race.Round == 0 {
			logger.Warn().
				Str("event", "import.skip_race").
				Str("race", race.DisplayName()).
				Msg("race without a round number, skipping")
			continue
		}
		if err := im.mergeRace(ctx, season, race, false); err != nil {
			return model.Season{}, fmt.Errorf("schedule: merge round %d: %w", int(race.Round), err)
		}

		// The round endpoint fills winner data and may correct the
		// weekend schedule; its payload takes precedence.
		detail, err := im.provider.Round(ctx, year, int(race.Round))
		if err != nil {
			if f1api.IsTransient(err) {
				logger.Warn().
					Err(err).
					Str("event", "import.round_detail_skipped").
					Int("round", int(race.Round)).
					Msg("round detail unavailable, season payload kept")
				continue
			}
			return model.Season{}, err
		}
		if roundRace, ok := detail.First(); ok {
			roundRace.Round = race.Round
			if err := im.mergeRace(ctx, season, roundRace, true); err != nil {
				return model.Season{}, fmt.Errorf("schedule: merge round detail %d: %w", int(race.Round), err)
			}
		}
	}

	if err := im.store.TouchSeasonRefreshed(ctx, season.ID); err != nil {
		return model.Season{}, err
	}

	logger.Info().
		Str("event", "import.season_refreshed").
		Int("year", year).
		Int("rounds", len(payload.Races)).
		Msg("season refreshed")
	return im.store.SeasonByYear(ctx, year)
}

// mergeRace upserts one round and its events. authoritative marks the
// round-endpoint payload, whose null sessions delete existing events.
func (im *Importer) mergeRace(ctx context.Context, season model.Season, race f1api.Race, authoritative bool) error {
	name, raw := CleanRaceName(race.DisplayName())
	round, err := im.store.UpsertRound(ctx, model.Round{
		SeasonID:    season.ID,
		RoundNumber: int(race.Round),
		Name:        name,
		RawName:     raw,
		Circuit:     race.Circuit.DisplayName(),
		City:        race.Circuit.City,
		Country:     race.Circuit.Country,
		CircuitTZ:   race.Circuit.Timezone,
		Winner:      race.Winner.FullName(),
		TeamWinner:  race.TeamWinner.DisplayName(),
		FastLap:     race.FastLap.FullName(),
	})
	if err != nil {
		return err
	}

	for _, slot := range sessionSlots {
		var st *f1api.SessionTime
		if race.Schedule != nil {
			st = slot.pick(race.Schedule)
		}
		if st == nil {
			if authoritative {
				if err := im.store.DeleteEvent(ctx, round.ID, slot.typ); err != nil {
					return err
				}
			}
			continue
		}
		start := st.UTC()
		if start == nil {
			continue
		}
		if err := im.store.UpsertEvent(ctx, model.Event{
			RoundID:  round.ID,
			Type:     slot.typ,
			StartUTC: start,
		}); err != nil {
			return err
		}
	}
	return nil
}
