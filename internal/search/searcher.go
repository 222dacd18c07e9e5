// SPDX-License-Identifier: MIT

package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/metrics"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/store"
)

const cacheTTLHours = 24

// IndexerClient is the query transport. *newznab.Client satisfies it.
type IndexerClient interface {
	Search(ctx context.Context, ix model.Indexer, q newznab.Query) ([]newznab.Release, error)
}

// Searcher runs the fan-out for events and rounds. Concurrency caps are
// enforced here: one global semaphore plus one per indexer, both sized
// from the settings row at call time.
type Searcher struct {
	client IndexerClient
	store  *store.Store

	mu     sync.Mutex
	global weightedSem
	perIx  map[int64]weightedSem
}

// weightedSem pairs a semaphore with the weight it was built for, so a
// settings change rebuilds it instead of serving the stale cap. Runs
// already holding the old semaphore release into it and drain out.
type weightedSem struct {
	sem    *semaphore.Weighted
	weight int64
}

func NewSearcher(client IndexerClient, st *store.Store) *Searcher {
	return &Searcher{
		client: client,
		store:  st,
		perIx:  make(map[int64]weightedSem),
	}
}

func (s *Searcher) globalSem(weight int64) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.global.sem == nil || s.global.weight != weight {
		s.global = weightedSem{sem: semaphore.NewWeighted(weight), weight: weight}
	}
	return s.global.sem
}

func (s *Searcher) indexerSem(id int64, weight int64) *semaphore.Weighted {
	s.mu.Lock()
	defer s.mu.Unlock()
	ws, ok := s.perIx[id]
	if !ok || ws.weight != weight {
		ws = weightedSem{sem: semaphore.NewWeighted(weight), weight: weight}
		s.perIx[id] = ws
	}
	return ws.sem
}

// RunEvent executes the full fan-out for one target against every enabled
// indexer and returns the merged, scored candidate list. Partial indexer
// failures yield partial results; an error is returned only when every
// call failed and nothing came back.
func (s *Searcher) RunEvent(ctx context.Context, t Target, indexers []model.Indexer, settings model.Settings) ([]Scored, error) {
	queries := BuildQueries(t)
	logger := log.WithComponentFromContext(ctx, "search")

	globalWeight := int64(settings.GlobalConcurrency)
	if globalWeight < 1 {
		globalWeight = 1
	}
	perIxWeight := int64(settings.PerIndexerConcurrency)
	if perIxWeight < 1 {
		perIxWeight = 1
	}
	global := s.globalSem(globalWeight)

	var (
		resMu      sync.Mutex
		candidates []Scored
		callErrs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, ix := range indexers {
		if !ix.Enabled {
			continue
		}
		ixSem := s.indexerSem(ix.ID, perIxWeight)
		for _, q := range queries {
			ix, q := ix, q
			g.Go(func() error {
				if err := global.Acquire(gctx, 1); err != nil {
					return err
				}
				defer global.Release(1)
				if err := ixSem.Acquire(gctx, 1); err != nil {
					return err
				}
				defer ixSem.Release(1)

				releases, err := s.client.Search(gctx, ix, q)
				resMu.Lock()
				defer resMu.Unlock()
				if err != nil {
					metrics.IndexerRequestsTotal.WithLabelValues(ix.Name, "error").Inc()
					callErrs = append(callErrs, err)
					return nil // one bad call must not cancel the rest
				}
				metrics.IndexerRequestsTotal.WithLabelValues(ix.Name, "ok").Inc()
				for _, rel := range releases {
					candidates = append(candidates, Score(t, rel, settings))
				}
				return nil
			})
		}
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if len(candidates) == 0 && len(callErrs) > 0 {
		return nil, errors.Join(callErrs...)
	}
	merged := Merge(candidates, settings)
	logger.Debug().
		Str("event", "search.fanout").
		Int("queries", len(queries)).
		Int("raw", len(candidates)).
		Int("merged", len(merged)).
		Int("failed_calls", len(callErrs)).
		Msg("fan-out finished")
	return merged, nil
}

// RoundResults is one round-level search outcome, cacheable as a unit.
type RoundResults struct {
	RoundID   int64                          `json:"round_id"`
	Events    map[model.SessionType][]Scored `json:"events"`
	FromCache bool                           `json:"-"`
	CachedAt  time.Time                      `json:"-"`
	TTLHours  int                            `json:"-"`
}

// RoundSearch runs the fan-out for every allowed session of a round,
// serving from the 24h cache unless force is set. A cache miss is never
// an error. The fresh result replaces the prior cache row.
func (s *Searcher) RoundSearch(ctx context.Context, round model.Round, force bool) (RoundResults, error) {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return RoundResults{}, err
	}
	fp := Fingerprint(settings.EventAllowlist)
	logger := log.WithComponentFromContext(ctx, "search")

	if !force {
		cached, err := s.store.GetCachedSearch(ctx, round.ID, fp)
		if err == nil {
			var res RoundResults
			if jsonErr := json.Unmarshal([]byte(cached.ResultsJSON), &res); jsonErr == nil {
				res.FromCache = true
				res.CachedAt = cached.CreatedAt
				res.TTLHours = cached.TTLHours
				logger.Debug().
					Str("event", "search.cache_hit").
					Int64("round_id", round.ID).
					Time("cached_at", cached.CreatedAt).
					Msg("serving round search from cache")
				return res, nil
			}
			// Unreadable cache rows are dropped, not surfaced.
			_ = s.store.DeleteCachedSearch(ctx, round.ID, fp)
		} else if !errors.Is(err, store.ErrNotFound) {
			return RoundResults{}, err
		}
	}

	season, err := s.store.SeasonByID(ctx, round.SeasonID)
	if err != nil {
		return RoundResults{}, err
	}
	events, err := s.store.ListEvents(ctx, round.ID)
	if err != nil {
		return RoundResults{}, err
	}
	indexers, err := s.store.ListIndexers(ctx, true)
	if err != nil {
		return RoundResults{}, err
	}
	aliases, err := s.venueAliases(ctx, round)
	if err != nil {
		return RoundResults{}, err
	}

	res := RoundResults{RoundID: round.ID, Events: make(map[model.SessionType][]Scored)}
	for _, ev := range events {
		if !settings.AllowsEvent(ev.Type) {
			continue
		}
		t := Target{
			Year:         season.Year,
			Round:        round.RoundNumber,
			Session:      ev.Type,
			VenueAliases: aliases,
			MaxAgeDays:   maxAgeDays(ev, settings, s.store.Now()),
		}
		scored, err := s.RunEvent(ctx, t, indexers, settings)
		if err != nil {
			return RoundResults{}, fmt.Errorf("round %d %s: %w", round.RoundNumber, ev.Type, err)
		}
		res.Events[ev.Type] = scored
	}

	payload, err := json.Marshal(res)
	if err != nil {
		return RoundResults{}, err
	}
	if err := s.store.PutCachedSearch(ctx, round.ID, fp, cacheTTLHours, string(payload)); err != nil {
		logger.Warn().Err(err).
			Str("event", "search.cache_write_failed").
			Int64("round_id", round.ID).
			Msg("cache write failed, result returned uncached")
	}
	return res, nil
}

// EventTarget assembles the fan-out target for one stored event.
func (s *Searcher) EventTarget(ctx context.Context, ev model.Event, settings model.Settings) (Target, error) {
	round, err := s.store.RoundByID(ctx, ev.RoundID)
	if err != nil {
		return Target{}, err
	}
	season, err := s.store.SeasonByID(ctx, round.SeasonID)
	if err != nil {
		return Target{}, err
	}
	aliases, err := s.venueAliases(ctx, round)
	if err != nil {
		return Target{}, err
	}
	return Target{
		Year:         season.Year,
		Round:        round.RoundNumber,
		Session:      ev.Type,
		VenueAliases: aliases,
		MaxAgeDays:   maxAgeDays(ev, settings, s.store.Now()),
	}, nil
}

func (s *Searcher) venueAliases(ctx context.Context, round model.Round) ([]string, error) {
	extra, err := s.store.VenueAliases(ctx, round.Circuit)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}
	return VenueAliasesForRound(round, extra), nil
}

// maxAgeDays picks the indexer maxage: wider before the session happened,
// tighter afterwards when the release should be recent.
func maxAgeDays(ev model.Event, settings model.Settings, now time.Time) int {
	if ev.StartUTC == nil || now.Before(*ev.StartUTC) {
		return settings.MaxAgePreDays
	}
	return settings.MaxAgePostDays
}
