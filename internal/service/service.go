// SPDX-License-Identifier: MIT

// Package service implements the operator commands on top of the store,
// the importer, the searcher and the scheduler.
package service

import (
	"context"
	"net/url"
	"strings"

	"github.com/jonboulle/clockwork"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/schedule"
	"github.com/racecarr/racecarr/internal/scheduler"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/store"
)

// Service is the operator command surface.
type Service struct {
	store     *store.Store
	importer  *schedule.Importer
	searcher  *search.Searcher
	sched     *scheduler.Scheduler
	indexers  *newznab.Client
	downloads *downloader.Dispatcher
	notifier  *notify.Dispatcher
	clock     clockwork.Clock
}

func New(st *store.Store, importer *schedule.Importer, searcher *search.Searcher, sched *scheduler.Scheduler,
	ixClient *newznab.Client, downloads *downloader.Dispatcher, notifier *notify.Dispatcher, clock clockwork.Clock,
) *Service {
	return &Service{
		store:     st,
		importer:  importer,
		searcher:  searcher,
		sched:     sched,
		indexers:  ixClient,
		downloads: downloads,
		notifier:  notifier,
		clock:     clock,
	}
}

// --- seasons ---

func (s *Service) RefreshSeason(ctx context.Context, year int) (model.Season, error) {
	if year < 1950 || year > 2100 {
		return model.Season{}, validationf("year", "must be a championship year, got %d", year)
	}
	return s.importer.RefreshSeason(ctx, year)
}

func (s *Service) ListSeasons(ctx context.Context, includeHidden bool) ([]model.Season, error) {
	return s.store.ListSeasons(ctx, includeHidden)
}

func (s *Service) HideSeason(ctx context.Context, id int64) error {
	return s.store.HideSeason(ctx, id)
}

func (s *Service) RestoreSeason(ctx context.Context, id int64) error {
	return s.store.RestoreSeason(ctx, id)
}

func (s *Service) DeleteSeason(ctx context.Context, id int64) error {
	return s.store.DeleteSeason(ctx, id)
}

// --- rounds ---

func (s *Service) ListRounds(ctx context.Context, seasonID int64) ([]model.Round, error) {
	if _, err := s.store.SeasonByID(ctx, seasonID); err != nil {
		return nil, err
	}
	return s.store.ListRounds(ctx, seasonID)
}

func (s *Service) ListEvents(ctx context.Context, roundID int64) ([]model.Event, error) {
	if _, err := s.store.RoundByID(ctx, roundID); err != nil {
		return nil, err
	}
	return s.store.ListEvents(ctx, roundID)
}

// RoundSearch runs (or serves from cache) the fan-out for a whole round.
func (s *Service) RoundSearch(ctx context.Context, roundID int64, force bool) (search.RoundResults, error) {
	round, err := s.store.RoundByID(ctx, roundID)
	if err != nil {
		return search.RoundResults{}, err
	}
	return s.searcher.RoundSearch(ctx, round, force)
}

// RoundGrab dispatches at most one send per session of the round.
func (s *Service) RoundGrab(ctx context.Context, roundID int64, eventTypes []string) ([]scheduler.GrabResult, error) {
	round, err := s.store.RoundByID(ctx, roundID)
	if err != nil {
		return nil, err
	}
	hidden, err := s.store.SeasonHiddenForRound(ctx, roundID)
	if err != nil {
		return nil, err
	}
	if hidden {
		return nil, conflictf("season for round %d is hidden", roundID)
	}
	types := make([]model.SessionType, 0, len(eventTypes))
	for _, raw := range eventTypes {
		t, ok := model.ParseSessionType(raw)
		if !ok {
			return nil, validationf("event_types", "unknown session type %q", raw)
		}
		types = append(types, t)
	}
	return s.sched.GrabRound(ctx, round, types)
}

// --- indexers ---

func validateIndexer(ix model.Indexer) error {
	if strings.TrimSpace(ix.Name) == "" {
		return validationf("name", "required")
	}
	u, err := url.Parse(ix.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validationf("base_url", "must be an absolute URL")
	}
	switch ix.Kind {
	case model.IndexerNewznab, model.IndexerHydra, model.IndexerCustom:
	default:
		return validationf("kind", "unknown indexer kind %q", ix.Kind)
	}
	return nil
}

func (s *Service) CreateIndexer(ctx context.Context, ix model.Indexer) (model.Indexer, error) {
	if err := validateIndexer(ix); err != nil {
		return model.Indexer{}, err
	}
	log.RegisterSecret(ix.APIKey)
	return s.store.CreateIndexer(ctx, ix)
}

func (s *Service) UpdateIndexer(ctx context.Context, ix model.Indexer) error {
	if err := validateIndexer(ix); err != nil {
		return err
	}
	log.RegisterSecret(ix.APIKey)
	return s.store.UpdateIndexer(ctx, ix)
}

func (s *Service) DeleteIndexer(ctx context.Context, id int64) error {
	return s.store.DeleteIndexer(ctx, id)
}

func (s *Service) ListIndexers(ctx context.Context) ([]model.Indexer, error) {
	return s.store.ListIndexers(ctx, false)
}

// TestIndexer runs a caps probe and records the outcome on the row.
func (s *Service) TestIndexer(ctx context.Context, id int64) error {
	ix, err := s.store.IndexerByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.indexers.TestConnection(ctx, ix); err != nil {
		_ = s.store.SetIndexerError(ctx, id, log.Redact(err.Error()))
		return err
	}
	return s.store.SetIndexerError(ctx, id, "")
}

// --- downloaders ---

func validateDownloader(d model.Downloader) error {
	if strings.TrimSpace(d.Name) == "" {
		return validationf("name", "required")
	}
	u, err := url.Parse(d.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return validationf("base_url", "must be an absolute URL")
	}
	switch d.Kind {
	case model.DownloaderSAB, model.DownloaderNZBG:
	default:
		return validationf("kind", "unknown downloader kind %q", d.Kind)
	}
	return nil
}

func (s *Service) CreateDownloader(ctx context.Context, d model.Downloader) (model.Downloader, error) {
	if err := validateDownloader(d); err != nil {
		return model.Downloader{}, err
	}
	log.RegisterSecret(d.APIKey)
	return s.store.CreateDownloader(ctx, d)
}

func (s *Service) UpdateDownloader(ctx context.Context, d model.Downloader) error {
	if err := validateDownloader(d); err != nil {
		return err
	}
	log.RegisterSecret(d.APIKey)
	return s.store.UpdateDownloader(ctx, d)
}

func (s *Service) DeleteDownloader(ctx context.Context, id int64) error {
	settings, err := s.store.Settings(ctx)
	if err != nil {
		return err
	}
	if settings.DefaultDownloaderID != nil && *settings.DefaultDownloaderID == id {
		return conflictf("downloader %d is the configured default", id)
	}
	return s.store.DeleteDownloader(ctx, id)
}

func (s *Service) ListDownloaders(ctx context.Context) ([]model.Downloader, error) {
	return s.store.ListDownloaders(ctx, false)
}

// TestDownloader probes connectivity and records the outcome on the row.
func (s *Service) TestDownloader(ctx context.Context, id int64) error {
	d, err := s.store.DownloaderByID(ctx, id)
	if err != nil {
		return err
	}
	if err := s.downloads.Test(ctx, d); err != nil {
		_ = s.store.SetDownloaderError(ctx, id, log.Redact(err.Error()))
		return err
	}
	return s.store.SetDownloaderError(ctx, id, "")
}

// --- notification targets ---

func validateTarget(t model.NotificationTarget) error {
	if strings.TrimSpace(t.Name) == "" {
		return validationf("name", "required")
	}
	if _, err := url.Parse(t.URL); err != nil || t.URL == "" {
		return validationf("url", "must be a URL")
	}
	switch t.Kind {
	case model.NotifyApprise, model.NotifyWebhook:
	default:
		return validationf("kind", "unknown target kind %q", t.Kind)
	}
	return nil
}

func (s *Service) CreateNotificationTarget(ctx context.Context, t model.NotificationTarget) (model.NotificationTarget, error) {
	if err := validateTarget(t); err != nil {
		return model.NotificationTarget{}, err
	}
	log.RegisterSecret(t.WebhookSecret)
	return s.store.CreateNotificationTarget(ctx, t)
}

func (s *Service) UpdateNotificationTarget(ctx context.Context, t model.NotificationTarget) error {
	if err := validateTarget(t); err != nil {
		return err
	}
	log.RegisterSecret(t.WebhookSecret)
	return s.store.UpdateNotificationTarget(ctx, t)
}

func (s *Service) DeleteNotificationTarget(ctx context.Context, id int64) error {
	return s.store.DeleteNotificationTarget(ctx, id)
}

func (s *Service) ListNotificationTargets(ctx context.Context) ([]model.NotificationTarget, error) {
	return s.store.ListNotificationTargets(ctx)
}

// TestNotificationTarget delivers a test message, ignoring the mask.
func (s *Service) TestNotificationTarget(ctx context.Context, id int64) error {
	t, err := s.store.NotificationTargetByID(ctx, id)
	if err != nil {
		return err
	}
	return s.notifier.TestTarget(ctx, t)
}

// --- history ---

func (s *Service) ListHistory(ctx context.Context, limit int) ([]model.DownloadHistory, error) {
	return s.store.ListHistory(ctx, limit)
}

// --- settings ---

func (s *Service) Settings(ctx context.Context) (model.Settings, error) {
	return s.store.Settings(ctx)
}

// UpdateSettings validates and persists the singleton row. A changed log
// level takes effect immediately; the tick interval applies on the next
// boundary.
func (s *Service) UpdateSettings(ctx context.Context, settings model.Settings) error {
	if settings.MinResolution <= 0 || settings.MaxResolution < settings.MinResolution {
		return validationf("resolution", "min %d / max %d is not a valid range",
			settings.MinResolution, settings.MaxResolution)
	}
	if settings.AutoDownloadThreshold < 0 {
		return validationf("auto_download_threshold", "must not be negative")
	}
	if settings.SchedulerTickSeconds < 60 {
		return validationf("scheduler_tick_seconds", "must be at least 60")
	}
	if settings.GlobalConcurrency < 1 || settings.PerIndexerConcurrency < 1 {
		return validationf("concurrency", "caps must be at least 1")
	}
	if settings.DefaultDownloaderID != nil {
		if _, err := s.store.DownloaderByID(ctx, *settings.DefaultDownloaderID); err != nil {
			return err
		}
	}
	if err := s.store.SaveSettings(ctx, settings); err != nil {
		return err
	}
	log.SetLevel(settings.LogLevel)
	return nil
}

// --- venue aliases ---

func (s *Service) ListVenueAliases(ctx context.Context) (map[string][]string, error) {
	return s.store.ListVenueAliases(ctx)
}

func (s *Service) SetVenueAliases(ctx context.Context, circuitKey string, aliases []string) error {
	if strings.TrimSpace(circuitKey) == "" {
		return validationf("circuit", "required")
	}
	return s.store.SetVenueAliases(ctx, circuitKey, aliases)
}
