// SPDX-License-Identifier: MIT

package service

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/f1api"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/schedule"
	"github.com/racecarr/racecarr/internal/scheduler"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/store"
)

type stubProvider struct{}

func (stubProvider) Season(context.Context, int) (f1api.SeasonPayload, error) {
	return f1api.SeasonPayload{}, errors.New("provider offline")
}

func (stubProvider) Round(context.Context, int, int) (f1api.RoundPayload, error) {
	return f1api.RoundPayload{}, errors.New("provider offline")
}

type fixture struct {
	svc   *Service
	store *store.Store
	clock *clockwork.FakeClock
	round model.Round
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	st, err := store.Open(filepath.Join(t.TempDir(), "test.db"), clock)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	ctx := context.Background()
	season, err := st.UpsertSeason(ctx, 2025)
	require.NoError(t, err)
	round, err := st.UpsertRound(ctx, model.Round{
		SeasonID: season.ID, RoundNumber: 6,
		Name: "Canadian Grand Prix", City: "Montreal", Country: "Canada",
		Circuit: "Circuit Gilles Villeneuve",
	})
	require.NoError(t, err)
	start := clock.Now().Add(2 * time.Hour)
	require.NoError(t, st.UpsertEvent(ctx, model.Event{
		RoundID: round.ID, Type: model.SessionRace, StartUTC: &start,
	}))

	ixClient := newznab.NewClient()
	searcher := search.NewSearcher(ixClient, st)
	downloads := downloader.NewDispatcher(clock)
	notifier := notify.NewDispatcher(st)
	sched := scheduler.New(st, searcher, downloads, notifier, clock)
	importer := schedule.NewImporter(stubProvider{}, st)
	svc := New(st, importer, searcher, sched, ixClient, downloads, notifier, clock)
	return &fixture{svc: svc, store: st, clock: clock, round: round}
}

func TestRefreshSeasonRejectsBogusYear(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.RefreshSeason(context.Background(), 1889)
	assert.True(t, IsValidation(err))
}

func TestCreateIndexerValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateIndexer(ctx, model.Indexer{Kind: model.IndexerNewznab, BaseURL: "https://x.example"})
	assert.True(t, IsValidation(err), "missing name")

	_, err = f.svc.CreateIndexer(ctx, model.Indexer{Name: "ix", Kind: model.IndexerNewznab, BaseURL: "not a url"})
	assert.True(t, IsValidation(err), "relative URL")

	_, err = f.svc.CreateIndexer(ctx, model.Indexer{Name: "ix", Kind: "torrent", BaseURL: "https://x.example"})
	assert.True(t, IsValidation(err), "unknown kind")

	ix, err := f.svc.CreateIndexer(ctx, model.Indexer{
		Name: "ix", Kind: model.IndexerNewznab, BaseURL: "https://x.example", Enabled: true,
	})
	require.NoError(t, err)
	assert.NotZero(t, ix.ID)
}

func TestDeleteDownloaderRefusesDefault(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.CreateDownloader(ctx, model.Downloader{
		Name: "sab", Kind: model.DownloaderSAB, BaseURL: "http://sab:8080", Enabled: true,
	})
	require.NoError(t, err)

	settings, err := f.store.Settings(ctx)
	require.NoError(t, err)
	settings.DefaultDownloaderID = &d.ID
	require.NoError(t, f.svc.UpdateSettings(ctx, settings))

	err = f.svc.DeleteDownloader(ctx, d.ID)
	assert.True(t, IsStateConflict(err))

	settings.DefaultDownloaderID = nil
	require.NoError(t, f.svc.UpdateSettings(ctx, settings))
	assert.NoError(t, f.svc.DeleteDownloader(ctx, d.ID))
}

func TestUpdateSettingsValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	base, err := f.store.Settings(ctx)
	require.NoError(t, err)

	cases := []struct {
		name   string
		mutate func(*model.Settings)
	}{
		{"inverted resolution range", func(s *model.Settings) { s.MinResolution = 2160; s.MaxResolution = 720 }},
		{"negative threshold", func(s *model.Settings) { s.AutoDownloadThreshold = -1 }},
		{"tick below a minute", func(s *model.Settings) { s.SchedulerTickSeconds = 10 }},
		{"zero concurrency", func(s *model.Settings) { s.GlobalConcurrency = 0 }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			settings := base
			tc.mutate(&settings)
			assert.True(t, IsValidation(f.svc.UpdateSettings(ctx, settings)))
		})
	}

	missing := int64(9999)
	settings := base
	settings.DefaultDownloaderID = &missing
	assert.ErrorIs(t, f.svc.UpdateSettings(ctx, settings), store.ErrNotFound)
}

func TestCreateSearchValidatesRoundAndSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.CreateSearch(ctx, f.round.ID, "warmup-lap", nil)
	assert.True(t, IsValidation(err))

	// The fixture round has a Race session but no Sprint.
	_, err = f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionSprint), nil)
	assert.True(t, IsValidation(err))

	_, err = f.svc.CreateSearch(ctx, 9999, string(model.SessionRace), nil)
	assert.ErrorIs(t, err, store.ErrNotFound)

	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, entry.Status)
	require.NotNil(t, entry.NextRunAt)
	assert.Equal(t, f.clock.Now().UTC(), entry.NextRunAt.UTC())

	_, err = f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	assert.True(t, IsStateConflict(err), "duplicate (round, session)")
}

func TestPauseResumeLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)

	require.NoError(t, f.svc.PauseSearch(ctx, entry.ID))
	got, err := f.svc.SearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusPaused, got.Status)

	// Pausing twice is a no-op, resuming twice is a conflict.
	assert.NoError(t, f.svc.PauseSearch(ctx, entry.ID))
	require.NoError(t, f.svc.ResumeSearch(ctx, entry.ID))
	assert.True(t, IsStateConflict(f.svc.ResumeSearch(ctx, entry.ID)))

	got, err = f.svc.SearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, f.clock.Now().UTC(), got.NextRunAt.UTC())
}

func TestPauseTerminalEntryConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateSearchStatus(ctx, entry.ID, model.StatusCompleted, nil, ""))

	assert.True(t, IsStateConflict(f.svc.PauseSearch(ctx, entry.ID)))
}

func TestResumeFailedEntryReschedules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)
	require.NoError(t, f.store.UpdateSearchStatus(ctx, entry.ID, model.StatusFailed, nil, "downloader gone"))

	require.NoError(t, f.svc.ResumeSearch(ctx, entry.ID))
	got, err := f.svc.SearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
}

func TestRunSearchNowRequiresScheduled(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)
	require.NoError(t, f.svc.PauseSearch(ctx, entry.ID))

	assert.True(t, IsStateConflict(f.svc.RunSearchNow(ctx, entry.ID)))
}

func TestRoundGrabHiddenSeasonConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.svc.HideSeason(ctx, f.round.SeasonID))
	_, err := f.svc.RoundGrab(ctx, f.round.ID, nil)
	assert.True(t, IsStateConflict(err))

	require.NoError(t, f.svc.RestoreSeason(ctx, f.round.SeasonID))
	_, err = f.svc.RoundGrab(ctx, f.round.ID, []string{"hot-lap"})
	assert.True(t, IsValidation(err), "unknown session type")
}

func TestSetSearchDownloaderOverride(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.CreateDownloader(ctx, model.Downloader{
		Name: "nzbget", Kind: model.DownloaderNZBG, BaseURL: "http://nzbget:6789", Enabled: true,
	})
	require.NoError(t, err)
	entry, err := f.svc.CreateSearch(ctx, f.round.ID, string(model.SessionRace), nil)
	require.NoError(t, err)

	missing := int64(9999)
	assert.ErrorIs(t, f.svc.SetSearchDownloader(ctx, entry.ID, &missing), store.ErrNotFound)

	require.NoError(t, f.svc.SetSearchDownloader(ctx, entry.ID, &d.ID))
	got, err := f.svc.SearchByID(ctx, entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.DownloaderID)
	assert.Equal(t, d.ID, *got.DownloaderID)

	require.NoError(t, f.svc.SetSearchDownloader(ctx, entry.ID, nil))
	got, err = f.svc.SearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Nil(t, got.DownloaderID)
}

func TestSetVenueAliases(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, IsValidation(f.svc.SetVenueAliases(ctx, "  ", []string{"Villeneuve"})))
	require.NoError(t, f.svc.SetVenueAliases(ctx, "circuit gilles villeneuve", []string{"Villeneuve", "Ile Notre-Dame"}))

	all, err := f.svc.ListVenueAliases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"Villeneuve", "Ile Notre-Dame"}, all["circuit gilles villeneuve"])
}
