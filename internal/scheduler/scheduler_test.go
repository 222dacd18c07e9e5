// SPDX-License-Identifier: MIT

package scheduler

import (
	"context"
	"path/filepath"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/model"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/store"
)

var baseTime = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeIndexerClient struct {
	mu       sync.Mutex
	releases []newznab.Release
	err      error
	calls    int
}

func (f *fakeIndexerClient) Search(_ context.Context, ix model.Indexer, _ newznab.Query) ([]newznab.Release, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([]newznab.Release, len(f.releases))
	copy(out, f.releases)
	for i := range out {
		out[i].Indexer = ix.Name
		out[i].IndexerID = ix.ID
	}
	return out, nil
}

func (f *fakeIndexerClient) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeDownloads struct {
	mu     sync.Mutex
	sends  []downloader.SendRequest
	status downloader.Status
	err    error
}

func (f *fakeDownloads) Send(_ context.Context, _ model.Downloader, req downloader.SendRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sends = append(f.sends, req)
	return "acq-1", nil
}

func (f *fakeDownloads) Status(_ context.Context, _ model.Downloader, _ string) (downloader.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return downloader.StatusUnknown, f.err
	}
	return f.status, nil
}

func (f *fakeDownloads) sendCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sends)
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []notify.Message
}

func (f *fakeNotifier) Async(_ context.Context, msg notify.Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.msgs = append(f.msgs, msg)
}

func (f *fakeNotifier) events() []model.NotificationEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]model.NotificationEvent, len(f.msgs))
	for i, m := range f.msgs {
		out[i] = m.Event
	}
	return out
}

type fixture struct {
	store     *store.Store
	clock     *clockwork.FakeClock
	client    *fakeIndexerClient
	downloads *fakeDownloads
	notifier  *fakeNotifier
	sched     *Scheduler
	round     model.Round
	event     model.Event
	dl        model.Downloader
}

// newFixture seeds a season, round, one Race session starting an hour
// before baseTime, an enabled indexer and a default downloader.
func newFixture(t *testing.T, start *time.Time) *fixture {
	t.Helper()
	clock := clockwork.NewFakeClockAt(baseTime)
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
	event := model.Event{RoundID: round.ID, Type: model.SessionRace, StartUTC: start}
	require.NoError(t, st.UpsertEvent(ctx, event))
	stored, err := st.EventByType(ctx, round.ID, model.SessionRace)
	require.NoError(t, err)

	_, err = st.CreateIndexer(ctx, model.Indexer{
		Name: "ix", Kind: model.IndexerNewznab, BaseURL: "https://ix.example",
		APIKey: "k", Categories: []int{5060}, Enabled: true,
	})
	require.NoError(t, err)
	dl, err := st.CreateDownloader(ctx, model.Downloader{
		Name: "sab", Kind: model.DownloaderSAB, BaseURL: "https://sab.example",
		APIKey: "k", Category: "f1", Enabled: true,
	})
	require.NoError(t, err)

	settings, err := st.Settings(ctx)
	require.NoError(t, err)
	settings.DefaultDownloaderID = &dl.ID
	require.NoError(t, st.SaveSettings(ctx, settings))

	client := &fakeIndexerClient{}
	downloads := &fakeDownloads{status: downloader.StatusDownloading}
	notifier := &fakeNotifier{}
	sched := New(st, search.NewSearcher(client, st), downloads, notifier, clock)

	return &fixture{
		store: st, clock: clock, client: client,
		downloads: downloads, notifier: notifier, sched: sched,
		round: round, event: stored, dl: dl,
	}
}

func (f *fixture) addEntry(t *testing.T, due time.Time) model.ScheduledSearch {
	t.Helper()
	entry, err := f.store.CreateScheduledSearch(context.Background(), model.ScheduledSearch{
		RoundID: f.round.ID, EventType: model.SessionRace,
		Status: model.StatusScheduled, AddedAt: f.clock.Now(), NextRunAt: &due,
	})
	require.NoError(t, err)
	return entry
}

func hourAgo() *time.Time {
	t := baseTime.Add(-time.Hour)
	return &t
}

func TestTickGrabsAboveThreshold(t *testing.T) {
	f := newFixture(t, hourAgo())
	f.client.releases = []newznab.Release{{
		Title:   "Formula.1.2025.Round06.Canadian.Race.1080p.WEB.h264-GRP",
		NZBURL:  "https://ix.example/getnzb/abc",
		PubDate: baseTime.Add(-10 * time.Minute),
	}}
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingDownload, got.Status)
	assert.Equal(t, "https://ix.example/getnzb/abc", got.ChosenNZB)
	assert.Nil(t, got.NextRunAt)
	assert.Equal(t, "rc-"+strconv.FormatInt(f.round.ID, 10)+"-race", got.Tag)

	require.Equal(t, 1, f.downloads.sendCount())
	h, err := f.store.LatestHistoryForEvent(context.Background(), f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HistorySent, h.Status)
	assert.Equal(t, "acq-1", h.AcquisitionID)
	assert.Contains(t, h.Title, "rc-")

	assert.Equal(t, []model.NotificationEvent{model.EventDownloadStart}, f.notifier.events())
}

func TestTickNoHitReschedulesWithinAggressiveWindow(t *testing.T) {
	f := newFixture(t, hourAgo())
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Equal(t, 1, got.Attempts)
	require.NotNil(t, got.NextRunAt)
	// aggressive cadence: one tick ahead, within the jitter spread
	expected := baseTime.Add(10 * time.Minute)
	assert.WithinDuration(t, expected, *got.NextRunAt, 3*time.Minute)
	assert.Positive(t, f.client.callCount())
}

func TestGateHoldsFirstSearch(t *testing.T) {
	start := baseTime.Add(2 * time.Hour)
	f := newFixture(t, &start)
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.WithinDuration(t, start.Add(30*time.Minute), *got.NextRunAt, 3*time.Minute)
	assert.Zero(t, f.client.callCount(), "no queries before the gate")
	assert.Zero(t, got.Attempts, "gated run does not consume an attempt")
}

func TestTBDStartWaitsOnProvider(t *testing.T) {
	f := newFixture(t, nil)
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, baseTime.Add(6*time.Hour), *got.NextRunAt)
	assert.Zero(t, f.client.callCount())
}

func TestExpiredEntryCompletes(t *testing.T) {
	start := baseTime.Add(-15 * 24 * time.Hour)
	f := newFixture(t, &start)
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)
	assert.Equal(t, "expired", got.CompletedWhy)
	assert.Nil(t, got.NextRunAt)
	assert.Zero(t, f.downloads.sendCount())
}

func TestHardMismatchNeverAutoGrabs(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()

	settings, err := f.store.Settings(ctx)
	require.NoError(t, err)
	settings.AutoDownloadThreshold = 40
	settings.PreferredGroups = []string{"GRP"}
	settings.PreferredCodecs = []string{"h264"}
	require.NoError(t, f.store.SaveSettings(ctx, settings))

	// Wrong year, everything else right: 50 points clears the lowered
	// threshold but the year mismatch is a hard veto.
	f.client.releases = []newznab.Release{{
		Title:  "Formula.1.2024.Round06.Montreal.Race.1080p.h264-GRP",
		NZBURL: "https://ix.example/getnzb/wrong",
	}}
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(ctx))

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Zero(t, f.downloads.sendCount())
}

func TestAuxiliaryReleaseNeverAutoGrabs(t *testing.T) {
	f := newFixture(t, hourAgo())

	// A preview show about the session: year and venue line up, but the
	// auxiliary penalty keeps it far below the threshold.
	f.client.releases = []newznab.Release{{
		Title:  "F1.2025.Montreal.Race.Preview.1080p",
		NZBURL: "https://ix.example/getnzb/preview",
	}}
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	assert.Empty(t, got.ChosenNZB)
	assert.Zero(t, f.downloads.sendCount())
	assert.Empty(t, f.notifier.events())
}

func TestDecayCadenceAfterAggressiveWindow(t *testing.T) {
	start := baseTime.Add(-30 * time.Hour) // past the 24h aggressive window
	f := newFixture(t, &start)
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(context.Background()))

	got, err := f.store.ScheduledSearchByID(context.Background(), entry.ID)
	require.NoError(t, err)
	require.NotNil(t, got.NextRunAt)
	assert.WithinDuration(t, baseTime.Add(6*time.Hour), *got.NextRunAt, 3*time.Minute)
}

func TestPollCompletion(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.store.UpdateSearchStatus(ctx, entry.ID, model.StatusWaitingDownload, nil, ""))
	h, err := f.store.AppendHistory(ctx, model.DownloadHistory{
		EventID: f.event.ID, DownloaderID: f.dl.ID, AcquisitionID: "acq-1",
		Title: "F1 Race rc-tag", NZBURL: "https://ix.example/getnzb/abc",
		Score: 100, Status: model.HistorySent,
	})
	require.NoError(t, err)

	f.downloads.status = downloader.StatusCompleted
	require.NoError(t, f.sched.PollDownloads(ctx))

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCompleted, got.Status)

	hist, err := f.store.HistoryByID(ctx, h.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HistoryCompleted, hist.Status)
	assert.NotNil(t, hist.LastPolledAt)

	assert.Equal(t, []model.NotificationEvent{model.EventDownloadComplete}, f.notifier.events())
}

func TestPollFailureReschedulesWithCooldown(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.store.UpdateSearchStatus(ctx, entry.ID, model.StatusWaitingDownload, nil, ""))
	_, err := f.store.AppendHistory(ctx, model.DownloadHistory{
		EventID: f.event.ID, DownloaderID: f.dl.ID, AcquisitionID: "acq-1",
		Title: "F1 Race", NZBURL: "https://ix.example/getnzb/abc",
		Status: model.HistorySent,
	})
	require.NoError(t, err)

	f.downloads.status = downloader.StatusFailed
	require.NoError(t, f.sched.PollDownloads(ctx))

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.Equal(t, baseTime.Add(time.Hour), *got.NextRunAt)
	assert.Equal(t, entry.Attempts+1, got.Attempts, "the failed download counts as an attempt")
	assert.Equal(t, "download failed", got.LastError)

	assert.Equal(t, []model.NotificationEvent{model.EventDownloadFail}, f.notifier.events())
}

func TestGrabRoundThroughExistingEntry(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	f.client.releases = []newznab.Release{{
		Title:  "Formula.1.2025.Round06.Canadian.Race.1080p.WEB.h264-GRP",
		NZBURL: "https://ix.example/getnzb/abc",
	}}
	entry := f.addEntry(t, baseTime)

	results, err := f.sched.GrabRound(ctx, f.round, []model.SessionType{model.SessionRace})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Sent)

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusWaitingDownload, got.Status)
	assert.Equal(t, 1, f.downloads.sendCount())
}

func TestGrabRoundSkipsInFlightEntry(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	entry := f.addEntry(t, baseTime)
	require.NoError(t, f.store.UpdateSearchStatus(ctx, entry.ID, model.StatusWaitingDownload, nil, ""))

	results, err := f.sched.GrabRound(ctx, f.round, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.False(t, results[0].Sent)
	assert.Contains(t, results[0].Reason, "waiting-download")
	assert.Zero(t, f.downloads.sendCount())
}

func TestGrabRoundStandaloneEvent(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	f.client.releases = []newznab.Release{{
		Title:  "Formula.1.2025.Round06.Canadian.Race.1080p.WEB.h264-GRP",
		NZBURL: "https://ix.example/getnzb/abc",
	}}

	results, err := f.sched.GrabRound(ctx, f.round, nil)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.True(t, results[0].Sent)
	assert.Equal(t, 1, f.downloads.sendCount())

	h, err := f.store.LatestHistoryForEvent(ctx, f.event.ID)
	require.NoError(t, err)
	assert.Equal(t, model.HistorySent, h.Status)
	// no watch entry was created by the operator action
	_, err = f.store.ScheduledSearchByKey(ctx, f.round.ID, model.SessionRace)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestSendFailureFatalMarksFailed(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	f.client.releases = []newznab.Release{{
		Title:  "Formula.1.2025.Round06.Canadian.Race.1080p.WEB.h264-GRP",
		NZBURL: "https://ix.example/getnzb/abc",
	}}
	f.downloads.err = &downloader.Error{Kind: downloader.KindAuthRejected, Downloader: "sab"}
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(ctx))

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Contains(t, got.LastError, "auth-rejected")
}

func TestSendFailureTransientReschedules(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx := context.Background()
	f.client.releases = []newznab.Release{{
		Title:  "Formula.1.2025.Round06.Canadian.Race.1080p.WEB.h264-GRP",
		NZBURL: "https://ix.example/getnzb/abc",
	}}
	f.downloads.err = &downloader.Error{Kind: downloader.KindUnavailable, Downloader: "sab"}
	entry := f.addEntry(t, baseTime)

	require.NoError(t, f.sched.Tick(ctx))

	got, err := f.store.ScheduledSearchByID(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, model.StatusScheduled, got.Status)
	require.NotNil(t, got.NextRunAt)
	assert.True(t, got.NextRunAt.After(baseTime))
}

func TestCadenceHelpers(t *testing.T) {
	s := model.DefaultSettings()
	start := baseTime

	assert.Equal(t, phaseTBD, classifyPhase(baseTime, nil, s))
	assert.Equal(t, phaseGate, classifyPhase(start.Add(10*time.Minute), &start, s))
	assert.Equal(t, phaseAggressive, classifyPhase(start.Add(time.Hour), &start, s))
	assert.Equal(t, phaseDecay, classifyPhase(start.Add(25*time.Hour), &start, s))
	assert.Equal(t, phaseExpired, classifyPhase(start.Add(15*24*time.Hour), &start, s))

	assert.Equal(t, 2*time.Minute, cooldown(2, s))
	assert.Equal(t, 6*time.Hour, cooldown(12, s), "cooldown caps at the decay interval")
}

func TestRunStopsOnCancel(t *testing.T) {
	f := newFixture(t, hourAgo())
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- f.sched.Run(ctx) }()

	time.Sleep(50 * time.Millisecond) // let both loops park on the clock
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("scheduler did not stop")
	}
}
